package logging

import "context"

// Domain helpers for the events the pipeline emits at fixed points. They pin
// each event to its channel and severity so call sites cannot drift apart in
// wording or classification.

// SyncStart marks the beginning of a sync run.
func (l *Logger) SyncStart(ctx context.Context, municipalityID string) {
	l.Info(ctx, ChannelTelemetry, "sync started", map[string]any{
		"municipality": municipalityID,
	})
}

// SyncEnd marks the end of a sync run with its outcome.
func (l *Logger) SyncEnd(ctx context.Context, municipalityID, outcome string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["municipality"] = municipalityID
	fields["outcome"] = outcome
	l.Info(ctx, ChannelTelemetry, "sync finished", fields)
}

// GPSDataReceived reports how many records the upstream returned.
func (l *Logger) GPSDataReceived(ctx context.Context, municipalityID string, count int) {
	l.Info(ctx, ChannelTelemetry, "gps data received", map[string]any{
		"municipality": municipalityID,
		"records":      count,
	})
}

// ValidationResult reports the validation tally for a batch.
func (l *Logger) ValidationResult(ctx context.Context, municipalityID string, total, valid, invalid int, successRate float64) {
	l.Info(ctx, ChannelTelemetry, "batch validated", map[string]any{
		"municipality": municipalityID,
		"total":        total,
		"valid":        valid,
		"invalid":      invalid,
		"success_rate": successRate,
	})
}

// DataTransformation reports the transformation summary for a batch. summary
// carries the schema, counts, success rate, and timestamp of the pass.
func (l *Logger) DataTransformation(ctx context.Context, municipalityID string, summary map[string]any) {
	fields := map[string]any{"municipality": municipalityID}
	for k, v := range summary {
		fields[k] = v
	}
	l.Info(ctx, ChannelTelemetry, "records transformed", fields)
}

// TransmissionSent marks a fully delivered batch.
func (l *Logger) TransmissionSent(ctx context.Context, municipalityID, transmissionID string, records int) {
	l.Info(ctx, ChannelTransmission, "batch delivered", map[string]any{
		"municipality": municipalityID,
		"transmission": transmissionID,
		"records":      records,
	})
}

// TransmissionError marks a failed delivery.
func (l *Logger) TransmissionError(ctx context.Context, municipalityID, transmissionID string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["municipality"] = municipalityID
	fields["transmission"] = transmissionID
	l.Error(ctx, ChannelTransmission, "batch delivery failed", fields)
}

// TransmissionRetry marks a job-level retry.
func (l *Logger) TransmissionRetry(ctx context.Context, municipalityID string, attempt int, delay string) {
	l.Info(ctx, ChannelSystem, "retrying sync", map[string]any{
		"municipality": municipalityID,
		"attempt":      attempt,
		"delay":        delay,
	})
}

// ConnectionError marks an upstream or destination transport failure.
func (l *Logger) ConnectionError(ctx context.Context, target string, err error) {
	l.Error(ctx, ChannelError, "connection failed", map[string]any{
		"target": target,
		"error":  err.Error(),
	})
}

// FinalFailure marks a job that exhausted every retry attempt.
func (l *Logger) FinalFailure(ctx context.Context, municipalityID string, attempts int, err error) {
	l.Error(ctx, ChannelError, "sync job permanently failed", map[string]any{
		"municipality": municipalityID,
		"attempts":     attempts,
		"error":        err.Error(),
	})
}
