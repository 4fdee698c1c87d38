package otel

import (
	"context"
	"encoding/json"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"mininter-gps-proxy/backend/internal/logging"
)

// NewLogSink returns a logging.Sink that emits events as OTel log records via
// the given LoggerProvider. If provider is nil, returns a no-op sink.
func NewLogSink(provider *sdklog.LoggerProvider) logging.Sink {
	if provider == nil {
		return noopSink{}
	}
	return &otelSink{logger: provider.Logger("gps-proxy.logging")}
}

type noopSink struct{}

func (noopSink) Emit(context.Context, logging.Event) error { return nil }

type otelSink struct {
	logger otellog.Logger
}

// Emit converts the log event to an OTel log record and emits it.
func (s *otelSink) Emit(ctx context.Context, e logging.Event) error {
	rec := otellog.Record{}
	if !e.CreatedAt.IsZero() {
		rec.SetTimestamp(e.CreatedAt)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	rec.SetBody(otellog.StringValue(e.Message))
	rec.SetSeverity(severityOf(e.Level))
	rec.SetSeverityText(string(e.Level))
	if e.Channel != "" {
		rec.AddAttributes(otellog.String("channel", e.Channel))
	}
	if len(e.Context) > 0 {
		if b, err := json.Marshal(e.Context); err == nil {
			rec.AddAttributes(otellog.String("context", string(b)))
		}
	}
	s.logger.Emit(ctx, rec)
	return nil
}

func severityOf(level logging.Level) otellog.Severity {
	switch level {
	case logging.LevelDebug:
		return otellog.SeverityDebug
	case logging.LevelWarning:
		return otellog.SeverityWarn
	case logging.LevelError:
		return otellog.SeverityError
	default:
		return otellog.SeverityInfo
	}
}
