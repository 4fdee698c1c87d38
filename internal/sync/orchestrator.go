// Package sync runs the end-to-end telemetry relay for one municipality:
// fetch raw records from GPServer, validate them, transform them into the
// destination schema, deliver them to MININTER, and record the attempt as a
// transmission row. The run is the unit of retry; every retry redoes the
// whole pipeline against fresh upstream data.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mininter-gps-proxy/backend/internal/gps"
	"mininter-gps-proxy/backend/internal/lease"
	"mininter-gps-proxy/backend/internal/logging"
	"mininter-gps-proxy/backend/internal/mininter"
	munidomain "mininter-gps-proxy/backend/internal/municipality/domain"
	munirepo "mininter-gps-proxy/backend/internal/municipality/repository"
	"mininter-gps-proxy/backend/internal/transform"
	txdomain "mininter-gps-proxy/backend/internal/transmission/domain"
	txrepo "mininter-gps-proxy/backend/internal/transmission/repository"
	"mininter-gps-proxy/backend/internal/validation"
)

// Outcome classifies how a run ended.
type Outcome string

const (
	// OutcomeSent means every record was delivered and recorded.
	OutcomeSent Outcome = "SENT"
	// OutcomeFailed means delivery failed and the failure was recorded.
	OutcomeFailed Outcome = "FAILED"
	// OutcomeSkipped means the run ended before delivery with nothing to
	// record: inactive municipality, no data, no valid records, or another
	// worker holds the sync lease.
	OutcomeSkipped Outcome = "SKIPPED"
)

// lowSuccessRateThreshold is the validation success rate, in percent, below
// which a batch is flagged for operator attention.
const lowSuccessRateThreshold = 50.0

// Fetcher retrieves raw GPS records for an account token.
type Fetcher interface {
	Fetch(ctx context.Context, token string) ([]gps.Record, error)
}

// Sender delivers transformed payloads to the destination for a kind.
type Sender interface {
	Send(ctx context.Context, kind munidomain.Kind, payloads []transform.Payload) mininter.BatchResult
}

// Result is the report of one orchestrator run.
type Result struct {
	Outcome        Outcome
	MunicipalityID string
	TransmissionID string
	Fetched        int
	Valid          int
	Invalid        int
	SuccessRate    float64
	Delivered      int
	Reason         string
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	Municipalities munirepo.Repository
	Transmissions  txrepo.Repository
	Leases         lease.Lease
	Fetcher        Fetcher
	Validator      *validation.Validator
	Transformer    *transform.Transformer
	Sender         Sender
	Logger         *logging.Logger

	now   func() time.Time
	newID func() string
}

// New builds an Orchestrator over the given collaborators.
func New(munis munirepo.Repository, txs txrepo.Repository, leases lease.Lease, fetcher Fetcher, validator *validation.Validator, transformer *transform.Transformer, sender Sender, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		Municipalities: munis,
		Transmissions:  txs,
		Leases:         leases,
		Fetcher:        fetcher,
		Validator:      validator,
		Transformer:    transformer,
		Sender:         sender,
		Logger:         logger,
		now:            time.Now,
		newID:          func() string { return uuid.NewString() },
	}
}

// Run executes one sync for the municipality. A non-nil error means the run
// failed in a retryable way; skips return a nil error since retrying them
// would only repeat the skip.
func (o *Orchestrator) Run(ctx context.Context, municipalityID string) (Result, error) {
	res := Result{MunicipalityID: municipalityID, Outcome: OutcomeSkipped}

	muni, err := o.Municipalities.GetByID(ctx, municipalityID)
	if err != nil {
		return res, fmt.Errorf("loading municipality %s: %w", municipalityID, err)
	}
	if muni == nil {
		res.Reason = "municipality not found"
		o.Logger.Warning(ctx, logging.ChannelSystem, "sync requested for unknown municipality", map[string]any{
			"municipality": municipalityID,
		})
		return res, nil
	}
	if !muni.Active {
		res.Reason = "municipality inactive"
		o.Logger.Info(ctx, logging.ChannelSystem, "skipping inactive municipality", map[string]any{
			"municipality": municipalityID,
		})
		return res, nil
	}

	acquired, err := o.Leases.Acquire(ctx, municipalityID)
	if err != nil {
		return res, fmt.Errorf("acquiring sync lease: %w", err)
	}
	if !acquired {
		res.Reason = "sync already in progress"
		o.Logger.Info(ctx, logging.ChannelSystem, "another worker holds the sync lease, skipping", map[string]any{
			"municipality": municipalityID,
		})
		return res, nil
	}
	defer func() {
		if err := o.Leases.Release(context.WithoutCancel(ctx), municipalityID); err != nil {
			o.Logger.Warning(ctx, logging.ChannelSystem, "releasing sync lease failed", map[string]any{
				"municipality": municipalityID,
				"error":        err.Error(),
			})
		}
	}()

	return o.runLeased(ctx, muni)
}

func (o *Orchestrator) runLeased(ctx context.Context, muni *munidomain.Municipality) (Result, error) {
	res := Result{MunicipalityID: muni.ID, Outcome: OutcomeSkipped}
	o.Logger.SyncStart(ctx, muni.ID)

	records, err := o.Fetcher.Fetch(ctx, muni.TokenGPS)
	if err != nil {
		return res, fmt.Errorf("fetching records for %s: %w", muni.ID, err)
	}
	res.Fetched = len(records)
	o.Logger.GPSDataReceived(ctx, muni.ID, len(records))
	if len(records) == 0 {
		res.Reason = "no records from gpserver"
		o.Logger.Warning(ctx, logging.ChannelTelemetry, "gpserver returned no records", map[string]any{
			"municipality": muni.ID,
		})
		return res, nil
	}

	validated := o.Validator.Validate(records)
	res.Valid = validated.ValidCount
	res.Invalid = validated.InvalidCount
	res.SuccessRate = validated.SuccessRate
	o.logValidation(ctx, muni.ID, validated)
	if validated.ValidCount == 0 {
		res.Reason = "no valid records"
		return res, nil
	}

	payloads := o.transformFor(ctx, muni, validated.Valid)
	summary := transform.Summarize(string(muni.Tipo), validated.ValidCount, len(payloads))
	o.Logger.DataTransformation(ctx, muni.ID, summary.Fields())
	if len(payloads) == 0 {
		// Valid records that all vanish in transform mean the stages
		// disagree about what a record needs. That is a bug, not a quiet
		// skip.
		return res, fmt.Errorf("transform produced no payloads from %d valid records for %s", validated.ValidCount, muni.ID)
	}

	return o.deliver(ctx, muni, payloads, res)
}

// deliver creates the PENDING transmission, sends the batch, and finalizes
// the row, all in one transaction so the audit trail never shows a payload
// without its outcome.
func (o *Orchestrator) deliver(ctx context.Context, muni *munidomain.Municipality, payloads []transform.Payload, res Result) (Result, error) {
	encoded, err := json.Marshal(payloads)
	if err != nil {
		return res, fmt.Errorf("encoding payload batch: %w", err)
	}

	tx := &txdomain.Transmission{
		ID:             o.newID(),
		MunicipalityID: muni.ID,
		Payload:        encoded,
		Status:         txdomain.StatusPending,
	}
	res.TransmissionID = tx.ID

	var batch mininter.BatchResult
	err = o.Transmissions.InTx(ctx, func(repo txrepo.Repository) error {
		if err := repo.Create(ctx, tx); err != nil {
			return fmt.Errorf("creating transmission: %w", err)
		}

		batch = o.Sender.Send(ctx, muni.Tipo, payloads)
		now := o.clock()

		if batch.Success {
			code, body := firstResponse(batch)
			if err := tx.MarkSent(code, body, now); err != nil {
				return err
			}
		} else {
			code, body, msg := failureDetails(batch)
			if err := tx.MarkFailed(code, body, msg, now); err != nil {
				return err
			}
		}
		if err := repo.Finalize(ctx, tx); err != nil {
			return fmt.Errorf("finalizing transmission: %w", err)
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	res.Delivered = batch.Successful
	if batch.Success {
		res.Outcome = OutcomeSent
		o.Logger.TransmissionSent(ctx, muni.ID, tx.ID, batch.Total)
		o.Logger.SyncEnd(ctx, muni.ID, string(OutcomeSent), map[string]any{"records": batch.Total})
		return res, nil
	}

	res.Outcome = OutcomeFailed
	_, _, msg := failureDetails(batch)
	o.Logger.TransmissionError(ctx, muni.ID, tx.ID, map[string]any{
		"successful": batch.Successful,
		"failed":     batch.Failed,
		"error":      msg,
	})
	o.Logger.SyncEnd(ctx, muni.ID, string(OutcomeFailed), map[string]any{"error": msg})
	return res, fmt.Errorf("delivering batch for %s: %s", muni.ID, msg)
}

func (o *Orchestrator) logValidation(ctx context.Context, municipalityID string, v validation.Result) {
	fields := map[string]any{
		"municipality": municipalityID,
		"total":        v.Total,
		"valid":        v.ValidCount,
		"invalid":      v.InvalidCount,
		"success_rate": v.SuccessRate,
	}
	switch {
	case v.ValidCount == 0:
		o.Logger.Error(ctx, logging.ChannelTelemetry, "every record failed validation", fields)
	case v.SuccessRate < lowSuccessRateThreshold:
		o.Logger.Warning(ctx, logging.ChannelTelemetry, "validation success rate below threshold", fields)
	default:
		o.Logger.ValidationResult(ctx, municipalityID, v.Total, v.ValidCount, v.InvalidCount, v.SuccessRate)
	}
}

func (o *Orchestrator) transformFor(ctx context.Context, muni *munidomain.Municipality, records []gps.Record) []transform.Payload {
	if muni.IsPolicial() {
		return o.Transformer.ForPolicial(ctx, records, muni)
	}
	return o.Transformer.ForSerenazgo(ctx, records, muni)
}

func (o *Orchestrator) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}

// firstResponse picks the first per-record response for the audit row.
func firstResponse(batch mininter.BatchResult) (*int, string) {
	if len(batch.Results) == 0 {
		return nil, ""
	}
	first := batch.Results[0]
	if first.StatusCode == 0 {
		return nil, first.Body
	}
	code := first.StatusCode
	return &code, first.Body
}

// failureDetails extracts the first failure for the audit row.
func failureDetails(batch mininter.BatchResult) (*int, string, string) {
	if batch.FirstError == nil {
		return nil, "", "delivery failed"
	}
	fe := batch.FirstError
	msg := fe.Message
	if fe.Kind != "" {
		msg = fe.Kind + ": " + msg
	}
	if fe.StatusCode == 0 {
		return nil, fe.Body, msg
	}
	code := fe.StatusCode
	return &code, fe.Body, msg
}
