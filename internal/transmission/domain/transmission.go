package domain

import (
	"fmt"
	"time"
)

// Status is the delivery state of a transmission. A row starts PENDING and is
// finalized exactly once, to SENT or FAILED. There is no way back.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// Transmission is the durable audit row for one delivery attempt of one batch.
// A fresh row is created per orchestrator run; job-level retries redo the
// whole pipeline and create their own row.
type Transmission struct {
	ID             string
	MunicipalityID string
	// Payload is the full outbound batch as sent to MININTER, JSON-encoded.
	Payload []byte
	// ResponseCode is the first HTTP status observed, when any response arrived.
	ResponseCode *int
	// ResponseBody is the first response body observed, kept for audit.
	ResponseBody string
	// ErrorMessage is the first failure message, set only on FAILED rows.
	ErrorMessage string
	Status       Status
	// SentAt is set when the row reaches a terminal status.
	SentAt     *time.Time
	RetryCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MarkSent finalizes a pending transmission as delivered.
func (t *Transmission) MarkSent(responseCode *int, responseBody string, at time.Time) error {
	if err := t.ensurePending(); err != nil {
		return err
	}
	t.Status = StatusSent
	t.ResponseCode = responseCode
	t.ResponseBody = responseBody
	t.SentAt = &at
	return nil
}

// MarkFailed finalizes a pending transmission as failed with the first error observed.
func (t *Transmission) MarkFailed(responseCode *int, responseBody, errMsg string, at time.Time) error {
	if err := t.ensurePending(); err != nil {
		return err
	}
	t.Status = StatusFailed
	t.ResponseCode = responseCode
	t.ResponseBody = responseBody
	t.ErrorMessage = errMsg
	t.SentAt = &at
	return nil
}

func (t *Transmission) ensurePending() error {
	if t.Status != StatusPending {
		return fmt.Errorf("transmission %s is %s, only PENDING can be finalized", t.ID, t.Status)
	}
	return nil
}

// WasSuccessful reports whether the transmission reached MININTER in full.
func (t *Transmission) WasSuccessful() bool { return t.Status == StatusSent }
