// Package queue moves sync jobs between the scheduler and the workers over
// Kafka. One message is one sync request for one municipality.
package queue

import (
	"context"
	"time"
)

// Job asks a worker to run one sync for one municipality.
type Job struct {
	JobID          string    `json:"job_id"`
	MunicipalityID string    `json:"municipality_id"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

// Producer enqueues sync jobs.
type Producer interface {
	Enqueue(ctx context.Context, job Job) error
}

// Handler processes one dequeued job.
type Handler func(ctx context.Context, job Job) error
