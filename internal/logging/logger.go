// Package logging provides the channel-based structured event log used across
// the sync pipeline. Events carry a severity, a channel, a message, and a
// context map; they fan out to pluggable sinks (stdout JSON always, Kafka,
// Loki, and OTel logs when configured). All sinks are best-effort: a failing
// sink never affects the pipeline.
package logging

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// Level is the severity of a log event.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Channels group events by pipeline concern.
const (
	ChannelTelemetry    = "telemetry"
	ChannelTransmission = "transmission"
	ChannelSystem       = "system"
	ChannelError        = "error"
)

// Event is one structured log entry.
type Event struct {
	Level     Level          `json:"level"`
	Channel   string         `json:"channel"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Sink receives log events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// emitTimeout is the max time allowed for a single async sink emit.
const emitTimeout = 5 * time.Second

// Logger fans events out to its sinks. The first sink is emitted to
// synchronously (normally stdout); the rest run fire-and-forget in goroutines
// so slow sinks do not block the pipeline. A nil Logger discards everything.
type Logger struct {
	sinks []Sink
	now   func() time.Time
}

// New returns a Logger emitting to the given sinks, in order.
func New(sinks ...Sink) *Logger {
	return &Logger{sinks: sinks, now: time.Now}
}

// Debug logs at debug severity.
func (l *Logger) Debug(ctx context.Context, channel, msg string, fields map[string]any) {
	l.emit(ctx, LevelDebug, channel, msg, fields)
}

// Info logs at info severity.
func (l *Logger) Info(ctx context.Context, channel, msg string, fields map[string]any) {
	l.emit(ctx, LevelInfo, channel, msg, fields)
}

// Warning logs at warning severity.
func (l *Logger) Warning(ctx context.Context, channel, msg string, fields map[string]any) {
	l.emit(ctx, LevelWarning, channel, msg, fields)
}

// Error logs at error severity.
func (l *Logger) Error(ctx context.Context, channel, msg string, fields map[string]any) {
	l.emit(ctx, LevelError, channel, msg, fields)
}

func (l *Logger) emit(ctx context.Context, level Level, channel, msg string, fields map[string]any) {
	if l == nil || len(l.sinks) == 0 {
		return
	}
	now := time.Now
	if l.now != nil {
		now = l.now
	}
	e := Event{
		Level:     level,
		Channel:   channel,
		Message:   msg,
		Context:   fields,
		CreatedAt: now().UTC(),
	}
	if err := l.sinks[0].Emit(ctx, e); err != nil {
		log.Printf("logging: sink emit failed: %v", err)
	}
	for _, s := range l.sinks[1:] {
		go func(s Sink) {
			emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
			defer cancel()
			if err := s.Emit(emitCtx, e); err != nil {
				log.Printf("logging: async sink emit failed: %v", err)
			}
		}(s)
	}
}

// StdSink writes events as single-line JSON via the standard log package.
type StdSink struct{}

// Emit marshals the event and writes it to the process log.
func (StdSink) Emit(_ context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	log.Printf("%s", b)
	return nil
}
