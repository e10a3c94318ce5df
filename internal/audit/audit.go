// Package audit records before/after snapshots of registration mutations.
// Recording is fire-and-forget: a slow or failing sink never blocks or fails
// the mutation that produced the entry.
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Action names the kind of mutation being audited.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionApprove Action = "approve"
	ActionDelete  Action = "delete"
	ActionRestore Action = "restore"
	ActionPurge   Action = "purge"
)

// Entry is one audit record.
type Entry struct {
	Action   Action    `json:"action"`
	Entity   string    `json:"entity"`
	EntityID string    `json:"entity_id"`
	Actor    string    `json:"actor"`
	Before   any       `json:"before,omitempty"`
	After    any       `json:"after,omitempty"`
	At       time.Time `json:"at"`
}

// Sink persists or forwards audit entries.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// Recorder accepts entries for asynchronous delivery.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// Dispatcher fans entries out to sinks on background goroutines. Close
// waits for deliveries still in flight.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher delivering to sinks.
func NewDispatcher(log *zap.Logger, timeout time.Duration, sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, timeout: timeout, log: log, now: time.Now}
}

// Record schedules delivery of e and returns immediately. The request
// context only contributes values; its cancellation does not abort delivery.
func (d *Dispatcher) Record(ctx context.Context, e Entry) {
	if e.At.IsZero() {
		e.At = d.now().UTC()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.log.Warn("audit entry dropped after close",
			zap.String("action", string(e.Action)),
			zap.String("entity_id", e.EntityID),
		)
		return
	}

	base := context.WithoutCancel(ctx)
	d.inflight.Add(len(d.sinks))
	for _, sink := range d.sinks {
		go func(s Sink) {
			defer d.inflight.Done()
			sctx, cancel := context.WithTimeout(base, d.timeout)
			defer cancel()
			if err := s.Write(sctx, e); err != nil {
				d.log.Warn("audit sink failed",
					zap.String("action", string(e.Action)),
					zap.String("entity_id", e.EntityID),
					zap.Error(err),
				)
			}
		}(sink)
	}
}

// Close stops accepting entries and waits for in-flight deliveries, or
// until ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSink writes entries to a zap logger.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink constructs a LogSink.
func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log.Named("audit")}
}

// Write implements Sink.
func (s *LogSink) Write(_ context.Context, e Entry) error {
	s.log.Info("audit",
		zap.String("action", string(e.Action)),
		zap.String("entity", e.Entity),
		zap.String("entity_id", e.EntityID),
		zap.String("actor", e.Actor),
		zap.Any("before", e.Before),
		zap.Any("after", e.After),
		zap.Time("at", e.At),
	)
	return nil
}
