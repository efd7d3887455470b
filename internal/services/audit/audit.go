// Package audit appends tamper-evident event records. Writes are
// fire-and-forget: they never block or fail the operation that emits them.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"capmatch/internal/domain"
	"capmatch/internal/metrics"
	"capmatch/internal/ports"
)

// appendTimeout bounds each background append independently of the caller's
// request lifetime.
const appendTimeout = 5 * time.Second

// Logger records audit events asynchronously against an AuditSink.
type Logger struct {
	sink  ports.AuditSink
	clock clockwork.Clock
	log   *slog.Logger
	wg    sync.WaitGroup
}

// New builds an audit logger.
func New(sink ports.AuditSink, clock clockwork.Clock, log *slog.Logger) *Logger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Logger{sink: sink, clock: clock, log: log}
}

// Record appends one event in the background. Failures are logged and
// counted, never surfaced.
func (l *Logger) Record(actor, entityType, entityID, action string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		l.log.Error("audit payload marshal failed", "action", action, "error", err)
		metrics.AuditFailures.Inc()
		return
	}
	ev := domain.AuditEvent{
		ID:         uuid.NewString(),
		Actor:      actor,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Payload:    data,
		Hash:       contentHash(data),
		CreatedAt:  l.clock.Now().UTC(),
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		// Detached from the request context: the response must not wait on
		// the audit write, and the write must not die with the request.
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		defer cancel()
		if err := l.sink.Append(ctx, ev); err != nil {
			l.log.Error("audit append failed", "action", action, "entity_id", entityID, "error", err)
			metrics.AuditFailures.Inc()
		}
	}()
}

// Wait blocks until all in-flight appends finish. Used on shutdown and in
// tests.
func (l *Logger) Wait() {
	l.wg.Wait()
}

// contentHash is FNV-1a over the payload: tamper-evidence at the application
// layer, not a security boundary.
func contentHash(data []byte) string {
	h := fnv.New64a()
	_, _ = h.Write(data)
	return fmt.Sprintf("%016x", h.Sum64())
}
