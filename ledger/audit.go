package ledger

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// AUDIT LOG - Separate from ledger, tracks who did what when
// =============================================================================

// AuditEntry records who did what when.
type AuditEntry struct {
	ID         string
	Timestamp  time.Time
	ActorID    UserID
	Action     AuditAction
	EntityKind string
	EntityID   string
}

type AuditAction string

const (
	AuditCreate       AuditAction = "create"
	AuditUpdate       AuditAction = "update"
	AuditDelete       AuditAction = "delete"
	AuditClose        AuditAction = "close"
	AuditCarryForward AuditAction = "carry_forward"
)

const (
	EntityTransaction  = "transaction"
	EntityDetail       = "detail"
	EntityFiscalPeriod = "fiscal_period"
	EntityAccount      = "account"
)

// AuditSink receives audit entries after a ledger write commits.
// Failures are logged by the caller and never roll back the write.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AuditSink
	Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	ActorID    UserID
	EntityKind string
	EntityID   string
	Actions    []AuditAction
	Limit      int
}

// NewAuditEntry stamps an entry with a fresh ID and the current time.
func NewAuditEntry(action AuditAction, actor UserID, kind, id string) AuditEntry {
	return AuditEntry{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		ActorID:    actor,
		Action:     action,
		EntityKind: kind,
		EntityID:   id,
	}
}

// NopAuditSink discards every entry.
type NopAuditSink struct{}

func (NopAuditSink) Record(context.Context, AuditEntry) error { return nil }

// =============================================================================
// ASYNC AUDIT SINK - Keeps slow audit writes off the request path
// =============================================================================

// ErrAuditQueueFull is returned when the async queue cannot accept an entry.
// The entry is dropped.
var ErrAuditQueueFull = errors.New("audit queue full")

// AsyncAuditSink forwards entries to another sink from a background goroutine.
// Record never blocks: when the buffer is full the entry is dropped.
//
// USAGE:
//
//	sink := ledger.NewAsyncAuditSink(store, 256)
//	defer sink.Close()
type AsyncAuditSink struct {
	next  AuditSink
	queue chan AuditEntry

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncAuditSink starts the forwarding goroutine.
func NewAsyncAuditSink(next AuditSink, buffer int) *AsyncAuditSink {
	if buffer <= 0 {
		buffer = 1
	}
	a := &AsyncAuditSink{next: next, queue: make(chan AuditEntry, buffer)}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *AsyncAuditSink) Record(_ context.Context, entry AuditEntry) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrAuditQueueFull
	}
	select {
	case a.queue <- entry:
		return nil
	default:
		return ErrAuditQueueFull
	}
}

// Close drains queued entries and stops the goroutine.
func (a *AsyncAuditSink) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *AsyncAuditSink) run() {
	defer a.wg.Done()
	for entry := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.next.Record(ctx, entry); err != nil {
			log.Printf("[Audit] failed to record %s %s/%s: %v", entry.Action, entry.EntityKind, entry.EntityID, err)
		}
		cancel()
	}
}

// AuditTrail queries the configured audit log, newest first.
func (s *Service) AuditTrail(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	if s.Trail == nil {
		return nil, &InternalError{Op: "audit trail", Err: errors.New("audit log is not configured")}
	}
	entries, err := s.Trail.Query(ctx, filter)
	return entries, boundary("audit trail", err)
}
