package engine

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"depin-engine-backend/internal/events"
	"depin-engine-backend/internal/model"
)

// Engine owns the persistence handle and the execution discipline
// shared by every state-mutating operation: one global ordering lock,
// one all-or-nothing transaction per operation, and event delivery
// only after commit. Mutations are linearizable by call order.
type Engine struct {
	db    *gorm.DB
	mu    sync.Mutex
	guard Guard

	// Now is the engine clock. Tests override it to drive time-gated
	// behavior such as the oracle update interval.
	Now func() time.Time

	// OnEvent, when set, receives every committed event. The worker
	// pool hooks in here to fan events out to push subscribers.
	OnEvent func(model.Event)
}

// New creates an engine on top of db.
func New(db *gorm.DB) *Engine {
	return &Engine{
		db:  db,
		Now: func() time.Time { return time.Now().UTC() },
	}
}

// DB exposes the underlying handle for read-only queries.
func (e *Engine) DB() *gorm.DB { return e.db }

// Exec runs fn as a single all-or-nothing commit under the global
// ordering lock. Events recorded by fn are delivered only if the
// transaction commits, and only after the lock is released: a slow
// event consumer must never stall the next mutation.
func (e *Engine) Exec(ctx context.Context, fn func(tx *gorm.DB, rec *events.Recorder) error) error {
	committed, err := e.locked(ctx, fn)
	if err != nil {
		return err
	}
	e.deliver(committed)
	return nil
}

// ExecGuarded is Exec plus the shared re-entrancy guard. Every entry
// point that moves token value goes through here; a nested guarded
// call made while the guard is held fails before touching any state.
func (e *Engine) ExecGuarded(ctx context.Context, fn func(tx *gorm.DB, rec *events.Recorder) error) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	return e.Exec(ctx, fn)
}

func (e *Engine) locked(ctx context.Context, fn func(tx *gorm.DB, rec *events.Recorder) error) ([]model.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec := events.NewRecorder(e.Now)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec.Committed(), nil
}

func (e *Engine) deliver(committed []model.Event) {
	if e.OnEvent == nil {
		return
	}
	for _, ev := range committed {
		e.OnEvent(ev)
	}
}
