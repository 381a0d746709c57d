package hr

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// ACTOR - The authenticated user performing a mutation
// =============================================================================

type Actor struct {
	ID   string
	Name string
}

type actorKey struct{}

// WithActor attaches the acting user to ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the acting user, or ErrMissingActor if none is attached.
func ActorFrom(ctx context.Context) (Actor, error) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	if !ok || strings.TrimSpace(a.ID) == "" {
		return Actor{}, ErrMissingActor
	}
	return a, nil
}

// =============================================================================
// ACTIVITY - Append-only feed shown on the dashboard
// =============================================================================

type ActivityType string

const (
	ActivityAttendance  ActivityType = "attendance"
	ActivityCashAdvance ActivityType = "cash_advance"
	ActivityPayroll     ActivityType = "payroll"
)

type Activity struct {
	ID        string
	Type      ActivityType
	ActorID   string
	ActorName string
	Action    string
	Target    string
	At        time.Time
}

// ActivitySink receives activity events. Implementations must be safe for
// concurrent use.
type ActivitySink interface {
	Record(ctx context.Context, a Activity) error
}

// Emit records a best-effort activity. A nil sink is a no-op and sink
// failures are logged, never returned: the business mutation has already
// happened by the time activity is written.
func Emit(ctx context.Context, sink ActivitySink, logger *zap.Logger, a Activity) {
	if sink == nil {
		return
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}
	if a.ActorID == "" {
		if actor, err := ActorFrom(ctx); err == nil {
			a.ActorID = actor.ID
			a.ActorName = actor.Name
		}
	}
	if err := sink.Record(ctx, a); err != nil && logger != nil {
		logger.Warn("activity sink failed",
			zap.String("type", string(a.Type)),
			zap.String("action", a.Action),
			zap.Error(err))
	}
}

// =============================================================================
// DIRECTORY - Read-only employee lookup
// =============================================================================

// EmployeeDirectory is owned by the HR system outside the engine.
type EmployeeDirectory interface {
	// Employee returns ErrEmployeeNotFound for unknown ids.
	Employee(ctx context.Context, id EmployeeID) (Employee, error)
	// ActiveEmployees lists employees with status active, ordered by id.
	ActiveEmployees(ctx context.Context) ([]Employee, error)
}

// =============================================================================
// KEYED MUTEX
// =============================================================================

// KeyedMutex serializes work per key. Entries are dropped once no goroutine
// holds or waits on them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
