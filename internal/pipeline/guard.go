package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadyRunning is returned when a run for the same request is already active.
var ErrAlreadyRunning = errors.New("a run for this request is already active")

// DefaultLockTTL bounds how long a distributed lock outlives a crashed holder.
const DefaultLockTTL = 30 * time.Minute

// Locker is a cross-process mutual exclusion primitive.
type Locker interface {
	// TryLock acquires key without waiting. ok is false when another holder has it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error)
}

// Guard makes sure at most one run per request id executes at a time: always within
// this process, and across processes when a Locker is configured.
type Guard struct {
	locker Locker
	ttl    time.Duration

	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

// NewGuard creates a Guard. locker may be nil.
func NewGuard(locker Locker, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &Guard{
		locker:  locker,
		ttl:     ttl,
		running: make(map[uuid.UUID]struct{}),
	}
}

// Acquire claims id. The returned release must be called exactly once.
func (g *Guard) Acquire(ctx context.Context, id uuid.UUID) (release func(), err error) {
	g.mu.Lock()
	if _, busy := g.running[id]; busy {
		g.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	g.running[id] = struct{}{}
	g.mu.Unlock()

	local := func() {
		g.mu.Lock()
		delete(g.running, id)
		g.mu.Unlock()
	}

	if g.locker == nil {
		return local, nil
	}

	unlock, ok, err := g.locker.TryLock(ctx, lockKey(id), g.ttl)
	if err != nil {
		local()
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		local()
		return nil, ErrAlreadyRunning
	}
	return func() {
		// the lock must be released even when the run's context is gone
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = unlock(ctx)
		local()
	}, nil
}

// Running reports whether this process currently runs id.
func (g *Guard) Running(id uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.running[id]
	return ok
}

func lockKey(id uuid.UUID) string {
	return "research:run:" + id.String()
}
