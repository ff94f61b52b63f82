package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/jonathan/market-research/internal/store"
)

// Progress checkpoints written during a run.
const (
	ProgressStarted   = 10
	ProgressCompleted = 100
	ProgressFailed    = 0
)

// ErrProgressRegression is returned when a run tries to move progress backwards.
var ErrProgressRegression = errors.New("progress cannot decrease during a run")

// ProgressEvent is emitted after each durable progress write.
type ProgressEvent struct {
	RequestID uuid.UUID `json:"requestId"`
	Stage     string    `json:"stage,omitempty"`
	Progress  int       `json:"progress"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// ProgressTracker persists progress for in-flight runs and keeps each run's sequence
// non-decreasing.
type ProgressTracker struct {
	store      store.RequestStore
	onProgress ProgressCallback

	mu   sync.Mutex
	last map[uuid.UUID]int
}

// NewProgressTracker creates a tracker writing through st. onProgress may be nil.
func NewProgressTracker(st store.RequestStore, onProgress ProgressCallback) *ProgressTracker {
	return &ProgressTracker{
		store:      st,
		onProgress: onProgress,
		last:       make(map[uuid.UUID]int),
	}
}

// Begin records the progress written by the transition that started the run.
func (p *ProgressTracker) Begin(id uuid.UUID, value int) {
	p.mu.Lock()
	p.last[id] = value
	p.mu.Unlock()
	p.emit(ProgressEvent{RequestID: id, Progress: value})
}

// Set durably writes value for the run of id.
func (p *ProgressTracker) Set(ctx context.Context, id uuid.UUID, stage string, value int) error {
	if value < 0 || value > 100 {
		return fmt.Errorf("progress %d out of range", value)
	}

	p.mu.Lock()
	last, ok := p.last[id]
	p.mu.Unlock()
	if ok && value < last {
		return fmt.Errorf("%w: %d after %d", ErrProgressRegression, value, last)
	}

	if _, err := p.store.Update(ctx, id, store.Patch{Progress: &value}); err != nil {
		return fmt.Errorf("failed to persist progress: %w", err)
	}

	p.mu.Lock()
	p.last[id] = value
	p.mu.Unlock()
	p.emit(ProgressEvent{RequestID: id, Stage: stage, Progress: value})
	return nil
}

// Last returns the last checkpoint written for id and whether a run is tracked.
func (p *ProgressTracker) Last(id uuid.UUID) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.last[id]
	return v, ok
}

// Reset forgets the run of id. The next run starts a fresh sequence.
func (p *ProgressTracker) Reset(id uuid.UUID) {
	p.mu.Lock()
	delete(p.last, id)
	p.mu.Unlock()
}

func (p *ProgressTracker) emit(event ProgressEvent) {
	if p.onProgress != nil {
		p.onProgress(event)
	}
}
