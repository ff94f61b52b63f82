package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/market-research/internal/generator"
	"github.com/jonathan/market-research/internal/llm/llmtest"
	"github.com/jonathan/market-research/internal/stages"
	"github.com/jonathan/market-research/internal/store"
	"github.com/jonathan/market-research/internal/types"
)

// faultyStore wraps Memory and lets tests fail selected writes. With honorCancel
// set, writes fail once their context is done, as a network-backed store would.
type faultyStore struct {
	*store.Memory
	honorCancel    bool
	mu             sync.Mutex
	failUpdate     func(patch store.Patch) error
	failTransition func(from, to types.Status) error
}

func newFaultyStore() *faultyStore {
	return &faultyStore{Memory: store.NewMemory()}
}

func (s *faultyStore) Update(ctx context.Context, id uuid.UUID, patch store.Patch) (*types.ResearchRequest, error) {
	s.mu.Lock()
	hook := s.failUpdate
	s.mu.Unlock()
	if s.honorCancel && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if hook != nil {
		if err := hook(patch); err != nil {
			return nil, err
		}
	}
	return s.Memory.Update(ctx, id, patch)
}

func (s *faultyStore) Transition(ctx context.Context, id uuid.UUID, from, to types.Status, patch store.Patch) (*types.ResearchRequest, error) {
	s.mu.Lock()
	hook := s.failTransition
	s.mu.Unlock()
	if s.honorCancel && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if hook != nil {
		if err := hook(from, to); err != nil {
			return nil, err
		}
	}
	return s.Memory.Transition(ctx, id, from, to, patch)
}

type countingRenderer struct {
	mu    sync.Mutex
	calls int
	url   string
	err   error
}

func (r *countingRenderer) Render(_ context.Context, id uuid.UUID) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	if r.url == "" {
		return "/api/downloads/" + id.String() + ".pdf", nil
	}
	return r.url, nil
}

func (r *countingRenderer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func offlineRunner() *stages.Runner {
	return stages.NewRunner(generator.New(llmtest.Failing()))
}

func seedRequest(t *testing.T, st store.RequestStore) *types.ResearchRequest {
	t.Helper()
	in := types.CreateResearchRequest{Topic: "EV Market", Industry: "Automotive", Timeframe: types.TimeframeMediumTerm}
	require.NoError(t, in.Validate())
	req := in.NewRequest(uuid.New(), time.Now().UTC())
	require.NoError(t, st.Create(context.Background(), req))
	return req
}

type progressLog struct {
	mu     sync.Mutex
	values []int
}

func (l *progressLog) record(e ProgressEvent) {
	l.mu.Lock()
	l.values = append(l.values, e.Progress)
	l.mu.Unlock()
}

func (l *progressLog) Values() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.values...)
}
