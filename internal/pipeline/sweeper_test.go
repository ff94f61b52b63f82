package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/market-research/internal/store"
	"github.com/jonathan/market-research/internal/types"
)

type recordingSubmitter struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (s *recordingSubmitter) Submit(id uuid.UUID) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.ids = append(s.ids, id)
	h := &Handle{ID: id, done: make(chan struct{})}
	close(h.done)
	return h, nil
}

func startRun(t *testing.T, st store.RequestStore) *types.ResearchRequest {
	t.Helper()
	req := seedRequest(t, st)
	started, err := st.Transition(context.Background(), req.ID, types.StatusPending, types.StatusInProgress, store.Patch{Progress: store.Ptr(40)})
	require.NoError(t, err)
	return started
}

func futureSweeper(st store.RequestStore, sub Submitter, guard *Guard) *Sweeper {
	s := NewSweeper(st, sub, guard, time.Minute, nil)
	// everything written so far counts as stale
	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	return s
}

func TestSweeper_ResubmitsStalePending(t *testing.T) {
	st := store.NewMemory()
	req := seedRequest(t, st)
	sub := &recordingSubmitter{}

	report, err := futureSweeper(st, sub, nil).Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Resubmitted)
	assert.Equal(t, []uuid.UUID{req.ID}, sub.ids)
}

func TestSweeper_IgnoresFreshRequests(t *testing.T) {
	st := store.NewMemory()
	seedRequest(t, st)
	startRun(t, st)
	sub := &recordingSubmitter{}

	report, err := NewSweeper(st, sub, nil, time.Hour, nil).Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, report)
	assert.Empty(t, sub.ids)
}

func TestSweeper_MarksOrphanedRunsFailed(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	orphan := startRun(t, st)
	active := startRun(t, st)

	guard := NewGuard(nil, 0)
	release, err := guard.Acquire(ctx, active.ID)
	require.NoError(t, err)
	defer release()

	report, err := futureSweeper(st, &recordingSubmitter{}, guard).Sweep(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, report.MarkedFailed)

	got, _ := st.Get(ctx, orphan.ID)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, 0, got.Progress)

	still, _ := st.Get(ctx, active.ID)
	assert.Equal(t, types.StatusInProgress, still.Status)
}

func TestSweeper_StopsResubmittingWhenPoolFull(t *testing.T) {
	st := store.NewMemory()
	seedRequest(t, st)
	seedRequest(t, st)

	report, err := futureSweeper(st, &recordingSubmitter{err: ErrPoolFull}, nil).Sweep(context.Background())

	require.NoError(t, err)
	assert.Zero(t, report.Resubmitted)
}

func TestSweeper_StartRejectsBadSchedule(t *testing.T) {
	s := NewSweeper(store.NewMemory(), &recordingSubmitter{}, nil, time.Minute, nil)
	assert.Error(t, s.Start("not a schedule"))

	require.NoError(t, s.Start("@every 1h"))
	s.Stop()
}
