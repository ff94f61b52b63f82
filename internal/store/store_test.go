package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/market-research/internal/types"
)

var now = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

func request(status types.Status) *types.ResearchRequest {
	req := (&types.CreateResearchRequest{Topic: "EV Market", Industry: "Automotive"}).NewRequest(uuid.New(), now)
	req.Status = status
	switch status {
	case types.StatusInProgress:
		req.Progress = 40
	case types.StatusCompleted:
		req.Progress = 100
		req.Results = &types.Results{Summary: "done"}
	}
	return req
}

func TestApplyPatch(t *testing.T) {
	later := now.Add(time.Minute)

	tests := []struct {
		name    string
		cur     *types.ResearchRequest
		patch   Patch
		wantErr error
		check   func(t *testing.T, got *types.ResearchRequest)
	}{
		{
			name:  "edit parameters while pending",
			cur:   request(types.StatusPending),
			patch: Patch{Topic: Ptr("Solar"), Competitors: &[]string{"First Solar"}},
			check: func(t *testing.T, got *types.ResearchRequest) {
				assert.Equal(t, "Solar", got.Topic)
				assert.Equal(t, []string{"First Solar"}, got.Competitors)
				assert.Equal(t, later, got.UpdatedAt)
			},
		},
		{name: "edit parameters while in progress", cur: request(types.StatusInProgress), patch: Patch{Topic: Ptr("Solar")}, wantErr: ErrNotPending},
		{name: "edit parameters after completion", cur: request(types.StatusCompleted), patch: Patch{Depth: Ptr(types.DepthExpert)}, wantErr: ErrNotPending},
		{
			name:  "progress while in progress",
			cur:   request(types.StatusInProgress),
			patch: Patch{Progress: Ptr(60)},
			check: func(t *testing.T, got *types.ResearchRequest) { assert.Equal(t, 60, got.Progress) },
		},
		{name: "progress while pending", cur: request(types.StatusPending), patch: Patch{Progress: Ptr(20)}, wantErr: ErrInvalidTransition},
		{name: "progress out of range", cur: request(types.StatusInProgress), patch: Patch{Progress: Ptr(101)}, wantErr: &types.InvariantError{}},
		{name: "back to pending", cur: request(types.StatusInProgress), patch: Patch{Status: Ptr(types.StatusPending)}, wantErr: ErrInvalidTransition},
		{name: "skip in progress", cur: request(types.StatusPending), patch: Patch{Status: Ptr(types.StatusCompleted), Results: &types.Results{}}, wantErr: ErrInvalidTransition},
		{name: "leave terminal", cur: request(types.StatusFailed), patch: Patch{Status: Ptr(types.StatusInProgress)}, wantErr: ErrInvalidTransition},
		{name: "complete without results", cur: request(types.StatusInProgress), patch: Patch{Status: Ptr(types.StatusCompleted), Progress: Ptr(100)}, wantErr: &types.InvariantError{}},
		{
			name:  "complete with results",
			cur:   request(types.StatusInProgress),
			patch: Patch{Status: Ptr(types.StatusCompleted), Progress: Ptr(100), Results: &types.Results{Summary: "s"}},
			check: func(t *testing.T, got *types.ResearchRequest) {
				assert.Equal(t, types.StatusCompleted, got.Status)
				assert.Equal(t, "s", got.Results.Summary)
			},
		},
		{
			name:  "fail resets progress",
			cur:   request(types.StatusInProgress),
			patch: Patch{Status: Ptr(types.StatusFailed), Progress: Ptr(0)},
			check: func(t *testing.T, got *types.ResearchRequest) {
				assert.Equal(t, types.StatusFailed, got.Status)
				assert.Equal(t, 0, got.Progress)
				assert.Nil(t, got.Results)
			},
		},
		{name: "artifact before completion", cur: request(types.StatusInProgress), patch: Patch{ArtifactURL: Ptr("/a.pdf")}, wantErr: &types.InvariantError{}},
		{
			name:  "artifact on completed",
			cur:   request(types.StatusCompleted),
			patch: Patch{ArtifactURL: Ptr("/a.pdf")},
			check: func(t *testing.T, got *types.ResearchRequest) { assert.Equal(t, "/a.pdf", got.ArtifactURL) },
		},
		{
			name: "same artifact again",
			cur: func() *types.ResearchRequest {
				r := request(types.StatusCompleted)
				r.ArtifactURL = "/a.pdf"
				return r
			}(),
			patch: Patch{ArtifactURL: Ptr("/a.pdf")},
		},
		{
			name: "different artifact",
			cur: func() *types.ResearchRequest {
				r := request(types.StatusCompleted)
				r.ArtifactURL = "/a.pdf"
				return r
			}(),
			patch:   Patch{ArtifactURL: Ptr("/b.pdf")},
			wantErr: ErrConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.cur.Clone()
			got, err := ApplyPatch(tt.cur, tt.patch, later)

			assert.Equal(t, before, tt.cur, "input must not be modified")
			if tt.wantErr != nil {
				require.Error(t, err)
				var invErr *types.InvariantError
				if errors.As(tt.wantErr, &invErr) {
					assert.ErrorAs(t, err, &invErr)
				} else {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, got)
			}
		})
	}
}

func TestApplyTransition_ComparesStatus(t *testing.T) {
	cur := request(types.StatusInProgress)

	_, err := ApplyTransition(cur, types.StatusPending, types.StatusInProgress, Patch{Progress: Ptr(10)}, now)
	assert.ErrorIs(t, err, ErrConflict)

	got, err := ApplyTransition(cur, types.StatusInProgress, types.StatusFailed, Patch{Progress: Ptr(0)}, now)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
}

func TestPatchFromUpdate(t *testing.T) {
	assert.False(t, PatchFromUpdate(&types.UpdateResearchRequest{}).TouchesParameters())
	assert.True(t, PatchFromUpdate(&types.UpdateResearchRequest{Notes: Ptr("n")}).TouchesParameters())
	assert.False(t, Patch{Progress: Ptr(10), Status: Ptr(types.StatusInProgress)}.TouchesParameters())
}

func TestMemory_CRUD(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	req := request(types.StatusPending)

	require.NoError(t, m.Create(ctx, req))
	assert.ErrorIs(t, m.Create(ctx, req), ErrConflict)

	got, err := m.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.Topic, got.Topic)

	got.Topic = "mutated"
	again, _ := m.Get(ctx, req.ID)
	assert.Equal(t, "EV Market", again.Topic)

	updated, err := m.Update(ctx, req.ID, Patch{Industry: Ptr("Energy")})
	require.NoError(t, err)
	assert.Equal(t, "Energy", updated.Industry)

	require.NoError(t, m.Delete(ctx, req.ID))
	_, err = m.Get(ctx, req.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Delete(ctx, req.ID), ErrNotFound)
	_, err = m.Update(ctx, req.ID, Patch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_CreateRejectsInvalid(t *testing.T) {
	req := request(types.StatusPending)
	req.Results = &types.Results{}
	assert.Error(t, NewMemory().Create(context.Background(), req))
}

func TestMemory_FailedUpdateLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	req := request(types.StatusInProgress)
	require.NoError(t, m.Create(ctx, req))

	_, err := m.Update(ctx, req.ID, Patch{Status: Ptr(types.StatusCompleted), Progress: Ptr(100)})
	require.Error(t, err)

	got, _ := m.Get(ctx, req.ID)
	assert.Equal(t, types.StatusInProgress, got.Status)
	assert.Equal(t, 40, got.Progress)
}

func TestMemory_ListByOwnerNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	owner := uuid.New()

	older := request(types.StatusPending)
	older.Owner = owner
	newer := request(types.StatusCompleted)
	newer.Owner = owner
	newer.CreatedAt = now.Add(time.Hour)
	other := request(types.StatusPending)

	for _, r := range []*types.ResearchRequest{older, newer, other} {
		require.NoError(t, m.Create(ctx, r))
	}

	list, err := m.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Nil(t, list[0].Results)

	empty, err := m.List(ctx, uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestMemory_ListStale(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.now = func() time.Time { return now }

	stale := request(types.StatusInProgress)
	stale.UpdatedAt = now.Add(-time.Hour)
	fresh := request(types.StatusInProgress)
	pending := request(types.StatusPending)
	pending.UpdatedAt = now.Add(-time.Hour)

	for _, r := range []*types.ResearchRequest{stale, fresh, pending} {
		require.NoError(t, m.Create(ctx, r))
	}

	got, err := m.ListStale(ctx, types.StatusInProgress, now.Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stale.ID, got[0].ID)
}

func TestMemory_TransitionIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	req := request(types.StatusPending)
	require.NoError(t, m.Create(ctx, req))

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Transition(ctx, req.ID, types.StatusPending, types.StatusInProgress, Patch{Progress: Ptr(10)})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(15), conflicts.Load())
}

func TestMemory_Users(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	u := &User{ID: uuid.New(), Name: "Ada", Email: "ada@example.com", PasswordHash: "hash", CreatedAt: now}

	require.NoError(t, m.CreateUser(ctx, u))
	assert.ErrorIs(t, m.CreateUser(ctx, &User{ID: uuid.New(), Email: "ADA@example.com"}), ErrEmailTaken)

	byEmail, err := m.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	updated, err := m.UpdateUser(ctx, u.ID, nil, Ptr("Analytical Engines"))
	require.NoError(t, err)
	assert.Equal(t, "Ada", updated.Name)
	assert.Equal(t, "Analytical Engines", updated.Company)

	_, err = m.GetUser(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	public := updated.Public()
	assert.Equal(t, "ada@example.com", public.Email)
}
