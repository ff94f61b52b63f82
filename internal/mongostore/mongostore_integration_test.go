//go:build integration

package mongostore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jonathan/market-research/internal/store"
	"github.com/jonathan/market-research/internal/types"
)

func getTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017")
	require.NoError(t, err)

	s, err := Connect(ctx, fmt.Sprintf("mongodb://%s:%s", host, port.Port()), "research_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestIntegration_Mongo_RequestLifecycle(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()
	owner := uuid.New()
	in := types.CreateResearchRequest{Topic: "EV Market", Industry: "Automotive"}
	req := in.NewRequest(owner, time.Now().UTC().Truncate(time.Millisecond))

	require.NoError(t, s.Create(ctx, req))
	assert.ErrorIs(t, s.Create(ctx, req), store.ErrConflict)

	_, err := s.Transition(ctx, req.ID, types.StatusPending, types.StatusInProgress, store.Patch{Progress: store.Ptr(10)})
	require.NoError(t, err)
	_, err = s.Transition(ctx, req.ID, types.StatusPending, types.StatusInProgress, store.Patch{Progress: store.Ptr(10)})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.Update(ctx, req.ID, store.Patch{Topic: store.Ptr("Solar")})
	assert.ErrorIs(t, err, store.ErrNotPending)

	done, err := s.Transition(ctx, req.ID, types.StatusInProgress, types.StatusCompleted, store.Patch{
		Progress: store.Ptr(100),
		Results:  &types.Results{Summary: "done", Sections: []types.Section{{Title: "A", Content: "a"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, done.Status)

	got, err := s.Get(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Results)
	assert.Equal(t, "done", got.Results.Summary)

	list, err := s.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].Results)

	stale, err := s.ListStale(ctx, types.StatusCompleted, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	require.NoError(t, s.Delete(ctx, req.ID))
	_, err = s.Get(ctx, req.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIntegration_Mongo_Users(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	u := &store.User{ID: uuid.New(), Name: "Ada", Email: "ada@example.com", PasswordHash: "h", CreatedAt: now, UpdatedAt: now}

	require.NoError(t, s.CreateUser(ctx, u))
	err := s.CreateUser(ctx, &store.User{ID: uuid.New(), Name: "B", Email: "ADA@example.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, store.ErrEmailTaken)

	got, err := s.GetUserByEmail(ctx, "Ada@Example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	updated, err := s.UpdateUser(ctx, u.ID, store.Ptr("Ada L"), nil)
	require.NoError(t, err)
	assert.Equal(t, "Ada L", updated.Name)

	_, err = s.GetUser(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
