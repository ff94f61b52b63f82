package mongostore

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/market-research/internal/store"
	"github.com/jonathan/market-research/internal/types"
)

func TestRequestDoc_RoundTrip(t *testing.T) {
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	req := &types.ResearchRequest{
		ID:          uuid.New(),
		Owner:       uuid.New(),
		Topic:       "EV Market",
		Industry:    "Automotive",
		Timeframe:   types.TimeframeLongTerm,
		Depth:       types.DepthExpert,
		Status:      types.StatusCompleted,
		Progress:    100,
		Results:     &types.Results{Summary: "s"},
		ArtifactURL: "/api/downloads/a.pdf",
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	doc := toRequestDoc(req, 3)
	assert.Equal(t, req.ID.String(), doc.ID)
	assert.Equal(t, int64(3), doc.Version)
	assert.Equal(t, []string{}, doc.FocusAreas)
	assert.Equal(t, "completed", doc.Status)

	back := doc.toRequest()
	assert.Equal(t, req.ID, back.ID)
	assert.Equal(t, req.Owner, back.Owner)
	assert.Equal(t, types.DepthExpert, back.Depth)
	assert.Equal(t, req.Results, back.Results)
	assert.Equal(t, []string{}, back.Competitors)
	assert.NoError(t, back.CheckInvariants())
}

func TestUserDoc_RoundTrip(t *testing.T) {
	u := &store.User{ID: uuid.New(), Name: "Ada", Email: "Ada@Example.com", PasswordHash: "h"}

	doc := toUserDoc(u)
	assert.Equal(t, "ada@example.com", doc.EmailLower)

	back, err := doc.toUser()
	require.NoError(t, err)
	assert.Equal(t, u.ID, back.ID)
	assert.Equal(t, "Ada@Example.com", back.Email)

	doc.ID = "not-a-uuid"
	_, err = doc.toUser()
	assert.Error(t, err)
}
