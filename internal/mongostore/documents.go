package mongostore

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/market-research/internal/store"
	"github.com/jonathan/market-research/internal/types"
)

// requestDoc is the BSON shape of a research request. Ids are stored as strings.
type requestDoc struct {
	ID             string         `bson:"_id"`
	Owner          string         `bson:"owner"`
	Topic          string         `bson:"topic"`
	Industry       string         `bson:"industry"`
	FocusAreas     []string       `bson:"focusAreas"`
	Timeframe      string         `bson:"timeframe"`
	Depth          string         `bson:"depth"`
	Visualizations bool           `bson:"visualizations"`
	Competitors    []string       `bson:"competitors"`
	Notes          string         `bson:"notes,omitempty"`
	Status         string         `bson:"status"`
	Progress       int            `bson:"progress"`
	Results        *types.Results `bson:"results,omitempty"`
	ArtifactURL    string         `bson:"artifactUrl,omitempty"`
	Version        int64          `bson:"version"`
	CreatedAt      time.Time      `bson:"createdAt"`
	UpdatedAt      time.Time      `bson:"updatedAt"`
}

func toRequestDoc(req *types.ResearchRequest, version int64) *requestDoc {
	return &requestDoc{
		ID:             req.ID.String(),
		Owner:          req.Owner.String(),
		Topic:          req.Topic,
		Industry:       req.Industry,
		FocusAreas:     nonNil(req.FocusAreas),
		Timeframe:      string(req.Timeframe),
		Depth:          string(req.Depth),
		Visualizations: req.Visualizations,
		Competitors:    nonNil(req.Competitors),
		Notes:          req.Notes,
		Status:         string(req.Status),
		Progress:       req.Progress,
		Results:        req.Results,
		ArtifactURL:    req.ArtifactURL,
		Version:        version,
		CreatedAt:      req.CreatedAt,
		UpdatedAt:      req.UpdatedAt,
	}
}

// toRequest converts back. Ids written by this package always parse; a foreign
// document with a malformed id maps to uuid.Nil.
func (d *requestDoc) toRequest() *types.ResearchRequest {
	id, _ := uuid.Parse(d.ID)
	owner, _ := uuid.Parse(d.Owner)
	return &types.ResearchRequest{
		ID:             id,
		Owner:          owner,
		Topic:          d.Topic,
		Industry:       d.Industry,
		FocusAreas:     nonNil(d.FocusAreas),
		Timeframe:      types.Timeframe(d.Timeframe),
		Depth:          types.Depth(d.Depth),
		Visualizations: d.Visualizations,
		Competitors:    nonNil(d.Competitors),
		Notes:          d.Notes,
		Status:         types.Status(d.Status),
		Progress:       d.Progress,
		Results:        d.Results,
		ArtifactURL:    d.ArtifactURL,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
}

type userDoc struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	EmailLower   string    `bson:"emailLower"`
	Company      string    `bson:"company,omitempty"`
	PasswordHash string    `bson:"passwordHash"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func toUserDoc(u *store.User) *userDoc {
	return &userDoc{
		ID:           u.ID.String(),
		Name:         u.Name,
		Email:        u.Email,
		EmailLower:   strings.ToLower(u.Email),
		Company:      u.Company,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (d *userDoc) toUser() (*store.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", d.ID, err)
	}
	return &store.User{
		ID:           id,
		Name:         d.Name,
		Email:        d.Email,
		Company:      d.Company,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
