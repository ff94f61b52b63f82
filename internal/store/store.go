// Package store defines the persistence contracts for research requests and users,
// the patch rules every backend shares, and an in-memory backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/market-research/internal/types"
)

// Sentinel errors shared by all backends. Check with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflicting concurrent update")
	ErrNotPending        = errors.New("request parameters can only change while pending")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEmailTaken        = errors.New("email already registered")
)

// RequestStore persists research requests. Every write applies atomically: the whole
// patch lands or none of it does.
type RequestStore interface {
	Create(ctx context.Context, req *types.ResearchRequest) error
	Get(ctx context.Context, id uuid.UUID) (*types.ResearchRequest, error)
	// Update applies patch to the current state of the request.
	Update(ctx context.Context, id uuid.UUID, patch Patch) (*types.ResearchRequest, error)
	// Transition applies patch and moves the request to status to, but only if the
	// stored status is still from. A lost race returns ErrConflict.
	Transition(ctx context.Context, id uuid.UUID, from, to types.Status, patch Patch) (*types.ResearchRequest, error)
	// List returns the owner's requests newest first, without results.
	List(ctx context.Context, owner uuid.UUID) ([]*types.ResearchRequest, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// ListStale returns requests in status whose last update is older than olderThan.
	ListStale(ctx context.Context, status types.Status, olderThan time.Time) ([]*types.ResearchRequest, error)
}

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, name, company *string) (*User, error)
}

// User is a stored account including its password hash.
type User struct {
	ID           uuid.UUID
	Name         string
	Email        string
	Company      string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Public strips the password hash.
func (u *User) Public() *types.User {
	if u == nil {
		return nil
	}
	return &types.User{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Company:   u.Company,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Topic          *string
	Industry       *string
	FocusAreas     *[]string
	Timeframe      *types.Timeframe
	Depth          *types.Depth
	Visualizations *bool
	Competitors    *[]string
	Notes          *string

	Status      *types.Status
	Progress    *int
	Results     *types.Results
	ArtifactURL *string
}

// TouchesParameters reports whether the patch edits user-supplied parameters.
func (p Patch) TouchesParameters() bool {
	return p.Topic != nil || p.Industry != nil || p.FocusAreas != nil || p.Timeframe != nil ||
		p.Depth != nil || p.Visualizations != nil || p.Competitors != nil || p.Notes != nil
}

// PatchFromUpdate converts a validated API update into a store patch.
func PatchFromUpdate(u *types.UpdateResearchRequest) Patch {
	return Patch{
		Topic:          u.Topic,
		Industry:       u.Industry,
		FocusAreas:     u.FocusAreas,
		Timeframe:      u.Timeframe,
		Depth:          u.Depth,
		Visualizations: u.Visualizations,
		Competitors:    u.Competitors,
		Notes:          u.Notes,
	}
}

// ApplyPatch returns cur with patch applied, or an error if the result would break
// the request rules. cur is not modified.
func ApplyPatch(cur *types.ResearchRequest, patch Patch, now time.Time) (*types.ResearchRequest, error) {
	if patch.TouchesParameters() && cur.Status != types.StatusPending {
		return nil, ErrNotPending
	}

	next := cur.Clone()
	if patch.Topic != nil {
		next.Topic = *patch.Topic
	}
	if patch.Industry != nil {
		next.Industry = *patch.Industry
	}
	if patch.FocusAreas != nil {
		next.FocusAreas = append([]string{}, (*patch.FocusAreas)...)
	}
	if patch.Timeframe != nil {
		next.Timeframe = *patch.Timeframe
	}
	if patch.Depth != nil {
		next.Depth = *patch.Depth
	}
	if patch.Visualizations != nil {
		next.Visualizations = *patch.Visualizations
	}
	if patch.Competitors != nil {
		next.Competitors = append([]string{}, (*patch.Competitors)...)
	}
	if patch.Notes != nil {
		next.Notes = *patch.Notes
	}

	if patch.Status != nil && *patch.Status != cur.Status {
		if !types.CanTransition(cur.Status, *patch.Status) {
			return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, cur.Status, *patch.Status)
		}
		next.Status = *patch.Status
	}
	if patch.Progress != nil {
		if patch.Status == nil && cur.Status != types.StatusInProgress {
			return nil, fmt.Errorf("%w: progress can only change while in-progress", ErrInvalidTransition)
		}
		next.Progress = *patch.Progress
	}
	if patch.Results != nil {
		next.Results = patch.Results.Clone()
	}
	if patch.ArtifactURL != nil {
		if cur.ArtifactURL != "" && cur.ArtifactURL != *patch.ArtifactURL {
			return nil, fmt.Errorf("%w: artifact already attached", ErrConflict)
		}
		next.ArtifactURL = *patch.ArtifactURL
	}

	if err := next.CheckInvariants(); err != nil {
		return nil, err
	}
	next.UpdatedAt = now
	return next, nil
}

// ApplyTransition checks the compare-and-set precondition and applies patch with the
// status set to to.
func ApplyTransition(cur *types.ResearchRequest, from, to types.Status, patch Patch, now time.Time) (*types.ResearchRequest, error) {
	if cur.Status != from {
		return nil, fmt.Errorf("%w: status is %s, expected %s", ErrConflict, cur.Status, from)
	}
	patch.Status = &to
	return ApplyPatch(cur, patch, now)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
