package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/market-research/internal/types"
)

// Memory is an in-process RequestStore and UserStore. Values are deep-copied on the
// way in and out so callers never share state with the store.
type Memory struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]*types.ResearchRequest
	users    map[uuid.UUID]*User
	now      func() time.Time
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		requests: make(map[uuid.UUID]*types.ResearchRequest),
		users:    make(map[uuid.UUID]*User),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create implements RequestStore.
func (m *Memory) Create(_ context.Context, req *types.ResearchRequest) error {
	if err := req.CheckInvariants(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[req.ID]; ok {
		return ErrConflict
	}
	m.requests[req.ID] = req.Clone()
	return nil
}

// Get implements RequestStore.
func (m *Memory) Get(_ context.Context, id uuid.UUID) (*types.ResearchRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return req.Clone(), nil
}

// Update implements RequestStore.
func (m *Memory) Update(_ context.Context, id uuid.UUID, patch Patch) (*types.ResearchRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	next, err := ApplyPatch(cur, patch, m.now())
	if err != nil {
		return nil, err
	}
	m.requests[id] = next
	return next.Clone(), nil
}

// Transition implements RequestStore.
func (m *Memory) Transition(_ context.Context, id uuid.UUID, from, to types.Status, patch Patch) (*types.ResearchRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	next, err := ApplyTransition(cur, from, to, patch, m.now())
	if err != nil {
		return nil, err
	}
	m.requests[id] = next
	return next.Clone(), nil
}

// List implements RequestStore.
func (m *Memory) List(_ context.Context, owner uuid.UUID) ([]*types.ResearchRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.ResearchRequest, 0)
	for _, req := range m.requests {
		if req.Owner == owner {
			out = append(out, req.WithoutResults())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Delete implements RequestStore.
func (m *Memory) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[id]; !ok {
		return ErrNotFound
	}
	delete(m.requests, id)
	return nil
}

// ListStale implements RequestStore.
func (m *Memory) ListStale(_ context.Context, status types.Status, olderThan time.Time) ([]*types.ResearchRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.ResearchRequest
	for _, req := range m.requests {
		if req.Status == status && req.UpdatedAt.Before(olderThan) {
			out = append(out, req.WithoutResults())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

// CreateUser implements UserStore.
func (m *Memory) CreateUser(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrEmailTaken
		}
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

// GetUser implements UserStore.
func (m *Memory) GetUser(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// GetUserByEmail implements UserStore.
func (m *Memory) GetUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// UpdateUser implements UserStore.
func (m *Memory) UpdateUser(_ context.Context, id uuid.UUID, name, company *string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if name != nil {
		u.Name = *name
	}
	if company != nil {
		u.Company = *company
	}
	u.UpdatedAt = m.now()
	cp := *u
	return &cp, nil
}

var (
	_ RequestStore = (*Memory)(nil)
	_ UserStore    = (*Memory)(nil)
)
