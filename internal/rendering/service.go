package rendering

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/market-research/internal/artifacts"
	"github.com/jonathan/market-research/internal/observability"
	"github.com/jonathan/market-research/internal/store"
	"github.com/jonathan/market-research/internal/types"
)

// DocumentRenderer produces the report file for a completed request.
type DocumentRenderer interface {
	Render(ctx context.Context, req *types.ResearchRequest) ([]byte, error)
}

// Service renders a request at most once and attaches the artifact URL to it.
type Service struct {
	store     store.RequestStore
	renderer  DocumentRenderer
	artifacts artifacts.Store
	logger    *zap.Logger
	metrics   *observability.Metrics

	mu    sync.Mutex
	locks map[uuid.UUID]*idLock
}

type idLock struct {
	mu   sync.Mutex
	refs int
}

// NewService wires a renderer to the request and artifact stores.
func NewService(st store.RequestStore, renderer DocumentRenderer, blobs artifacts.Store, logger *zap.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		store:     st,
		renderer:  renderer,
		artifacts: blobs,
		logger:    observability.OrNop(logger),
		metrics:   metrics,
		locks:     make(map[uuid.UUID]*idLock),
	}
}

// Render returns the artifact URL of request id, rendering and storing the report
// only if no artifact is attached yet. Concurrent calls for the same id render once.
func (s *Service) Render(ctx context.Context, id uuid.UUID) (string, error) {
	unlock := s.lock(id)
	defer unlock()

	req, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if req.ArtifactURL != "" {
		s.metrics.RenderObserved("cached")
		return req.ArtifactURL, nil
	}
	if req.Status != types.StatusCompleted {
		return "", ErrNotCompleted
	}

	data, err := s.renderer.Render(ctx, req)
	if err != nil {
		s.metrics.RenderObserved("failed")
		return "", &RenderError{Message: "failed to render report", Cause: err}
	}

	key := uuid.NewString() + ".pdf"
	url, err := s.artifacts.Put(ctx, key, data, artifacts.ContentTypePDF)
	if err != nil {
		s.metrics.RenderObserved("failed")
		return "", &RenderError{Message: "failed to store report", Cause: err}
	}

	if _, err := s.store.Update(ctx, id, store.Patch{ArtifactURL: &url}); err != nil {
		// another process attached its own artifact first
		if errors.Is(err, store.ErrConflict) {
			if cur, getErr := s.store.Get(ctx, id); getErr == nil && cur.ArtifactURL != "" {
				s.metrics.RenderObserved("cached")
				return cur.ArtifactURL, nil
			}
		}
		s.metrics.RenderObserved("failed")
		return "", fmt.Errorf("failed to attach artifact: %w", err)
	}

	s.logger.Info("report rendered",
		zap.String("request_id", id.String()),
		zap.String("artifact_url", url),
		zap.Int("bytes", len(data)),
	)
	s.metrics.RenderObserved("rendered")
	return url, nil
}

func (s *Service) lock(id uuid.UUID) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &idLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}
