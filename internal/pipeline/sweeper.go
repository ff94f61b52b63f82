package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jonathan/market-research/internal/observability"
	"github.com/jonathan/market-research/internal/store"
	"github.com/jonathan/market-research/internal/types"
)

// Sweeper defaults.
const (
	DefaultSweepSchedule = "@every 5m"
	DefaultStaleAfter    = 30 * time.Minute
)

// Submitter queues a run. Pool satisfies it.
type Submitter interface {
	Submit(id uuid.UUID) (*Handle, error)
}

// SweepReport counts what one sweep did.
type SweepReport struct {
	Resubmitted  int
	MarkedFailed int
}

// Sweeper recovers requests left behind by a crash: pending requests that were never
// started are resubmitted and in-progress requests nobody is running are marked failed.
type Sweeper struct {
	store      store.RequestStore
	submitter  Submitter
	guard      *Guard
	staleAfter time.Duration
	cron       *cron.Cron
	logger     *zap.Logger
	now        func() time.Time
}

// NewSweeper creates a Sweeper.
func NewSweeper(st store.RequestStore, submitter Submitter, guard *Guard, staleAfter time.Duration, logger *zap.Logger) *Sweeper {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if guard == nil {
		guard = NewGuard(nil, 0)
	}
	return &Sweeper{
		store:      st,
		submitter:  submitter,
		guard:      guard,
		staleAfter: staleAfter,
		cron:       cron.New(),
		logger:     observability.OrNop(logger),
		now:        time.Now,
	}
}

// Start schedules Sweep on schedule (standard cron syntax or descriptors such as
// "@every 5m") and starts the scheduler.
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	_, err := s.cron.AddFunc(schedule, func() {
		report, err := s.Sweep(context.Background())
		if err != nil {
			s.logger.Warn("sweep failed", zap.Error(err))
			return
		}
		if report.Resubmitted > 0 || report.MarkedFailed > 0 {
			s.logger.Info("sweep recovered requests",
				zap.Int("resubmitted", report.Resubmitted),
				zap.Int("marked_failed", report.MarkedFailed))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	s.logger.Info("sweeper started", zap.String("schedule", schedule), zap.Duration("stale_after", s.staleAfter))
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("sweeper stopped")
}

// Sweep performs one recovery pass.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	cutoff := s.now().Add(-s.staleAfter)

	pending, err := s.store.ListStale(ctx, types.StatusPending, cutoff)
	if err != nil {
		return report, fmt.Errorf("failed to list stale pending requests: %w", err)
	}
	for _, req := range pending {
		if s.guard.Running(req.ID) {
			continue
		}
		if _, err := s.submitter.Submit(req.ID); err != nil {
			if errors.Is(err, ErrPoolFull) || errors.Is(err, ErrPoolClosed) {
				s.logger.Warn("stale request not resubmitted", zap.String("request_id", req.ID.String()), zap.Error(err))
				break
			}
			return report, err
		}
		report.Resubmitted++
	}

	stuck, err := s.store.ListStale(ctx, types.StatusInProgress, cutoff)
	if err != nil {
		return report, fmt.Errorf("failed to list stale in-progress requests: %w", err)
	}
	for _, req := range stuck {
		marked, err := s.markFailed(ctx, req)
		if err != nil {
			s.logger.Warn("could not mark stuck request failed", zap.String("request_id", req.ID.String()), zap.Error(err))
			continue
		}
		if marked {
			report.MarkedFailed++
		}
	}
	return report, nil
}

// markFailed fails req if no run holds it.
func (s *Sweeper) markFailed(ctx context.Context, req *types.ResearchRequest) (bool, error) {
	release, err := s.guard.Acquire(ctx, req.ID)
	if errors.Is(err, ErrAlreadyRunning) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer release()

	_, err = s.store.Transition(ctx, req.ID, types.StatusInProgress, types.StatusFailed, store.Patch{
		Progress: store.Ptr(ProgressFailed),
	})
	switch {
	case err == nil:
		s.logger.Warn("stuck request marked failed",
			zap.String("request_id", req.ID.String()),
			zap.Int("last_progress", req.Progress),
			zap.Time("updated_at", req.UpdatedAt))
		return true, nil
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
