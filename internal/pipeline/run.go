// Package pipeline drives a research request through the report stages: the
// orchestrator, its progress tracker, the per-request guard, the worker pool and the
// recovery sweeper.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/market-research/internal/generator"
	"github.com/jonathan/market-research/internal/observability"
	"github.com/jonathan/market-research/internal/stages"
	"github.com/jonathan/market-research/internal/store"
	"github.com/jonathan/market-research/internal/types"
)

// failWriteTimeout bounds the failed-status write issued after the run context is gone.
const failWriteTimeout = 10 * time.Second

// Renderer produces the report document for a completed request and returns its
// location. Implementations must be idempotent.
type Renderer interface {
	Render(ctx context.Context, id uuid.UUID) (string, error)
}

// Orchestrator runs the stage sequence for one request at a time per id.
type Orchestrator struct {
	store    store.RequestStore
	runner   *stages.Runner
	renderer Renderer
	guard    *Guard
	progress *ProgressTracker
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRenderer attaches the document renderer invoked after completion.
func WithRenderer(r Renderer) Option {
	return func(o *Orchestrator) { o.renderer = r }
}

// WithGuard replaces the default in-process guard.
func WithGuard(g *Guard) Option {
	return func(o *Orchestrator) { o.guard = g }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = observability.OrNop(logger) }
}

// WithMetrics records run outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithProgressCallback receives every persisted checkpoint.
func WithProgressCallback(cb ProgressCallback) Option {
	return func(o *Orchestrator) { o.progress.onProgress = cb }
}

// NewOrchestrator creates an Orchestrator over st and runner.
func NewOrchestrator(st store.RequestStore, runner *stages.Runner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    st,
		runner:   runner,
		guard:    NewGuard(nil, 0),
		progress: NewProgressTracker(st, nil),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Guard returns the guard serializing runs.
func (o *Orchestrator) Guard() *Guard {
	return o.guard
}

// Run executes the pipeline for the pending request id.
//
// It returns store.ErrNotFound when the request does not exist, ErrAlreadyRunning when
// another run holds id, and store.ErrConflict when the request is no longer pending.
// In those cases nothing is written. Faults after the run has started are persisted
// as the failed status and logged; Run then returns nil.
func (o *Orchestrator) Run(ctx context.Context, id uuid.UUID) error {
	logger := o.logger.With(zap.String("request_id", id.String()))

	if _, err := o.store.Get(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn("research request not found, run aborted")
		}
		return err
	}

	release, err := o.guard.Acquire(ctx, id)
	if err != nil {
		logger.Warn("run rejected", zap.Error(err))
		return err
	}
	defer release()

	req, err := o.store.Transition(ctx, id, types.StatusPending, types.StatusInProgress, store.Patch{
		Progress: store.Ptr(ProgressStarted),
	})
	if err != nil {
		logger.Warn("request could not be started", zap.Error(err))
		return err
	}
	o.progress.Begin(id, ProgressStarted)
	defer o.progress.Reset(id)

	o.metrics.RunStarted()
	defer o.metrics.RunDone()

	start := time.Now()
	logger.Info("research run started", zap.String("topic", req.Topic), zap.String("industry", req.Industry))

	if err := o.execute(ctx, req, logger); err != nil {
		o.fail(ctx, id, err, logger)
		return nil
	}

	o.metrics.RunFinished(string(types.StatusCompleted))
	logger.Info("research run completed", zap.Duration("duration", time.Since(start)))

	if o.renderer != nil {
		if url, err := o.renderer.Render(ctx, id); err != nil {
			logger.Error("report render failed, request stays completed without artifact", zap.Error(err))
		} else {
			logger.Info("report rendered", zap.String("artifact_url", url))
		}
	}
	return nil
}

// execute runs the stages and persists the completed result. Any panic is turned
// into an error so the caller can mark the run failed.
func (o *Orchestrator) execute(ctx context.Context, req *types.ResearchRequest, logger *zap.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during run: %v", r)
		}
	}()

	checkpoint := func(stage string) error {
		def, _ := stages.Lookup(stage)
		return o.progress.Set(ctx, req.ID, stage, def.Checkpoint)
	}

	plan := o.runner.Plan(ctx, req)
	logStage(logger, stages.StagePlan, plan.Source, plan.Cause)
	if err := checkpoint(stages.StagePlan); err != nil {
		return err
	}

	data := o.runner.Collect(ctx, req, plan.Value)
	logStage(logger, stages.StageCollect, data.Source, data.Cause)
	if err := checkpoint(stages.StageCollect); err != nil {
		return err
	}

	analysis := o.runner.Analyze(ctx, req, plan.Value, data.Value)
	logStage(logger, stages.StageAnalyze, analysis.Source, analysis.Cause)
	if err := checkpoint(stages.StageAnalyze); err != nil {
		return err
	}

	viz := o.runner.Visualize(ctx, req, data.Value)
	logStage(logger, stages.StageVisualize, viz.Source, viz.Cause)
	if err := checkpoint(stages.StageVisualize); err != nil {
		return err
	}

	results := o.runner.Compile(ctx, req, analysis.Value, viz.Value)
	logStage(logger, stages.StageCompile, results.Source, results.Cause)
	if err := checkpoint(stages.StageCompile); err != nil {
		return err
	}

	_, err = o.store.Transition(ctx, req.ID, types.StatusInProgress, types.StatusCompleted, store.Patch{
		Progress: store.Ptr(ProgressCompleted),
		Results:  &results.Value,
	})
	if err != nil {
		return fmt.Errorf("failed to persist results: %w", err)
	}
	o.progress.emit(ProgressEvent{RequestID: req.ID, Progress: ProgressCompleted})
	return nil
}

// fail persists the failed status. The write is detached from ctx because a
// cancelled run still has to reach a terminal state.
func (o *Orchestrator) fail(ctx context.Context, id uuid.UUID, cause error, logger *zap.Logger) {
	last, _ := o.progress.Last(id)
	o.metrics.RunFinished(string(types.StatusFailed))

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failWriteTimeout)
	defer cancel()
	_, err := o.store.Transition(writeCtx, id, types.StatusInProgress, types.StatusFailed, store.Patch{
		Progress: store.Ptr(ProgressFailed),
	})
	switch {
	case err == nil:
		logger.Error("research run failed", zap.Int("last_progress", last), zap.Error(cause))
	case errors.Is(err, store.ErrNotFound):
		logger.Warn("research request vanished during run", zap.Int("last_progress", last), zap.Error(cause))
	default:
		logger.Error("research run failed and could not be marked failed",
			zap.Int("last_progress", last), zap.Error(cause), zap.NamedError("mark_error", err))
	}
}

func logStage(logger *zap.Logger, stage string, source generator.Source, cause error) {
	fields := []zap.Field{zap.String("stage", stage), zap.String("source", string(source))}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	logger.Debug("stage finished", fields...)
}
