// Package generator wraps the language model so that every stage call either yields a
// schema-valid payload or the stage's deterministic fallback. Invoke never returns an error.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/market-research/internal/llm"
	"github.com/jonathan/market-research/internal/observability"
	"github.com/jonathan/market-research/internal/schemas"
)

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 60 * time.Second

// Source says where a stage payload came from.
type Source string

// Source values.
const (
	SourceGenerated Source = "generated"
	SourceFallback  Source = "fallback"
)

// Adapter calls the model on behalf of the report stages.
// A nil client makes every call fall back, which is how the offline mode runs.
type Adapter struct {
	client  llm.Client
	timeout time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithLogger sets the logger used to report fallbacks.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) { a.logger = observability.OrNop(logger) }
}

// WithMetrics records per-stage outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

// New creates an Adapter. client may be nil.
func New(client llm.Client, opts ...Option) *Adapter {
	a := &Adapter{
		client:  client,
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Call describes one stage generation.
type Call[T any] struct {
	// Stage names the embedded schema the response is validated against.
	Stage  string
	Prompt string
	Tier   llm.ModelTier
	// Fallback builds the deterministic payload. It is only invoked on failure.
	Fallback func() T
	// Normalize rewrites the decoded payload before Check sees it. Optional.
	Normalize func(T) T
	// Check runs semantic checks the schema cannot express. Optional.
	Check func(T) error
}

// Result is the payload of a stage call and where it came from.
type Result[T any] struct {
	Value  T
	Source Source
	// Cause is the failure that forced the fallback. Nil for generated payloads.
	Cause error
}

// Invoke runs the call and returns a validated payload, or the fallback on any failure:
// timeout, transport error, malformed output, schema or semantic violation, or panic.
func Invoke[T any](ctx context.Context, a *Adapter, call Call[T]) (res Result[T]) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = fallbackResult(call, &Failure{Kind: KindTransport, Stage: call.Stage, Err: fmt.Errorf("panic: %v", r)})
		}
		a.observe(call.Stage, res.Source, res.Cause, time.Since(start))
	}()

	value, err := generate(ctx, a, call)
	if err != nil {
		return fallbackResult(call, err)
	}
	return Result[T]{Value: value, Source: SourceGenerated}
}

func generate[T any](ctx context.Context, a *Adapter, call Call[T]) (T, error) {
	var zero T
	if a == nil || a.client == nil {
		return zero, &Failure{Kind: KindUnavailable, Stage: call.Stage, Err: errors.New("no model configured")}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.client.GenerateJSON(callCtx, call.Prompt, call.Tier)
	if err != nil {
		kind := KindTransport
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return zero, &Failure{Kind: kind, Stage: call.Stage, Err: err}
	}

	cleaned := llm.CleanJSONBlock(raw)
	if !json.Valid([]byte(cleaned)) {
		return zero, &Failure{Kind: KindMalformed, Stage: call.Stage, Err: errors.New("response is not a JSON document")}
	}
	if err := schemas.ValidateStage(call.Stage, cleaned); err != nil {
		return zero, &Failure{Kind: KindSchema, Stage: call.Stage, Err: err}
	}

	var value T
	if err := json.Unmarshal([]byte(cleaned), &value); err != nil {
		return zero, &Failure{Kind: KindMalformed, Stage: call.Stage, Err: err}
	}
	if call.Normalize != nil {
		value = call.Normalize(value)
	}
	if call.Check != nil {
		if err := call.Check(value); err != nil {
			return zero, &Failure{Kind: KindSchema, Stage: call.Stage, Err: err}
		}
	}
	return value, nil
}

func fallbackResult[T any](call Call[T], cause error) Result[T] {
	return Result[T]{Value: call.Fallback(), Source: SourceFallback, Cause: cause}
}

func (a *Adapter) observe(stage string, source Source, cause error, d time.Duration) {
	if a == nil {
		return
	}
	reason := ""
	if cause != nil {
		reason = string(KindOf(cause))
		level := a.logger.Warn
		if KindOf(cause) == KindUnavailable {
			level = a.logger.Debug
		}
		level("stage fell back to baseline payload",
			zap.String("stage", stage),
			zap.String("reason", reason),
			zap.Error(cause))
	}
	a.metrics.StageObserved(stage, string(source), reason, d)
}
