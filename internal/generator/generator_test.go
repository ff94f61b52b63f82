package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/market-research/internal/llm"
	"github.com/jonathan/market-research/internal/llm/llmtest"
	"github.com/jonathan/market-research/internal/types"
)

var baselinePlan = types.Plan{
	Sections:   []string{"Baseline"},
	DataPoints: []string{"size"},
	Sources:    []string{"reports"},
}

func planCall() Call[types.Plan] {
	return Call[types.Plan]{
		Stage:    "plan",
		Prompt:   "make a plan",
		Tier:     llm.TierLite,
		Fallback: func() types.Plan { return baselinePlan },
	}
}

func TestInvoke_Generated(t *testing.T) {
	client := llmtest.Replying("```json\n{\"sections\":[\"A\",\"B\"],\"dataPoints\":[\"x\"],\"sources\":[\"y\"]}\n```")
	a := New(client)

	res := Invoke(context.Background(), a, planCall())

	assert.Equal(t, SourceGenerated, res.Source)
	assert.NoError(t, res.Cause)
	assert.Equal(t, []string{"A", "B"}, res.Value.Sections)
	require.Len(t, client.Calls(), 1)
	assert.Equal(t, llm.TierLite, client.Calls()[0].Tier)
}

func TestInvoke_FallsBack(t *testing.T) {
	tests := []struct {
		name     string
		client   llm.Client
		wantKind Kind
	}{
		{name: "no client", client: nil, wantKind: KindUnavailable},
		{name: "transport error", client: llmtest.Failing(), wantKind: KindTransport},
		{name: "prose instead of json", client: llmtest.Replying("Here is your plan: sections are A and B"), wantKind: KindMalformed},
		{name: "truncated json", client: llmtest.Replying(`{"sections": ["A"`), wantKind: KindMalformed},
		{name: "missing required field", client: llmtest.Replying(`{"sections":["A"],"dataPoints":["x"]}`), wantKind: KindSchema},
		{name: "wrong type", client: llmtest.Replying(`{"sections":"A","dataPoints":["x"],"sources":["y"]}`), wantKind: KindSchema},
		{name: "panic", client: &llmtest.Client{Default: llmtest.Response{Panic: "boom"}}, wantKind: KindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Invoke(context.Background(), New(tt.client), planCall())

			assert.Equal(t, SourceFallback, res.Source)
			assert.Equal(t, baselinePlan, res.Value)
			require.Error(t, res.Cause)
			assert.Equal(t, tt.wantKind, KindOf(res.Cause))
		})
	}
}

func TestInvoke_Timeout(t *testing.T) {
	client := &llmtest.Client{Default: llmtest.Response{Block: true}}
	a := New(client, WithTimeout(20*time.Millisecond))

	start := time.Now()
	res := Invoke(context.Background(), a, planCall())

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, KindTimeout, KindOf(res.Cause))
	assert.True(t, errors.Is(res.Cause, context.DeadlineExceeded))
}

func TestInvoke_CheckRejects(t *testing.T) {
	call := planCall()
	call.Check = func(p types.Plan) error {
		if len(p.Sections) < 2 {
			return errors.New("need at least two sections")
		}
		return nil
	}
	a := New(llmtest.Replying(`{"sections":["A"],"dataPoints":["x"],"sources":["y"]}`))

	res := Invoke(context.Background(), a, call)

	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, KindSchema, KindOf(res.Cause))
	assert.True(t, strings.Contains(res.Cause.Error(), "two sections"))
}

func TestInvoke_NormalizeRunsBeforeCheck(t *testing.T) {
	call := planCall()
	call.Normalize = func(p types.Plan) types.Plan {
		p.Sections = p.Sections[:0]
		return p
	}
	call.Check = func(p types.Plan) error {
		if len(p.Sections) == 0 {
			return errors.New("no sections left")
		}
		return nil
	}
	a := New(llmtest.Replying(`{"sections":["A","B"],"dataPoints":["x"],"sources":["y"]}`))

	res := Invoke(context.Background(), a, call)

	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, KindSchema, KindOf(res.Cause))
}

func TestInvoke_FallbackOnlyBuiltOnFailure(t *testing.T) {
	built := 0
	call := planCall()
	call.Fallback = func() types.Plan {
		built++
		return baselinePlan
	}
	a := New(llmtest.Replying(`{"sections":["A"],"dataPoints":["x"],"sources":["y"]}`))

	Invoke(context.Background(), a, call)
	assert.Equal(t, 0, built)

	Invoke(context.Background(), New(nil), call)
	assert.Equal(t, 1, built)
}

func TestInvoke_NilAdapter(t *testing.T) {
	var a *Adapter
	res := Invoke(context.Background(), a, planCall())
	assert.Equal(t, SourceFallback, res.Source)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	wrapped := &Failure{Kind: KindSchema, Stage: "plan", Err: errors.New("bad")}
	assert.Equal(t, KindSchema, KindOf(wrapped))
	assert.Contains(t, wrapped.Error(), "plan generation failed (schema)")
}
