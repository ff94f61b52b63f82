package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/market-research/internal/fallback"
	"github.com/jonathan/market-research/internal/generator"
	"github.com/jonathan/market-research/internal/llm"
	"github.com/jonathan/market-research/internal/prompts"
	"github.com/jonathan/market-research/internal/types"
)

// Runner executes individual stages. Each method returns a usable payload even
// when generation fails, so stage errors never stop a run.
type Runner struct {
	adapter *generator.Adapter
	prompts *prompts.Set
}

// NewRunner creates a Runner backed by adapter using the embedded prompt set.
func NewRunner(adapter *generator.Adapter) *Runner {
	return &Runner{adapter: adapter, prompts: prompts.MustDefault()}
}

// Plan produces the research plan.
func (r *Runner) Plan(ctx context.Context, req *types.ResearchRequest) generator.Result[types.Plan] {
	return generator.Invoke(ctx, r.adapter, generator.Call[types.Plan]{
		Stage:    StagePlan,
		Prompt:   r.prompt(StagePlan, requestFields(req)),
		Tier:     tier(StagePlan),
		Fallback: func() types.Plan { return fallback.Plan(req) },
	})
}

// Collect produces the market data set for the plan.
func (r *Runner) Collect(ctx context.Context, req *types.ResearchRequest, plan types.Plan) generator.Result[types.MarketData] {
	fields := requestFields(req)
	fields["Plan"] = toJSON(plan)
	return generator.Invoke(ctx, r.adapter, generator.Call[types.MarketData]{
		Stage:    StageCollect,
		Prompt:   r.prompt(StageCollect, fields),
		Tier:     tier(StageCollect),
		Fallback: func() types.MarketData { return fallback.Collect(req) },
		Check: func(d types.MarketData) error {
			return checkSeries(d.MarketSize, d.Trends)
		},
	})
}

// Analyze produces the narrative analysis of the collected data.
func (r *Runner) Analyze(ctx context.Context, req *types.ResearchRequest, plan types.Plan, data types.MarketData) generator.Result[types.Analysis] {
	fields := requestFields(req)
	fields["MarketData"] = toJSON(data)
	fields["Sections"] = strings.Join(plan.Sections, ", ")
	return generator.Invoke(ctx, r.adapter, generator.Call[types.Analysis]{
		Stage:    StageAnalyze,
		Prompt:   r.prompt(StageAnalyze, fields),
		Tier:     tier(StageAnalyze),
		Fallback: func() types.Analysis { return fallback.Analyze(req, data) },
		Normalize: func(a types.Analysis) types.Analysis {
			a.Summary = plainText(a.Summary)
			cleanSections(a.Sections)
			for i, insight := range a.KeyInsights {
				a.KeyInsights[i] = plainText(insight)
			}
			return a
		},
		Check: func(a types.Analysis) error {
			if err := checkProse(a.Summary, a.Sections); err != nil {
				return err
			}
			for i, insight := range a.KeyInsights {
				if insight == "" {
					return fmt.Errorf("key insight %d is empty after cleanup", i)
				}
			}
			return nil
		},
	})
}

// Visualize selects the chartable subset of the collected data.
func (r *Runner) Visualize(ctx context.Context, req *types.ResearchRequest, data types.MarketData) generator.Result[types.Visualizations] {
	fields := requestFields(req)
	fields["MarketData"] = toJSON(data)
	return generator.Invoke(ctx, r.adapter, generator.Call[types.Visualizations]{
		Stage:    StageVisualize,
		Prompt:   r.prompt(StageVisualize, fields),
		Tier:     tier(StageVisualize),
		Fallback: func() types.Visualizations { return fallback.Visualize(data) },
		Check: func(v types.Visualizations) error {
			return checkSeries(v.MarketSize, v.Trends)
		},
	})
}

// Compile merges the analysis and visualizations into the final results. Only the
// prose is generated; the visualization payload is carried through unchanged.
func (r *Runner) Compile(ctx context.Context, req *types.ResearchRequest, analysis types.Analysis, viz types.Visualizations) generator.Result[types.Results] {
	fields := requestFields(req)
	fields["Analysis"] = toJSON(types.Draft{Summary: analysis.Summary, Sections: analysis.Sections})
	draft := generator.Invoke(ctx, r.adapter, generator.Call[types.Draft]{
		Stage:  StageCompile,
		Prompt: r.prompt(StageCompile, fields),
		Tier:   tier(StageCompile),
		Fallback: func() types.Draft {
			return types.Draft{Summary: analysis.Summary, Sections: append([]types.Section(nil), analysis.Sections...)}
		},
		Normalize: func(d types.Draft) types.Draft {
			d.Summary = plainText(d.Summary)
			cleanSections(d.Sections)
			return d
		},
		Check: func(d types.Draft) error {
			return checkProse(d.Summary, d.Sections)
		},
	})
	return generator.Result[types.Results]{
		Value: types.Results{
			Summary:        draft.Value.Summary,
			Sections:       draft.Value.Sections,
			Visualizations: viz.Clone(),
		},
		Source: draft.Source,
		Cause:  draft.Cause,
	}
}

// prompt renders a stage template. A missing template yields an empty prompt,
// which the adapter treats like any other failed generation.
func (r *Runner) prompt(stage string, fields prompts.Fields) string {
	text, err := r.prompts.Render(stage, fields)
	if err != nil {
		return ""
	}
	return text
}

func tier(stage string) llm.ModelTier {
	def, _ := Lookup(stage)
	return def.Tier
}

func requestFields(req *types.ResearchRequest) prompts.Fields {
	notes := req.Notes
	if notes == "" {
		notes = "none"
	}
	return prompts.Fields{
		"Topic":       req.Topic,
		"Industry":    req.Industry,
		"FocusAreas":  listOrNone(req.FocusAreas),
		"Timeframe":   string(req.Timeframe),
		"Depth":       string(req.Depth),
		"Competitors": listOrNone(req.Competitors),
		"Notes":       notes,
	}
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func toJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// checkSeries enforces that every series lines up with the market size years.
func checkSeries(size types.MarketSize, trends []types.Trend) error {
	if len(size.Years) != len(size.Values) {
		return fmt.Errorf("market size has %d years but %d values", len(size.Years), len(size.Values))
	}
	for _, t := range trends {
		if len(t.Data) != len(size.Years) {
			return fmt.Errorf("trend %q has %d points, want %d", t.Name, len(t.Data), len(size.Years))
		}
	}
	return nil
}
