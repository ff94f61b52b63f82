// Package stages implements the five report stages on top of the generator adapter.
package stages

import "github.com/jonathan/market-research/internal/llm"

// Stage names, in execution order.
const (
	StagePlan      = "plan"
	StageCollect   = "collect"
	StageAnalyze   = "analyze"
	StageVisualize = "visualize"
	StageCompile   = "compile"
)

// Definition describes a stage: the model tier it runs on and the progress
// checkpoint recorded once it finishes.
type Definition struct {
	Name       string
	Tier       llm.ModelTier
	Checkpoint int
}

// Order lists the stages as the pipeline runs them.
var Order = []Definition{
	{Name: StagePlan, Tier: llm.TierLite, Checkpoint: 20},
	{Name: StageCollect, Tier: llm.TierStandard, Checkpoint: 40},
	{Name: StageAnalyze, Tier: llm.TierAdvanced, Checkpoint: 60},
	{Name: StageVisualize, Tier: llm.TierStandard, Checkpoint: 80},
	{Name: StageCompile, Tier: llm.TierAdvanced, Checkpoint: 90},
}

// Lookup returns the definition of the named stage.
func Lookup(name string) (Definition, bool) {
	for _, def := range Order {
		if def.Name == name {
			return def, true
		}
	}
	return Definition{}, false
}
