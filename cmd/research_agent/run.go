package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/market-research/internal/config"
	"github.com/jonathan/market-research/internal/observability"
	"github.com/jonathan/market-research/internal/pipeline"
	"github.com/jonathan/market-research/internal/rendering"
	"github.com/jonathan/market-research/internal/stages"
	"github.com/jonathan/market-research/internal/store"
	"github.com/jonathan/market-research/internal/types"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Generate one report end-to-end",
	Long: `Runs plan -> collect -> analyze -> visualize -> compile for a single request against an
in-memory store and prints the result. Stages without a configured model use fallback data.`,
	RunE: runReportCmd,
}

var (
	runTopic            string
	runIndustry         string
	runFocusAreas       []string
	runCompetitors      []string
	runTimeframe        string
	runDepth            string
	runNoVisualizations bool
	runNotes            string
	runOut              string
	runProvider         string
	runModel            string
	runAPIKey           string
	runVerbose          bool
)

func init() {
	runCommand.Flags().StringVarP(&runTopic, "topic", "t", "", "Research topic (required)")
	runCommand.Flags().StringVarP(&runIndustry, "industry", "i", "", "Industry (required)")
	runCommand.Flags().StringSliceVar(&runFocusAreas, "focus", nil, "Focus areas (repeatable or comma separated)")
	runCommand.Flags().StringSliceVar(&runCompetitors, "competitor", nil, "Competitors (repeatable or comma separated)")
	runCommand.Flags().StringVar(&runTimeframe, "timeframe", "", "current, short-term, medium-term or long-term")
	runCommand.Flags().StringVar(&runDepth, "depth", "", "overview, standard, comprehensive or expert")
	runCommand.Flags().BoolVar(&runNoVisualizations, "no-visualizations", false, "Omit the chart chapters from the PDF")
	runCommand.Flags().StringVar(&runNotes, "notes", "", "Additional instructions")
	runCommand.Flags().StringVarP(&runOut, "out", "o", "", "Write the PDF report to this path")
	runCommand.Flags().StringVar(&runProvider, "provider", "", "LLM provider (overrides llm.provider)")
	runCommand.Flags().StringVar(&runModel, "model", "", "Model for every stage (overrides llm.model)")
	runCommand.Flags().StringVar(&runAPIKey, "api-key", "", "LLM API key (overrides LLM_API_KEY)")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print pipeline logs")
	_ = runCommand.MarkFlagRequired("topic")
	_ = runCommand.MarkFlagRequired("industry")

	rootCmd.AddCommand(runCommand)
}

func runReportCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	overrides := map[string]any{
		"store.driver":      config.StoreMemory,
		"artifacts.driver":  config.ArtifactsLocal,
		"sweeper.enabled":   false,
		"ratelimit.enabled": false,
	}
	for key, value := range map[string]string{"llm.provider": runProvider, "llm.model": runModel, "llm.api_key": runAPIKey} {
		if value != "" {
			overrides[key] = value
		}
	}
	cfg, err := config.LoadWithOverrides(configPath, overrides)
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if runVerbose {
		if logger, err = observability.NewLogger(cfg.Log.Mode); err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()
	}

	in := types.CreateResearchRequest{
		Topic:       runTopic,
		Industry:    runIndustry,
		FocusAreas:  runFocusAreas,
		Timeframe:   types.Timeframe(runTimeframe),
		Depth:       types.Depth(runDepth),
		Competitors: runCompetitors,
		Notes:       runNotes,
	}
	if runNoVisualizations {
		in.Visualizations = store.Ptr(false)
	}
	if err := in.Validate(); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	adapter, closeLLM, err := newAdapter(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer closeLLM()

	printer := observability.NewPrinter(out)
	mem := store.NewMemory()
	orchestrator := pipeline.NewOrchestrator(mem, stages.NewRunner(adapter),
		pipeline.WithLogger(logger),
		pipeline.WithProgressCallback(func(e pipeline.ProgressEvent) {
			printer.PrintProgress(e.Stage, e.Progress)
		}),
	)

	req := in.NewRequest(uuid.New(), time.Now().UTC())
	if err := mem.Create(ctx, req); err != nil {
		return err
	}
	if err := orchestrator.Run(ctx, req.ID); err != nil {
		return fmt.Errorf("research run did not start: %w", err)
	}

	final, err := mem.Get(ctx, req.ID)
	if err != nil {
		return err
	}
	printer.PrintRequest(final)
	if final.Status != types.StatusCompleted {
		return fmt.Errorf("research run ended with status %s", final.Status)
	}
	printer.PrintResults(final.Results)

	if runOut == "" {
		return nil
	}
	data, err := rendering.NewPDFRenderer().Render(ctx, final)
	if err != nil {
		return err
	}
	if err := os.WriteFile(runOut, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Fprintf(out, "Report written to %s (%d bytes)\n", runOut, len(data))
	return nil
}
