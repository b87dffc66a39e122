package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	jsoniter "github.com/json-iterator/go"

	"github.com/redclawsec/redclaw/internal/dispatch"
	"github.com/redclawsec/redclaw/internal/engagement"
	"github.com/redclawsec/redclaw/internal/events"
	"github.com/redclawsec/redclaw/internal/executor"
	"github.com/redclawsec/redclaw/internal/knowledge"
	"github.com/redclawsec/redclaw/internal/observability"
	"github.com/redclawsec/redclaw/internal/oracle"
	"github.com/redclawsec/redclaw/internal/phase"
	"github.com/redclawsec/redclaw/internal/report"
)

// newRunCmd creates the `run` command, which drives one full engagement.
func newRunCmd() *cobra.Command {
	var (
		objective     string
		budget        int
		concurrency   int
		flagThreshold int
		outputPath    string
		reportPath    string
	)

	runCmd := &cobra.Command{
		Use:   "run [target]",
		Short: "Runs an autonomous engagement against a single target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			target := args[0]

			if budget > 0 {
				cfg.Engagement.IterationBudget = budget
			}
			if concurrency > 0 {
				cfg.Engagement.ConcurrencyCap = concurrency
			}
			if flagThreshold > 0 {
				cfg.Engagement.FlagThreshold = flagThreshold
			}

			oracleClient, err := oracle.NewClient(cfg.Oracle, logger)
			if err != nil {
				return fmt.Errorf("building oracle client: %w", err)
			}
			decider := oracle.NewDecider(oracleClient, logger, cfg.Oracle.DecisionTimeout)

			runner, err := executor.NewRunner(logger, executor.Config{
				AllowedTools:    cfg.Executor.AllowedTools,
				BlockedPatterns: cfg.Executor.BlockedPatterns,
				AllowedHosts:    cfg.Executor.AllowedHosts,
				RatePerSecond:   cfg.Executor.RatePerSecond,
				RateBurst:       cfg.Executor.RateBurst,
				WorkDir:         cfg.Executor.WorkDir,
				DefaultTimeout:  cfg.Executor.ToolTimeout,
			})
			if err != nil {
				return fmt.Errorf("building executor: %w", err)
			}

			store, err := knowledge.NewFromConfig(ctx, cfg.Knowledge, logger)
			if err != nil {
				return fmt.Errorf("building knowledge store: %w", err)
			}
			defer store.Close()

			bus := events.NewBus(logger, 256)
			defer bus.Shutdown()
			stopEcho := echoProgress(bus, logger)
			defer stopEcho()

			loop, err := engagement.NewLoop(logger, engagement.Config{
				IterationBudget:   cfg.Engagement.IterationBudget,
				ConcurrencyCap:    cfg.Engagement.ConcurrencyCap,
				FlagThreshold:     cfg.Engagement.FlagThreshold,
				InvocationTimeout: cfg.Executor.ToolTimeout,
				ExcerptLength:     cfg.Engagement.ExcerptLength,
				HistorySize:       cfg.Engagement.HistorySize,
				SampleLimit:       cfg.Engagement.SampleLimit,
				RecentWindow:      cfg.Engagement.RecentWindow,
				Phase: phase.Config{
					MaxRetries:  cfg.Engagement.MaxRetries,
					BackoffBase: cfg.Engagement.BackoffBase,
					BackoffCap:  cfg.Engagement.BackoffCap,
				},
			}, target, objective,
				decider,
				dispatch.NewRegistry(logger, target),
				runner, store, bus)
			if err != nil {
				return fmt.Errorf("assembling engagement loop: %w", err)
			}

			result, runErr := loop.Run(ctx)

			if runErr == nil {
				summarizer := oracle.NewSummarizer(oracleClient, logger, cfg.Oracle.DecisionTimeout)
				if summary, serr := summarizer.Summarize(ctx, report.Render(result)); serr != nil {
					logger.Warn("Executive summary skipped", zap.Error(serr))
				} else {
					result.Summary = summary
				}
			}

			if outputPath != "" {
				if werr := writeResultJSON(outputPath, result); werr != nil {
					logger.Error("Failed to write result file", zap.Error(werr))
				}
			}
			if reportPath != "" {
				if werr := os.WriteFile(reportPath, []byte(report.Render(result)), 0o644); werr != nil {
					logger.Error("Failed to write report file", zap.Error(werr))
				}
			}
			if runErr != nil {
				return runErr
			}
			if result.Outcome != engagement.OutcomeCompleted {
				return fmt.Errorf("engagement failed after %d iterations: %s", result.Iterations, result.Err)
			}
			return nil
		},
	}

	runCmd.Flags().StringVarP(&objective, "objective", "o", "capture all flags on the target", "engagement objective given to the oracle")
	runCmd.Flags().IntVar(&budget, "budget", 0, "iteration budget (overrides config)")
	runCmd.Flags().IntVar(&concurrency, "concurrency", 0, "max concurrent tool invocations (overrides config)")
	runCmd.Flags().IntVar(&flagThreshold, "flag-threshold", 0, "flags required for success (overrides config)")
	runCmd.Flags().StringVar(&outputPath, "output", "", "write the result JSON to this path")
	runCmd.Flags().StringVar(&reportPath, "report", "", "write the markdown report to this path")
	return runCmd
}

func writeResultJSON(path string, result *engagement.Result) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// echoProgress mirrors key loop events onto the operator console.
func echoProgress(bus *events.Bus, logger *zap.Logger) func() {
	ch, cancel := bus.Subscribe(
		events.KindPlanComplete,
		events.KindPhaseChange,
		events.KindFlagFound,
		events.KindLoopComplete,
		events.KindLoopFailed,
	)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for ev := range ch {
			switch p := ev.Payload.(type) {
			case events.PlanPayload:
				logger.Info("Plan ready",
					zap.Int("iteration", ev.Iteration),
					zap.Strings("actions", p.Actions))
			case events.PhaseChangePayload:
				logger.Info("Phase change",
					zap.String("from", string(p.From)),
					zap.String("to", string(p.To)))
			case events.FlagPayload:
				logger.Info("FLAG CAPTURED",
					zap.String("flag", p.Flag),
					zap.Int("total", p.Total))
			case events.LoopPayload:
				logger.Info("Engagement finished",
					zap.String("outcome", p.Outcome),
					zap.Int("iterations", p.Iterations),
					zap.Int("flags", p.Flags))
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
