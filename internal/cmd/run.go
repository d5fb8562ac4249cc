package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gauntlet-ci/gauntlet/internal/blueprint"
	"github.com/gauntlet-ci/gauntlet/internal/capability"
	"github.com/gauntlet-ci/gauntlet/internal/config"
	"github.com/gauntlet-ci/gauntlet/internal/event"
	"github.com/gauntlet-ci/gauntlet/internal/logging"
	"github.com/gauntlet-ci/gauntlet/internal/pipeline"
	"github.com/gauntlet-ci/gauntlet/internal/sink"
	"github.com/gauntlet-ci/gauntlet/internal/tui"
	"github.com/gauntlet-ci/gauntlet/internal/workflow"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var runCmd = &cobra.Command{
	Use:   "run <subject>",
	Short: "Run the pipeline for a registered subject",
	Long: `Run the full pipeline for a registered subject and wait for it to
reach a terminal stage.

By default progress is streamed as plain text. With --watch a live
dashboard shows stage progress and per-capability status; quitting the
dashboard does not cancel the run.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runBlueprintPath string
	runWatch         bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runBlueprintPath, "blueprint", "b", "", "blueprint YAML file (default: configured path or built-in)")
	runCmd.Flags().BoolVarP(&runWatch, "watch", "w", false, "watch the run in a live dashboard")
}

// resolveStateDir resolves the configured state directory against the
// current working directory.
func resolveStateDir(cfg *config.Config) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return cfg.Paths.ResolveStateDir(cwd), nil
}

// openStore opens the subject registry under the state directory,
// creating it on first use.
func openStore(cfg *config.Config) (*sink.FileStore, string, error) {
	stateDir, err := resolveStateDir(cfg)
	if err != nil {
		return nil, "", err
	}
	store, err := sink.NewFileStore(stateDir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open state directory: %w", err)
	}
	return store, stateDir, nil
}

// loadBlueprint loads the blueprint for this invocation: the --blueprint
// flag wins, then the configured path, then the built-in default.
func loadBlueprint(cfg *config.Config, override string) (*blueprint.Blueprint, error) {
	path := override
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = cfg.Paths.ResolveBlueprint(cwd)
	}
	if path == "" {
		return blueprint.Default(), nil
	}
	bp, err := blueprint.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load blueprint: %w", err)
	}
	return bp, nil
}

// newRunLogger builds the run logger from config. Logging disabled means
// a nop logger, not stderr noise.
func newRunLogger(cfg *config.Config, stateDir string) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	logger, err := logging.NewLogger(cfg.Logging.ResolveFile(stateDir), cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return logger, nil
}

// buildEngine assembles the engine with the stock capabilities.
func buildEngine(cfg *config.Config, store *sink.FileStore, bus *event.Bus, bp *blueprint.Blueprint, logger *logging.Logger) (*pipeline.Engine, error) {
	registry := capability.NewRegistry()
	if err := capability.RegisterBuiltins(registry); err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Config{
		Registry:  registry,
		Sink:      store,
		Blueprint: bp,
		Bus:       bus,
	},
		pipeline.WithLogger(logger),
		pipeline.WithPhaseTimeout(cfg.Engine.PhaseTimeout()),
		pipeline.WithSubtaskTimeout(cfg.Engine.SubtaskTimeout()),
		pipeline.WithMaxRetries(cfg.Engine.MaxRetries),
	)
}

func runRun(cmd *cobra.Command, args []string) error {
	subjectID := args[0]
	cfg := config.Get()

	store, stateDir, err := openStore(cfg)
	if err != nil {
		return err
	}

	bp, err := loadBlueprint(cfg, runBlueprintPath)
	if err != nil {
		return err
	}

	logger, err := newRunLogger(cfg, stateDir)
	if err != nil {
		return err
	}
	defer logger.Close()

	bus := event.NewBus()
	engine, err := buildEngine(cfg, store, bus, bp, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	if runWatch {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("--watch requires a terminal")
		}

		run, err := engine.Start(context.Background(), subjectID)
		if err != nil {
			return err
		}

		app := tui.New(run, bus, bp.Name, len(bp.Phases))
		if err := app.Run(); err != nil {
			return fmt.Errorf("TUI error: %w", err)
		}

		// Leaving the dashboard leaves the run alone; wait it out.
		<-run.Done()
		return reportRun(run.State(), run.Err())
	}

	// Plain mode: stream progress lines, cancel the run on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	subID := bus.SubscribeAll(printEvent)
	defer bus.Unsubscribe(subID)

	run, err := engine.Start(ctx, subjectID)
	if err != nil {
		return err
	}
	<-run.Done()
	return reportRun(run.State(), run.Err())
}

// printEvent renders one progress line per bus event in plain mode.
func printEvent(ev event.Event) {
	switch e := ev.(type) {
	case event.RunStartedEvent:
		fmt.Printf("Run started: %s (blueprint %s, %d phases)\n", e.SubjectID, e.Blueprint, e.Phases)
	case event.StageChangedEvent:
		fmt.Printf("  stage %s\n", e.CurrentStage)
	case event.CapabilityStatusEvent:
		switch e.Status {
		case event.CapabilityCompleted:
			fmt.Printf("    ok   %s/%s\n", e.Phase, e.Subtask)
		case event.CapabilityFailed:
			if e.Kind != "" {
				fmt.Printf("    FAIL %s/%s (%s)\n", e.Phase, e.Subtask, e.Kind)
			} else {
				fmt.Printf("    FAIL %s/%s\n", e.Phase, e.Subtask)
			}
		}
	case event.CheckpointSavedEvent:
		fmt.Printf("    checkpoint %s\n", e.Phase)
	case event.TriggerAcceptedEvent:
		fmt.Printf("Trigger accepted: %s (source %s)\n", e.SubjectID, e.Source)
	case event.TriggerQueuedEvent:
		fmt.Printf("Trigger queued: %s (position %d)\n", e.SubjectID, e.Position)
	case event.TriggerRejectedEvent:
		fmt.Printf("Trigger rejected: %s (%s)\n", e.SubjectID, e.Reason)
	}
}

// reportRun prints the final summary and surfaces the run failure, if
// any, as the command error.
func reportRun(state *workflow.State, runErr error) error {
	if state == nil {
		return runErr
	}

	fmt.Println()
	if runErr != nil {
		fmt.Printf("Run failed at stage %s: %v\n", state.Stage, runErr)
	} else {
		fmt.Printf("Run completed in %s\n", state.Metrics.TotalDuration.Round(time.Millisecond))
	}
	fmt.Printf("Phases: %d  Sub-tasks: %d  Failed: %d  Retries: %d\n",
		len(state.Results), state.Metrics.SubtasksRun, state.Metrics.SubtasksFailed, state.Metrics.Retries)

	for _, rec := range state.Errors {
		if rec.Subtask != "" {
			fmt.Printf("  error %s/%s: %s\n", rec.Phase, rec.Subtask, rec.Message)
		} else {
			fmt.Printf("  error %s: %s\n", rec.Phase, rec.Message)
		}
	}

	return runErr
}
