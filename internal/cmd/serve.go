package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gauntlet-ci/gauntlet/internal/config"
	"github.com/gauntlet-ci/gauntlet/internal/event"
	"github.com/gauntlet-ci/gauntlet/internal/trigger"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch a spool directory and run triggered subjects",
	Long: `Watch a spool directory for *.run trigger files and run the
pipeline for each triggered subject.

Dropping an empty file named <subject>.run into the spool directory
requests a run for that subject. Trigger files present at startup are
consumed immediately. What happens to a trigger while the subject's
run is still active is governed by the configured trigger policy:
"reject" refuses it, "queue" runs it once the active run finishes.`,
	RunE: runServe,
}

var serveSpoolDir string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveSpoolDir, "spool", "", "spool directory (default: <state-dir>/spool)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	store, stateDir, err := openStore(cfg)
	if err != nil {
		return err
	}

	bp, err := loadBlueprint(cfg, "")
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

	dispatcher, err := trigger.NewDispatcher(trigger.DispatcherConfig{
		Engine: engine,
		Bus:    bus,
		Policy: trigger.Policy(cfg.Trigger.Policy),
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer dispatcher.Close()

	spoolDir := serveSpoolDir
	if spoolDir == "" {
		spoolDir = cfg.Trigger.ResolveSpoolDir(stateDir)
	}

	watcher, err := trigger.NewWatcher(trigger.WatcherConfig{
		Dir:        spoolDir,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	watcher.Start()
	defer watcher.Stop()

	subID := bus.SubscribeAll(printEvent)
	defer bus.Unsubscribe(subID)

	fmt.Printf("Watching %s for *.run triggers (policy %s). Ctrl+C to stop.\n",
		spoolDir, cfg.Trigger.Policy)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Println("\nShutting down...")
	return nil
}
