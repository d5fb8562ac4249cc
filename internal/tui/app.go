package tui

import (
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gauntlet-ci/gauntlet/internal/event"
	"github.com/gauntlet-ci/gauntlet/internal/pipeline"
)

// App wraps the Bubbletea program for watching a run.
type App struct {
	program *tea.Program
	model   Model
	bus     *event.Bus
	run     *pipeline.Run
}

// New creates a watch application for the run. Bus events for the run's
// subject drive the view; everything else is ignored.
func New(run *pipeline.Run, bus *event.Bus, blueprint string, phases int) *App {
	model := NewModel(run.SubjectID(), blueprint, phases)
	model.cancel = run.Cancel
	return &App{
		model: model,
		bus:   bus,
		run:   run,
	}
}

// Run starts the watch view and blocks until the run finishes or the
// user quits. Quitting the view does not stop the run.
func (a *App) Run() error {
	a.program = tea.NewProgram(a.model, tea.WithAltScreen())

	// Forward bus events into the update loop.
	subID := a.bus.SubscribeAll(func(ev event.Event) {
		a.program.Send(busEventMsg{event: ev})
	})
	defer a.bus.Unsubscribe(subID)

	// Close the view when the run's handle closes.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-a.run.Done():
			a.program.Send(runDoneMsg{err: a.run.Err()})
		case <-stop:
		}
	}()

	// Quit cleanly on termination signals so the terminal is restored.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)
	go func() {
		<-sigs
		a.program.Send(tea.Quit())
	}()

	_, err := a.program.Run()
	return err
}
