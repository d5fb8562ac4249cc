package tui

import (
	"github.com/gauntlet-ci/gauntlet/internal/event"
)

// busEventMsg wraps a pipeline event forwarded from the event bus.
type busEventMsg struct {
	event event.Event
}

// runDoneMsg is sent when the watched run's handle closes. The error is
// the run's terminal error, nil on success.
type runDoneMsg struct {
	err error
}
