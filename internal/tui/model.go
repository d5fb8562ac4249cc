package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gauntlet-ci/gauntlet/internal/event"
	"github.com/gauntlet-ci/gauntlet/internal/tui/styles"
	"github.com/gauntlet-ci/gauntlet/internal/util"
	"github.com/gauntlet-ci/gauntlet/internal/workflow"
)

// capabilityRow is one sub-task line in the progress view.
type capabilityRow struct {
	phase      string
	subtask    string
	capability string
	status     event.CapabilityStatus
	kind       string // failure kind when status is failed
}

// Model holds the watch view state for a single run.
type Model struct {
	subjectID string
	blueprint string
	phases    int

	spinner spinner.Model

	stage       event.Stage
	failedAt    event.Stage // stage the run was in when it failed
	rows        []capabilityRow
	rowIndex    map[string]int // phase/subtask -> rows index
	failures    int
	checkpoints int

	done     bool
	success  bool
	duration time.Duration
	finalErr string

	// cancel stops the watched run; nil when watching detached.
	cancel func()

	width    int
	height   int
	quitting bool
}

// NewModel creates a watch model for the subject's run.
func NewModel(subjectID, blueprint string, phases int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Warning

	return Model{
		subjectID: subjectID,
		blueprint: blueprint,
		phases:    phases,
		spinner:   sp,
		rowIndex:  make(map[string]int),
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "c":
			if !m.done && m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case busEventMsg:
		return m.applyEvent(msg.event), nil

	case runDoneMsg:
		m.done = true
		if msg.err != nil {
			m.finalErr = msg.err.Error()
		}
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// applyEvent folds a bus event into the view state. Events for other
// subjects are ignored.
func (m Model) applyEvent(ev event.Event) Model {
	switch ev := ev.(type) {
	case event.RunStartedEvent:
		if ev.SubjectID != m.subjectID {
			return m
		}
		m.blueprint = ev.Blueprint
		m.phases = ev.Phases

	case event.StageChangedEvent:
		if ev.SubjectID != m.subjectID {
			return m
		}
		m.stage = ev.CurrentStage
		if ev.CurrentStage == event.StageFailed {
			m.failedAt = ev.PreviousStage
		}

	case event.CapabilityStatusEvent:
		if ev.SubjectID != m.subjectID {
			return m
		}
		key := ev.Phase + "/" + ev.Subtask
		if i, ok := m.rowIndex[key]; ok {
			m.rows[i].status = ev.Status
			m.rows[i].kind = ev.Kind
		} else {
			m.rowIndex[key] = len(m.rows)
			m.rows = append(m.rows, capabilityRow{
				phase:      ev.Phase,
				subtask:    ev.Subtask,
				capability: ev.Capability,
				status:     ev.Status,
				kind:       ev.Kind,
			})
		}
		if ev.Status == event.CapabilityFailed {
			m.failures++
		}

	case event.CheckpointSavedEvent:
		if ev.SubjectID != m.subjectID {
			return m
		}
		m.checkpoints++

	case event.RunCompletedEvent:
		if ev.SubjectID != m.subjectID {
			return m
		}
		m.done = true
		m.success = ev.Success
		m.duration = ev.Duration
		m.failures = ev.Failures
		m.stage = ev.FinalStage
	}

	return m
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	header := fmt.Sprintf("Gauntlet  %s", m.subjectID)
	if m.width > 4 {
		b.WriteString(styles.Header.Width(m.width - 4).Render(header))
	} else {
		b.WriteString(styles.Header.Render(header))
	}
	b.WriteString("\n")

	if m.blueprint != "" {
		b.WriteString(styles.Subtitle.Render(fmt.Sprintf("blueprint %s, %d phases", m.blueprint, m.phases)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(m.renderStages())
	b.WriteString("\n\n")

	b.WriteString(m.renderCapabilities())

	if m.done {
		b.WriteString("\n")
		b.WriteString(m.renderResult())
	}

	b.WriteString("\n")
	b.WriteString(m.renderHelp())

	return b.String()
}

// renderStages draws the pipeline stage strip.
func (m Model) renderStages() string {
	current := workflow.Stage(string(m.stage))
	failed := m.stage == event.StageFailed
	completed := current == workflow.StageCompleted

	currentIdx := current.Index()
	if failed {
		currentIdx = workflow.Stage(string(m.failedAt)).Index()
	}

	order := workflow.PipelineOrder()
	parts := make([]string, 0, len(order)+1)
	for i, st := range order {
		name := string(st)
		var rendered string
		switch {
		case failed && i == currentIdx:
			rendered = styles.Error.Render("✗ " + name)
		case completed || i < currentIdx:
			rendered = styles.Secondary.Render("✓ " + name)
		case i == currentIdx && !m.done:
			rendered = styles.Warning.Render(m.spinner.View() + name)
		case i == currentIdx:
			rendered = styles.Warning.Render("● " + name)
		default:
			rendered = styles.Muted.Render("○ " + name)
		}
		parts = append(parts, rendered)
	}

	switch {
	case completed:
		parts = append(parts, styles.SuccessMsg.Render("→ completed"))
	case failed:
		parts = append(parts, styles.ErrorMsg.Render("→ failed"))
	}

	return strings.Join(parts, styles.Muted.Render("  "))
}

// renderCapabilities draws one line per sub-task, grouped by phase.
func (m Model) renderCapabilities() string {
	if len(m.rows) == 0 {
		return styles.Muted.Render("waiting for the first phase...")
	}

	var b strings.Builder
	lastPhase := ""
	for _, row := range m.rows {
		if row.phase != lastPhase {
			if lastPhase != "" {
				b.WriteString("\n")
			}
			b.WriteString(styles.Primary.Bold(true).Render("[ " + row.phase + " ]"))
			b.WriteString("\n")
			lastPhase = row.phase
		}

		status := string(row.status)
		icon := styles.StatusIcon(status)
		style := lipgloss.NewStyle().Foreground(styles.StatusColor(status))
		if row.status == event.CapabilityRunning && !m.done {
			icon = strings.TrimSpace(m.spinner.View())
		}

		line := fmt.Sprintf("  %s %-20s", icon, row.subtask)
		if row.capability != "" && row.capability != row.subtask {
			line += styles.Muted.Render(" via " + row.capability)
		}
		if row.kind != "" {
			line += styles.Error.Render(" (" + row.kind + ")")
		}
		rendered := style.Render(line)
		if m.width > 0 {
			rendered = util.TruncateANSI(rendered, m.width)
		}
		b.WriteString(rendered)
		b.WriteString("\n")
	}

	return b.String()
}

// renderResult draws the terminal banner once the run has finished.
func (m Model) renderResult() string {
	summary := fmt.Sprintf(" in %s, %d failures", m.duration.Round(time.Millisecond), m.failures)
	if m.checkpoints > 0 {
		summary += fmt.Sprintf(", %d checkpoints", m.checkpoints)
	}

	var banner string
	if m.success {
		banner = styles.SuccessMsg.Render("run completed" + summary)
	} else {
		msg := "run failed" + summary
		if m.finalErr != "" {
			msg += ": " + m.finalErr
		}
		banner = styles.ErrorMsg.Render(msg)
	}
	if m.width > 0 {
		banner = util.TruncateANSI(banner, m.width)
	}
	return banner
}

func (m Model) renderHelp() string {
	help := styles.HelpKey.Render("q") + " quit"
	if !m.done && m.cancel != nil {
		help += "  " + styles.HelpKey.Render("c") + " cancel run"
	}
	return styles.HelpBar.Render(help)
}
