// Package config implements the interactive settings editor behind
// "gauntlet config". It edits the same viper-backed keys the engine
// reads, grouped by config section, and writes changes straight to the
// config file.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/viper"

	"github.com/gauntlet-ci/gauntlet/internal/config"
	"github.com/gauntlet-ci/gauntlet/internal/tui/styles"
)

// ConfigItem is one editable setting. Type selects the edit widget:
// "bool" toggles in place, "select" opens an option list, "int" and
// "string" open a text input.
type ConfigItem struct {
	Key         string
	Label       string
	Description string
	Type        string
	Options     []string
	Category    string
}

// Category groups items under one heading in the editor.
type Category struct {
	Name  string
	Items []ConfigItem
}

// Model drives the settings editor. Navigation state is a pair of
// indexes into categories; edit state lives in textInput/selectIndex
// while editing is true.
type Model struct {
	categories    []Category
	categoryIndex int
	itemIndex     int
	width         int
	height        int
	editing       bool
	textInput     textinput.Model
	selectIndex   int
	errorMsg      string
	infoMsg       string
	quitting      bool
}

// New builds the editor over gauntlet's config sections.
func New() Model {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 200
	ti.Width = 40

	return Model{
		categories: configCategories(),
		textInput:  ti,
	}
}

// configCategories lays out the editable settings in display order.
func configCategories() []Category {
	return []Category{
		{
			Name: "Engine",
			Items: []ConfigItem{
				{
					Key:         "engine.phase_timeout_seconds",
					Label:       "Phase Timeout (s)",
					Description: "Maximum seconds a single phase may run before hung sub-tasks time out",
					Type:        "int",
					Category:    "engine",
				},
				{
					Key:         "engine.subtask_timeout_seconds",
					Label:       "Sub-task Timeout (s)",
					Description: "Maximum seconds a single capability invocation may run",
					Type:        "int",
					Category:    "engine",
				},
				{
					Key:         "engine.max_retries",
					Label:       "Max Retries",
					Description: "Extra attempts for transiently failing sub-tasks (0 = no retries)",
					Type:        "int",
					Category:    "engine",
				},
			},
		},
		{
			Name: "Trigger",
			Items: []ConfigItem{
				{
					Key:         "trigger.policy",
					Label:       "Busy Policy",
					Description: "What happens to a trigger while the subject's run is still active",
					Type:        "select",
					Options:     config.ValidTriggerPolicies(),
					Category:    "trigger",
				},
				{
					Key:         "trigger.spool_dir",
					Label:       "Spool Directory",
					Description: "Directory watched for *.run trigger files (empty = <state_dir>/spool)",
					Type:        "string",
					Category:    "trigger",
				},
			},
		},
		{
			Name: "Logging",
			Items: []ConfigItem{
				{
					Key:         "logging.enabled",
					Label:       "Enabled",
					Description: "Write structured logs while runs execute",
					Type:        "bool",
					Category:    "logging",
				},
				{
					Key:         "logging.level",
					Label:       "Level",
					Description: "Minimum level to log",
					Type:        "select",
					Options:     config.ValidLogLevels(),
					Category:    "logging",
				},
				{
					Key:         "logging.file",
					Label:       "Log File",
					Description: "Log file path (empty = <state_dir>/gauntlet.log)",
					Type:        "string",
					Category:    "logging",
				},
			},
		},
		{
			Name: "Paths",
			Items: []ConfigItem{
				{
					Key:         "paths.state_dir",
					Label:       "State Directory",
					Description: "Where run state, artifacts, and the subject registry live (empty = XDG data dir)",
					Type:        "string",
					Category:    "paths",
				},
				{
					Key:         "paths.blueprint",
					Label:       "Blueprint",
					Description: "Blueprint YAML driving runs (empty = built-in default)",
					Type:        "string",
					Category:    "paths",
				},
			},
		},
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		// Any keypress clears a stale message.
		m.errorMsg = ""
		m.infoMsg = ""

		if m.editing {
			return m.updateEditing(msg)
		}

		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			m.moveUp()
		case "down", "j":
			m.moveDown()
		case "tab":
			m.jumpCategory(1)
		case "shift+tab":
			m.jumpCategory(-1)
		case "enter", " ":
			return m.beginEdit()
		case "r":
			m.resetCurrent()
		}
	}

	return m, nil
}

// moveUp steps to the previous item, crossing into the tail of the
// previous category when the selection leaves the top of the current one.
func (m *Model) moveUp() {
	m.itemIndex--
	if m.itemIndex < 0 {
		m.categoryIndex--
		if m.categoryIndex < 0 {
			m.categoryIndex = len(m.categories) - 1
		}
		m.itemIndex = len(m.categories[m.categoryIndex].Items) - 1
	}
}

// moveDown steps to the next item, crossing into the head of the next
// category past the end of the current one.
func (m *Model) moveDown() {
	m.itemIndex++
	if m.itemIndex >= len(m.categories[m.categoryIndex].Items) {
		m.categoryIndex++
		if m.categoryIndex >= len(m.categories) {
			m.categoryIndex = 0
		}
		m.itemIndex = 0
	}
}

// jumpCategory moves the selection to the first item of an adjacent
// category, wrapping at either end.
func (m *Model) jumpCategory(delta int) {
	n := len(m.categories)
	m.categoryIndex = (m.categoryIndex + delta + n) % n
	m.itemIndex = 0
}

// beginEdit dispatches on the selected item's type: bools flip
// immediately, everything else opens an overlay.
func (m Model) beginEdit() (tea.Model, tea.Cmd) {
	item := m.currentItem()
	switch item.Type {
	case "bool":
		viper.Set(item.Key, !viper.GetBool(item.Key))
		m.persist()
	case "select":
		m.editing = true
		m.selectIndex = m.selectedOptionIndex()
	default:
		m.editing = true
		m.textInput.SetValue(m.currentValue())
		m.textInput.Focus()
	}
	return m, nil
}

func (m Model) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	item := m.currentItem()

	switch msg.String() {
	case "enter":
		if item.Type == "select" {
			viper.Set(item.Key, item.Options[m.selectIndex])
			m.persist()
			m.editing = false
			return m, nil
		}
		if err := m.validateAndSet(item, m.textInput.Value()); err != nil {
			m.errorMsg = err.Error()
			return m, nil
		}
		m.persist()
		m.editing = false
		m.textInput.SetValue("")
		return m, nil

	case "esc":
		m.editing = false
		m.textInput.SetValue("")
		return m, nil

	case "up", "k":
		if item.Type == "select" {
			m.stepSelect(item, -1)
		}
		return m, nil

	case "down", "j":
		if item.Type == "select" {
			m.stepSelect(item, 1)
		}
		return m, nil
	}

	if item.Type == "select" {
		return m, nil
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

// stepSelect moves the highlighted option, wrapping at both ends.
func (m *Model) stepSelect(item ConfigItem, delta int) {
	n := len(item.Options)
	if n == 0 {
		return
	}
	m.selectIndex = (m.selectIndex + delta + n) % n
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Loading..."
	}

	var sections []string

	sections = append(sections, styles.Header.Width(m.width-4).Render("Gauntlet Configuration"), "")

	configPath := viper.ConfigFileUsed()
	if configPath == "" {
		configPath = config.ConfigFile() + " (not created)"
	}
	sections = append(sections, styles.Muted.Render("Config file: "+configPath), "")

	for ci, cat := range m.categories {
		active := ci == m.categoryIndex

		heading := styles.Muted.Bold(true)
		if active {
			heading = styles.Primary.Bold(true)
		}
		sections = append(sections, heading.Render("[ "+cat.Name+" ]"))

		for ii, item := range cat.Items {
			sections = append(sections, m.renderItem(item, active && ii == m.itemIndex))
		}
		sections = append(sections, "")
	}

	if m.editing {
		sections = append(sections, m.renderOverlay())
	} else {
		sections = append(sections, styles.Muted.Render(m.currentItem().Description))
	}

	if m.errorMsg != "" {
		sections = append(sections, "", styles.ErrorMsg.Render("Error: "+m.errorMsg))
	}
	if m.infoMsg != "" {
		sections = append(sections, "", styles.SuccessMsg.Render(m.infoMsg))
	}

	sections = append(sections, "", m.renderHelp())

	return strings.Join(sections, "\n") + "\n"
}

func (m Model) renderItem(item ConfigItem, selected bool) string {
	value := m.getDisplayValue(item)

	label := item.Label
	if len(label) > 25 {
		label = label[:22] + "..."
	}
	label = fmt.Sprintf("%-25s", label)

	if selected {
		return fmt.Sprintf("  %s %s  %s",
			styles.Secondary.Render(">"),
			styles.Text.Bold(true).Render(label),
			styles.Primary.Render(value))
	}
	return fmt.Sprintf("    %s  %s", styles.Muted.Render(label), styles.Text.Render(value))
}

func (m Model) renderOverlay() string {
	item := m.currentItem()

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.PrimaryColor).
		Padding(1, 2).
		Width(50)

	var content strings.Builder
	if item.Type == "select" {
		fmt.Fprintf(&content, "Select %s:\n\n", item.Label)
		for i, opt := range item.Options {
			if i == m.selectIndex {
				content.WriteString(styles.DropdownItemSelected.Render(" > "+opt+" ") + "\n")
			} else {
				content.WriteString(styles.DropdownItem.Render("   "+opt+" ") + "\n")
			}
		}
		content.WriteString("\n" + styles.Muted.Render("j/k or arrows to select, enter to confirm, esc to cancel"))
	} else {
		fmt.Fprintf(&content, "Edit %s:\n\n", item.Label)
		content.WriteString(m.textInput.View())
		content.WriteString("\n\n" + styles.Muted.Render("enter to save, esc to cancel"))
	}

	return "\n" + box.Render(content.String())
}

func (m Model) renderHelp() string {
	key := styles.HelpKey.Render
	if m.editing {
		return styles.HelpBar.Render(key("enter") + " save  " + key("esc") + " cancel")
	}
	return styles.HelpBar.Render(
		key("j/k") + " navigate  " +
			key("tab") + " next category  " +
			key("enter/space") + " edit  " +
			key("r") + " reset  " +
			key("q") + " quit")
}

func (m Model) currentItem() ConfigItem {
	return m.categories[m.categoryIndex].Items[m.itemIndex]
}

// currentValue renders the selected item's live viper value for seeding
// the text input.
func (m Model) currentValue() string {
	item := m.currentItem()
	switch item.Type {
	case "bool":
		return strconv.FormatBool(viper.GetBool(item.Key))
	case "int":
		return strconv.Itoa(viper.GetInt(item.Key))
	default:
		return viper.GetString(item.Key)
	}
}

// getDisplayValue renders an item's value for the list view. Empty
// strings show as "(default)" since empty means the engine picks the
// built-in fallback.
func (m Model) getDisplayValue(item ConfigItem) string {
	switch item.Type {
	case "bool":
		return strconv.FormatBool(viper.GetBool(item.Key))
	case "int":
		return strconv.Itoa(viper.GetInt(item.Key))
	default:
		value := viper.GetString(item.Key)
		if value == "" {
			return "(default)"
		}
		return value
	}
}

// selectedOptionIndex finds the current viper value in the item's
// options, defaulting to the first option when nothing matches.
func (m Model) selectedOptionIndex() int {
	item := m.currentItem()
	if i := slices.Index(item.Options, viper.GetString(item.Key)); i >= 0 {
		return i
	}
	return 0
}

func (m *Model) validateAndSet(item ConfigItem, value string) error {
	switch item.Type {
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("not an integer")
		}
		if n < 0 {
			return fmt.Errorf("must be zero or greater")
		}
		viper.Set(item.Key, n)
	case "bool":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("must be true or false")
		}
		viper.Set(item.Key, b)
	case "select":
		if !slices.Contains(item.Options, value) {
			return fmt.Errorf("unknown option %q", value)
		}
		viper.Set(item.Key, value)
	default:
		viper.Set(item.Key, value)
	}
	return nil
}

// persist writes the live viper state to the config file, creating the
// config directory on first save.
func (m *Model) persist() {
	if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
		m.errorMsg = fmt.Sprintf("could not create config directory: %v", err)
		return
	}
	if err := viper.WriteConfigAs(config.ConfigFile()); err != nil {
		m.errorMsg = fmt.Sprintf("could not write config: %v", err)
		return
	}
	m.infoMsg = "Configuration saved"
}

// resetCurrent restores the selected item to its built-in default and
// saves.
func (m *Model) resetCurrent() {
	item := m.currentItem()
	defaults := config.Default()

	defaultValues := map[string]any{
		"engine.phase_timeout_seconds":   defaults.Engine.PhaseTimeoutSeconds,
		"engine.subtask_timeout_seconds": defaults.Engine.SubtaskTimeoutSeconds,
		"engine.max_retries":             defaults.Engine.MaxRetries,
		"trigger.policy":                 defaults.Trigger.Policy,
		"trigger.spool_dir":              defaults.Trigger.SpoolDir,
		"logging.enabled":                defaults.Logging.Enabled,
		"logging.level":                  defaults.Logging.Level,
		"logging.file":                   defaults.Logging.File,
		"paths.state_dir":                defaults.Paths.StateDir,
		"paths.blueprint":                defaults.Paths.Blueprint,
	}

	val, ok := defaultValues[item.Key]
	if !ok {
		return
	}
	viper.Set(item.Key, val)
	m.persist()
	m.infoMsg = fmt.Sprintf("Restored %s to its default", item.Label)
}

// Run starts the settings editor in the alternate screen.
func Run() error {
	p := tea.NewProgram(New(), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
