package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/gauntlet-ci/gauntlet/internal/config"
	"github.com/gauntlet-ci/gauntlet/internal/logging"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View run logs",
	Long: `View and filter Gauntlet's structured run logs.

By default, shows the last 50 lines. Use flags to filter and format
the output.

Examples:
  # Show last 50 lines
  gauntlet logs

  # Show all logs
  gauntlet logs -n 0

  # Follow logs in real-time
  gauntlet logs -f

  # Filter by log level
  gauntlet logs --level warn

  # Show logs for one subject from the last hour
  gauntlet logs --subject payments-api --since 1h

  # Search for specific patterns
  gauntlet logs --grep "timed out|defect"`,
	RunE: runLogs,
}

var logsExportCmd = &cobra.Command{
	Use:   "export <json|text|csv>",
	Short: "Export logs to a file",
	Long: `Export Gauntlet's structured logs to a file.

The parent command's filter flags apply, so a single subject's history
can be exported on its own.

Examples:
  # Export everything as JSON
  gauntlet logs export json

  # Export one subject's warnings and errors as CSV
  gauntlet logs export csv --subject payments-api --level warn -o payments.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runLogsExport,
}

var (
	logsTail         int
	logsFollow       bool
	logsLevel        string
	logsSince        string
	logsGrep         string
	logsSubject      string
	logsExportOutput string
)

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsExportCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of lines to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.PersistentFlags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.PersistentFlags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.PersistentFlags().StringVar(&logsGrep, "grep", "", "Filter logs matching pattern (regex)")
	logsCmd.PersistentFlags().StringVar(&logsSubject, "subject", "", "Filter by subject ID")
	logsExportCmd.Flags().StringVarP(&logsExportOutput, "output", "o", "", "Output file (default gauntlet-logs.<ext>)")
}

const (
	ansiReset  = "\x1b[0m"
	ansiGray   = "\x1b[90m"
	ansiBlue   = "\x1b[34m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
	ansiCyan   = "\x1b[36m"
)

var levelColors = map[string]string{
	logging.LevelDebug: ansiGray,
	logging.LevelInfo:  ansiBlue,
	logging.LevelWarn:  ansiYellow,
	logging.LevelError: ansiRed,
}

func levelColor(level string) string {
	if c, ok := levelColors[strings.ToUpper(level)]; ok {
		return c
	}
	return ansiReset
}

// buildLogFilter turns the shared logs flags into a LogFilter plus an
// optional grep regexp applied to messages and attr values.
func buildLogFilter() (logging.LogFilter, *regexp.Regexp, error) {
	filter := logging.LogFilter{Subject: logsSubject}
	if logsLevel != "" {
		filter.Level = logging.ParseLevel(logsLevel)
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return logging.LogFilter{}, nil, fmt.Errorf("invalid duration format: %w", err)
		}
		filter.StartTime = time.Now().Add(-d)
	}

	var grep *regexp.Regexp
	if logsGrep != "" {
		var err error
		grep, err = regexp.Compile(logsGrep)
		if err != nil {
			return logging.LogFilter{}, nil, fmt.Errorf("invalid grep pattern: %w", err)
		}
	}
	return filter, grep, nil
}

// matchesGrep reports whether the pattern hits the entry's message or
// any attr value. A nil pattern matches everything.
func matchesGrep(entry logging.LogEntry, grep *regexp.Regexp) bool {
	if grep == nil {
		return true
	}
	if grep.MatchString(entry.Message) {
		return true
	}
	for _, v := range entry.Attrs {
		if grep.MatchString(fmt.Sprintf("%v", v)) {
			return true
		}
	}
	return false
}

// renderEntry formats one entry for the terminal: dim timestamp,
// colored level badge, message, then cyan key=value context. Attr keys
// are sorted so repeated invocations line up.
func renderEntry(entry logging.LogEntry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s[%s]%s", ansiGray, entry.Timestamp.Format("15:04:05.000"), ansiReset)
	fmt.Fprintf(&b, " %s[%s]%s", levelColor(entry.Level), strings.ToUpper(entry.Level), ansiReset)
	b.WriteString(" ")
	b.WriteString(entry.Message)

	context := [...][2]string{
		{"subject", entry.Subject},
		{"stage", entry.Stage},
		{"capability", entry.Capability},
	}
	for _, kv := range context {
		if kv[1] != "" {
			fmt.Fprintf(&b, " %s%s=%s%s", ansiCyan, kv[0], kv[1], ansiReset)
		}
	}

	attrKeys := make([]string, 0, len(entry.Attrs))
	for k := range entry.Attrs {
		attrKeys = append(attrKeys, k)
	}
	slices.Sort(attrKeys)
	for _, k := range attrKeys {
		fmt.Fprintf(&b, " %s%s=%s%v", ansiCyan, k, ansiReset, entry.Attrs[k])
	}

	return b.String()
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	stateDir, err := resolveStateDir(cfg)
	if err != nil {
		return err
	}
	logPath := cfg.Logging.ResolveFile(stateDir)

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Printf("No logs found at %s\n", logPath)
		return nil
	}

	filter, grep, err := buildLogFilter()
	if err != nil {
		return err
	}

	if logsFollow {
		return followLogs(logPath, filter, grep)
	}
	return showLogs(logPath, filter, grep)
}

// showLogs prints the filtered tail of the log.
func showLogs(logPath string, filter logging.LogFilter, grep *regexp.Regexp) error {
	entries, err := logging.AggregateLogs(logPath)
	if err != nil {
		return err
	}

	var lines []string
	for _, entry := range logging.FilterLogs(entries, filter) {
		if matchesGrep(entry, grep) {
			lines = append(lines, renderEntry(entry))
		}
	}

	if logsTail > 0 && len(lines) > logsTail {
		lines = lines[len(lines)-logsTail:]
	}
	if len(lines) == 0 {
		fmt.Println("No matching log entries found.")
		return nil
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}

// followLogs streams entries appended after startup, like tail -f,
// polling briefly at EOF for new data.
func followLogs(logPath string, filter logging.LogFilter, grep *regexp.Regexp) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// Start at the end; printing history is the non-follow path's job.
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek log file: %w", err)
	}

	fmt.Printf("Following log output (Ctrl+C to stop)\n\n")

	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			// Poll for appended data rather than watching the file.
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read log file: %w", err)
		}

		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}

		entry, err := logging.ParseEntry(text)
		if err != nil {
			// Not one of ours; show it raw.
			fmt.Println(text)
			continue
		}
		if filter.Matches(entry) && matchesGrep(entry, grep) {
			fmt.Println(renderEntry(entry))
		}
	}
}

func runLogsExport(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(args[0])

	cfg := config.Get()
	stateDir, err := resolveStateDir(cfg)
	if err != nil {
		return err
	}
	logPath := cfg.Logging.ResolveFile(stateDir)

	filter, grep, err := buildLogFilter()
	if err != nil {
		return err
	}

	entries, err := logging.AggregateLogs(logPath)
	if err != nil {
		return err
	}
	entries = logging.FilterLogs(entries, filter)

	if grep != nil {
		var matched []logging.LogEntry
		for _, entry := range entries {
			if matchesGrep(entry, grep) {
				matched = append(matched, entry)
			}
		}
		entries = matched
	}

	output := logsExportOutput
	if output == "" {
		ext := format
		if ext == "text" {
			ext = "txt"
		}
		output = "gauntlet-logs." + ext
	}

	if err := logging.ExportLogEntries(entries, output, format); err != nil {
		return err
	}

	fmt.Printf("Exported %d log entries to %s\n", len(entries), output)
	return nil
}
