package logging

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"
)

// LogEntry is one parsed line of the run log with its structured
// fields broken out.
type LogEntry struct {
	Timestamp  time.Time      `json:"time"`
	Level      string         `json:"level"`
	Message    string         `json:"msg"`
	Subject    string         `json:"subject,omitempty"`
	Stage      string         `json:"stage,omitempty"`
	Capability string         `json:"capability,omitempty"`
	Attrs      map[string]any `json:"attrs,omitempty"`
}

// LogFilter selects log entries. Criteria combine with AND; zero
// values mean "no filtering on this field".
type LogFilter struct {
	// Level keeps entries at or above this level
	// (DEBUG < INFO < WARN < ERROR).
	Level string

	// StartTime keeps entries at or after this time.
	StartTime time.Time

	// EndTime keeps entries at or before this time.
	EndTime time.Time

	// Subject keeps entries for this subject ID.
	Subject string

	// Stage keeps entries from this pipeline stage.
	Stage string

	// Capability keeps entries from this capability.
	Capability string

	// MessageContains keeps entries whose message contains this
	// substring.
	MessageContains string
}

// levelRank positions a level name on the DEBUG..ERROR scale,
// case-insensitively, returning -1 for anything unknown.
func levelRank(level string) int {
	return slices.Index(ValidLevels(), strings.ToUpper(level))
}

// AggregateLogs reads and parses every entry of the JSON log at the
// given path. Unparseable lines are skipped so a partially corrupted
// log still yields its intact entries. Entries come back sorted by
// timestamp ascending.
func AggregateLogs(logPath string) ([]LogEntry, error) {
	file, err := os.Open(logPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("no log file at %s: %w", logPath, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// Entries carrying payload attrs can be long.
	const maxLineBytes = 1024 * 1024
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, maxLineBytes), maxLineBytes)

	var entries []LogEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := ParseEntry(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan log file: %w", err)
	}

	slices.SortFunc(entries, func(a, b LogEntry) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return entries, nil
}

// ParseEntry parses one JSON log line, splitting the logger's
// well-known fields from free-form attrs. The logs command uses it to
// decode lines one at a time in follow mode.
func ParseEntry(line string) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{}, fmt.Errorf("not a JSON log line: %w", err)
	}

	str := func(key string) string {
		s, _ := raw[key].(string)
		return s
	}

	entry := LogEntry{
		Level:      str("level"),
		Message:    str("msg"),
		Subject:    str("subject"),
		Stage:      str("stage"),
		Capability: str("capability"),
		Attrs:      make(map[string]any),
	}
	if t, err := time.Parse(time.RFC3339Nano, str("time")); err == nil {
		entry.Timestamp = t
	}

	for k, v := range raw {
		switch k {
		case "time", "level", "msg", "subject", "stage", "capability":
		default:
			entry.Attrs[k] = v
		}
	}

	return entry, nil
}

// FilterLogs returns the entries matching the filter.
func FilterLogs(entries []LogEntry, filter LogFilter) []LogEntry {
	if filter.isEmpty() {
		return entries
	}

	var filtered []LogEntry
	for _, entry := range entries {
		if filter.Matches(entry) {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

func (f LogFilter) isEmpty() bool {
	return f.Level == "" &&
		f.StartTime.IsZero() &&
		f.EndTime.IsZero() &&
		f.Subject == "" &&
		f.Stage == "" &&
		f.Capability == "" &&
		f.MessageContains == ""
}

// Matches reports whether a single entry satisfies every criterion of
// the filter.
func (f LogFilter) Matches(entry LogEntry) bool {
	if f.Level != "" {
		want := levelRank(f.Level)
		have := levelRank(entry.Level)
		if want >= 0 && have >= 0 && have < want {
			return false
		}
	}

	if !f.StartTime.IsZero() && entry.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && entry.Timestamp.After(f.EndTime) {
		return false
	}

	if f.Subject != "" && entry.Subject != f.Subject {
		return false
	}
	if f.Stage != "" && entry.Stage != f.Stage {
		return false
	}
	if f.Capability != "" && entry.Capability != f.Capability {
		return false
	}

	if f.MessageContains != "" && !strings.Contains(entry.Message, f.MessageContains) {
		return false
	}

	return true
}

// ExportLogs aggregates the log at logPath and writes every entry to
// outputPath in the given format. Supported formats: "json", "text",
// "csv".
func ExportLogs(logPath, outputPath string, format string) error {
	entries, err := AggregateLogs(logPath)
	if err != nil {
		return fmt.Errorf("failed to aggregate logs: %w", err)
	}
	return ExportLogEntries(entries, outputPath, format)
}

// ExportLogEntries writes the given entries to outputPath in the given
// format, for exporting an already-filtered selection. Supported
// formats: "json", "text", "csv". The format is checked before the
// output file is created so a bad format leaves nothing behind.
func ExportLogEntries(entries []LogEntry, outputPath string, format string) error {
	var write func(io.Writer, []LogEntry) error
	switch strings.ToLower(format) {
	case "json":
		write = exportJSON
	case "text":
		write = exportText
	case "csv":
		write = exportCSV
	default:
		return fmt.Errorf("unsupported export format: %s (supported: json, text, csv)", format)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return write(file, entries)
}

// exportJSON writes entries as an indented JSON array.
func exportJSON(w io.Writer, entries []LogEntry) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(entries)
}

// exportText writes entries as [TIMESTAMP] LEVEL - MESSAGE (context) {attrs}.
func exportText(w io.Writer, entries []LogEntry) error {
	for _, entry := range entries {
		parts := []string{
			"[" + entry.Timestamp.Format("2006-01-02 15:04:05.000") + "]",
			entry.Level,
			"-",
			entry.Message,
		}

		var context []string
		if entry.Subject != "" {
			context = append(context, "subject="+entry.Subject)
		}
		if entry.Stage != "" {
			context = append(context, "stage="+entry.Stage)
		}
		if entry.Capability != "" {
			context = append(context, "capability="+entry.Capability)
		}
		if len(context) > 0 {
			parts = append(parts, "("+strings.Join(context, ", ")+")")
		}

		if attrs := marshalAttrs(entry.Attrs); attrs != "" {
			parts = append(parts, attrs)
		}

		if _, err := fmt.Fprintln(w, strings.Join(parts, " ")); err != nil {
			return fmt.Errorf("failed to write text entry: %w", err)
		}
	}
	return nil
}

// marshalAttrs renders free-form attrs as compact JSON, empty when
// there are none.
func marshalAttrs(attrs map[string]any) string {
	if len(attrs) == 0 {
		return ""
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return ""
	}
	return string(b)
}

// exportCSV writes entries as CSV with a header row.
func exportCSV(w io.Writer, entries []LogEntry) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	headers := []string{"timestamp", "level", "message", "subject", "stage", "capability", "attrs"}
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, entry := range entries {
		record := []string{
			entry.Timestamp.Format(time.RFC3339Nano),
			entry.Level,
			entry.Message,
			entry.Subject,
			entry.Stage,
			entry.Capability,
			marshalAttrs(entry.Attrs),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	return nil
}
