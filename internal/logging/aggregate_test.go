package logging

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

// writeLog seeds a fresh log file with raw content and returns its path.
func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gauntlet.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to seed log file: %v", err)
	}
	return path
}

func TestAggregateLogs(t *testing.T) {
	t.Run("round-trips entries written by the logger", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "gauntlet.log")

		logger, err := NewLogger(logPath, LevelDebug)
		if err != nil {
			t.Fatalf("NewLogger: %v", err)
		}

		logger.WithRun("svc-api").WithStage("analysis").WithCapability("security_scan").Info("sub-task dispatched", "timeout", "30s")
		logger.WithRun("svc-api").WithStage("testing").Debug("phase started")
		logger.WithRun("svc-worker").Error("run failed", "reason", "boom")
		logger.Close()

		entries, err := AggregateLogs(logPath)
		if err != nil {
			t.Fatalf("AggregateLogs: %v", err)
		}
		if len(entries) != 3 {
			t.Fatalf("got %d entries, want 3", len(entries))
		}

		first := entries[0]
		if first.Level != "INFO" || first.Message != "sub-task dispatched" {
			t.Errorf("first entry = %s %q, want INFO %q", first.Level, first.Message, "sub-task dispatched")
		}
		if first.Subject != "svc-api" || first.Stage != "analysis" || first.Capability != "security_scan" {
			t.Errorf("context = %s/%s/%s, want svc-api/analysis/security_scan",
				first.Subject, first.Stage, first.Capability)
		}
		if first.Attrs["timeout"] != "30s" {
			t.Errorf("timeout attr = %v, want 30s", first.Attrs["timeout"])
		}
	})

	t.Run("missing log file", func(t *testing.T) {
		_, err := AggregateLogs(filepath.Join(t.TempDir(), "gauntlet.log"))
		if err == nil || !strings.Contains(err.Error(), "no log file") {
			t.Errorf("AggregateLogs() error = %v, want a 'no log file' error", err)
		}
	})

	t.Run("empty log file", func(t *testing.T) {
		entries, err := AggregateLogs(writeLog(t, ""))
		if err != nil {
			t.Fatalf("AggregateLogs: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("got %d entries, want 0", len(entries))
		}
	})

	t.Run("skips malformed lines", func(t *testing.T) {
		logPath := writeLog(t, `{"time":"2026-08-01T12:00:00Z","level":"INFO","msg":"valid"}
not json at all
{"time":"2026-08-01T12:00:01Z","level":"ERROR","msg":"also valid"}
`)
		entries, err := AggregateLogs(logPath)
		if err != nil {
			t.Fatalf("AggregateLogs: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("got %d entries, want the 2 parseable ones", len(entries))
		}
	})

	t.Run("orders entries by timestamp", func(t *testing.T) {
		logPath := writeLog(t, `{"time":"2026-08-01T12:00:02Z","level":"INFO","msg":"third"}
{"time":"2026-08-01T12:00:00Z","level":"INFO","msg":"first"}
{"time":"2026-08-01T12:00:01Z","level":"INFO","msg":"second"}
`)
		entries, err := AggregateLogs(logPath)
		if err != nil {
			t.Fatalf("AggregateLogs: %v", err)
		}

		var got []string
		for _, e := range entries {
			got = append(got, e.Message)
		}
		if want := []string{"first", "second", "third"}; !slices.Equal(got, want) {
			t.Errorf("order = %v, want %v", got, want)
		}
	})
}

func TestFilterLogs(t *testing.T) {
	now := time.Now()
	entries := []LogEntry{
		{Timestamp: now, Level: "DEBUG", Message: "registry scan", Subject: "svc-api", Stage: "initialization", Capability: "source_inventory"},
		{Timestamp: now.Add(time.Second), Level: "INFO", Message: "sub-task dispatched", Subject: "svc-api", Stage: "analysis", Capability: "security_scan"},
		{Timestamp: now.Add(2 * time.Second), Level: "WARN", Message: "sub-task retried", Subject: "svc-worker", Stage: "analysis", Capability: "security_scan"},
		{Timestamp: now.Add(3 * time.Second), Level: "ERROR", Message: "gate failed", Subject: "svc-worker", Stage: "quality_gates", Capability: "lint_gate"},
	}

	tests := []struct {
		name   string
		filter LogFilter
		want   []string
	}{
		{
			"empty filter keeps everything",
			LogFilter{},
			[]string{"registry scan", "sub-task dispatched", "sub-task retried", "gate failed"},
		},
		{
			"level keeps that severity and above",
			LogFilter{Level: "WARN"},
			[]string{"sub-task retried", "gate failed"},
		},
		{
			"level is case insensitive",
			LogFilter{Level: "warn"},
			[]string{"sub-task retried", "gate failed"},
		},
		{
			"time range brackets the middle entries",
			LogFilter{StartTime: now.Add(500 * time.Millisecond), EndTime: now.Add(2500 * time.Millisecond)},
			[]string{"sub-task dispatched", "sub-task retried"},
		},
		{
			"subject",
			LogFilter{Subject: "svc-worker"},
			[]string{"sub-task retried", "gate failed"},
		},
		{
			"stage",
			LogFilter{Stage: "analysis"},
			[]string{"sub-task dispatched", "sub-task retried"},
		},
		{
			"capability",
			LogFilter{Capability: "lint_gate"},
			[]string{"gate failed"},
		},
		{
			"message substring",
			LogFilter{MessageContains: "sub-task"},
			[]string{"sub-task dispatched", "sub-task retried"},
		},
		{
			"every condition must hold at once",
			LogFilter{Level: "INFO", Subject: "svc-worker"},
			[]string{"sub-task retried", "gate failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, e := range FilterLogs(entries, tt.filter) {
				got = append(got, e.Message)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("FilterLogs() kept %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExportLogs(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "gauntlet.log")

	logger, err := NewLogger(logPath, LevelDebug)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.WithRun("svc-api").WithStage("analysis").WithCapability("complexity_profile").Info("sub-task finished", "depth", "3")
	logger.WithRun("svc-api").Error("run failed", "code", 500)
	logger.Close()

	t.Run("json", func(t *testing.T) {
		outputPath := filepath.Join(t.TempDir(), "logs.json")
		if err := ExportLogs(logPath, outputPath, "json"); err != nil {
			t.Fatalf("ExportLogs: %v", err)
		}

		content, err := os.ReadFile(outputPath)
		if err != nil {
			t.Fatalf("read export: %v", err)
		}
		var exported []LogEntry
		if err := json.Unmarshal(content, &exported); err != nil {
			t.Fatalf("export is not a JSON array: %v", err)
		}
		if len(exported) != 2 {
			t.Errorf("exported %d entries, want 2", len(exported))
		}
	})

	t.Run("text", func(t *testing.T) {
		outputPath := filepath.Join(t.TempDir(), "logs.txt")
		if err := ExportLogs(logPath, outputPath, "text"); err != nil {
			t.Fatalf("ExportLogs: %v", err)
		}

		content, err := os.ReadFile(outputPath)
		if err != nil {
			t.Fatalf("read export: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(string(content)), "\n")
		if len(lines) != 2 {
			t.Fatalf("exported %d lines, want 2", len(lines))
		}
		for _, fragment := range []string{"INFO", "sub-task finished", "subject=svc-api"} {
			if !strings.Contains(lines[0], fragment) {
				t.Errorf("line %q missing %q", lines[0], fragment)
			}
		}
	})

	t.Run("csv", func(t *testing.T) {
		outputPath := filepath.Join(t.TempDir(), "logs.csv")
		if err := ExportLogs(logPath, outputPath, "csv"); err != nil {
			t.Fatalf("ExportLogs: %v", err)
		}

		file, err := os.Open(outputPath)
		if err != nil {
			t.Fatalf("open export: %v", err)
		}
		defer file.Close()

		records, err := csv.NewReader(file).ReadAll()
		if err != nil {
			t.Fatalf("parse CSV: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("got %d rows, want header plus 2 entries", len(records))
		}
		wantHeader := []string{"timestamp", "level", "message", "subject", "stage", "capability", "attrs"}
		if !slices.Equal(records[0], wantHeader) {
			t.Errorf("header = %v, want %v", records[0], wantHeader)
		}
	})

	t.Run("unsupported format", func(t *testing.T) {
		err := ExportLogs(logPath, filepath.Join(t.TempDir(), "logs.xml"), "xml")
		if err == nil || !strings.Contains(err.Error(), "unsupported export format") {
			t.Errorf("ExportLogs(xml) error = %v, want unsupported format", err)
		}
	})

	t.Run("format name is case insensitive", func(t *testing.T) {
		if err := ExportLogs(logPath, filepath.Join(t.TempDir(), "logs.json"), "JSON"); err != nil {
			t.Errorf("ExportLogs(JSON) = %v", err)
		}
	})
}

func TestExportLogEntries(t *testing.T) {
	entries := []LogEntry{{
		Timestamp:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Level:      "INFO",
		Message:    "report written",
		Subject:    "svc-api",
		Stage:      "deployment_prep",
		Capability: "readiness_report",
		Attrs:      map[string]any{"artifacts": "4"},
	}}

	outputPath := filepath.Join(t.TempDir(), "filtered.json")
	if err := ExportLogEntries(entries, outputPath, "json"); err != nil {
		t.Fatalf("ExportLogEntries: %v", err)
	}

	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var exported []LogEntry
	if err := json.Unmarshal(content, &exported); err != nil {
		t.Fatalf("export is not a JSON array: %v", err)
	}
	if len(exported) != 1 || exported[0].Message != "report written" {
		t.Errorf("exported = %+v, want the one seeded entry", exported)
	}
}

func TestParseEntry(t *testing.T) {
	t.Run("maps the well-known fields", func(t *testing.T) {
		line := `{"time":"2026-08-01T12:00:00.123456789Z","level":"INFO","msg":"phase started","subject":"svc-api","stage":"testing","capability":"test_generation"}`

		entry, err := ParseEntry(line)
		if err != nil {
			t.Fatalf("ParseEntry: %v", err)
		}

		checks := map[string][2]string{
			"level":      {entry.Level, "INFO"},
			"message":    {entry.Message, "phase started"},
			"subject":    {entry.Subject, "svc-api"},
			"stage":      {entry.Stage, "testing"},
			"capability": {entry.Capability, "test_generation"},
		}
		for field, pair := range checks {
			if pair[0] != pair[1] {
				t.Errorf("%s = %q, want %q", field, pair[0], pair[1])
			}
		}
	})

	t.Run("keeps unknown fields as attrs", func(t *testing.T) {
		entry, err := ParseEntry(`{"time":"2026-08-01T12:00:00Z","level":"INFO","msg":"phase started","branch":"main","count":42}`)
		if err != nil {
			t.Fatalf("ParseEntry: %v", err)
		}
		if entry.Attrs["branch"] != "main" {
			t.Errorf("attrs[branch] = %v, want main", entry.Attrs["branch"])
		}
		if entry.Attrs["count"] != float64(42) {
			t.Errorf("attrs[count] = %v, want 42", entry.Attrs["count"])
		}
	})

	t.Run("rejects non-JSON lines", func(t *testing.T) {
		if _, err := ParseEntry("not json"); err == nil {
			t.Error("ParseEntry accepted a non-JSON line")
		}
	})
}
