package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// newTestWriter builds a writer with a byte-level rotation threshold,
// which RotationConfig cannot express (MB granularity is too coarse for
// tests). maxBytes zero disables rotation.
func newTestWriter(t *testing.T, maxBytes int64, backups int, compress bool) (*RotatingWriter, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "gauntlet.log")
	rw, err := NewRotatingWriter(logPath, RotationConfig{MaxBackups: backups, Compress: compress})
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	rw.maxSizeB = maxBytes
	return rw, logPath
}

func TestNewRotatingWriter(t *testing.T) {
	t.Run("creates the log file", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "gauntlet.log")

		rw, err := NewRotatingWriter(logPath, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter: %v", err)
		}
		defer rw.Close()

		if _, err := os.Stat(logPath); err != nil {
			t.Errorf("stat log file: %v", err)
		}
	})

	t.Run("creates missing parent directories", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "state", "logs", "gauntlet.log")

		rw, err := NewRotatingWriter(logPath, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter: %v", err)
		}
		defer rw.Close()

		if _, err := os.Stat(logPath); err != nil {
			t.Errorf("stat log file: %v", err)
		}
	})

	t.Run("appends to an existing file", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "gauntlet.log")
		if err := os.WriteFile(logPath, []byte("earlier run\n"), 0o644); err != nil {
			t.Fatalf("failed to seed log file: %v", err)
		}

		rw, err := NewRotatingWriter(logPath, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter: %v", err)
		}
		if _, err := rw.Write([]byte("later run\n")); err != nil {
			t.Fatalf("Write: %v", err)
		}
		rw.Close()

		content, err := os.ReadFile(logPath)
		if err != nil {
			t.Fatalf("read log file: %v", err)
		}
		if got, want := string(content), "earlier run\nlater run\n"; got != want {
			t.Errorf("file content = %q, want %q", got, want)
		}
	})
}

func TestRotatingWriterWrite(t *testing.T) {
	t.Run("writes data through to the file", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "gauntlet.log")

		rw, err := NewRotatingWriter(logPath, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter: %v", err)
		}

		line := []byte("capability security_scan completed\n")
		n, err := rw.Write(line)
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		if n != len(line) {
			t.Errorf("Write() = %d bytes, want %d", n, len(line))
		}
		rw.Close()

		content, err := os.ReadFile(logPath)
		if err != nil {
			t.Fatalf("read log file: %v", err)
		}
		if string(content) != string(line) {
			t.Errorf("file content = %q, want %q", content, line)
		}
	})

	t.Run("tracks the current size", func(t *testing.T) {
		rw, _ := newTestWriter(t, 0, 3, false)
		defer rw.Close()

		if got := rw.CurrentSize(); got != 0 {
			t.Errorf("initial CurrentSize() = %d, want 0", got)
		}

		line := []byte("capability security_scan completed\n")
		rw.Write(line)

		if got := rw.CurrentSize(); got != int64(len(line)) {
			t.Errorf("CurrentSize() = %d, want %d", got, len(line))
		}
	})
}

func TestRotatingWriterRotation(t *testing.T) {
	t.Run("rotates when a write would exceed the limit", func(t *testing.T) {
		rw, logPath := newTestWriter(t, 100, 3, false)

		for i := 0; i < 5; i++ {
			rw.Write([]byte("phase analysis subtask security_scan completed without findings\n"))
		}
		rw.Close()

		if _, err := os.Stat(logPath + ".1"); err != nil {
			t.Error("backup file .1 was not created")
		}
		if _, err := os.Stat(logPath); err != nil {
			t.Error("live log file missing after rotation")
		}
	})

	t.Run("keeps only maxBackups files", func(t *testing.T) {
		rw, logPath := newTestWriter(t, 50, 2, false)

		for i := 0; i < 10; i++ {
			rw.Write([]byte("subtask lint_gate retried\n"))
		}
		rw.Close()

		for _, suffix := range []string{".1", ".2"} {
			if _, err := os.Stat(logPath + suffix); err != nil {
				t.Errorf("backup file %s should exist", suffix)
			}
		}
		if _, err := os.Stat(logPath + ".3"); err == nil {
			t.Error("backup file .3 should have been dropped")
		}
	})

	t.Run("never rotates when the size limit is zero", func(t *testing.T) {
		rw, logPath := newTestWriter(t, 0, 3, false)

		for i := 0; i < 100; i++ {
			rw.Write([]byte("a line that would roll the file if rotation were enabled\n"))
		}
		rw.Close()

		if _, err := os.Stat(logPath + ".1"); err == nil {
			t.Error("backup file exists with rotation disabled")
		}
	})
}

func TestRotatingWriterCompression(t *testing.T) {
	rw, logPath := newTestWriter(t, 50, 3, true)

	// Two writes force exactly one rotation, so at most one compression
	// goroutine is in flight.
	for i := 0; i < 2; i++ {
		rw.Write([]byte("quality_gates vulnerability sweep\n"))
	}
	rw.Close()

	// Compression runs off the write path.
	time.Sleep(200 * time.Millisecond)

	gzPath := logPath + ".1.gz"
	if _, err := os.Stat(gzPath); err != nil {
		// The plain backup may still be present if the compressor has
		// not finished yet.
		if _, err := os.Stat(logPath + ".1"); err != nil {
			t.Error("neither compressed nor plain backup exists")
		}
		return
	}

	gzFile, err := os.Open(gzPath)
	if err != nil {
		t.Fatalf("open gzip file: %v", err)
	}
	defer gzFile.Close()

	gzReader, err := gzip.NewReader(gzFile)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer gzReader.Close()

	content, err := io.ReadAll(gzReader)
	if err != nil {
		t.Fatalf("read gzip content: %v", err)
	}
	if !strings.Contains(string(content), "vulnerability sweep") {
		t.Errorf("decompressed content = %q, want the rotated line", content)
	}
}

func TestRotatingWriterConcurrency(t *testing.T) {
	// Large enough that rotation happens a handful of times rather than
	// on every write.
	rw, logPath := newTestWriter(t, 2000, 100, false)

	const (
		goroutines = 10
		writesEach = 50
	)

	var wg sync.WaitGroup
	for id := 0; id < goroutines; id++ {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < writesEach; j++ {
				if _, err := rw.Write([]byte("concurrent write from a run goroutine\n")); err != nil {
					t.Errorf("goroutine %d write %d: %v", id, j, err)
				}
			}
		}()
	}
	wg.Wait()
	rw.Close()

	// Every line must land somewhere: the live file or one of the backups.
	total := 0
	if content, err := os.ReadFile(logPath); err == nil {
		total += strings.Count(string(content), "\n")
	}
	for i := 1; i <= 100; i++ {
		if content, err := os.ReadFile(fmt.Sprintf("%s.%d", logPath, i)); err == nil {
			total += strings.Count(string(content), "\n")
		}
	}

	if want := goroutines * writesEach; total < want {
		t.Errorf("found %d lines across all files, want at least %d", total, want)
	}
}

func TestRotatingWriterClose(t *testing.T) {
	rw, _ := newTestWriter(t, 0, 3, false)
	rw.Write([]byte("run finished\n"))

	if err := rw.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil no-op", err)
	}
	if _, err := rw.Write([]byte("too late\n")); err == nil {
		t.Error("Write after Close succeeded")
	}
}

func TestRotatingWriterSync(t *testing.T) {
	rw, logPath := newTestWriter(t, 0, 3, false)
	defer rw.Close()

	rw.Write([]byte("capability deploy_manifest completed\n"))
	if err := rw.Sync(); err != nil {
		t.Errorf("Sync() = %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "deploy_manifest") {
		t.Error("content was not flushed to disk")
	}
}

func TestDefaultRotationConfig(t *testing.T) {
	got := DefaultRotationConfig()
	want := RotationConfig{MaxSizeMB: 10, MaxBackups: 3, Compress: false}
	if got != want {
		t.Errorf("DefaultRotationConfig() = %+v, want %+v", got, want)
	}
}

func TestNewLoggerWithRotation(t *testing.T) {
	t.Run("creates a logger backed by a rotating file", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "gauntlet.log")

		logger, err := NewLoggerWithRotation(logPath, LevelDebug, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewLoggerWithRotation: %v", err)
		}
		defer logger.Close()

		if _, err := os.Stat(logPath); err != nil {
			t.Errorf("stat log file: %v", err)
		}
	})

	t.Run("writes JSON entries to the file", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "gauntlet.log")

		logger, err := NewLoggerWithRotation(logPath, LevelDebug, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewLoggerWithRotation: %v", err)
		}
		logger.Info("run accepted", "subject", "svc-api")
		logger.Close()

		entries := readEntries(t, logPath)
		if len(entries) != 1 {
			t.Fatalf("got %d entries, want 1", len(entries))
		}
		if entries[0]["msg"] != "run accepted" || entries[0]["subject"] != "svc-api" {
			t.Errorf("entry = %v, want msg %q with subject svc-api", entries[0], "run accepted")
		}
	})

	t.Run("falls back to stderr when the path is empty", func(t *testing.T) {
		logger, err := NewLoggerWithRotation("", LevelInfo, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewLoggerWithRotation: %v", err)
		}
		defer logger.Close()

		if logger.file != nil {
			t.Error("logger.file should be nil for the stderr logger")
		}
	})

	t.Run("rotates once the file grows past the limit", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "gauntlet.log")

		logger, err := NewLoggerWithRotation(logPath, LevelDebug, RotationConfig{MaxBackups: 3})
		if err != nil {
			t.Fatalf("NewLoggerWithRotation: %v", err)
		}
		logger.file.maxSizeB = 200

		for i := 0; i < 10; i++ {
			logger.Info("pipeline heartbeat with enough payload to roll the file", "iteration", i)
		}
		logger.Close()

		if _, err := os.Stat(logPath + ".1"); err != nil {
			t.Error("backup file was not created after rotation")
		}
	})

	t.Run("child loggers share the rotating writer", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "gauntlet.log")

		logger, err := NewLoggerWithRotation(logPath, LevelDebug, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewLoggerWithRotation: %v", err)
		}
		defer logger.Close()

		child := logger.WithRun("svc-api").WithStage("analysis")
		if child.file != logger.file {
			t.Error("child logger should share the parent's rotating writer")
		}
	})
}
