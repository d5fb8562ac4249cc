package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// RotationConfig controls size-based rotation of the run log.
type RotationConfig struct {
	// MaxSizeMB is the file size in megabytes that triggers rotation.
	// Zero disables rotation.
	MaxSizeMB int

	// MaxBackups is how many rotated files to keep. Zero keeps none.
	MaxBackups int

	// Compress gzips rotated files.
	Compress bool
}

// DefaultRotationConfig returns the rotation settings NewLogger uses.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSizeMB:  10,
		MaxBackups: 3,
	}
}

// RotatingWriter appends to a file and rotates it when it grows past
// the configured size. Rotated files are named <path>.1 through
// <path>.N, newest first. It is safe for concurrent use.
type RotatingWriter struct {
	mu sync.Mutex

	filePath   string
	maxSizeB   int64
	maxBackups int
	compress   bool

	file        *os.File
	currentSize int64
}

// NewRotatingWriter opens the file for appending, creating parent
// directories as needed. With MaxSizeMB zero it never rotates and
// behaves like a plain file writer.
func NewRotatingWriter(filePath string, config RotationConfig) (*RotatingWriter, error) {
	rw := &RotatingWriter{
		filePath:   filePath,
		maxSizeB:   int64(config.MaxSizeMB) * 1024 * 1024,
		maxBackups: config.MaxBackups,
		compress:   config.Compress,
	}
	if err := rw.openFile(); err != nil {
		return nil, err
	}
	return rw, nil
}

// openFile opens the log file for appending and records its size. The
// caller must hold the mutex.
func (rw *RotatingWriter) openFile() error {
	if err := os.MkdirAll(filepath.Dir(rw.filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(rw.filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	// In append mode the end offset is the current size.
	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to seek log file: %w", err)
	}

	rw.file = file
	rw.currentSize = size
	return nil
}

// Write implements io.Writer, rotating first when the write would push
// the file past the size limit.
func (rw *RotatingWriter) Write(p []byte) (n int, err error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return 0, fmt.Errorf("log file is closed")
	}

	wouldGrow := rw.currentSize + int64(len(p))
	if rw.maxSizeB > 0 && wouldGrow > rw.maxSizeB {
		if err := rw.rotate(); err != nil {
			// Keep writing to the current file rather than dropping
			// entries; tell the operator rotation is broken.
			fmt.Fprintf(os.Stderr, "Warning: could not rotate log file: %v\n", err)
		}
	}

	n, err = rw.file.Write(p)
	rw.currentSize += int64(n)
	return n, err
}

// closeLive syncs and closes the live file. The caller must hold the
// mutex and have checked rw.file is open.
func (rw *RotatingWriter) closeLive() error {
	if err := rw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	err := rw.file.Close()
	rw.file = nil
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// rotate shifts backups, moves the live file to .1, and reopens a fresh
// file. The caller must hold the mutex.
func (rw *RotatingWriter) rotate() error {
	if err := rw.closeLive(); err != nil {
		return err
	}

	rw.shiftBackups()

	first := rw.backupPath(1)
	if err := os.Rename(rw.filePath, first); err != nil {
		if openErr := rw.openFile(); openErr != nil {
			return fmt.Errorf("failed to rename log file and reopen: %w", openErr)
		}
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	if rw.compress {
		go compressBackup(first)
	}
	return rw.openFile()
}

// shiftBackups renumbers existing backups up by one, dropping the
// oldest once MaxBackups is reached.
func (rw *RotatingWriter) shiftBackups() {
	if rw.maxBackups <= 0 {
		removeBackup(rw.backupPath(1))
		return
	}
	removeBackup(rw.backupPath(rw.maxBackups))

	for i := rw.maxBackups - 1; i >= 1; i-- {
		renameBackup(rw.backupPath(i), rw.backupPath(i+1))
	}
}

func (rw *RotatingWriter) backupPath(n int) string {
	return fmt.Sprintf("%s.%d", rw.filePath, n)
}

// removeBackup deletes a backup slot in whichever form it exists.
func removeBackup(path string) {
	os.Remove(path)
	os.Remove(path + ".gz")
}

// renameBackup moves one backup slot. A backup may exist compressed or
// plain, depending on when compression last ran.
func renameBackup(oldPath, newPath string) {
	if _, err := os.Stat(oldPath + ".gz"); err == nil {
		os.Rename(oldPath+".gz", newPath+".gz")
		return
	}
	if _, err := os.Stat(oldPath); err == nil {
		os.Rename(oldPath, newPath)
	}
}

// compressBackup gzips a rotated file and removes the original. It runs
// asynchronously, so failures go to stderr and leave the plain file in
// place.
func compressBackup(path string) {
	if err := gzipFile(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not compress rotated log %s: %v\n", path, err)
		return
	}
	// Only remove the original once the compressed copy is complete.
	os.Remove(path)
}

// gzipFile writes path.gz next to path, removing a partial .gz on error.
func gzipFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	gzPath := path + ".gz"
	dst, err := os.Create(gzPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		os.Remove(gzPath)
		return err
	}
	if err := gz.Close(); err != nil {
		os.Remove(gzPath)
		return err
	}
	return nil
}

// Sync flushes buffered data to the underlying file.
func (rw *RotatingWriter) Sync() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return nil
	}
	return rw.file.Sync()
}

// Close syncs and closes the underlying file. Further writes fail.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return nil
	}
	return rw.closeLive()
}

// CurrentSize returns the size of the live log file in bytes.
func (rw *RotatingWriter) CurrentSize() int64 {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.currentSize
}
