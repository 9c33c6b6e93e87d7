// Package logfile owns the activity log: one append-only file per calendar
// day, every line mirrored to a console stream.
package logfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MRamiBalles/bedrock-chatlog/internal/platform/logger"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
	fileSuffix = ".log"
)

// FS is the slice of the file system the writer needs.
type FS interface {
	MkdirAll(path string) error
	OpenAppend(path string) (io.WriteCloser, error)
}

// OSFS is the real file system.
type OSFS struct{}

func (OSFS) MkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

func (OSFS) OpenAppend(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// Config describes where log files go.
type Config struct {
	Dir     string
	Prefix  string
	Console io.Writer        // defaults to os.Stdout
	Clock   func() time.Time // defaults to time.Now
	FS      FS               // defaults to OSFS
}

// Writer appends timestamped lines to <Dir>/<Prefix><YYYY-MM-DD>.log.
//
// The day is checked on every write; when it changes the current file is
// closed and the next one opened in append mode, so a restart later the same
// day continues the same file.
type Writer struct {
	mu      sync.Mutex
	dir     string
	prefix  string
	console io.Writer
	clock   func() time.Time
	fs      FS
	logger  *logger.Logger

	dateStamp string
	path      string
	file      io.WriteCloser
	dirReady  bool
	closed    bool
}

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("logfile: writer closed")

// NewWriter creates a writer. No file is opened until the first write.
func NewWriter(cfg Config, log *logger.Logger) *Writer {
	w := &Writer{
		dir:     cfg.Dir,
		prefix:  cfg.Prefix,
		console: cfg.Console,
		clock:   cfg.Clock,
		fs:      cfg.FS,
		logger:  log,
	}
	if w.console == nil {
		w.console = os.Stdout
	}
	if w.clock == nil {
		w.clock = time.Now
	}
	if w.fs == nil {
		w.fs = OSFS{}
	}
	return w
}

// Append writes "(HH:MM:SS) line" to the console and the current day's file.
func (w *Writer) Append(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock()
	if err := w.rotate(now); err != nil {
		return err
	}

	entry := "(" + now.Format(timeLayout) + ") " + line + "\n"
	if _, err := io.WriteString(w.console, entry); err != nil {
		w.logger.Warnf("console mirror failed: %v", err)
	}
	if _, err := io.WriteString(w.file, entry); err != nil {
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	return nil
}

// AppendRaw writes data as its own line to the file only, without a timestamp.
func (w *Writer) AppendRaw(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotate(w.clock()); err != nil {
		return err
	}
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, data...)
	buf = append(buf, '\n')
	if _, err := w.file.Write(buf); err != nil {
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	return nil
}

// Path returns the file currently open, or "" before the first write.
func (w *Writer) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

// Close closes the open file. It is safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.closeFile()
}

// rotate makes sure the open file matches the date of now.
func (w *Writer) rotate(now time.Time) error {
	if w.closed {
		return ErrClosed
	}
	stamp := now.Format(dateLayout)
	if w.file != nil && stamp == w.dateStamp {
		return nil
	}

	if err := w.closeFile(); err != nil {
		return err
	}
	if !w.dirReady {
		if err := w.fs.MkdirAll(w.dir); err != nil {
			return fmt.Errorf("create log directory %s: %w", w.dir, err)
		}
		w.dirReady = true
		w.logger.Infof("Log directory ready: %s", w.dir)
	}

	path := filepath.Join(w.dir, w.prefix+stamp+fileSuffix)
	file, err := w.fs.OpenAppend(path)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", path, err)
	}
	w.file = file
	w.path = path
	w.dateStamp = stamp
	w.logger.Infof("Logging to %s", path)
	return nil
}

func (w *Writer) closeFile() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	if err != nil {
		return fmt.Errorf("close %s: %w", w.path, err)
	}
	return nil
}
