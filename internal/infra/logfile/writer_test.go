package logfile

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/bedrock-chatlog/internal/platform/logger"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

// countingFS wraps the real file system and records opens and closes.
type countingFS struct {
	OSFS
	opened []string
	closed []string
	mkdirs int
}

type trackedFile struct {
	io.WriteCloser
	fs   *countingFS
	path string
}

func (f *trackedFile) Close() error {
	f.fs.closed = append(f.fs.closed, f.path)
	return f.WriteCloser.Close()
}

func (c *countingFS) MkdirAll(path string) error {
	c.mkdirs++
	return c.OSFS.MkdirAll(path)
}

func (c *countingFS) OpenAppend(path string) (io.WriteCloser, error) {
	f, err := c.OSFS.OpenAppend(path)
	if err != nil {
		return nil, err
	}
	c.opened = append(c.opened, path)
	return &trackedFile{WriteCloser: f, fs: c, path: path}, nil
}

func newTestWriter(t *testing.T, clock *fakeClock, fs FS) (*Writer, string, *bytes.Buffer) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "logs")
	console := &bytes.Buffer{}
	w := NewWriter(Config{
		Dir:     dir,
		Prefix:  "chat-",
		Console: console,
		Clock:   clock.Now,
		FS:      fs,
	}, logger.Discard())
	t.Cleanup(func() { _ = w.Close() })
	return w, dir, console
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestAppendSameDayReusesFile(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)}
	fs := &countingFS{}
	w, dir, console := newTestWriter(t, clock, fs)

	require.NoError(t, w.Append("[Alice] Hello"))
	clock.now = clock.now.Add(3 * time.Hour)
	require.NoError(t, w.Append("[Bob] Hi"))

	path := filepath.Join(dir, "chat-2024-05-01.log")
	assert.Equal(t, path, w.Path())
	assert.Equal(t, []string{path}, fs.opened)
	assert.Empty(t, fs.closed)
	assert.Equal(t, 1, fs.mkdirs)

	assert.Equal(t, []string{"(10:00:00) [Alice] Hello", "(13:00:00) [Bob] Hi"}, readLines(t, path))
	assert.Equal(t, "(10:00:00) [Alice] Hello\n(13:00:00) [Bob] Hi\n", console.String())
}

func TestAppendRotatesOnDateChange(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 23, 59, 58, 0, time.Local)}
	fs := &countingFS{}
	w, dir, _ := newTestWriter(t, clock, fs)

	require.NoError(t, w.Append("before midnight"))
	clock.now = clock.now.Add(4 * time.Second)
	require.NoError(t, w.Append("after midnight"))

	first := filepath.Join(dir, "chat-2024-05-01.log")
	second := filepath.Join(dir, "chat-2024-05-02.log")
	assert.Equal(t, []string{first, second}, fs.opened)
	assert.Equal(t, []string{first}, fs.closed, "previous day must be closed before the next opens")
	assert.Equal(t, 1, fs.mkdirs)

	assert.Equal(t, []string{"(23:59:58) before midnight"}, readLines(t, first))
	assert.Equal(t, []string{"(00:00:02) after midnight"}, readLines(t, second))
}

func TestAppendKeepsExistingContent(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.Local)}
	w, dir, _ := newTestWriter(t, clock, nil)

	require.NoError(t, w.Append("first run"))
	require.NoError(t, w.Close())

	// A restart on the same day appends to the same file.
	w2 := NewWriter(Config{Dir: dir, Prefix: "chat-", Console: io.Discard, Clock: clock.Now}, logger.Discard())
	defer w2.Close()
	require.NoError(t, w2.Append("second run"))

	lines := readLines(t, filepath.Join(dir, "chat-2024-05-01.log"))
	assert.Equal(t, []string{"(08:00:00) first run", "(08:00:00) second run"}, lines)
}

func TestAppendRawSkipsConsoleAndTimestamp(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.Local)}
	w, dir, console := newTestWriter(t, clock, nil)

	require.NoError(t, w.AppendRaw([]byte(`{"type":"chat"}`)))
	require.NoError(t, w.Append("[Alice] Hello"))

	lines := readLines(t, filepath.Join(dir, "chat-2024-05-01.log"))
	assert.Equal(t, []string{`{"type":"chat"}`, "(08:00:00) [Alice] Hello"}, lines)
	assert.Equal(t, "(08:00:00) [Alice] Hello\n", console.String())
}

type brokenFS struct{ OSFS }

func (brokenFS) OpenAppend(string) (io.WriteCloser, error) {
	return nil, os.ErrPermission
}

func TestAppendPropagatesFileErrors(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.Local)}
	w, _, _ := newTestWriter(t, clock, brokenFS{})

	err := w.Append("lost?")
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrPermission))
}

func TestWriteAfterCloseFails(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.Local)}
	w, _, _ := newTestWriter(t, clock, nil)

	require.NoError(t, w.Append("hello"))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Append("late"), ErrClosed)
}
