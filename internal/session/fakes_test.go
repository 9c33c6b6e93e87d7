package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MRamiBalles/bedrock-chatlog/internal/events"
)

type fakeSession struct {
	mu            sync.Mutex
	ch            chan events.Event
	sent          []string
	disconnects   int
	closes        int
	sendErr       error
	disconnectErr error
	panicOnClose  bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{ch: make(chan events.Event, 32)}
}

func (s *fakeSession) Events() <-chan events.Event { return s.ch }

func (s *fakeSession) Send(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, cmd)
	return nil
}

func (s *fakeSession) Disconnect(string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
	return s.disconnectErr
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closes++
	panicky := s.panicOnClose
	s.mu.Unlock()
	if panicky {
		panic("close exploded")
	}
	return nil
}

func (s *fakeSession) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

type fakeDialer struct {
	mu       sync.Mutex
	sessions []*fakeSession
	opts     []events.Options
	// prepare, when set, customises each new session before it is returned.
	prepare func(*fakeSession)
}

func (d *fakeDialer) Open(_ context.Context, opts events.Options) events.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := newFakeSession()
	if d.prepare != nil {
		d.prepare(s)
	}
	d.sessions = append(d.sessions, s)
	d.opts = append(d.opts, opts)
	return s
}

func (d *fakeDialer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

func (d *fakeDialer) Last() *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[len(d.sessions)-1]
}

type fakeWriter struct {
	mu       sync.Mutex
	lines    []string
	raw      []string
	closed   int
	appendFn func(string) error
}

func (w *fakeWriter) Append(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.appendFn != nil {
		if err := w.appendFn(line); err != nil {
			return err
		}
	}
	w.lines = append(w.lines, line)
	return nil
}

func (w *fakeWriter) AppendRaw(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.raw = append(w.raw, string(data))
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed++
	return nil
}

func (w *fakeWriter) Lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.lines...)
}

type scheduled struct {
	delay time.Duration
	fn    func()
}

// manualScheduler records timers; tests fire them explicitly.
type manualScheduler struct {
	mu     sync.Mutex
	timers []scheduled
}

func (m *manualScheduler) After(d time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers = append(m.timers, scheduled{delay: d, fn: fn})
}

func (m *manualScheduler) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *manualScheduler) At(i int) scheduled {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timers[i]
}

type fakeArchive struct {
	records []events.ArchivedRecord
	err     error
	closed  bool
}

func (a *fakeArchive) Append(_ context.Context, rec events.ArchivedRecord) error {
	if a.err != nil {
		return a.err
	}
	a.records = append(a.records, rec)
	return nil
}

func (a *fakeArchive) Close() error {
	a.closed = true
	return errors.New("archive already closed")
}
