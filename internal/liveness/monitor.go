// Package liveness watches for an external request to shut the logger down.
//
// The Monitor is the only component that initiates termination. It polls a
// Trigger and, once the trigger is pending, acknowledges it and hands off to
// the session controller's stop path.
package liveness

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/MRamiBalles/bedrock-chatlog/internal/platform/logger"
)

// PollInterval is how often the trigger is checked.
const PollInterval = 1 * time.Second

// DefaultStopFile is the sentinel looked up in the working directory.
const DefaultStopFile = "chatlog.stop"

// Trigger is an external stop-request indicator.
type Trigger interface {
	Pending() (bool, error)
	// Ack clears the request so it does not fire again on the next run.
	Ack() error
}

// FileTrigger is pending while a sentinel file exists.
type FileTrigger struct {
	Path string
}

func (f FileTrigger) Pending() (bool, error) {
	_, err := os.Stat(f.Path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (f FileTrigger) Ack() error {
	err := os.Remove(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Monitor polls a Trigger and calls stop once.
type Monitor struct {
	trigger  Trigger
	stop     func()
	logger   *logger.Logger
	interval time.Duration
	polls    int64
	stopChan chan struct{}
}

// NewMonitor creates a monitor that calls stop when trigger fires.
func NewMonitor(trigger Trigger, stop func(), log *logger.Logger) *Monitor {
	return &Monitor{
		trigger:  trigger,
		stop:     stop,
		logger:   log,
		interval: PollInterval,
		stopChan: make(chan struct{}),
	}
}

// Start polls until the context ends, Stop is called, or the trigger fires.
// Call in a goroutine.
func (m *Monitor) Start(ctx context.Context) {
	m.logger.Info("Liveness monitor started")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Liveness monitor stopped by context")
			return
		case <-m.stopChan:
			m.logger.Info("Liveness monitor stopped manually")
			return
		case <-ticker.C:
			if m.poll() {
				return
			}
		}
	}
}

// Stop ends polling without triggering shutdown. Call at most once.
func (m *Monitor) Stop() {
	close(m.stopChan)
}

// poll checks the trigger once and reports whether shutdown was requested.
func (m *Monitor) poll() bool {
	m.polls++
	pending, err := m.trigger.Pending()
	if err != nil {
		m.logger.Warnf("Stop trigger check failed (poll %d): %v", m.polls, err)
		return false
	}
	if !pending {
		return false
	}

	m.logger.Event("STOP_REQUEST", "liveness", "External stop request detected")
	if err := m.trigger.Ack(); err != nil {
		m.logger.Warnf("Could not clear stop trigger: %v", err)
	}
	m.stop()
	return true
}
