// Package session owns the bot's connection to the server.
//
// A Controller walks Idle → Connecting → Connected → Disconnected and back to
// Connecting for as long as retrying is enabled. Every piece of state is owned
// by the goroutine running Run: bridge events, timer callbacks and stop
// requests are all funnelled through it, in delivery order.
//
// Timers are never cancelled. Each connection attempt bumps a generation
// counter, and a callback that fires against an old generation, or in the
// wrong phase, does nothing.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/MRamiBalles/bedrock-chatlog/internal/events"
	"github.com/MRamiBalles/bedrock-chatlog/internal/platform/logger"
	"github.com/MRamiBalles/bedrock-chatlog/internal/platform/metrics"
	"github.com/MRamiBalles/bedrock-chatlog/internal/translate"
)

// DefaultMOTDDelay gives a joining player time to spawn before the whisper.
const DefaultMOTDDelay = 5 * time.Second

const taskBuffer = 64

// LineWriter is the activity log.
type LineWriter interface {
	Append(line string) error
	AppendRaw(data []byte) error
	Close() error
}

// Config holds the session behaviour knobs.
type Config struct {
	Options       events.Options
	Retry         bool
	RetryInterval time.Duration
	Raw           bool
	MOTD          string
	AloneMOTD     string
	MOTDDelay     time.Duration
}

// Deps are the collaborators a Controller needs. Archive, Metrics,
// Scheduler and Clock are optional.
type Deps struct {
	Dialer    events.Dialer
	Writer    LineWriter
	Archive   events.Persister
	Metrics   *metrics.Collector
	Logger    *logger.Logger
	Scheduler Scheduler
	Clock     func() time.Time
}

// Controller is the session state machine.
type Controller struct {
	cfg       Config
	dialer    events.Dialer
	writer    LineWriter
	archive   events.Persister
	metrics   *metrics.Collector
	logger    *logger.Logger
	scheduler Scheduler
	clock     func() time.Time
	retry     backoff.BackOff

	ctx   context.Context
	tasks chan func()
	done  chan struct{}

	// Owned by the dispatcher goroutine.
	phase         Phase
	generation    uint64
	sessionID     string
	session       events.Session
	sessionEvents <-chan events.Event
	players       int
	stopped       bool
	fatal         error
}

// New creates a controller in the Idle phase.
func New(cfg Config, deps Deps) *Controller {
	if cfg.MOTDDelay <= 0 {
		cfg.MOTDDelay = DefaultMOTDDelay
	}
	c := &Controller{
		cfg:       cfg,
		dialer:    deps.Dialer,
		writer:    deps.Writer,
		archive:   deps.Archive,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		scheduler: deps.Scheduler,
		clock:     deps.Clock,
		retry:     backoff.NewConstantBackOff(cfg.RetryInterval),
		ctx:       context.Background(),
		tasks:     make(chan func(), taskBuffer),
		done:      make(chan struct{}),
		phase:     PhaseIdle,
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	if c.logger == nil {
		c.logger = logger.NewLogger()
	}
	if c.scheduler == nil {
		c.scheduler = TimerScheduler{}
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	return c
}

// Run connects and dispatches until the controller stops. It returns nil on
// a graceful stop and the write error when the activity log fails.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	c.ctx = ctx

	c.start()
	for !c.stopped {
		select {
		case <-ctx.Done():
			c.stop("shutting down")
		case ev, ok := <-c.sessionEvents:
			if !ok {
				// The stream ended without a terminal event.
				c.sessionEvents = nil
				c.handleEvent(events.Event{Type: events.EventTypeClosed, Reason: "event stream ended"})
				continue
			}
			c.handleEvent(ev)
		case task := <-c.tasks:
			task()
		}
	}
	return c.fatal
}

// RequestStop asks the dispatcher to shut down. Safe from any goroutine.
func (c *Controller) RequestStop() {
	c.post(func() { c.stop("stop requested") })
}

// Done is closed once Run has returned.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Phase reports the current phase. Dispatcher goroutine only.
func (c *Controller) Phase() Phase { return c.phase }

// Generation reports the current attempt counter. Dispatcher goroutine only.
func (c *Controller) Generation() uint64 { return c.generation }

// Players reports the estimated player count. Dispatcher goroutine only.
func (c *Controller) Players() int { return c.players }

func (c *Controller) post(task func()) {
	select {
	case c.tasks <- task:
	case <-c.done:
	}
}

// schedule runs task on the dispatcher after d.
func (c *Controller) schedule(d time.Duration, task func()) {
	c.scheduler.After(d, func() { c.post(task) })
}

func (c *Controller) setPhase(p Phase) {
	if c.phase == p {
		return
	}
	c.logger.Event("PHASE", c.cfg.Options.Username, c.phase.String()+" -> "+p.String())
	c.phase = p
	c.metrics.SetPhase(int(p))
}

func (c *Controller) start() {
	if c.phase != PhaseIdle || c.stopped {
		return
	}
	c.setPhase(PhaseConnecting)
	c.connect()
}

// connect opens a fresh session; the previous one must already be discarded.
func (c *Controller) connect() {
	c.generation++
	c.sessionID = uuid.NewString()
	opts := c.cfg.Options
	c.logger.Event("CONNECT", opts.Username,
		fmt.Sprintf("Connecting to %s:%d (attempt %d, session %s)", opts.Host, opts.Port, c.generation, c.sessionID))

	c.session = c.dialer.Open(c.ctx, opts)
	c.sessionEvents = c.session.Events()
}

func (c *Controller) handleEvent(ev events.Event) {
	switch ev.Type {
	case events.EventTypeJoined:
		c.onJoined()
	case events.EventTypeText:
		if ev.Record == nil {
			c.logger.Warn("Text event without a record, ignoring")
			return
		}
		c.onText(*ev.Record, ev.Raw)
	case events.EventTypeKick, events.EventTypeClosed, events.EventTypeError:
		c.onDisconnect(ev)
	default:
		c.logger.Warnf("Unknown session event %q, ignoring", ev.Type)
	}
}

func (c *Controller) onJoined() {
	if c.phase != PhaseConnecting {
		c.logger.Warnf("Join signal while %s, ignoring", c.phase)
		return
	}
	c.setPhase(PhaseConnected)
	c.retry.Reset()
	opts := c.cfg.Options
	c.logger.Event("JOINED", opts.Username, fmt.Sprintf("Joined %s:%d", opts.Host, opts.Port))
}

func (c *Controller) onText(rec events.Record, raw []byte) {
	c.metrics.RecordRecord(string(rec.Kind))

	if c.cfg.Raw {
		if raw == nil {
			raw, _ = json.Marshal(rec)
		}
		if err := c.writer.AppendRaw(raw); err != nil {
			c.fail(err)
			return
		}
	}

	if name, ok := translate.JoinedPlayer(rec); ok && name != c.cfg.Options.Username {
		c.setPlayers(c.players + 1)
		c.scheduleMOTD(name)
	} else if name, ok := translate.LeftPlayer(rec); ok && name != c.cfg.Options.Username {
		c.setPlayers(c.players - 1)
	}

	line, ok := translate.Translate(rec)
	if ok {
		if err := c.appendLine(line); err != nil {
			return
		}
	}

	if c.archive != nil {
		err := c.archive.Append(c.ctx, events.ArchivedRecord{
			ID:         uuid.NewString(),
			SessionID:  c.sessionID,
			ObservedAt: c.clock(),
			Record:     rec,
			Rendered:   line,
		})
		if err != nil {
			c.metrics.RecordArchiveError()
			c.logger.Warnf("Archive write failed: %v", err)
		}
	}
}

// setPlayers clamps the estimate at zero; it drifts if events are missed.
func (c *Controller) setPlayers(n int) {
	if n < 0 {
		n = 0
	}
	c.players = n
	c.metrics.SetPlayers(n)
}

// appendLine writes to the activity log. A failure is fatal.
func (c *Controller) appendLine(line string) error {
	err := c.writer.Append(line)
	c.metrics.RecordLineWrite(err)
	if err != nil {
		c.fail(err)
	}
	return err
}

func (c *Controller) fail(err error) {
	c.logger.Errorf("Activity log write failed, stopping: %v", err)
	if c.fatal == nil {
		c.fatal = fmt.Errorf("activity log: %w", err)
	}
	c.stop("log write failure")
}

func (c *Controller) onDisconnect(ev events.Event) {
	if c.phase != PhaseConnecting && c.phase != PhaseConnected {
		c.logger.Infof("Ignoring %s signal while %s", ev.Type, c.phase)
		return
	}

	name := c.cfg.Options.Username
	switch ev.Type {
	case events.EventTypeKick:
		c.metrics.RecordDisconnect("kick")
		if text, ok := KickNarrative(ev.Reason); ok {
			if err := c.appendLine(fmt.Sprintf("Bot [%s] %s (%s)", name, text, ev.Reason)); err != nil {
				return
			}
		} else {
			c.logger.Warnf("Kicked with unrecognised reason %q", ev.Reason)
		}
	case events.EventTypeClosed:
		c.metrics.RecordDisconnect("close")
		c.logger.Warnf("Connection closed (%s)", ev.Reason)
	case events.EventTypeError:
		c.metrics.RecordDisconnect("error")
		c.logger.Errorf("Connection error: %v", ev.Err)
	}

	old := c.session
	c.session = nil
	c.sessionEvents = nil
	if old != nil {
		c.guard("close session", old.Close)
	}
	c.setPhase(PhaseDisconnected)

	if !c.cfg.Retry {
		c.logger.Info("Retry disabled, not reconnecting")
		c.stop("retry disabled")
		return
	}
	c.scheduleRetry()
}

func (c *Controller) scheduleRetry() {
	gen := c.generation
	delay := c.retry.NextBackOff()
	c.logger.Infof("Reconnecting in %s", delay)
	c.schedule(delay, func() { c.retryFired(gen) })
}

func (c *Controller) retryFired(gen uint64) {
	if c.stopped || c.phase != PhaseDisconnected || gen != c.generation {
		c.logger.Infof("Skipping stale reconnect (attempt %d, now %d, %s)", gen, c.generation, c.phase)
		return
	}
	c.metrics.RecordReconnect()
	c.setPhase(PhaseConnecting)
	c.connect()
}

func (c *Controller) scheduleMOTD(player string) {
	if c.cfg.MOTD == "" && c.cfg.AloneMOTD == "" {
		return
	}
	gen := c.generation
	c.schedule(c.cfg.MOTDDelay, func() { c.sendMOTD(gen, player) })
}

func (c *Controller) sendMOTD(gen uint64, player string) {
	if c.stopped || gen != c.generation || c.phase != PhaseConnected || c.session == nil {
		c.logger.Infof("Dropping message of the day for %s: session changed", player)
		return
	}
	if c.cfg.MOTD != "" {
		c.whisper(player, c.cfg.MOTD)
	}
	if c.cfg.AloneMOTD != "" && c.players == 1 {
		c.whisper(player, c.cfg.AloneMOTD)
	}
}

// WhisperCommand builds the command that privately messages player.
func WhisperCommand(player, text string) string {
	return fmt.Sprintf(`/tell "%s" %s`, strings.ReplaceAll(player, `"`, ""), text)
}

func (c *Controller) whisper(player, text string) {
	err := c.session.Send(WhisperCommand(player, text))
	c.metrics.RecordWhisper(err)
	if err != nil {
		c.logger.Warnf("Whisper to %s failed: %v", player, err)
	}
}

// stop tears everything down. Each step runs even if an earlier one fails.
func (c *Controller) stop(reason string) {
	if c.stopped {
		return
	}
	c.stopped = true
	c.generation++
	c.logger.Event("STOP", c.cfg.Options.Username, reason)

	if s := c.session; s != nil {
		c.guard("disconnect", func() error { return s.Disconnect(reason) })
		c.guard("close session", s.Close)
	}
	c.session = nil
	c.sessionEvents = nil
	c.setPhase(PhaseIdle)

	c.guard("close activity log", c.writer.Close)
	if c.archive != nil {
		c.guard("close archive", c.archive.Close)
	}
}

// guard runs one teardown step, absorbing its error or panic.
func (c *Controller) guard(step string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("%s panicked: %v", step, r)
		}
	}()
	if err := fn(); err != nil {
		c.logger.Warnf("%s failed: %v", step, err)
	}
}
