// Package main - bridge-sim
// A development stand-in for the protocol bridge. It accepts chat logger
// connections and replays a script of frames to them, printing every command
// the logger sends back.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MRamiBalles/bedrock-chatlog/internal/events"
	"github.com/MRamiBalles/bedrock-chatlog/internal/network"
	"github.com/MRamiBalles/bedrock-chatlog/internal/platform/logger"
)

// Config for the simulator
type Config struct {
	Addr     string
	Script   string
	Interval time.Duration
	Loop     bool
}

// demoScript is replayed when no script file is given.
var demoScript = []events.Record{
	{Kind: events.KindTranslation, Message: "§e%multiplayer.player.joined", Parameters: []string{"Steve"}},
	{Kind: events.KindChat, Speaker: "Steve", Message: "Hello?"},
	{Kind: events.KindTranslation, Message: "§e%multiplayer.player.joined", Parameters: []string{"Alex"}},
	{Kind: events.KindChat, Speaker: "Alex", Message: "hi Steve"},
	{Kind: events.KindTranslation, Message: "death.attack.mob", Parameters: []string{"Steve", "%entity.zombie.name"}},
	{Kind: events.KindTranslation, Message: "death.fell.accident.generic", Parameters: []string{"Alex"}},
	{Kind: events.KindTranslation, Message: "multiplayer.playersSkippingNight", Parameters: []string{"1", "2"}},
	{Kind: events.KindAnnouncement, Message: "Server restarting soon"},
	{Kind: events.KindTip, Message: "You can sleep now"},
	{Kind: events.KindTranslation, Message: "§e%multiplayer.player.left", Parameters: []string{"Alex"}},
}

func main() {
	addr := flag.String("addr", ":19132", "Address to listen on")
	script := flag.String("script", "", "JSON-lines file of frames to replay (\"-\" for stdin, empty for the demo)")
	interval := flag.Duration("interval", 2*time.Second, "Delay between replayed frames")
	loop := flag.Bool("loop", false, "Replay the script forever")
	flag.Parse()

	config := Config{
		Addr:     *addr,
		Script:   *script,
		Interval: *interval,
		Loop:     *loop,
	}

	appLogger := logger.NewLogger()

	frames, err := loadFrames(config.Script)
	if err != nil {
		appLogger.Errorf("Failed to load script: %v", err)
		os.Exit(1)
	}
	appLogger.Infof("Loaded %d frames", len(frames))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := network.NewHub(appLogger)
	go hub.Run(ctx)
	go printCommands(ctx, hub)

	srv := &http.Server{Addr: config.Addr, Handler: hub}
	go func() {
		appLogger.Infof("Bridge simulator listening on %s", config.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Errorf("Server failed: %v", err)
			cancel()
		}
	}()

	replay(ctx, hub, frames, config, appLogger)

	<-ctx.Done()
	appLogger.Info("Shutting down...")
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_ = srv.Shutdown(shutdownCtx)
}

// loadFrames reads one frame per line. Lines holding a bare text packet
// (no "event" field) are wrapped in a text frame.
func loadFrames(path string) ([]network.Frame, error) {
	if path == "" {
		frames := make([]network.Frame, 0, len(demoScript))
		for _, rec := range demoScript {
			f, err := network.TextFrame(rec)
			if err != nil {
				return nil, err
			}
			frames = append(frames, f)
		}
		return frames, nil
	}

	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return parseFrames(r)
}

func parseFrames(r io.Reader) ([]network.Frame, error) {
	var frames []network.Frame
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var f network.Frame
		if err := json.Unmarshal([]byte(line), &f); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if f.Event == "" {
			var rec events.Record
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			wrapped, err := network.TextFrame(rec)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			f = wrapped
		}
		frames = append(frames, f)
	}
	return frames, scanner.Err()
}

// replay waits for a bot, then broadcasts frames at the configured interval.
func replay(ctx context.Context, hub *network.Hub, frames []network.Frame, config Config, log *logger.Logger) {
	ticker := time.NewTicker(config.Interval)
	defer ticker.Stop()

	if len(frames) == 0 {
		return
	}

	next := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if hub.Peers() == 0 {
				continue
			}
			if next == len(frames) {
				if !config.Loop {
					log.Info("Script finished; still accepting connections")
					return
				}
				next = 0
			}
			f := frames[next]
			next++
			if err := hub.Broadcast(f); err != nil {
				log.Warnf("Broadcast failed: %v", err)
				continue
			}
			log.Event("REPLAY", f.Event, fmt.Sprintf("frame %d/%d", next, len(frames)))
		}
	}
}

func printCommands(ctx context.Context, hub *network.Hub) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-hub.Commands():
			switch f.Event {
			case network.FrameCommand:
				fmt.Printf("<- command: %s\n", f.Command)
			case network.FrameDisconnect:
				fmt.Printf("<- disconnect: %s\n", f.Reason)
			default:
				fmt.Printf("<- %s\n", f.Event)
			}
		}
	}
}
