// Package config resolves the chat logger's settings.
//
// Precedence, lowest first: built-in defaults, CHATLOG_* environment
// variables, command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrMissingHost is returned when no server host was given.
var ErrMissingHost = errors.New("host is not specified")

// Config holds every tunable of the process.
type Config struct {
	Host     string `env:"CHATLOG_HOST"`
	Port     int    `env:"CHATLOG_PORT"`
	Username string `env:"CHATLOG_USERNAME"`

	LogFolder string `env:"CHATLOG_LOG_FOLDER"`
	Prefix    string `env:"CHATLOG_PREFIX"`
	Raw       bool   `env:"CHATLOG_RAW"`

	Retry        bool `env:"CHATLOG_RETRY"`
	RetrySeconds int  `env:"CHATLOG_RETRY_INTERVAL"`
	// RetryInterval is RetrySeconds as a duration, filled in by Load.
	RetryInterval time.Duration

	MOTD      string `env:"CHATLOG_MOTD"`
	AloneMOTD string `env:"CHATLOG_ALONE_MOTD"`

	ArchivePath string `env:"CHATLOG_ARCHIVE"`
	MetricsAddr string `env:"CHATLOG_METRICS_ADDR"`
	StopFile    string `env:"CHATLOG_STOP_FILE"`

	// Channel sizing between the bridge pumps and the dispatcher.
	EventBuffer int `env:"CHATLOG_EVENT_BUFFER"`
	SendBuffer  int `env:"CHATLOG_SEND_BUFFER"`
}

// DefaultConfig returns the documented defaults. Host has none.
func DefaultConfig() Config {
	return Config{
		Port:          19132,
		Username:      "Server",
		LogFolder:     "./logs",
		Prefix:        "chat-",
		Raw:           false,
		Retry:         true,
		RetrySeconds:  30,
		RetryInterval: 30 * time.Second,
		StopFile:      "chatlog.stop",
		EventBuffer:   256,
		SendBuffer:    16,
	}
}

// Load resolves the configuration from environ and args. A nil environ
// means the process environment. Usage and parse errors go to output.
func Load(args []string, environ map[string]string, output io.Writer) (Config, error) {
	cfg := DefaultConfig()
	if err := parseEnv(&cfg, environ); err != nil {
		return cfg, err
	}

	fs := NewFlagSet(&cfg, output)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	cfg.RetryInterval = time.Duration(cfg.RetrySeconds) * time.Second

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func parseEnv(cfg *Config, environ map[string]string) error {
	var err error
	if environ == nil {
		err = env.Parse(cfg)
	} else {
		err = env.ParseWithOptions(cfg, env.Options{Environment: environ})
	}
	if err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// NewFlagSet binds every option to cfg, using its current values as defaults.
// Short aliases match the historical command line (-h, -p, -u, -l, -x, -r).
func NewFlagSet(cfg *Config, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("chatlog", flag.ContinueOnError)
	fs.SetOutput(output)

	stringVar(fs, &cfg.Host, "host", "h", "Server address")
	intVar(fs, &cfg.Port, "port", "p", "Server port")
	stringVar(fs, &cfg.Username, "username", "u", "Bot username")
	stringVar(fs, &cfg.LogFolder, "log-folder", "l", "Log folder")
	stringVar(fs, &cfg.Prefix, "prefix", "x", "Log file prefix")
	fs.BoolVar(&cfg.Raw, "raw", cfg.Raw, "Log raw packets as JSON")
	fs.BoolVar(&cfg.Raw, "r", cfg.Raw, "Log raw packets as JSON (shorthand)")

	fs.BoolVar(&cfg.Retry, "retry", cfg.Retry, "Reconnect after a disconnect")
	fs.IntVar(&cfg.RetrySeconds, "retry-interval", cfg.RetrySeconds, "Seconds between reconnect attempts")
	fs.StringVar(&cfg.MOTD, "motd", cfg.MOTD, "Message whispered to joining players")
	fs.StringVar(&cfg.AloneMOTD, "alone-motd", cfg.AloneMOTD, "Extra message whispered when the joining player is alone")

	fs.StringVar(&cfg.ArchivePath, "archive", cfg.ArchivePath, "SQLite file to archive every record in (disabled when empty)")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Address to serve /metrics on (disabled when empty)")
	fs.StringVar(&cfg.StopFile, "stop-file", cfg.StopFile, "Sentinel file that requests a graceful stop")

	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: chatlog -h 127.0.0.1 [-p 19132] [options]")
		fs.PrintDefaults()
	}
	return fs
}

func stringVar(fs *flag.FlagSet, p *string, name, short, usage string) {
	fs.StringVar(p, name, *p, usage)
	fs.StringVar(p, short, *p, usage+" (shorthand)")
}

func intVar(fs *flag.FlagSet, p *int, name, short, usage string) {
	fs.IntVar(p, name, *p, usage)
	fs.IntVar(p, short, *p, usage+" (shorthand)")
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Host == "" {
		return ErrMissingHost
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Username == "" {
		return errors.New("username must not be empty")
	}
	if c.Retry && c.RetryInterval <= 0 {
		return fmt.Errorf("retry interval must be positive, got %s", c.RetryInterval)
	}
	if c.EventBuffer <= 0 || c.SendBuffer <= 0 {
		return errors.New("channel buffers must be positive")
	}
	return nil
}
