// Package main is the entry point for the Bedrock chat logger.
// It only resolves configuration and wires the components together.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/MRamiBalles/bedrock-chatlog/internal/events"
	"github.com/MRamiBalles/bedrock-chatlog/internal/infra/logfile"
	"github.com/MRamiBalles/bedrock-chatlog/internal/infra/storage"
	"github.com/MRamiBalles/bedrock-chatlog/internal/liveness"
	"github.com/MRamiBalles/bedrock-chatlog/internal/network"
	"github.com/MRamiBalles/bedrock-chatlog/internal/platform/config"
	"github.com/MRamiBalles/bedrock-chatlog/internal/platform/logger"
	"github.com/MRamiBalles/bedrock-chatlog/internal/platform/metrics"
	"github.com/MRamiBalles/bedrock-chatlog/internal/session"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:], nil, os.Stderr)
	switch {
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, config.ErrMissingHost):
		fmt.Fprintln(os.Stderr, "Error: host is not specified.")
		config.NewFlagSet(&cfg, os.Stderr).Usage()
		return 1
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	appLogger := logger.NewLogger()
	appLogger.Infof("Starting chat logger for %s:%d as %q", cfg.Host, cfg.Port, cfg.Username)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	writer := logfile.NewWriter(logfile.Config{
		Dir:    cfg.LogFolder,
		Prefix: cfg.Prefix,
	}, appLogger)

	var (
		archive events.Persister
		routes  []func(*http.ServeMux)
	)
	if cfg.ArchivePath != "" {
		appLogger.Infof("Opening archive %s", cfg.ArchivePath)
		repo, err := storage.OpenArchive(cfg.ArchivePath)
		if err != nil {
			appLogger.Errorf("Failed to open archive: %v", err)
			return 1
		}
		archive = repo
		routes = append(routes, network.NewReplayHandler(repo, appLogger).RegisterRoutes)
	}

	collector := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			appLogger.Infof("Serving metrics on %s/metrics", cfg.MetricsAddr)
			if err := collector.Serve(ctx, cfg.MetricsAddr, routes...); err != nil {
				appLogger.Errorf("Metrics server failed: %v", err)
			}
		}()
	}

	dialer := network.NewDialer(network.DialerConfig{
		EventBuffer: cfg.EventBuffer,
		SendBuffer:  cfg.SendBuffer,
	}, appLogger)

	controller := session.New(session.Config{
		Options: events.Options{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Offline:  true,
		},
		Retry:         cfg.Retry,
		RetryInterval: cfg.RetryInterval,
		Raw:           cfg.Raw,
		MOTD:          cfg.MOTD,
		AloneMOTD:     cfg.AloneMOTD,
	}, session.Deps{
		Dialer:  dialer,
		Writer:  writer,
		Archive: archive,
		Metrics: collector,
		Logger:  appLogger,
	})

	monitor := liveness.NewMonitor(liveness.FileTrigger{Path: cfg.StopFile}, controller.RequestStop, appLogger)
	go monitor.Start(ctx)

	if err := controller.Run(ctx); err != nil {
		appLogger.Errorf("Chat logger stopped: %v", err)
		return 1
	}
	appLogger.Info("Chat logger stopped.")
	return 0
}
