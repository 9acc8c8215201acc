// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/absmach/iotsim/client"
	"github.com/absmach/iotsim/config"
	"github.com/absmach/iotsim/server/status"
	"github.com/absmach/iotsim/sim"
)

const banner = `iotsim - IoT threat simulator. Use only in controlled test environments.`

func main() {
	defaults := config.Default()

	configFile := flag.String("config", "", "Path to YAML configuration file")

	broker := flag.String("broker", defaults.Broker.Host, "MQTT broker address")
	port := flag.Int("port", defaults.Broker.Port, "MQTT broker port")
	duration := flag.Duration("duration", defaults.Simulation.Duration, "Simulation duration")
	devices := flag.Int("devices", defaults.Simulation.Devices, "Number of simulated IoT devices")

	bruteforce := flag.Bool("bruteforce", defaults.Bruteforce.Enabled, "Enable credential-guessing attack")
	bruteforceRate := flag.Int("bruteforce-rate", defaults.Bruteforce.Rate, "Credential-guessing rate (attempts/second)")
	bruteforceDuration := flag.Duration("bruteforce-duration", defaults.Bruteforce.Duration, "Credential-guessing attack duration")
	bruteforceUsername := flag.String("bruteforce-username", defaults.Bruteforce.Username, "Credential-guessing target username")

	ddos := flag.Bool("ddos", defaults.DDoS.Enabled, "Enable volumetric-flood attack")
	ddosMode := flag.String("ddos-mode", defaults.DDoS.Mode, "Flood sub-mode: connection or publish")
	ddosRate := flag.Int("ddos-rate", defaults.DDoS.Rate, "Flood rate (operations/second)")
	ddosDuration := flag.Duration("ddos-duration", defaults.DDoS.Duration, "Flood attack duration")

	logLevel := flag.String("log-level", defaults.Log.Level, "Log level: debug, info, warn or error")
	logFile := flag.String("log-file", defaults.Log.File, "Append-only event log file (empty to disable)")
	statusAddr := flag.String("status-addr", "", "Expose /status and /metrics on this address (empty to disable)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Explicitly set flags win over file values.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "broker":
			cfg.Broker.Host = *broker
		case "port":
			cfg.Broker.Port = *port
		case "duration":
			cfg.Simulation.Duration = *duration
		case "devices":
			cfg.Simulation.Devices = *devices
		case "bruteforce":
			cfg.Bruteforce.Enabled = *bruteforce
		case "bruteforce-rate":
			cfg.Bruteforce.Rate = *bruteforceRate
		case "bruteforce-duration":
			cfg.Bruteforce.Duration = *bruteforceDuration
		case "bruteforce-username":
			cfg.Bruteforce.Username = *bruteforceUsername
		case "ddos":
			cfg.DDoS.Enabled = *ddos
		case "ddos-mode":
			cfg.DDoS.Mode = *ddosMode
		case "ddos-rate":
			cfg.DDoS.Rate = *ddosRate
		case "ddos-duration":
			cfg.DDoS.Duration = *ddosDuration
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-file":
			cfg.Log.File = *logFile
		case "status-addr":
			cfg.Status.Enabled = *statusAddr != ""
			cfg.Status.Addr = *statusAddr
		}
	})

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	fmt.Println(banner)
	slog.Info("Starting iotsim", "version", "0.1.0")
	slog.Info("Configuration loaded",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"duration", cfg.Simulation.Duration,
		"devices", cfg.Simulation.Devices,
		"bruteforce", cfg.Bruteforce.Enabled,
		"ddos", cfg.DDoS.Enabled,
		"ddos_mode", cfg.DDoS.Mode,
		"log_level", cfg.Log.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutdown signal received")
		cancel()
	}()

	orch := sim.New(cfg, client.NewPahoDialer(), logger)

	if cfg.Status.Enabled {
		statusSrv := status.New(status.Config{
			Address:         cfg.Status.Addr,
			ShutdownTimeout: 5 * time.Second,
		}, orch, logger)
		go func() {
			if err := statusSrv.Listen(ctx); err != nil {
				slog.Error("Status server failed", "error", err)
			}
		}()
	}

	if err := orch.Run(ctx); err != nil {
		slog.Error("Simulation failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Simulation finished")
}

// newLogger builds the slog logger. When a log file is configured the text
// stream goes to stdout and, append-only with rotation, to the file.
func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var w io.Writer = os.Stdout
	if cfg.File != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    50, // MB
			MaxBackups: 3,
		})
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}
