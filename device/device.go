// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package device implements the simulated IoT endpoint actor. Each device
// owns at most one broker connection, publishes synthetic telemetry at
// randomized intervals and listens on its command topic.
package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/absmach/iotsim/client"
	"github.com/absmach/iotsim/metrics"
)

// Default publish pacing.
const (
	DefaultMinInterval = 3 * time.Second
	DefaultMaxInterval = 8 * time.Second

	// Consecutive publish failures before the connection is treated as
	// unrecoverable and the device loop ends.
	publishFailureThreshold = 5
)

// Config describes one simulated device.
type Config struct {
	ID       string // stable identity, e.g. "temperature_3"
	Category string
	Hardware string
	Host     string
	Port     int

	// MinInterval/MaxInterval bound the random pause between publishes.
	// Zero values fall back to the defaults.
	MinInterval time.Duration
	MaxInterval time.Duration
}

// Device is a simulated IoT endpoint.
type Device struct {
	cfg    Config
	dialer client.Dialer
	logger *slog.Logger

	dataTopic string
	cmdTopic  string

	running  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once

	mu   sync.Mutex
	conn client.Conn

	breaker *gobreaker.CircuitBreaker
	rng     *rand.Rand
}

// New creates a device actor. The device does not touch the network until
// Run is called.
func New(cfg Config, dialer client.Dialer, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinInterval == 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = DefaultMaxInterval
	}

	d := &Device{
		cfg:       cfg,
		dialer:    dialer,
		logger:    logger.With("device", cfg.ID, "hardware", cfg.Hardware),
		dataTopic: fmt.Sprintf("iot/sensor/%s/%s", cfg.Category, cfg.ID),
		cmdTopic:  fmt.Sprintf("iot/sensor/%s/%s/cmd", cfg.Category, cfg.ID),
		stopCh:    make(chan struct{}),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	d.running.Store(true)

	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.ID,
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= publishFailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			d.logger.Warn("publish circuit breaker state changed",
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	return d
}

// ID returns the device identity.
func (d *Device) ID() string { return d.cfg.ID }

// DataTopic returns the telemetry publish topic.
func (d *Device) DataTopic() string { return d.dataTopic }

// CommandTopic returns the inbound command topic.
func (d *Device) CommandTopic() string { return d.cmdTopic }

// Running reports whether the device run-flag is still set.
func (d *Device) Running() bool { return d.running.Load() }

// Run connects to the broker, subscribes to the command topic and publishes
// telemetry until Stop is called or the connection becomes unusable. Faults
// are contained: Run logs and returns, it never panics or propagates.
func (d *Device) Run() {
	defer d.Stop()

	conn, err := d.dialer.Dial(client.Options{
		Host:     d.cfg.Host,
		Port:     d.cfg.Port,
		ClientID: fmt.Sprintf("%s_%s", d.cfg.ID, uuid.NewString()[:8]),
	})
	if err != nil {
		metrics.ConnectFailures.WithLabelValues("device").Inc()
		d.logger.Error("failed to connect to broker", "error", err)
		return
	}

	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()
	defer d.release()

	d.logger.Info("device connected to broker")

	if err := conn.Subscribe(d.cmdTopic, d.onCommand); err != nil {
		d.logger.Error("failed to subscribe to command topic", "topic", d.cmdTopic, "error", err)
	}

	metrics.DevicesRunning.Inc()
	defer metrics.DevicesRunning.Dec()

	for d.running.Load() {
		if err := d.publishReading(conn); err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				d.logger.Error("connection unusable, shutting device down", "error", err)
				return
			}
			d.logger.Error("failed to publish reading", "error", err)
		}

		select {
		case <-time.After(d.publishInterval()):
		case <-d.stopCh:
		}
	}
}

// Stop clears the run-flag and releases the connection. It is safe to call
// from any goroutine and is idempotent.
func (d *Device) Stop() {
	d.stopOnce.Do(func() {
		d.running.Store(false)
		close(d.stopCh)
	})
	d.release()
}

func (d *Device) release() {
	d.mu.Lock()
	conn := d.conn
	d.conn = nil
	d.mu.Unlock()
	if conn != nil {
		conn.Disconnect()
	}
}

func (d *Device) publishReading(conn client.Conn) error {
	reading := newReading(d.cfg.ID, d.cfg.Category, d.cfg.Hardware, d.rng)
	payload, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}

	_, err = d.breaker.Execute(func() (any, error) {
		return nil, conn.Publish(d.dataTopic, payload)
	})
	if err != nil {
		return err
	}

	metrics.DevicePublishes.WithLabelValues(d.cfg.Category).Inc()
	d.logger.Debug("published reading", "topic", d.dataTopic, "value", reading.Value, "unit", reading.Unit)
	return nil
}

// onCommand logs inbound command messages. Devices do not act on commands.
func (d *Device) onCommand(topic string, payload []byte) {
	d.logger.Info("received command", "topic", topic, "payload", string(payload))
}

func (d *Device) publishInterval() time.Duration {
	min := d.cfg.MinInterval
	max := d.cfg.MaxInterval
	if max <= min {
		return min
	}
	return min + time.Duration(d.rng.Int63n(int64(max-min)+1))
}
