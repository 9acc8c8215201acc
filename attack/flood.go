// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package attack

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/absmach/iotsim/client"
	"github.com/absmach/iotsim/metrics"
)

// Flood sub-modes.
const (
	ModeConnection = "connection"
	ModePublish    = "publish"
)

const (
	// DefaultCycleInterval is the pause between flood cycles. Rate control
	// is deliberately coarse: throughput is bounded per whole-second cycle,
	// not paced sub-second.
	DefaultCycleInterval = time.Second

	// Publish-flood pool and topic fan-out.
	publishPoolSize = 5
	floodTopicCount = 10
	floodPayloadLen = 50

	maxConnectionsPerCycle = 10

	floodPayloadChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	connectionReportEvery = 50
	publishReportEvery    = 100
)

// Flood errors.
var (
	ErrEmptyPool   = errors.New("no flood connections could be established")
	ErrUnknownMode = errors.New("unknown flood mode")
)

// FloodTopics returns the fixed set of topics targeted by the publish
// flood.
func FloodTopics() []string {
	topics := make([]string, floodTopicCount)
	for i := range topics {
		topics[i] = fmt.Sprintf("ddos/flood/topic/%d", i)
	}
	return topics
}

// FloodConfig describes a volumetric-flood attack.
type FloodConfig struct {
	Host string
	Port int
	Mode string // ModeConnection or ModePublish
	Rate int    // operations per second

	// CycleInterval overrides the pause between cycles. Zero means
	// DefaultCycleInterval.
	CycleInterval time.Duration
}

// Flood floods the broker with either connections or publishes.
//
// Connection mode keeps every opened connection in a growing list that is
// unbounded by design: holding sockets open is the load being simulated.
// The list is only released by Stop.
type Flood struct {
	cfg    FloodConfig
	dialer client.Dialer
	logger *slog.Logger

	running  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once

	ops atomic.Int64

	mu    sync.Mutex
	conns []client.Conn

	rng *rand.Rand
}

// NewFlood creates a volumetric-flood actor.
func NewFlood(cfg FloodConfig, dialer client.Dialer, logger *slog.Logger) *Flood {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CycleInterval == 0 {
		cfg.CycleInterval = DefaultCycleInterval
	}
	f := &Flood{
		cfg:    cfg,
		dialer: dialer,
		logger: logger.With("attack", "flood", "mode", cfg.Mode),
		stopCh: make(chan struct{}),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	f.running.Store(true)
	return f
}

// Operations returns the number of flood operations performed so far.
func (f *Flood) Operations() int64 { return f.ops.Load() }

// Running reports whether the actor's run-flag is still set.
func (f *Flood) Running() bool { return f.running.Load() }

// RetainedConnections returns the number of connections held by connection
// mode.
func (f *Flood) RetainedConnections() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

// Run floods the broker until duration elapses or Stop is called. An
// unknown mode or a publish-flood with no usable connections is fatal to
// this actor only.
func (f *Flood) Run(duration time.Duration) error {
	f.logger.Info("starting flood attack",
		"broker", fmt.Sprintf("%s:%d", f.cfg.Host, f.cfg.Port),
		"rate", f.cfg.Rate,
		"duration", duration)

	var err error
	switch f.cfg.Mode {
	case ModeConnection:
		f.floodConnections(duration)
	case ModePublish:
		err = f.floodPublish(duration)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownMode, f.cfg.Mode)
		f.logger.Error("cannot start flood attack", "error", err)
		return err
	}
	if err != nil {
		f.logger.Error("flood attack aborted", "error", err)
	}

	f.logger.Info("flood attack finished", "operations", f.ops.Load())
	return err
}

// Stop clears the run-flag and force-closes every retained connection.
// Closing is per-connection best-effort; Disconnect never fails, so one bad
// connection cannot leave the rest open. Idempotent.
func (f *Flood) Stop() {
	f.stopOnce.Do(func() {
		f.running.Store(false)
		close(f.stopCh)
	})

	f.mu.Lock()
	conns := f.conns
	f.conns = nil
	f.mu.Unlock()

	for _, c := range conns {
		c.Disconnect()
	}
}

// retain adds a connection to the owned list unless shutdown already
// began. It reports whether the connection was adopted.
func (f *Flood) retain(conn client.Conn) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running.Load() {
		return false
	}
	f.conns = append(f.conns, conn)
	return true
}

// batchSize bounds connection attempts per cycle to min(10, rate/10).
func (f *Flood) batchSize() int {
	batch := f.cfg.Rate / 10
	if batch > maxConnectionsPerCycle {
		batch = maxConnectionsPerCycle
	}
	return batch
}

func (f *Flood) floodConnections(duration time.Duration) {
	deadline := time.Now().Add(duration)
	batch := f.batchSize()

	for f.running.Load() && time.Now().Before(deadline) {
		for i := 0; i < batch && f.running.Load(); i++ {
			conn, err := f.dialer.Dial(client.Options{
				Host:     f.cfg.Host,
				Port:     f.cfg.Port,
				ClientID: "ddos_" + uuid.NewString()[:12],
			})
			if err != nil {
				// Best-effort: a refused connection does not halt the batch.
				metrics.ConnectFailures.WithLabelValues("flood").Inc()
				continue
			}

			if !f.retain(conn) {
				// Stop ran its cleanup while we were dialing.
				conn.Disconnect()
				return
			}

			metrics.FloodOperations.WithLabelValues(ModeConnection).Inc()
			if n := f.ops.Add(1); n%connectionReportEvery == 0 {
				f.logger.Info("connection flood progress", "connections", n)
			}
		}

		f.sleep()
	}
}

func (f *Flood) floodPublish(duration time.Duration) error {
	pool := make([]client.Conn, 0, publishPoolSize)
	for i := 0; i < publishPoolSize; i++ {
		conn, err := f.dialer.Dial(client.Options{
			Host:     f.cfg.Host,
			Port:     f.cfg.Port,
			ClientID: fmt.Sprintf("ddos_pub_%d_%s", i, uuid.NewString()[:8]),
		})
		if err != nil {
			metrics.ConnectFailures.WithLabelValues("flood").Inc()
			f.logger.Debug("flood pool connection failed", "error", err)
			continue
		}
		pool = append(pool, conn)
	}
	if len(pool) == 0 {
		return ErrEmptyPool
	}
	// The pool is released on every exit path of the publish loop.
	defer func() {
		for _, c := range pool {
			c.Disconnect()
		}
	}()

	f.logger.Info("publish flood pool established", "connections", len(pool))

	topics := FloodTopics()
	deadline := time.Now().Add(duration)

	for f.running.Load() && time.Now().Before(deadline) {
		for _, conn := range pool {
			for _, topic := range topics {
				if err := conn.Publish(topic, f.randomPayload()); err != nil {
					f.logger.Debug("flood publish failed", "topic", topic, "error", err)
				}

				metrics.FloodOperations.WithLabelValues(ModePublish).Inc()
				if n := f.ops.Add(1); n%publishReportEvery == 0 {
					f.logger.Info("publish flood progress", "messages", n)
				}
			}
		}

		f.sleep()
	}
	return nil
}

func (f *Flood) sleep() {
	select {
	case <-time.After(f.cfg.CycleInterval):
	case <-f.stopCh:
	}
}

func (f *Flood) randomPayload() []byte {
	buf := make([]byte, floodPayloadLen)
	for i := range buf {
		buf[i] = floodPayloadChars[f.rng.Intn(len(floodPayloadChars))]
	}
	return buf
}
