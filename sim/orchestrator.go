// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package sim implements the simulation orchestrator: it owns every device
// and attack actor, launches them as independent goroutines, schedules the
// attacks at fractional offsets of the total duration and coordinates
// shutdown.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/iotsim/attack"
	"github.com/absmach/iotsim/client"
	"github.com/absmach/iotsim/config"
	"github.com/absmach/iotsim/device"
)

// Scheduling constants.
const (
	// DefaultStabilizationDelay is how long devices get to settle before
	// any attack may be scheduled.
	DefaultStabilizationDelay = 10 * time.Second

	// DefaultPollInterval is the monitoring loop tick.
	DefaultPollInterval = time.Second

	// DefaultReportInterval is how often the monitoring loop reports
	// progress.
	DefaultReportInterval = 30 * time.Second

	// Attack activation offsets as fractions of total duration, measured
	// from simulation start. Correct layering (offset ≥ stabilization
	// delay) is the operator's responsibility, not enforced here.
	bruteforceOffsetFraction = 0.25
	ddosOffsetFraction       = 0.50
)

// ErrAlreadyStarted is returned when Run is called more than once.
var ErrAlreadyStarted = errors.New("orchestrator already started")

// State is the orchestrator lifecycle state.
type State int32

// Orchestrator states.
const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// stopper is the only view the orchestrator keeps of a launched attack.
type stopper interface {
	Stop()
}

// Orchestrator owns the full actor set. Actors never reference each other;
// all coordination runs through per-actor stop signals issued here.
type Orchestrator struct {
	cfg    *config.Config
	dialer client.Dialer
	logger *slog.Logger

	// Timing knobs, overridable before Run (tests shorten them).
	StabilizationDelay time.Duration
	PollInterval       time.Duration
	ReportInterval     time.Duration

	// Device publish pacing overrides. Zero keeps the device defaults.
	DeviceMinInterval time.Duration
	DeviceMaxInterval time.Duration

	state       atomic.Int32
	stopCh      chan struct{}
	stopOnce    sync.Once
	startedNano atomic.Int64

	mu      sync.Mutex
	devices []*device.Device
	attacks []stopper

	wg  sync.WaitGroup
	rng *rand.Rand
}

// New creates an orchestrator for the given configuration.
func New(cfg *config.Config, dialer client.Dialer, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:                cfg,
		dialer:             dialer,
		logger:             logger,
		StabilizationDelay: DefaultStabilizationDelay,
		PollInterval:       DefaultPollInterval,
		ReportInterval:     DefaultReportInterval,
		stopCh:             make(chan struct{}),
		rng:                rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Elapsed returns the wall-clock time since Run began, zero before that.
func (o *Orchestrator) Elapsed() time.Duration {
	n := o.startedNano.Load()
	if n == 0 {
		return 0
	}
	return time.Since(time.Unix(0, n))
}

// DeviceCount returns the number of device actors created.
func (o *Orchestrator) DeviceCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.devices)
}

// Devices returns the owned device actors.
func (o *Orchestrator) Devices() []*device.Device {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*device.Device, len(o.devices))
	copy(out, o.devices)
	return out
}

// Run executes the full simulation: it populates and launches the device
// actors, schedules the enabled attacks and monitors wall-clock progress
// until the configured duration elapses, ctx is cancelled or Stop is
// called. It returns after all actors have been signalled and the worker
// goroutines have wound down.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyStarted
	}
	o.startedNano.Store(time.Now().UnixNano())

	duration := o.cfg.Simulation.Duration
	o.logger.Info("starting simulation",
		"broker", fmt.Sprintf("%s:%d", o.cfg.Broker.Host, o.cfg.Broker.Port),
		"duration", duration,
		"devices", o.cfg.Simulation.Devices,
		"bruteforce", o.cfg.Bruteforce.Enabled,
		"ddos", o.cfg.DDoS.Enabled)

	o.createDevices()
	o.startDevices()

	// Let the device population settle before attacks are scheduled.
	if o.waitStabilization(ctx) {
		if o.cfg.Bruteforce.Enabled {
			o.scheduleAttack("bruteforce", o.attackDelay(bruteforceOffsetFraction), o.runBruteforce)
		}
		if o.cfg.DDoS.Enabled {
			o.scheduleAttack("ddos", o.attackDelay(ddosOffsetFraction), o.runFlood)
		}

		o.monitor(ctx)
	}

	o.Stop()
	o.wg.Wait()
	return nil
}

// Stop begins coordinated shutdown: it signals every device actor, then
// every attack actor, and cancels pending attack activations. Stop only
// signals; it does not wait for actor loops to exit. Idempotent.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		o.state.Store(int32(StateStopping))
		o.logger.Info("stopping simulation")

		o.mu.Lock()
		devices := make([]*device.Device, len(o.devices))
		copy(devices, o.devices)
		attacks := make([]stopper, len(o.attacks))
		copy(attacks, o.attacks)
		o.mu.Unlock()

		for _, d := range devices {
			d.Stop()
		}
		for _, a := range attacks {
			a.Stop()
		}
		close(o.stopCh)

		o.state.Store(int32(StateStopped))
		o.logger.Info("simulation stopped", "elapsed", o.Elapsed().Round(time.Second))
	})
}

// createDevices populates the device set. Category and hardware are chosen
// uniformly at random per device; identity is "{category}_{sequence}".
func (o *Orchestrator) createDevices() {
	count := o.cfg.Simulation.Devices
	o.logger.Info("creating devices", "count", count)

	devices := make([]*device.Device, 0, count)
	for i := 0; i < count; i++ {
		category := device.Categories[o.rng.Intn(len(device.Categories))]
		hardware := device.HardwareTypes[o.rng.Intn(len(device.HardwareTypes))]

		devices = append(devices, device.New(device.Config{
			ID:          fmt.Sprintf("%s_%d", category, i+1),
			Category:    category,
			Hardware:    hardware,
			Host:        o.cfg.Broker.Host,
			Port:        o.cfg.Broker.Port,
			MinInterval: o.DeviceMinInterval,
			MaxInterval: o.DeviceMaxInterval,
		}, o.dialer, o.logger))
	}

	o.mu.Lock()
	o.devices = devices
	o.mu.Unlock()
}

// startDevices launches every device as an independent worker, in creation
// order.
func (o *Orchestrator) startDevices() {
	for _, d := range o.Devices() {
		o.wg.Add(1)
		go func(d *device.Device) {
			defer o.wg.Done()
			d.Run()
		}(d)
	}
}

// waitStabilization pauses for the stabilization delay. It reports false
// when the simulation was interrupted while waiting.
func (o *Orchestrator) waitStabilization(ctx context.Context) bool {
	select {
	case <-time.After(o.StabilizationDelay):
		return true
	case <-ctx.Done():
		return false
	case <-o.stopCh:
		return false
	}
}

// attackDelay translates a fractional offset of total duration into the
// remaining delay from now. Offsets are measured from simulation start.
func (o *Orchestrator) attackDelay(fraction float64) time.Duration {
	offset := time.Duration(fraction * float64(o.cfg.Simulation.Duration))
	delay := offset - o.Elapsed()
	if delay < 0 {
		delay = 0
	}
	return delay
}

// scheduleAttack arranges for start to run after delay on its own worker.
// The activation is fire-and-forget relative to the monitoring loop, but
// explicitly cancellable: a stop before the timer fires prevents the attack
// from ever starting.
func (o *Orchestrator) scheduleAttack(name string, delay time.Duration, start func()) {
	o.logger.Info("scheduling attack", "attack", name, "delay", delay.Round(time.Second))

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			start()
		case <-o.stopCh:
			o.logger.Info("cancelled pending attack activation", "attack", name)
		}
	}()
}

func (o *Orchestrator) runBruteforce() {
	bf := attack.NewBruteforce(attack.BruteforceConfig{
		Host:     o.cfg.Broker.Host,
		Port:     o.cfg.Broker.Port,
		Username: o.cfg.Bruteforce.Username,
		Rate:     o.cfg.Bruteforce.Rate,
	}, o.dialer, o.logger)

	if !o.adoptAttack(bf) {
		return
	}
	bf.Run(o.cfg.Bruteforce.Duration)
}

func (o *Orchestrator) runFlood() {
	fl := attack.NewFlood(attack.FloodConfig{
		Host: o.cfg.Broker.Host,
		Port: o.cfg.Broker.Port,
		Mode: o.cfg.DDoS.Mode,
		Rate: o.cfg.DDoS.Rate,
	}, o.dialer, o.logger)

	if !o.adoptAttack(fl) {
		return
	}
	// Flood failures are contained to the actor and already logged.
	_ = fl.Run(o.cfg.DDoS.Duration)
}

// adoptAttack registers a freshly created attack actor so Stop reaches it.
// It refuses adoption when shutdown has already begun, closing the window
// between a timer firing and stop being signalled.
func (o *Orchestrator) adoptAttack(a stopper) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.State() != StateRunning {
		a.Stop()
		return false
	}
	o.attacks = append(o.attacks, a)
	return true
}

// monitor polls elapsed time until the configured duration passes or the
// simulation is interrupted.
func (o *Orchestrator) monitor(ctx context.Context) {
	duration := o.cfg.Simulation.Duration

	ticker := time.NewTicker(o.PollInterval)
	defer ticker.Stop()
	lastReport := time.Now()

	for {
		select {
		case <-ticker.C:
			elapsed := o.Elapsed()
			if elapsed >= duration {
				o.logger.Info("simulation duration reached", "elapsed", elapsed.Round(time.Second))
				return
			}
			if time.Since(lastReport) >= o.ReportInterval {
				o.logger.Info("simulation running",
					"elapsed", elapsed.Round(time.Second),
					"remaining", (duration - elapsed).Round(time.Second))
				lastReport = time.Now()
			}
		case <-ctx.Done():
			o.logger.Info("simulation interrupted")
			return
		case <-o.stopCh:
			return
		}
	}
}
