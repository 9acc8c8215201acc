// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package sim

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/iotsim/config"
	"github.com/absmach/iotsim/testutil"
)

// fastOrchestrator builds an orchestrator with millisecond-scale timing so
// full simulations finish quickly.
func fastOrchestrator(cfg *config.Config, dialer *testutil.FakeDialer) *Orchestrator {
	o := New(cfg, dialer, nil)
	o.StabilizationDelay = 5 * time.Millisecond
	o.PollInterval = 10 * time.Millisecond
	o.ReportInterval = 50 * time.Millisecond
	o.DeviceMinInterval = 10 * time.Millisecond
	o.DeviceMaxInterval = 20 * time.Millisecond
	return o
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "stopped", StateStopped.String())
}

func TestSimulationDevicesOnly(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.Duration = 200 * time.Millisecond
	cfg.Simulation.Devices = 2

	dialer := &testutil.FakeDialer{}
	o := fastOrchestrator(cfg, dialer)

	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, StateStopped, o.State())
	assert.Equal(t, 2, o.DeviceCount())

	// One connection per device, nothing else dialed.
	conns := dialer.Conns()
	require.Len(t, conns, 2)
	for _, c := range conns {
		assert.GreaterOrEqual(t, c.PublishCount(), 2,
			"each device publishes repeatedly over the run")
		assert.True(t, c.Disconnected())
	}
	for _, opt := range dialer.Dials() {
		assert.Empty(t, opt.Username, "no attack dials in a devices-only run")
	}
	for _, d := range o.Devices() {
		assert.False(t, d.Running())
	}
}

func TestDeviceIdentities(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.Duration = 50 * time.Millisecond
	cfg.Simulation.Devices = 10

	o := fastOrchestrator(cfg, &testutil.FakeDialer{})
	o.createDevices()

	devices := o.Devices()
	require.Len(t, devices, 10)
	for i, d := range devices {
		// "{category}_{sequence}", sequence in creation order.
		parts := strings.SplitN(d.ID(), "_", 2)
		require.Len(t, parts, 2, "device ID %q", d.ID())
		assert.Contains(t, []string{"temperature", "humidity", "luminosity"}, parts[0])
		assert.Equal(t, fmt.Sprintf("%d", i+1), parts[1])
		assert.Contains(t, d.DataTopic(), parts[0])
	}
}

func TestBruteforceScheduledAtQuarterOffset(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.Duration = 400 * time.Millisecond
	cfg.Simulation.Devices = 0
	cfg.Bruteforce.Enabled = true
	cfg.Bruteforce.Rate = 200
	cfg.Bruteforce.Duration = 150 * time.Millisecond

	dialer := &testutil.FakeDialer{}
	o := fastOrchestrator(cfg, dialer)

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()

	// 25% of 400ms = 100ms from start; well before that nothing has dialed.
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, dialer.DialCount(), "no attack before its offset")

	require.NoError(t, <-done)

	dials := dialer.Dials()
	require.NotEmpty(t, dials, "bruteforce ran after its offset")
	for _, d := range dials {
		assert.Equal(t, "admin", d.Username)
		assert.True(t, strings.HasPrefix(d.ClientID, "bruteforce_"))
	}
	assert.Equal(t, StateStopped, o.State())
}

func TestPublishFloodSetupFailureDoesNotAffectRun(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.Duration = 200 * time.Millisecond
	cfg.Simulation.Devices = 1
	cfg.DDoS.Enabled = true
	cfg.DDoS.Mode = config.FloodModePublish
	cfg.DDoS.Rate = 50
	cfg.DDoS.Duration = 50 * time.Millisecond

	// Every dial fails: the device fails soft, the flood pool comes up
	// empty and aborts, and the orchestrator still runs to completion.
	dialer := &testutil.FakeDialer{DialErr: assert.AnError}
	o := fastOrchestrator(cfg, dialer)

	start := time.Now()
	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, StateStopped, o.State())
	assert.GreaterOrEqual(t, time.Since(start), cfg.Simulation.Duration,
		"actor faults must not shorten the simulation")
}

func TestStopIsIdempotent(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.Duration = 10 * time.Second
	cfg.Simulation.Devices = 2

	dialer := &testutil.FakeDialer{}
	o := fastOrchestrator(cfg, dialer)

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()
	time.Sleep(50 * time.Millisecond)

	o.Stop()
	o.Stop()

	require.NoError(t, <-done)
	assert.Equal(t, StateStopped, o.State())
	for _, c := range dialer.Conns() {
		assert.True(t, c.Disconnected())
	}
}

func TestStopCancelsPendingAttackActivation(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.Duration = 10 * time.Second // bruteforce would fire at 2.5s
	cfg.Simulation.Devices = 0
	cfg.Bruteforce.Enabled = true
	cfg.Bruteforce.Rate = 100

	dialer := &testutil.FakeDialer{}
	o := fastOrchestrator(cfg, dialer)

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()
	time.Sleep(50 * time.Millisecond)

	o.Stop()
	require.NoError(t, <-done)

	// The pending activation must never fire after shutdown.
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, dialer.DialCount(), "stop before the offset prevents the attack")
}

func TestContextCancellationStopsSimulation(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.Duration = 10 * time.Second
	cfg.Simulation.Devices = 1

	dialer := &testutil.FakeDialer{}
	o := fastOrchestrator(cfg, dialer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not react to context cancellation")
	}
	assert.Equal(t, StateStopped, o.State())
}

func TestRunTwiceFails(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.Duration = 50 * time.Millisecond
	cfg.Simulation.Devices = 0

	o := fastOrchestrator(cfg, &testutil.FakeDialer{})
	require.NoError(t, o.Run(context.Background()))

	assert.ErrorIs(t, o.Run(context.Background()), ErrAlreadyStarted)
}

func TestAttackDelayClampsToZero(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.Duration = time.Second

	o := New(cfg, &testutil.FakeDialer{}, nil)
	o.startedNano.Store(time.Now().Add(-10 * time.Second).UnixNano())

	assert.Zero(t, o.attackDelay(0.25), "elapsed past the offset means immediate start")
}
