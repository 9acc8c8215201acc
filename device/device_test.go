// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/iotsim/client"
	"github.com/absmach/iotsim/testutil"
)

func newTestDevice(dialer client.Dialer) *Device {
	return New(Config{
		ID:          "temperature_1",
		Category:    CategoryTemperature,
		Hardware:    "ESP32",
		Host:        "localhost",
		Port:        1883,
		MinInterval: 5 * time.Millisecond,
		MaxInterval: 10 * time.Millisecond,
	}, dialer, nil)
}

func TestDeviceRunPublishesTelemetry(t *testing.T) {
	dialer := &testutil.FakeDialer{}
	d := newTestDevice(dialer)

	done := make(chan struct{})
	go func() {
		d.Run()
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	d.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("device did not stop in time")
	}

	conns := dialer.Conns()
	require.Len(t, conns, 1, "device owns exactly one connection")
	conn := conns[0]

	pubs := conn.Publishes()
	require.GreaterOrEqual(t, len(pubs), 2, "device should publish repeatedly")
	for _, p := range pubs {
		assert.Equal(t, "iot/sensor/temperature/temperature_1", p.Topic)

		var r Reading
		require.NoError(t, json.Unmarshal(p.Payload, &r))
		assert.Equal(t, "temperature_1", r.Device)
		assert.Equal(t, "°C", r.Unit)
	}

	assert.Contains(t, conn.Subscriptions(), "iot/sensor/temperature/temperature_1/cmd")
	assert.True(t, conn.Disconnected(), "connection released on exit")
	assert.False(t, d.Running())
}

func TestDeviceStopBoundsFurtherPublishes(t *testing.T) {
	dialer := &testutil.FakeDialer{}
	d := newTestDevice(dialer)

	go d.Run()
	time.Sleep(50 * time.Millisecond)

	d.Stop()
	time.Sleep(20 * time.Millisecond)
	after := dialer.Conns()[0].PublishCount()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, dialer.Conns()[0].PublishCount(),
		"no publishes after stop settled")
	assert.False(t, d.Running())
}

func TestDeviceStopIsIdempotent(t *testing.T) {
	dialer := &testutil.FakeDialer{}
	d := newTestDevice(dialer)

	go d.Run()
	time.Sleep(20 * time.Millisecond)

	d.Stop()
	d.Stop()
	assert.False(t, d.Running())
}

func TestDeviceConnectFailureIsContained(t *testing.T) {
	dialer := &testutil.FakeDialer{DialErr: client.ErrConnectFailed}
	d := newTestDevice(dialer)

	done := make(chan struct{})
	go func() {
		d.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("device with failing dialer should exit on its own")
	}
	assert.False(t, d.Running())
	assert.Equal(t, 1, dialer.DialCount())
}

func TestDevicePersistentPublishFailuresEndLoop(t *testing.T) {
	dialer := &testutil.FakeDialer{}
	d := newTestDevice(dialer)

	done := make(chan struct{})
	go func() {
		d.Run()
		close(done)
	}()

	// Let the first dial land, then break the connection.
	time.Sleep(10 * time.Millisecond)
	conns := dialer.Conns()
	require.Len(t, conns, 1)
	conns[0].SetPublishErr(client.ErrPublishFailed)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("device should give up after repeated publish failures")
	}
	assert.False(t, d.Running())
}

func TestDeviceCommandsAreLoggedOnly(t *testing.T) {
	dialer := &testutil.FakeDialer{}
	d := newTestDevice(dialer)

	go d.Run()
	defer d.Stop()
	time.Sleep(20 * time.Millisecond)

	conn := dialer.Conns()[0]
	before := conn.PublishCount()
	require.True(t, conn.Deliver(d.CommandTopic(), []byte("reboot")),
		"device must be subscribed to its command topic")

	// A command must not trigger an immediate publish or any other action.
	assert.LessOrEqual(t, conn.PublishCount(), before+1)
}

func TestDeviceTopics(t *testing.T) {
	d := New(Config{ID: "luminosity_7", Category: CategoryLuminosity, Hardware: "Arduino"},
		&testutil.FakeDialer{}, nil)

	assert.Equal(t, "iot/sensor/luminosity/luminosity_7", d.DataTopic())
	assert.Equal(t, "iot/sensor/luminosity/luminosity_7/cmd", d.CommandTopic())
}
