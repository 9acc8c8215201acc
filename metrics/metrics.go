// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes process-local Prometheus counters for the
// simulation. Nothing is persisted; the counters exist only for the
// optional /metrics scrape endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// DevicesRunning tracks the number of device actors currently in their
	// publish loop.
	DevicesRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "iotsim_devices_running",
			Help: "Number of simulated devices currently running",
		},
	)

	// DevicePublishes counts telemetry publishes by device category.
	DevicePublishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iotsim_device_publishes_total",
			Help: "Total telemetry messages published by simulated devices",
		},
		[]string{"category"},
	)

	// BruteforceAttempts counts credential-guessing connect attempts.
	BruteforceAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "iotsim_bruteforce_attempts_total",
			Help: "Total credential-guessing connection attempts",
		},
	)

	// FloodOperations counts flood operations by sub-mode.
	FloodOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iotsim_flood_operations_total",
			Help: "Total volumetric-flood operations performed",
		},
		[]string{"mode"},
	)

	// ConnectFailures counts failed broker connections by actor kind.
	ConnectFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iotsim_connect_failures_total",
			Help: "Total failed broker connection attempts",
		},
		[]string{"actor"},
	)
)

func init() {
	// Register metrics with the default registry
	prometheus.MustRegister(DevicesRunning)
	prometheus.MustRegister(DevicePublishes)
	prometheus.MustRegister(BruteforceAttempts)
	prometheus.MustRegister(FloodOperations)
	prometheus.MustRegister(ConnectFailures)
}
