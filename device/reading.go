// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"math"
	"math/rand"
	"time"
)

// Device categories.
const (
	CategoryTemperature = "temperature"
	CategoryHumidity    = "humidity"
	CategoryLuminosity  = "luminosity"
)

// Categories lists the sensor categories a simulated device can emulate.
var Categories = []string{CategoryTemperature, CategoryHumidity, CategoryLuminosity}

// HardwareTypes lists the hardware labels assigned to simulated devices.
var HardwareTypes = []string{"Raspberry Pi", "ESP32", "Arduino", "ESP8266"}

// Reading is the telemetry record a device publishes. Timestamp is seconds
// since the Unix epoch, fractional.
type Reading struct {
	Device    string  `json:"device"`
	Type      string  `json:"type"`
	Hardware  string  `json:"hardware"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Timestamp float64 `json:"timestamp"`
}

// newReading generates a synthetic reading for the given category. Value
// ranges per category: temperature [15,30] °C, humidity [30,70] %,
// luminosity [0,1000] lux, anything else [0,100] arbitrary units.
func newReading(id, category, hardware string, rng *rand.Rand) Reading {
	var value float64
	var unit string

	switch category {
	case CategoryTemperature:
		value = round2(15 + rng.Float64()*15)
		unit = "°C"
	case CategoryHumidity:
		value = round2(30 + rng.Float64()*40)
		unit = "%"
	case CategoryLuminosity:
		value = float64(rng.Intn(1001))
		unit = "lux"
	default:
		value = float64(rng.Intn(101))
		unit = "units"
	}

	return Reading{
		Device:    id,
		Type:      category,
		Hardware:  hardware,
		Value:     value,
		Unit:      unit,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
