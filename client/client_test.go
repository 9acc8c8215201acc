// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"testing"
	"time"
)

func TestOptionsBrokerURL(t *testing.T) {
	o := Options{Host: "broker.lab", Port: 1883}
	if got := o.BrokerURL(); got != "tcp://broker.lab:1883" {
		t.Errorf("BrokerURL() = %q, want tcp://broker.lab:1883", got)
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr error
	}{
		{
			name: "valid options",
			opts: Options{Host: "localhost", Port: 1883, ClientID: "dev-1"},
		},
		{
			name:    "missing host",
			opts:    Options{Port: 1883, ClientID: "dev-1"},
			wantErr: ErrNoBroker,
		},
		{
			name:    "missing client ID",
			opts:    Options{Host: "localhost", Port: 1883},
			wantErr: ErrEmptyClientID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.validate()
			if err != tt.wantErr {
				t.Errorf("validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDialRejectsInvalidOptions(t *testing.T) {
	d := NewPahoDialer()

	if _, err := d.Dial(Options{Host: "localhost"}); err != ErrEmptyClientID {
		t.Errorf("Dial without client ID = %v, want %v", err, ErrEmptyClientID)
	}
	if _, err := d.Dial(Options{ClientID: "dev-1", ConnectTimeout: time.Second}); err != ErrNoBroker {
		t.Errorf("Dial without host = %v, want %v", err, ErrNoBroker)
	}
}
