// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package client wraps the MQTT connect/publish/subscribe/disconnect
// primitives used by the simulation actors. Every actor owns its own
// connections; the package never shares a Conn between goroutines it did
// not hand it to.
package client

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Default values.
const (
	DefaultKeepAlive      = 60 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultOpTimeout      = 5 * time.Second

	// Quiesce window handed to paho on disconnect, in milliseconds.
	disconnectQuiesce = 250
)

// MessageHandler is invoked for messages arriving on a subscribed topic.
type MessageHandler func(topic string, payload []byte)

// Conn is a single live broker connection. A Conn is owned by exactly one
// actor for its whole lifetime.
type Conn interface {
	// Publish sends a QoS 0 message to the given topic.
	Publish(topic string, payload []byte) error

	// Subscribe registers a handler for the given topic.
	Subscribe(topic string, h MessageHandler) error

	// Disconnect closes the connection. It never fails; calling it on an
	// already closed connection is a no-op.
	Disconnect()
}

// Dialer opens broker connections.
type Dialer interface {
	Dial(o Options) (Conn, error)
}

// Options configures a single connection attempt. Credentials are applied
// before the connect handshake.
type Options struct {
	Host           string
	Port           int
	ClientID       string
	Username       string
	Password       string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
}

// BrokerURL returns the paho broker URL for the target endpoint.
func (o Options) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", o.Host, o.Port)
}

func (o Options) validate() error {
	if o.Host == "" {
		return ErrNoBroker
	}
	if o.ClientID == "" {
		return ErrEmptyClientID
	}
	return nil
}

// PahoDialer dials brokers with the Eclipse Paho MQTT client.
type PahoDialer struct {
	// OpTimeout bounds publish and subscribe acknowledgements on the
	// connections this dialer opens. Zero means DefaultOpTimeout.
	OpTimeout time.Duration
}

// NewPahoDialer returns a Dialer backed by paho.mqtt.golang.
func NewPahoDialer() *PahoDialer {
	return &PahoDialer{}
}

// Dial connects to the broker described by o. Reconnection is left off:
// actors decide themselves whether a lost connection is fatal.
func (d *PahoDialer) Dial(o Options) (Conn, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}

	keepAlive := o.KeepAlive
	if keepAlive == 0 {
		keepAlive = DefaultKeepAlive
	}
	connectTimeout := o.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = DefaultConnectTimeout
	}

	opts := paho.NewClientOptions().
		AddBroker(o.BrokerURL()).
		SetClientID(o.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetKeepAlive(keepAlive).
		SetConnectTimeout(connectTimeout)

	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	c := paho.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, ErrConnectTimeout
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	opTimeout := d.OpTimeout
	if opTimeout == 0 {
		opTimeout = DefaultOpTimeout
	}
	return &pahoConn{client: c, opTimeout: opTimeout}, nil
}

type pahoConn struct {
	client    paho.Client
	opTimeout time.Duration
}

func (c *pahoConn) Publish(topic string, payload []byte) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(c.opTimeout) {
		return fmt.Errorf("%w: publish to %s", ErrTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	return nil
}

func (c *pahoConn) Subscribe(topic string, h MessageHandler) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Subscribe(topic, 0, func(_ paho.Client, msg paho.Message) {
		h(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(c.opTimeout) {
		return fmt.Errorf("%w: subscribe to %s", ErrTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrSubscribeFailed, err)
	}
	return nil
}

func (c *pahoConn) Disconnect() {
	c.client.Disconnect(disconnectQuiesce)
}
