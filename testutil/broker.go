// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides an in-memory fake broker dialer for tests.
package testutil

import (
	"sync"

	"github.com/absmach/iotsim/client"
)

// PublishRecord is one recorded publish call.
type PublishRecord struct {
	Topic   string
	Payload []byte
}

// FakeDialer implements client.Dialer against an in-memory broker. It
// records every dial and hands out FakeConns that record their traffic.
type FakeDialer struct {
	mu    sync.Mutex
	dials []client.Options
	conns []*FakeConn

	// DialErr, when set, fails every dial.
	DialErr error

	// FailFirst fails the first N dials before DialErr/success handling.
	FailFirst int

	failed int
}

// Dial implements client.Dialer.
func (d *FakeDialer) Dial(o client.Options) (client.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials = append(d.dials, o)

	if d.failed < d.FailFirst {
		d.failed++
		return nil, client.ErrConnectFailed
	}
	if d.DialErr != nil {
		return nil, d.DialErr
	}

	conn := &FakeConn{opts: o, handlers: make(map[string]client.MessageHandler)}
	d.conns = append(d.conns, conn)
	return conn, nil
}

// Dials returns a copy of all recorded dial options.
func (d *FakeDialer) Dials() []client.Options {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]client.Options, len(d.dials))
	copy(out, d.dials)
	return out
}

// DialCount returns the number of dial attempts, including failed ones.
func (d *FakeDialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

// Conns returns all successfully established connections.
func (d *FakeDialer) Conns() []*FakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*FakeConn, len(d.conns))
	copy(out, d.conns)
	return out
}

// FakeConn is an in-memory connection recording publishes and
// subscriptions.
type FakeConn struct {
	mu           sync.Mutex
	opts         client.Options
	publishes    []PublishRecord
	handlers     map[string]client.MessageHandler
	disconnected bool
	publishErr   error
	subscribeErr error
}

// SetPublishErr makes every subsequent publish fail with err.
func (c *FakeConn) SetPublishErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishErr = err
}

// SetSubscribeErr makes every subsequent subscribe fail with err.
func (c *FakeConn) SetSubscribeErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribeErr = err
}

// Options returns the dial options this connection was opened with.
func (c *FakeConn) Options() client.Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// Publish implements client.Conn.
func (c *FakeConn) Publish(topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disconnected {
		return client.ErrNotConnected
	}
	if c.publishErr != nil {
		return c.publishErr
	}
	p := make([]byte, len(payload))
	copy(p, payload)
	c.publishes = append(c.publishes, PublishRecord{Topic: topic, Payload: p})
	return nil
}

// Subscribe implements client.Conn.
func (c *FakeConn) Subscribe(topic string, h client.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disconnected {
		return client.ErrNotConnected
	}
	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	c.handlers[topic] = h
	return nil
}

// Disconnect implements client.Conn.
func (c *FakeConn) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

// Deliver invokes the handler registered for topic, simulating an inbound
// message from the broker. It reports whether a handler was registered.
func (c *FakeConn) Deliver(topic string, payload []byte) bool {
	c.mu.Lock()
	h, ok := c.handlers[topic]
	c.mu.Unlock()
	if !ok {
		return false
	}
	h(topic, payload)
	return true
}

// Publishes returns a copy of all recorded publishes.
func (c *FakeConn) Publishes() []PublishRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PublishRecord, len(c.publishes))
	copy(out, c.publishes)
	return out
}

// PublishCount returns the number of successful publishes.
func (c *FakeConn) PublishCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.publishes)
}

// Subscriptions returns the topics this connection subscribed to.
func (c *FakeConn) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.handlers))
	for topic := range c.handlers {
		out = append(out, topic)
	}
	return out
}

// Disconnected reports whether Disconnect has been called.
func (c *FakeConn) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}
