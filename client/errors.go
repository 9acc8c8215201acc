// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import "errors"

// Client errors.
var (
	// Configuration errors.
	ErrEmptyClientID = errors.New("client ID cannot be empty")
	ErrNoBroker      = errors.New("no broker address configured")

	// Connection errors.
	ErrConnectFailed  = errors.New("connection failed")
	ErrConnectTimeout = errors.New("connection timeout")
	ErrNotConnected   = errors.New("client not connected")

	// Operation errors.
	ErrTimeout         = errors.New("operation timed out")
	ErrPublishFailed   = errors.New("publish failed")
	ErrSubscribeFailed = errors.New("subscription failed")
)
