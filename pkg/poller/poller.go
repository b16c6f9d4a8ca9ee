/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package poller drives the fetch/merge/publish cycle on a fixed
// interval with overlap prevention and capped exponential backoff on
// appliance failures.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/pihole"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	stopTimeout = 10 * time.Second

	// backoffCeiling holds the retry interval once doubling reaches it.
	backoffCeiling = 10 * time.Minute
)

// Poller runs the poll loop. Ticks are strictly sequential: a tick that
// arrives while a poll is still in flight is skipped, so no two
// fetch/merge cycles ever execute concurrently.
type Poller struct {
	config     Config
	fetcher    DeviceFetcher
	reconciler Reconciler
	sinks      []Sink
	clock      Clock
	logger     logger.Logger

	ticker    Ticker
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu           sync.Mutex
	polling      bool
	backoffUntil time.Time
	retry        *backoff.ExponentialBackOff
}

// New creates a poller. A nil clock defaults to the real clock.
func New(config *Config, fetcher DeviceFetcher, reconciler Reconciler, sinks []Sink, clock Clock, log logger.Logger) *Poller {
	if clock == nil {
		clock = realClock{}
	}

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = time.Duration(config.PollInterval)
	retry.Multiplier = 2
	retry.MaxInterval = backoffCeiling
	retry.RandomizationFactor = 0
	retry.Reset()

	return &Poller{
		config:     *config,
		fetcher:    fetcher,
		reconciler: reconciler,
		sinks:      sinks,
		clock:      clock,
		logger:     log,
		done:       make(chan struct{}),
		retry:      retry,
	}
}

// Start runs the poll loop until ctx is cancelled or Stop is called.
// The first poll runs immediately; later polls follow the fixed
// interval.
func (p *Poller) Start(ctx context.Context) error {
	interval := time.Duration(p.config.PollInterval)
	p.ticker = p.clock.Ticker(interval)

	defer p.ticker.Stop()

	p.logger.Info().Dur("interval", interval).Msg("Starting poller")

	p.wg.Add(1)
	defer p.wg.Done()

	p.dispatch(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return nil
		case <-p.ticker.Chan():
			p.dispatch(ctx)
		}
	}
}

// Stop shuts the poller down, allowing any in-flight poll a bounded
// window to complete.
func (p *Poller) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()

	p.closeOnce.Do(func() { close(p.done) })

	finished := make(chan struct{})

	go func() {
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch starts one poll in the background unless a poll is already
// in flight or the failure backoff window is still open.
func (p *Poller) dispatch(ctx context.Context) {
	now := p.clock.Now()

	p.mu.Lock()

	if p.polling {
		p.mu.Unlock()
		p.logger.Warn().Msg("Previous poll still in flight, skipping tick")

		return
	}

	if now.Before(p.backoffUntil) {
		p.mu.Unlock()
		p.logger.Debug().Time("until", p.backoffUntil).Msg("Backing off, skipping tick")

		return
	}

	p.polling = true
	p.mu.Unlock()

	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			p.polling = false
			p.mu.Unlock()
		}()

		p.poll(ctx)
	}()
}

// poll runs one fetch/merge/publish cycle. Every appliance failure is
// contained here: the tick is reported failed and device presence stays
// frozen at its last known value until the appliance answers again.
func (p *Poller) poll(ctx context.Context) {
	cycleID := uuid.New().String()
	log := p.logger.With().Str("cycle_id", cycleID).Logger()

	records, err := p.fetcher.FetchDevices(ctx)
	if err != nil {
		p.handleFailure(&log, err)
		return
	}

	now := p.clock.Now()
	updates := p.reconciler.Merge(records, now)

	p.mu.Lock()
	p.backoffUntil = time.Time{}
	p.retry.Reset()
	p.mu.Unlock()

	log.Debug().
		Int("records", len(records)).
		Int("updates", len(updates)).
		Msg("Poll cycle completed")

	for _, s := range p.sinks {
		if err := s.Publish(ctx, updates); err != nil {
			log.Error().Err(err).Msg("Failed to publish presence updates")
		}
	}
}

func (p *Poller) handleFailure(log *zerolog.Logger, err error) {
	switch {
	case errors.Is(err, pihole.ErrAuthenticationFailed):
		// Not retried with backoff; the next scheduled tick makes one
		// fresh session attempt.
		log.Error().Err(err).Msg("Appliance authentication failed, pausing until next tick")
	case errors.Is(err, pihole.ErrUnreachable):
		delay := p.retry.NextBackOff()

		p.mu.Lock()
		p.backoffUntil = p.clock.Now().Add(delay)
		p.mu.Unlock()

		log.Warn().Err(err).Dur("retry_in", delay).Msg("Appliance unreachable, backing off")
	default:
		log.Error().Err(err).Msg("Poll failed, device state unchanged")
	}
}
