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

package poller

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/models"
	"github.com/carverauto/presenceradar/pkg/pihole"
)

var testBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testConfig() *Config {
	return &Config{
		Pihole: pihole.Config{
			Host:     "http://pi.hole",
			Password: "secret",
		},
		PollInterval:  models.Duration(30 * time.Second),
		AwayThreshold: models.Duration(15 * time.Minute),
	}
}

func newTestPoller(ctrl *gomock.Controller) (*Poller, *MockClock, *MockDeviceFetcher, *MockReconciler, *MockSink) {
	clock := NewMockClock(ctrl)
	fetcher := NewMockDeviceFetcher(ctrl)
	reconciler := NewMockReconciler(ctrl)
	snk := NewMockSink(ctrl)

	p := New(testConfig(), fetcher, reconciler, []Sink{snk}, clock, logger.NewTestLogger())

	return p, clock, fetcher, reconciler, snk
}

func TestPollPublishesUpdates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p, clock, fetcher, reconciler, snk := newTestPoller(ctrl)

	records := []models.RawDeviceRecord{
		{MAC: "aa:bb:cc:dd:ee:ff", Name: "iphone"},
	}
	updates := []models.PresenceUpdate{
		{Key: "iphone_eeff", Presence: models.PresenceHome, Transitioned: true},
	}

	clock.EXPECT().Now().Return(testBase).AnyTimes()
	fetcher.EXPECT().FetchDevices(gomock.Any()).Return(records, nil)
	reconciler.EXPECT().Merge(records, testBase).Return(updates)
	snk.EXPECT().Publish(gomock.Any(), updates).Return(nil)

	p.poll(context.Background())
}

func TestPollSinkErrorDoesNotAbort(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p, clock, fetcher, reconciler, snk := newTestPoller(ctrl)

	second := NewMockSink(ctrl)
	p.sinks = []Sink{snk, second}

	clock.EXPECT().Now().Return(testBase).AnyTimes()
	fetcher.EXPECT().FetchDevices(gomock.Any()).Return(nil, nil)
	reconciler.EXPECT().Merge(gomock.Any(), testBase).Return(nil)
	snk.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(fmt.Errorf("broker down"))
	second.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	p.poll(context.Background())
}

func TestPollAuthFailureSkipsMergeAndBackoff(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p, _, fetcher, _, _ := newTestPoller(ctrl)

	fetcher.EXPECT().FetchDevices(gomock.Any()).
		Return(nil, fmt.Errorf("auth: %w", pihole.ErrAuthenticationFailed))

	p.poll(context.Background())

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.True(t, p.backoffUntil.IsZero(), "auth failures must not open a backoff window")
}

func TestPollUnreachableBacksOffExponentially(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p, clock, fetcher, _, _ := newTestPoller(ctrl)

	clock.EXPECT().Now().Return(testBase).AnyTimes()
	fetcher.EXPECT().FetchDevices(gomock.Any()).
		Return(nil, fmt.Errorf("dial: %w", pihole.ErrUnreachable)).Times(2)

	p.poll(context.Background())

	p.mu.Lock()
	first := p.backoffUntil
	p.mu.Unlock()
	assert.Equal(t, testBase.Add(30*time.Second), first)

	p.poll(context.Background())

	p.mu.Lock()
	second := p.backoffUntil
	p.mu.Unlock()
	assert.Equal(t, testBase.Add(60*time.Second), second, "retry interval should double")
}

func TestPollSuccessResetsBackoff(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p, clock, fetcher, reconciler, snk := newTestPoller(ctrl)

	clock.EXPECT().Now().Return(testBase).AnyTimes()
	fetcher.EXPECT().FetchDevices(gomock.Any()).
		Return(nil, fmt.Errorf("dial: %w", pihole.ErrUnreachable))

	p.poll(context.Background())

	p.mu.Lock()
	require.False(t, p.backoffUntil.IsZero())
	p.mu.Unlock()

	fetcher.EXPECT().FetchDevices(gomock.Any()).Return(nil, nil)
	reconciler.EXPECT().Merge(gomock.Any(), testBase).Return(nil)
	snk.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	p.poll(context.Background())

	p.mu.Lock()
	assert.True(t, p.backoffUntil.IsZero())
	p.mu.Unlock()

	// After a reset the next failure starts from the base interval again.
	fetcher.EXPECT().FetchDevices(gomock.Any()).
		Return(nil, fmt.Errorf("dial: %w", pihole.ErrUnreachable))

	p.poll(context.Background())

	p.mu.Lock()
	assert.Equal(t, testBase.Add(30*time.Second), p.backoffUntil)
	p.mu.Unlock()
}

func TestDispatchSkipsWhileInFlight(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p, clock, _, _, _ := newTestPoller(ctrl)

	clock.EXPECT().Now().Return(testBase).AnyTimes()

	p.mu.Lock()
	p.polling = true
	p.mu.Unlock()

	// No fetcher expectation: a skipped tick must not reach the appliance.
	p.dispatch(context.Background())
	p.wg.Wait()
}

func TestDispatchSkipsDuringBackoff(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p, clock, _, _, _ := newTestPoller(ctrl)

	clock.EXPECT().Now().Return(testBase).AnyTimes()

	p.mu.Lock()
	p.backoffUntil = testBase.Add(time.Minute)
	p.mu.Unlock()

	p.dispatch(context.Background())
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.False(t, p.polling)
}

func TestDispatchRunsPoll(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p, clock, fetcher, reconciler, snk := newTestPoller(ctrl)

	clock.EXPECT().Now().Return(testBase).AnyTimes()
	fetcher.EXPECT().FetchDevices(gomock.Any()).Return(nil, nil)
	reconciler.EXPECT().Merge(gomock.Any(), testBase).Return(nil)
	snk.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	p.dispatch(context.Background())
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.False(t, p.polling)
}

func TestStartPollsImmediatelyAndOnTicks(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p, clock, fetcher, reconciler, snk := newTestPoller(ctrl)

	ticker := NewMockTicker(ctrl)
	tickCh := make(chan time.Time)

	clock.EXPECT().Now().Return(testBase).AnyTimes()
	clock.EXPECT().Ticker(30 * time.Second).Return(ticker)
	ticker.EXPECT().Chan().Return(tickCh).AnyTimes()
	ticker.EXPECT().Stop()

	polled := make(chan struct{}, 4)
	fetcher.EXPECT().FetchDevices(gomock.Any()).Return(nil, nil).Times(2)
	reconciler.EXPECT().Merge(gomock.Any(), testBase).Return(nil).Times(2)
	snk.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, []models.PresenceUpdate) error {
			polled <- struct{}{}
			return nil
		}).Times(2)

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Start(context.Background())
	}()

	waitForPoll := func() {
		select {
		case <-polled:
		case <-time.After(5 * time.Second):
			t.Error("timed out waiting for poll")
		}
	}

	// waitIdle blocks until the in-flight poll has fully wound down so
	// the next tick cannot be skipped by overlap prevention.
	waitIdle := func() {
		deadline := time.Now().Add(5 * time.Second)
		for {
			p.mu.Lock()
			idle := !p.polling
			p.mu.Unlock()

			if idle {
				return
			}

			if time.Now().After(deadline) {
				t.Fatal("poll never went idle")
			}

			time.Sleep(time.Millisecond)
		}
	}

	waitForPoll()
	waitIdle()
	tickCh <- testBase.Add(30 * time.Second)
	waitForPoll()

	require.NoError(t, p.Stop(context.Background()))

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestStartReturnsOnContextCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p, clock, fetcher, reconciler, snk := newTestPoller(ctrl)

	ticker := NewMockTicker(ctrl)

	clock.EXPECT().Now().Return(testBase).AnyTimes()
	clock.EXPECT().Ticker(gomock.Any()).Return(ticker)
	ticker.EXPECT().Chan().Return(make(chan time.Time)).AnyTimes()
	ticker.EXPECT().Stop()

	fetcher.EXPECT().FetchDevices(gomock.Any()).Return(nil, nil)
	reconciler.EXPECT().Merge(gomock.Any(), testBase).Return(nil)
	snk.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Start(ctx)
	}()

	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}

	// Drain the in-flight poll before the controller verifies calls.
	require.NoError(t, p.Stop(context.Background()))
}
