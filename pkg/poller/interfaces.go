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

//go:generate mockgen -destination=mock_poller.go -package=poller github.com/carverauto/presenceradar/pkg/poller Clock,Ticker,DeviceFetcher,Reconciler,Sink

import (
	"context"
	"time"

	"github.com/carverauto/presenceradar/pkg/models"
)

// Clock abstracts time-related operations.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) Ticker
}

// Ticker abstracts the ticker behavior.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// DeviceFetcher fetches the appliance's device records for one poll.
type DeviceFetcher interface {
	FetchDevices(ctx context.Context) ([]models.RawDeviceRecord, error)
}

// Reconciler merges one poll's records into device state and reports
// presence updates.
type Reconciler interface {
	Merge(records []models.RawDeviceRecord, now time.Time) []models.PresenceUpdate
}

// Sink receives the presence updates produced by each successful poll.
type Sink interface {
	Publish(ctx context.Context, updates []models.PresenceUpdate) error
}
