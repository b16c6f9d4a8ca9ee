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

// Package tracker reconciles appliance device records against known
// state and derives per-device home/away presence.
package tracker

import (
	"sort"
	"time"

	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/models"
)

// Reconciler owns the DeviceKey to DeviceState table for the life of
// the process. Merges are strictly sequential (the poll scheduler never
// overlaps polls), so the table needs no locking.
type Reconciler struct {
	awayThreshold time.Duration
	devices       map[string]*models.DeviceState

	// macIndex pins each MAC to the key minted when the device was
	// first observed, so a rename or IP change never forks a
	// MAC-bearing device into a new tracked entity.
	macIndex map[string]string

	logger logger.Logger
}

// New creates a reconciler. awayThreshold is the inactivity duration
// after which a device not present in a poll is considered away.
func New(awayThreshold time.Duration, log logger.Logger) *Reconciler {
	return &Reconciler{
		awayThreshold: awayThreshold,
		devices:       make(map[string]*models.DeviceState),
		macIndex:      make(map[string]string),
		logger:        log,
	}
}

// Merge reconciles one poll's raw records against known device state
// and returns a presence update for every known device, ordered by
// device key. The merge is all-or-nothing: records are keyed up front
// and state mutation only begins once every record has a key.
func (r *Reconciler) Merge(records []models.RawDeviceRecord, now time.Time) []models.PresenceUpdate {
	keyed := make(map[string]*models.RawDeviceRecord, len(records))

	for i := range records {
		record := &records[i]
		key := r.recordKey(record)

		if prev, ok := keyed[key]; ok {
			// The appliance occasionally reports one physical device
			// twice (e.g. an interface alias); keep the record with
			// the most recent activity.
			if record.LastQuery.Before(prev.LastQuery) {
				continue
			}
		}

		keyed[key] = record
	}

	transitions := make(map[string]bool, len(keyed))

	for key, record := range keyed {
		state, ok := r.devices[key]
		if !ok {
			r.devices[key] = newDeviceState(key, record, now)
			transitions[key] = false

			r.logger.Info().
				Str("device", key).
				Str("mac", record.MAC).
				Msg("New device observed")

			continue
		}

		transitions[key] = false

		updateDeviceState(state, record, now)

		// The appliance's network table retains departed hosts, so
		// appearing in a poll is not evidence of presence by itself;
		// only query recency is.
		if r.isExpired(state, now) {
			if state.Presence == models.PresenceHome {
				state.Presence = models.PresenceAway
				transitions[key] = true

				r.logger.Info().
					Str("device", key).
					Time("last_query", state.LastQuery).
					Msg("Device transitioned to away")
			}
		} else {
			if state.Presence == models.PresenceAway {
				transitions[key] = true
			}

			state.Presence = models.PresenceHome
		}
	}

	// Devices absent from this poll age toward away based on their
	// last recorded activity, never merely because a poll missed them.
	for key, state := range r.devices {
		if _, present := keyed[key]; present {
			continue
		}

		transitions[key] = false

		if state.Presence == models.PresenceHome && r.isExpired(state, now) {
			state.Presence = models.PresenceAway
			transitions[key] = true

			r.logger.Info().
				Str("device", key).
				Time("last_query", state.LastQuery).
				Msg("Device transitioned to away")
		}
	}

	return r.snapshot(transitions, now)
}

// Devices returns a read-only snapshot of current presence for every
// known device, keyed by device key.
func (r *Reconciler) Devices(now time.Time) []models.PresenceUpdate {
	transitions := make(map[string]bool, len(r.devices))
	for key := range r.devices {
		transitions[key] = false
	}

	return r.snapshot(transitions, now)
}

func (r *Reconciler) isExpired(state *models.DeviceState, now time.Time) bool {
	lastActivity := state.LastQuery
	if lastActivity.IsZero() {
		lastActivity = state.LastSeen
	}

	return now.Sub(lastActivity) > r.awayThreshold
}

func (r *Reconciler) snapshot(transitions map[string]bool, now time.Time) []models.PresenceUpdate {
	updates := make([]models.PresenceUpdate, 0, len(transitions))

	for key, transitioned := range transitions {
		state := r.devices[key]

		var secondsAgo int64
		if !state.LastQuery.IsZero() {
			secondsAgo = int64(now.Sub(state.LastQuery).Seconds())
		}

		updates = append(updates, models.PresenceUpdate{
			Key:          key,
			Presence:     state.Presence,
			Transitioned: transitioned,
			Attributes: models.PresenceAttributes{
				Name:                state.Name,
				IPs:                 append([]string(nil), state.IPs...),
				Interface:           state.Interface,
				FirstSeen:           state.FirstSeen,
				LastQuery:           state.LastQuery,
				LastQuerySecondsAgo: secondsAgo,
				NumQueries:          state.NumQueries,
				MACVendor:           state.MACVendor,
				DHCPExpires:         state.DHCPExpires,
			},
		})
	}

	sort.Slice(updates, func(i, j int) bool {
		return updates[i].Key < updates[j].Key
	})

	return updates
}

// recordKey resolves a record to its device key. A MAC seen before
// keeps the key it was first given; everything else derives a fresh
// key from the current name, MAC, and address.
func (r *Reconciler) recordKey(record *models.RawDeviceRecord) string {
	if record.MAC != "" {
		if key, ok := r.macIndex[record.MAC]; ok {
			return key
		}
	}

	ip := ""
	if len(record.IPs) > 0 {
		ip = record.IPs[0]
	}

	key := DeviceKey(record.Name, record.MAC, ip)

	if record.MAC != "" {
		r.macIndex[record.MAC] = key
	}

	return key
}

func newDeviceState(key string, record *models.RawDeviceRecord, now time.Time) *models.DeviceState {
	firstSeen := record.FirstSeen
	if firstSeen.IsZero() {
		firstSeen = now
	}

	lastSeen := record.LastQuery
	if lastSeen.IsZero() {
		lastSeen = now
	}

	state := &models.DeviceState{
		Key:       key,
		Name:      record.Name,
		MAC:       record.MAC,
		IPs:       append([]string(nil), record.IPs...),
		Interface: record.Interface,
		Presence:  models.PresenceHome,
		FirstSeen: firstSeen,
		LastSeen:  lastSeen,
		LastQuery: record.LastQuery,
	}

	if record.NumQueries != nil {
		state.NumQueries = *record.NumQueries
	}

	if record.MAC != "" {
		state.MACVendor = lookupVendor(record.MAC)
	}

	if !record.DHCPExpires.IsZero() {
		state.DHCPExpires = record.DHCPExpires
	}

	return state
}

func updateDeviceState(state *models.DeviceState, record *models.RawDeviceRecord, now time.Time) {
	state.LastSeen = now

	// A record lacking a name never overwrites a known one.
	if record.Name != "" {
		state.Name = record.Name
	}

	// The fresh poll's address set supersedes the stored one; an empty
	// report keeps the previous addresses.
	if len(record.IPs) > 0 {
		state.IPs = append(state.IPs[:0], record.IPs...)
	}

	if record.Interface != "" {
		state.Interface = record.Interface
	}

	if record.NumQueries != nil && *record.NumQueries > state.NumQueries {
		state.NumQueries = *record.NumQueries
	}

	if record.LastQuery.After(state.LastQuery) {
		state.LastQuery = record.LastQuery
	}

	if !record.DHCPExpires.IsZero() {
		state.DHCPExpires = record.DHCPExpires
	}

	// Vendor lookups never change for a fixed MAC; resolve lazily once.
	if state.MACVendor == "" && record.MAC != "" {
		state.MACVendor = lookupVendor(record.MAC)
	}
}
