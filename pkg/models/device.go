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

package models

import (
	"time"
)

// Presence is the binary home/away classification for a device.
type Presence string

const (
	PresenceHome Presence = "home"
	PresenceAway Presence = "away"
)

// RawDeviceRecord is one appliance-reported device as returned by a
// single poll. It is produced fresh each poll and never retained.
// Absent fields stay at their zero value; zero time.Time means the
// appliance reported no data, which is distinct from zero activity.
type RawDeviceRecord struct {
	MAC         string    `json:"mac,omitempty"`
	IPs         []string  `json:"ips"`
	Name        string    `json:"name,omitempty"`
	Interface   string    `json:"interface,omitempty"`
	FirstSeen   time.Time `json:"first_seen,omitempty"`
	LastQuery   time.Time `json:"last_query,omitempty"`
	NumQueries  *int64    `json:"num_queries,omitempty"`
	DHCPExpires time.Time `json:"dhcp_expires,omitempty"`
}

// DeviceState is the tracked state for one device key. It is created on
// first observation and mutated in place on every later poll reporting
// the same key; it is never deleted for the life of the process.
type DeviceState struct {
	Key         string    `json:"key"`
	Name        string    `json:"name,omitempty"`
	MAC         string    `json:"mac,omitempty"`
	IPs         []string  `json:"ips"`
	Interface   string    `json:"interface,omitempty"`
	Presence    Presence  `json:"presence"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	LastQuery   time.Time `json:"last_query,omitempty"`
	NumQueries  int64     `json:"num_queries"`
	MACVendor   string    `json:"mac_vendor,omitempty"`
	DHCPExpires time.Time `json:"dhcp_expires,omitempty"`
}

// PresenceUpdate is the record delivered to a presence sink for one
// device after a merge. Transitioned marks an actual home/away toggle;
// non-transition updates are snapshot refreshes the sink may suppress.
type PresenceUpdate struct {
	Key          string             `json:"key"`
	Presence     Presence           `json:"presence"`
	Transitioned bool               `json:"transitioned"`
	Attributes   PresenceAttributes `json:"attributes"`
}

// PresenceAttributes is the descriptive attribute set published with
// every presence update.
type PresenceAttributes struct {
	Name                string    `json:"name,omitempty"`
	IPs                 []string  `json:"ips"`
	Interface           string    `json:"interface,omitempty"`
	FirstSeen           time.Time `json:"first_seen"`
	LastQuery           time.Time `json:"last_query,omitempty"`
	LastQuerySecondsAgo int64     `json:"last_query_seconds_ago"`
	NumQueries          int64     `json:"num_queries"`
	MACVendor           string    `json:"mac_vendor,omitempty"`
	DHCPExpires         time.Time `json:"dhcp_expires,omitempty"`
}
