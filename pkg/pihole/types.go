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

package pihole

import (
	"strings"
	"time"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxDevices   = 999
	defaultMaxAddresses = 24
)

// Config holds the appliance connection settings.
type Config struct {
	Host         string `json:"host"`
	Password     string `json:"password,omitempty" sensitive:"true"`
	MaxDevices   int    `json:"max_devices,omitempty"`
	MaxAddresses int    `json:"max_addresses,omitempty"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errHostRequired
	}

	if c.MaxDevices <= 0 {
		c.MaxDevices = defaultMaxDevices
	}

	if c.MaxAddresses <= 0 {
		c.MaxAddresses = defaultMaxAddresses
	}

	return nil
}

// NormalizeHost strips any scheme and trailing slash from a configured
// host and returns a usable http base URL.
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimSuffix(host, "/")

	return "http://" + host
}

// Session is an authenticated appliance session. It is held only in
// memory and never persisted across restarts.
type Session struct {
	SID       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Valid reports whether the session can still be presented to the
// appliance at the given instant.
func (s *Session) Valid(now time.Time) bool {
	if s == nil {
		return false
	}

	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// authResponse is the appliance reply to POST /api/auth.
type authResponse struct {
	Session struct {
		Valid    bool   `json:"valid"`
		SID      string `json:"sid"`
		Validity int64  `json:"validity"` // seconds
	} `json:"session"`
}

// networkDevicesResponse is the appliance network table,
// GET /api/network/devices.
type networkDevicesResponse struct {
	Devices []networkDevice `json:"devices"`
}

type networkDevice struct {
	ID         int64             `json:"id"`
	HWAddr     string            `json:"hwaddr"`
	Interface  string            `json:"interface"`
	FirstSeen  int64             `json:"firstSeen"` // unix seconds
	LastQuery  int64             `json:"lastQuery"` // unix seconds, 0 = never
	NumQueries *int64            `json:"numQueries"`
	IPs        []networkDeviceIP `json:"ips"`
}

type networkDeviceIP struct {
	IP       string `json:"ip"`
	Name     string `json:"name"`
	LastSeen int64  `json:"lastSeen"`
}

// leasesResponse is the appliance DHCP lease table, GET /api/dhcp/leases.
type leasesResponse struct {
	Leases []dhcpLease `json:"leases"`
}

type dhcpLease struct {
	Expires int64  `json:"expires"` // unix seconds, 0 = static lease
	HWAddr  string `json:"hwaddr"`
	IP      string `json:"ip"`
	Name    string `json:"name"`
}
