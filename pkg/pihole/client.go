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

// Package pihole provides a typed client for the Pi-hole v6 management
// API: session handling, the network device table, and DHCP leases.
package pihole

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/models"
)

const sidHeader = "X-FTL-SID"

// Client issues typed fetch operations against the appliance using an
// authenticated session. It performs no internal retries beyond the
// single transparent re-authentication on an expired session; retry
// policy belongs to the poll scheduler.
type Client struct {
	baseURL      string
	sessions     SessionProvider
	httpClient   HTTPClient
	maxDevices   int
	maxAddresses int
	logger       logger.Logger
}

// NewClient creates an appliance client. If httpClient is nil a default
// client with a request timeout is used.
func NewClient(cfg *Config, sessions SessionProvider, httpClient HTTPClient, log logger.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	maxDevices := cfg.MaxDevices
	if maxDevices <= 0 {
		maxDevices = defaultMaxDevices
	}

	maxAddresses := cfg.MaxAddresses
	if maxAddresses <= 0 {
		maxAddresses = defaultMaxAddresses
	}

	return &Client{
		baseURL:      NormalizeHost(cfg.Host),
		sessions:     sessions,
		httpClient:   httpClient,
		maxDevices:   maxDevices,
		maxAddresses: maxAddresses,
		logger:       log,
	}
}

// FetchDevices fetches the appliance network table and DHCP lease table,
// joins them by MAC then IP, and returns normalized device records.
func (c *Client) FetchDevices(ctx context.Context) ([]models.RawDeviceRecord, error) {
	devicesPath := fmt.Sprintf("/api/network/devices?max_devices=%d&max_addresses=%d",
		c.maxDevices, c.maxAddresses)

	var devicesResp networkDevicesResponse

	if err := c.getJSON(ctx, devicesPath, &devicesResp); err != nil {
		return nil, err
	}

	leases, err := c.fetchLeases(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]models.RawDeviceRecord, 0, len(devicesResp.Devices))

	for i := range devicesResp.Devices {
		record, ok := normalizeDevice(&devicesResp.Devices[i], leases)
		if !ok {
			continue
		}

		records = append(records, record)
	}

	c.logger.Debug().
		Int("devices", len(records)).
		Int("leases", len(leases.Leases)).
		Msg("Fetched appliance device table")

	return records, nil
}

// TestConnection verifies host and credentials by establishing a session
// and fetching the network table once.
func (c *Client) TestConnection(ctx context.Context) error {
	var devicesResp networkDevicesResponse

	return c.getJSON(ctx, "/api/network/devices?max_devices=1&max_addresses=1", &devicesResp)
}

// fetchLeases returns the DHCP lease table. An appliance that does not
// serve DHCP answers 404; that is treated as an empty table, not a
// failure.
func (c *Client) fetchLeases(ctx context.Context) (*leasesResponse, error) {
	var leases leasesResponse

	err := c.getJSON(ctx, "/api/dhcp/leases", &leases)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return &leasesResponse{}, nil
		}

		return nil, err
	}

	return &leases, nil
}

// getJSON performs an authenticated GET and decodes the JSON response.
// A 401 invalidates the cached session and retries once with a fresh
// one; a second rejection surfaces as an authentication failure.
func (c *Client) getJSON(ctx context.Context, path string, dst interface{}) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drainAndClose(resp)

		c.logger.Debug().Err(ErrSessionExpired).Str("path", path).
			Msg("Re-authenticating")
		c.sessions.Invalidate()

		resp, err = c.get(ctx, path)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusUnauthorized {
			drainAndClose(resp)
			return fmt.Errorf("%w: fresh session rejected", ErrAuthenticationFailed)
		}
	}

	defer drainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode, path: path}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrMalformedResponse, path, err)
	}

	return nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	session, err := c.sessions.EnsureSession(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")

	if session.SID != "" {
		req.Header.Set(sidHeader, session.SID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, err)
	}

	return resp, nil
}

// statusError carries a non-200 response so callers can branch on the
// status code while errors.Is still matches the taxonomy sentinel.
type statusError struct {
	code int
	path string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d from %s", e.code, e.path)
}

func (*statusError) Is(target error) bool {
	return target == errUnexpectedStatusCode
}

func isStatus(err error, code int) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return false
	}

	return se.code == code
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// normalizeDevice converts one appliance network-table entry to a raw
// device record, joining in its DHCP lease. Entries with neither a MAC
// nor any IP address cannot be keyed and are dropped.
func normalizeDevice(dev *networkDevice, leases *leasesResponse) (models.RawDeviceRecord, bool) {
	mac := normalizeMAC(dev.HWAddr)

	ips := make([]string, 0, len(dev.IPs))
	name := ""

	for _, addr := range dev.IPs {
		if addr.IP == "" {
			continue
		}

		ips = append(ips, addr.IP)

		if name == "" && addr.Name != "" {
			name = addr.Name
		}
	}

	if mac == "" && len(ips) == 0 {
		return models.RawDeviceRecord{}, false
	}

	record := models.RawDeviceRecord{
		MAC:        mac,
		IPs:        ips,
		Name:       name,
		Interface:  dev.Interface,
		NumQueries: dev.NumQueries,
	}

	if dev.FirstSeen > 0 {
		record.FirstSeen = time.Unix(dev.FirstSeen, 0)
	}

	if dev.LastQuery > 0 {
		record.LastQuery = time.Unix(dev.LastQuery, 0)
	}

	if lease := matchLease(leases, mac, ips); lease != nil {
		if record.Name == "" && lease.Name != "" {
			record.Name = lease.Name
		}

		if lease.Expires > 0 {
			record.DHCPExpires = time.Unix(lease.Expires, 0)
		}
	}

	return record, true
}

// matchLease finds the lease for a device by MAC first, then by IP.
func matchLease(leases *leasesResponse, mac string, ips []string) *dhcpLease {
	for i := range leases.Leases {
		if mac != "" && normalizeMAC(leases.Leases[i].HWAddr) == mac {
			return &leases.Leases[i]
		}
	}

	for i := range leases.Leases {
		for _, ip := range ips {
			if leases.Leases[i].IP == ip {
				return &leases.Leases[i]
			}
		}
	}

	return nil
}

// normalizeMAC lower-cases a hardware address and discards placeholder
// all-zero addresses the appliance reports for some interfaces.
func normalizeMAC(hwaddr string) string {
	mac := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(hwaddr), "-", ":"))
	if mac == "" || mac == "00:00:00:00:00:00" || strings.HasPrefix(mac, "ip-") {
		return ""
	}

	return mac
}
