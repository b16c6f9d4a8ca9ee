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
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/presenceradar/pkg/logger"
)

// fakeAppliance is an in-memory Pi-hole v6 API for client tests.
type fakeAppliance struct {
	authCalls    atomic.Int64
	sessionSeq   atomic.Int64
	devicesJSON  string
	leasesJSON   string
	leasesStatus int

	// rejectFirstDeviceCalls answers 401 to that many device requests
	// before accepting the presented session.
	rejectFirstDeviceCalls atomic.Int64

	currentSID atomic.Value // string
}

func newFakeAppliance(t *testing.T) *fakeAppliance {
	t.Helper()

	f := &fakeAppliance{
		devicesJSON: `{"devices":[]}`,
		leasesJSON:  `{"leases":[]}`,
	}
	f.currentSID.Store("")

	return f
}

func (f *fakeAppliance) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth", func(w http.ResponseWriter, _ *http.Request) {
		f.authCalls.Add(1)
		sid := fmt.Sprintf("sid-%d", f.sessionSeq.Add(1))
		f.currentSID.Store(sid)
		fmt.Fprintf(w, `{"session":{"valid":true,"sid":%q,"validity":300}}`, sid)
	})

	mux.HandleFunc("GET /api/network/devices", func(w http.ResponseWriter, r *http.Request) {
		if f.rejectFirstDeviceCalls.Load() > 0 {
			f.rejectFirstDeviceCalls.Add(-1)
			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		if r.Header.Get(sidHeader) != f.currentSID.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		fmt.Fprint(w, f.devicesJSON)
	})

	mux.HandleFunc("GET /api/dhcp/leases", func(w http.ResponseWriter, r *http.Request) {
		if f.leasesStatus != 0 {
			w.WriteHeader(f.leasesStatus)
			return
		}

		if r.Header.Get(sidHeader) != f.currentSID.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		fmt.Fprint(w, f.leasesJSON)
	})

	return mux
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()

	cfg := &Config{Host: srv.URL, Password: "secret"}
	log := logger.NewTestLogger()
	sessions := NewSessionManager(cfg, nil, log)

	return NewClient(cfg, sessions, nil, log)
}

func TestFetchDevicesJoinsLeases(t *testing.T) {
	now := time.Now().Unix()
	numQueries := int64(1234)

	f := newFakeAppliance(t)
	f.devicesJSON = fmt.Sprintf(`{"devices":[
		{"id":1,"hwaddr":"AA:BB:CC:DD:EE:FF","interface":"eth0",
		 "firstSeen":%d,"lastQuery":%d,"numQueries":%d,
		 "ips":[{"ip":"192.168.1.20","name":"iphone","lastSeen":%d},
		        {"ip":"fe80::1","name":"","lastSeen":%d}]},
		{"id":2,"hwaddr":"11-22-33-44-55-66","interface":"eth0",
		 "firstSeen":%d,"lastQuery":0,"numQueries":0,"ips":[]}
	]}`, now-3600, now-10, numQueries, now-10, now-10, now-7200)
	f.leasesJSON = fmt.Sprintf(`{"leases":[
		{"expires":%d,"hwaddr":"aa:bb:cc:dd:ee:ff","ip":"192.168.1.20","name":"lease-name"},
		{"expires":%d,"hwaddr":"11:22:33:44:55:66","ip":"192.168.1.21","name":"printer"}
	]}`, now+3600, now+3600)

	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	records, err := newTestClient(t, srv).FetchDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", first.MAC)
	assert.Equal(t, []string{"192.168.1.20", "fe80::1"}, first.IPs)
	assert.Equal(t, "iphone", first.Name, "hostname from the network table wins over the lease name")
	assert.Equal(t, "eth0", first.Interface)
	assert.Equal(t, time.Unix(now-3600, 0), first.FirstSeen)
	assert.Equal(t, time.Unix(now-10, 0), first.LastQuery)
	require.NotNil(t, first.NumQueries)
	assert.Equal(t, numQueries, *first.NumQueries)
	assert.Equal(t, time.Unix(now+3600, 0), first.DHCPExpires)

	second := records[1]
	assert.Equal(t, "11:22:33:44:55:66", second.MAC, "dashed MACs are normalized")
	assert.Equal(t, "printer", second.Name, "lease name fills in a missing hostname")
	assert.True(t, second.LastQuery.IsZero(), "lastQuery 0 means never queried")
}

func TestFetchDevicesDropsUnkeyableEntries(t *testing.T) {
	f := newFakeAppliance(t)
	f.devicesJSON = `{"devices":[
		{"id":1,"hwaddr":"00:00:00:00:00:00","interface":"eth0","ips":[]},
		{"id":2,"hwaddr":"ip-192.168.1.5","interface":"eth0","ips":[]},
		{"id":3,"hwaddr":"","interface":"eth0","ips":[{"ip":"192.168.1.9","name":"nomac"}]}
	]}`

	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	records, err := newTestClient(t, srv).FetchDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1, "entries with neither MAC nor IP are dropped")
	assert.Empty(t, records[0].MAC)
	assert.Equal(t, []string{"192.168.1.9"}, records[0].IPs)
}

func TestFetchDevicesLeaseEndpointMissing(t *testing.T) {
	f := newFakeAppliance(t)
	f.devicesJSON = `{"devices":[{"id":1,"hwaddr":"aa:bb:cc:dd:ee:ff","interface":"eth0","ips":[]}]}`
	f.leasesStatus = http.StatusNotFound

	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	records, err := newTestClient(t, srv).FetchDevices(context.Background())
	require.NoError(t, err, "an appliance without DHCP answers 404 for leases")
	require.Len(t, records, 1)
	assert.True(t, records[0].DHCPExpires.IsZero())
}

func TestFetchDevicesReauthenticatesOnExpiredSession(t *testing.T) {
	f := newFakeAppliance(t)
	f.devicesJSON = `{"devices":[{"id":1,"hwaddr":"aa:bb:cc:dd:ee:ff","interface":"eth0","ips":[]}]}`
	f.rejectFirstDeviceCalls.Store(1)

	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	records, err := newTestClient(t, srv).FetchDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(2), f.authCalls.Load(), "expired session triggers one re-authentication")
}

func TestFetchDevicesFreshSessionRejected(t *testing.T) {
	f := newFakeAppliance(t)
	f.rejectFirstDeviceCalls.Store(10)

	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	_, err := newTestClient(t, srv).FetchDevices(context.Background())
	require.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestFetchDevicesMalformedResponse(t *testing.T) {
	f := newFakeAppliance(t)
	f.devicesJSON = `{"devices": oops`

	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	_, err := newTestClient(t, srv).FetchDevices(context.Background())
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestFetchDevicesUnexpectedStatus(t *testing.T) {
	f := newFakeAppliance(t)
	f.devicesJSON = `{"devices":[]}`
	f.leasesStatus = http.StatusInternalServerError

	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	_, err := newTestClient(t, srv).FetchDevices(context.Background())
	require.ErrorIs(t, err, errUnexpectedStatusCode)
}

func TestFetchDevicesUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	_, err := newTestClient(t, srv).FetchDevices(context.Background())
	require.ErrorIs(t, err, ErrUnreachable)
}

func TestTestConnection(t *testing.T) {
	f := newFakeAppliance(t)

	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	require.NoError(t, newTestClient(t, srv).TestConnection(context.Background()))
	assert.Equal(t, int64(1), f.authCalls.Load())
}

func TestFetchDevicesSessionErrorPropagates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sessions := NewMockSessionProvider(ctrl)
	sessions.EXPECT().EnsureSession(gomock.Any()).
		Return(nil, fmt.Errorf("auth: %w", ErrAuthenticationFailed))

	c := NewClient(&Config{Host: "pi.hole"}, sessions, nil, logger.NewTestLogger())

	_, err := c.FetchDevices(context.Background())
	require.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestFetchDevicesTransportErrorClassified(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sessions := NewMockSessionProvider(ctrl)
	sessions.EXPECT().EnsureSession(gomock.Any()).Return(&Session{SID: "sid"}, nil)

	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).Return(nil, errors.New("connection refused"))

	c := NewClient(&Config{Host: "pi.hole"}, sessions, httpClient, logger.NewTestLogger())

	_, err := c.FetchDevices(context.Background())
	require.ErrorIs(t, err, ErrUnreachable)
}

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"pi.hole", "http://pi.hole"},
		{"http://pi.hole", "http://pi.hole"},
		{"https://pi.hole/", "http://pi.hole"},
		{" 192.168.1.2 ", "http://192.168.1.2"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHost(tt.input))
		})
	}
}

func TestNormalizeMAC(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"AA:BB:CC:DD:EE:FF", "aa:bb:cc:dd:ee:ff"},
		{"aa-bb-cc-dd-ee-ff", "aa:bb:cc:dd:ee:ff"},
		{"00:00:00:00:00:00", ""},
		{"ip-192.168.1.5", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeMAC(tt.input))
		})
	}
}

func TestMatchLeaseByIPFallback(t *testing.T) {
	leases := &leasesResponse{Leases: []dhcpLease{
		{HWAddr: "11:22:33:44:55:66", IP: "192.168.1.30", Name: "by-ip"},
	}}

	lease := matchLease(leases, "", []string{"192.168.1.30"})
	require.NotNil(t, lease)
	assert.Equal(t, "by-ip", lease.Name)

	assert.Nil(t, matchLease(leases, "aa:aa:aa:aa:aa:aa", []string{"10.0.0.1"}))
}
