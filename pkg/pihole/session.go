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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/carverauto/presenceradar/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// sessionSafetyMargin is subtracted from the appliance-reported validity
// so a session is refreshed slightly before the appliance drops it.
const sessionSafetyMargin = 30 * time.Second

// SessionManager authenticates against the appliance and holds at most
// one live session. Concurrent callers share a single in-flight
// authentication request.
type SessionManager struct {
	baseURL    string
	password   string
	httpClient HTTPClient
	logger     logger.Logger

	mu      sync.RWMutex
	session *Session

	flight singleflight.Group
}

// NewSessionManager creates a session manager for the configured appliance.
func NewSessionManager(cfg *Config, httpClient HTTPClient, log logger.Logger) *SessionManager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &SessionManager{
		baseURL:    NormalizeHost(cfg.Host),
		password:   cfg.Password,
		httpClient: httpClient,
		logger:     log,
	}
}

// EnsureSession returns a valid, non-expired session, authenticating if
// none exists or the held one has expired. At most one authentication
// request is in flight at any instant.
func (m *SessionManager) EnsureSession(ctx context.Context) (*Session, error) {
	m.mu.RLock()
	session := m.session
	m.mu.RUnlock()

	if session.Valid(time.Now()) {
		return session, nil
	}

	v, err, _ := m.flight.Do("auth", func() (interface{}, error) {
		// A concurrent caller may have authenticated while this one
		// waited on the flight group.
		m.mu.RLock()
		cached := m.session
		m.mu.RUnlock()

		if cached.Valid(time.Now()) {
			return cached, nil
		}

		fresh, err := m.authenticate(ctx)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.session = fresh
		m.mu.Unlock()

		return fresh, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Session), nil
}

// Invalidate drops the cached session so the next EnsureSession call
// authenticates again. Called when a downstream request reports the
// session expired.
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
}

func (m *SessionManager) authenticate(ctx context.Context) (*Session, error) {
	payload, err := json.Marshal(map[string]string{"password": m.password})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.baseURL+"/api/auth", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: appliance rejected credentials", ErrAuthenticationFailed)
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: too many concurrent sessions", ErrAuthenticationFailed)
	default:
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: %d, response: %s", errUnexpectedStatusCode,
			resp.StatusCode, string(bodyBytes))
	}

	var authResp authResponse

	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, err)
	}

	// An appliance without a password set answers valid=true with an
	// empty sid. A rejected password answers valid=false.
	if !authResp.Session.Valid {
		return nil, fmt.Errorf("%w: session not granted", ErrAuthenticationFailed)
	}

	now := time.Now()
	session := &Session{
		SID:      authResp.Session.SID,
		IssuedAt: now,
	}

	// A validity at or below the margin leaves no usable window; mark
	// the session stale immediately so the next call re-authenticates
	// rather than riding the 401 path.
	if validity := time.Duration(authResp.Session.Validity) * time.Second; validity > sessionSafetyMargin {
		session.ExpiresAt = now.Add(validity - sessionSafetyMargin)
	} else if validity > 0 {
		session.ExpiresAt = now
	}

	m.logger.Debug().
		Time("expires_at", session.ExpiresAt).
		Bool("authenticated", session.SID != "").
		Msg("Appliance session established")

	return session, nil
}
