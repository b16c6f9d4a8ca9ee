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

// Package pihole pkg/pihole/errors.go
package pihole

import "errors"

var (
	// ErrAuthenticationFailed indicates the appliance rejected the credentials.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrSessionExpired indicates the appliance no longer accepts the held session.
	ErrSessionExpired = errors.New("session expired")
	// ErrUnreachable indicates a connection or timeout failure talking to the appliance.
	ErrUnreachable = errors.New("appliance unreachable")
	// ErrMalformedResponse indicates the appliance returned an unexpected payload shape.
	ErrMalformedResponse = errors.New("malformed appliance response")

	errUnexpectedStatusCode = errors.New("unexpected status code")
	errHostRequired         = errors.New("appliance host is required")
)
