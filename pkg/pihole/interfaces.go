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
	"net/http"
)

//go:generate mockgen -destination=mock_pihole.go -package=pihole github.com/carverauto/presenceradar/pkg/pihole HTTPClient,SessionProvider

// HTTPClient defines the interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// SessionProvider returns valid appliance sessions and invalidates
// rejected ones.
type SessionProvider interface {
	EnsureSession(ctx context.Context) (*Session, error)
	Invalidate()
}
