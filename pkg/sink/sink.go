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

// Package sink delivers presence updates to downstream consumers.
package sink

import (
	"context"

	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/models"
)

// LogSink writes presence updates as structured log events. Transitions
// log at info level, snapshot refreshes at debug.
type LogSink struct {
	logger logger.Logger
}

// NewLogSink creates a sink that logs every presence update.
func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

// Publish implements the presence sink contract.
func (s *LogSink) Publish(_ context.Context, updates []models.PresenceUpdate) error {
	for i := range updates {
		update := &updates[i]

		event := s.logger.Debug()
		if update.Transitioned {
			event = s.logger.Info()
		}

		event.
			Str("device", update.Key).
			Str("presence", string(update.Presence)).
			Bool("transitioned", update.Transitioned).
			Str("name", update.Attributes.Name).
			Strs("ips", update.Attributes.IPs).
			Int64("num_queries", update.Attributes.NumQueries).
			Int64("last_query_seconds_ago", update.Attributes.LastQuerySecondsAgo).
			Msg("Presence update")
	}

	return nil
}
