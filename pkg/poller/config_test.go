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

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/presenceradar/pkg/models"
	"github.com/carverauto/presenceradar/pkg/pihole"
	"github.com/carverauto/presenceradar/pkg/sink"
)

func TestConfigValidateDefaults(t *testing.T) {
	cfg := &Config{
		Pihole: pihole.Config{Host: "pi.hole", Password: "secret"},
	}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, time.Duration(cfg.PollInterval))
	assert.Equal(t, 15*time.Minute, time.Duration(cfg.AwayThreshold))
	assert.Equal(t, 999, cfg.Pihole.MaxDevices)
}

func TestConfigValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:    "missing host",
			config:  Config{},
			wantErr: nil, // pihole validation error, checked below
		},
		{
			name: "poll interval below floor",
			config: Config{
				Pihole:       pihole.Config{Host: "pi.hole", Password: "x"},
				PollInterval: models.Duration(time.Second),
			},
			wantErr: errPollIntervalTooShort,
		},
		{
			name: "negative away threshold",
			config: Config{
				Pihole:        pihole.Config{Host: "pi.hole", Password: "x"},
				AwayThreshold: models.Duration(-time.Minute),
			},
			wantErr: errNegativeAwayThreshold,
		},
		{
			name: "mqtt without broker",
			config: Config{
				Pihole: pihole.Config{Host: "pi.hole", Password: "x"},
				MQTT:   &sink.MQTTConfig{},
			},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			require.Error(t, err)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidateAcceptsFloorInterval(t *testing.T) {
	cfg := &Config{
		Pihole:       pihole.Config{Host: "pi.hole", Password: "x"},
		PollInterval: models.Duration(5 * time.Second),
	}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, time.Duration(cfg.PollInterval))
}
