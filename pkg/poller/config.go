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
	"fmt"
	"time"

	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/models"
	"github.com/carverauto/presenceradar/pkg/pihole"
	"github.com/carverauto/presenceradar/pkg/sink"
)

const (
	// minPollInterval is the floor for configured poll intervals;
	// shorter values are rejected, not silently raised.
	minPollInterval = 5 * time.Second

	defaultPollInterval  = 30 * time.Second
	defaultAwayThreshold = 15 * time.Minute
)

// Config is the presence tracker configuration.
type Config struct {
	Pihole        pihole.Config    `json:"pihole"`
	PollInterval  models.Duration  `json:"poll_interval"`
	AwayThreshold models.Duration  `json:"away_threshold"`
	Logging       *logger.Config   `json:"logging,omitempty"`
	MQTT          *sink.MQTTConfig `json:"mqtt,omitempty"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if err := c.Pihole.Validate(); err != nil {
		return err
	}

	if time.Duration(c.PollInterval) == 0 {
		c.PollInterval = models.Duration(defaultPollInterval)
	}

	if time.Duration(c.PollInterval) < minPollInterval {
		return fmt.Errorf("%w: %s < %s",
			errPollIntervalTooShort, time.Duration(c.PollInterval), minPollInterval)
	}

	if time.Duration(c.AwayThreshold) < 0 {
		return errNegativeAwayThreshold
	}

	if time.Duration(c.AwayThreshold) == 0 {
		c.AwayThreshold = models.Duration(defaultAwayThreshold)
	}

	if c.MQTT != nil {
		if err := c.MQTT.Validate(); err != nil {
			return err
		}
	}

	return nil
}
