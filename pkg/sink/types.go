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

package sink

import "errors"

var (
	errBrokerRequired = errors.New("mqtt broker URL is required")
	errNotConnected   = errors.New("mqtt sink not connected")
)

// MQTTConfig holds the MQTT presence sink settings. Discovery payloads
// follow the Home Assistant MQTT discovery convention so each tracked
// device appears as a device_tracker entity.
type MQTTConfig struct {
	Broker          string `json:"broker"` // e.g. mqtt://127.0.0.1:1883
	Username        string `json:"username,omitempty"`
	Password        string `json:"password,omitempty" sensitive:"true"`
	ClientID        string `json:"client_id,omitempty"`
	TopicPrefix     string `json:"topic_prefix,omitempty"`     // default presenceradar
	DiscoveryPrefix string `json:"discovery_prefix,omitempty"` // default homeassistant
}

// Validate implements config.Validator.
func (c *MQTTConfig) Validate() error {
	if c.Broker == "" {
		return errBrokerRequired
	}

	if c.TopicPrefix == "" {
		c.TopicPrefix = "presenceradar"
	}

	if c.DiscoveryPrefix == "" {
		c.DiscoveryPrefix = "homeassistant"
	}

	if c.ClientID == "" {
		c.ClientID = "presenceradar"
	}

	return nil
}

// deviceInfo is the Home Assistant device registry block shared by all
// discovery payloads published by one appliance tracker instance.
type deviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// trackerDiscovery is the JSON payload for a device_tracker MQTT
// discovery message, published retained on (re-)connect and on first
// sighting of a new device key.
type trackerDiscovery struct {
	Name                string     `json:"name"`
	UniqueID            string     `json:"unique_id"`
	StateTopic          string     `json:"state_topic"`
	JSONAttributesTopic string     `json:"json_attributes_topic"`
	AvailabilityTopic   string     `json:"availability_topic"`
	PayloadHome         string     `json:"payload_home"`
	PayloadNotHome      string     `json:"payload_not_home"`
	SourceType          string     `json:"source_type"`
	Device              deviceInfo `json:"device"`
}
