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

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/models"
	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

const (
	mqttKeepAlive      = 30
	mqttConnectTimeout = 30 * time.Second

	payloadHome    = "home"
	payloadNotHome = "not_home"
)

// MQTTSink publishes presence updates to an MQTT broker using the Home
// Assistant discovery convention: each tracked device key becomes a
// device_tracker entity with a retained state topic and a JSON
// attributes topic. A will message flips the availability topic to
// offline on unexpected disconnects.
type MQTTSink struct {
	cfg    MQTTConfig
	logger logger.Logger
	cm     *autopaho.ConnectionManager

	mu         sync.Mutex
	discovered map[string][]byte // device key -> retained discovery payload
}

// NewMQTTSink creates an MQTT presence sink. Call Start to connect.
func NewMQTTSink(cfg *MQTTConfig, log logger.Logger) *MQTTSink {
	return &MQTTSink{
		cfg:        *cfg,
		logger:     log,
		discovered: make(map[string][]byte),
	}
}

// Start connects to the broker and returns once the initial connection
// is up or the connect timeout passes; autopaho keeps retrying in the
// background either way. On every (re-)connect the sink republishes
// availability and all known discovery configs.
func (s *MQTTSink) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(s.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       mqttKeepAlive,
		ConnectUsername: s.cfg.Username,
		ConnectPassword: []byte(s.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   s.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			s.logger.Info().Str("broker", s.cfg.Broker).Msg("MQTT connected to broker")
			s.onConnectionUp(ctx, cm)
		},
		OnConnectError: func(err error) {
			s.logger.Warn().Err(err).Msg("MQTT connection error")
		},
		ClientConfig: paho.ClientConfig{
			ClientID: s.cfg.ClientID,
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	s.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
	defer cancel()

	if err := cm.AwaitConnection(connCtx); err != nil {
		s.logger.Warn().Err(err).Msg("MQTT initial connection timed out, retrying in background")
	}

	return nil
}

// Stop publishes an offline availability message and disconnects.
func (s *MQTTSink) Stop(ctx context.Context) error {
	if s.cm == nil {
		return nil
	}

	s.publishRetained(ctx, s.availabilityTopic(), []byte("offline"))

	return s.cm.Disconnect(ctx)
}

// Publish implements the presence sink contract. New device keys get a
// retained discovery config before their first state message.
func (s *MQTTSink) Publish(ctx context.Context, updates []models.PresenceUpdate) error {
	if s.cm == nil {
		return errNotConnected
	}

	for i := range updates {
		update := &updates[i]

		if err := s.ensureDiscovered(ctx, update); err != nil {
			s.logger.Warn().Err(err).Str("device", update.Key).
				Msg("MQTT discovery publish failed")
		}

		state := payloadHome
		if update.Presence == models.PresenceAway {
			state = payloadNotHome
		}

		s.publishRetained(ctx, s.stateTopic(update.Key), []byte(state))

		attrs, err := json.Marshal(update.Attributes)
		if err != nil {
			s.logger.Error().Err(err).Str("device", update.Key).
				Msg("MQTT marshal attributes failed")
			continue
		}

		s.publishRetained(ctx, s.attributesTopic(update.Key), attrs)
	}

	return nil
}

func (s *MQTTSink) onConnectionUp(ctx context.Context, cm *autopaho.ConnectionManager) {
	s.publishWith(ctx, cm, s.availabilityTopic(), []byte("online"))

	s.mu.Lock()
	configs := make(map[string][]byte, len(s.discovered))
	for key, payload := range s.discovered {
		configs[key] = payload
	}
	s.mu.Unlock()

	for key, payload := range configs {
		s.publishWith(ctx, cm, s.discoveryTopic(key), payload)
	}
}

// ensureDiscovered publishes the retained discovery config for a device
// key the first time it is seen.
func (s *MQTTSink) ensureDiscovered(ctx context.Context, update *models.PresenceUpdate) error {
	s.mu.Lock()
	_, known := s.discovered[update.Key]
	s.mu.Unlock()

	if known {
		return nil
	}

	name := update.Attributes.Name
	if name == "" {
		name = update.Key
	}

	payload, err := json.Marshal(trackerDiscovery{
		Name:                name,
		UniqueID:            s.cfg.TopicPrefix + "_" + update.Key,
		StateTopic:          s.stateTopic(update.Key),
		JSONAttributesTopic: s.attributesTopic(update.Key),
		AvailabilityTopic:   s.availabilityTopic(),
		PayloadHome:         payloadHome,
		PayloadNotHome:      payloadNotHome,
		SourceType:          "router",
		Device: deviceInfo{
			Identifiers:  []string{s.cfg.ClientID},
			Name:         "Presence Radar",
			Manufacturer: "Carver Automation",
			Model:        "DNS presence tracker",
		},
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.discovered[update.Key] = payload
	s.mu.Unlock()

	s.publishRetained(ctx, s.discoveryTopic(update.Key), payload)

	return nil
}

func (s *MQTTSink) publishRetained(ctx context.Context, topic string, payload []byte) {
	s.publishWith(ctx, s.cm, topic, payload)
}

func (s *MQTTSink) publishWith(ctx context.Context, cm *autopaho.ConnectionManager, topic string, payload []byte) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
		Retain:  true,
	}); err != nil {
		s.logger.Debug().Err(err).Str("topic", topic).Msg("MQTT publish failed")
	}
}

func (s *MQTTSink) availabilityTopic() string {
	return s.cfg.TopicPrefix + "/availability"
}

func (s *MQTTSink) stateTopic(key string) string {
	return s.cfg.TopicPrefix + "/" + key + "/state"
}

func (s *MQTTSink) attributesTopic(key string) string {
	return s.cfg.TopicPrefix + "/" + key + "/attributes"
}

func (s *MQTTSink) discoveryTopic(key string) string {
	return s.cfg.DiscoveryPrefix + "/device_tracker/" + s.cfg.TopicPrefix + "/" + key + "/config"
}
