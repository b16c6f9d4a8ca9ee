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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/presenceradar/pkg/config"
	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/pihole"
	"github.com/carverauto/presenceradar/pkg/poller"
	"github.com/carverauto/presenceradar/pkg/sink"
	"github.com/carverauto/presenceradar/pkg/tracker"
	"github.com/carverauto/presenceradar/pkg/version"
)

const startupProbeTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/presenceradar/presenceradar.json", "Path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg poller.Config

	cfgLoader := config.NewConfig(nil)
	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logCfg := cfg.Logging
	if logCfg == nil {
		logCfg = logger.DefaultConfig()
	}

	mainLogger, err := logger.NewComponentLogger("presenceradar", logCfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	mainLogger.Info().Str("version", version.GetFullVersion()).Msg("Starting Presence Radar")

	sessions := pihole.NewSessionManager(&cfg.Pihole, nil, mainLogger)
	client := pihole.NewClient(&cfg.Pihole, sessions, nil, mainLogger)

	// Fail fast on a bad host or password rather than backing off
	// forever against an appliance that will never accept us.
	probeCtx, cancel := context.WithTimeout(ctx, startupProbeTimeout)
	if err := client.TestConnection(probeCtx); err != nil {
		cancel()
		return fmt.Errorf("appliance connection test failed: %w", err)
	}

	cancel()
	mainLogger.Info().Str("host", cfg.Pihole.Host).Msg("Appliance connection verified")

	reconciler := tracker.New(time.Duration(cfg.AwayThreshold), mainLogger)

	sinks := []poller.Sink{sink.NewLogSink(mainLogger)}

	var mqttSink *sink.MQTTSink

	if cfg.MQTT != nil {
		mqttSink = sink.NewMQTTSink(cfg.MQTT, mainLogger)
		if err := mqttSink.Start(ctx); err != nil {
			return fmt.Errorf("failed to start mqtt sink: %w", err)
		}

		sinks = append(sinks, mqttSink)
	}

	p := poller.New(&cfg, client, reconciler, sinks, nil, mainLogger)

	errCh := make(chan error, 1)

	go func() {
		errCh <- p.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		mainLogger.Info().Msg("Shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := p.Stop(shutdownCtx); err != nil {
		mainLogger.Error().Err(err).Msg("Poller shutdown failed")
	}

	if mqttSink != nil {
		if err := mqttSink.Stop(shutdownCtx); err != nil {
			mainLogger.Error().Err(err).Msg("MQTT sink shutdown failed")
		}
	}

	return nil
}
