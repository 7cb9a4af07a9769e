// Package main is the entry point for the Alpaca device server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver"
	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver/handlers"
	"github.com/unklstewy/bigskies-alpaca/pkg/drivers/mqttbridge"
	"github.com/unklstewy/bigskies-alpaca/pkg/drivers/sim"
	"github.com/unklstewy/bigskies-alpaca/pkg/healthcheck"
	"github.com/unklstewy/bigskies-alpaca/pkg/mqtt"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	listenAddress := flag.String("listen", "", "HTTP listen address (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	cfg, err := ascomserver.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *listenAddress != "" {
		cfg.Server.ListenAddress = *listenAddress
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer logger.Sync()

	if len(cfg.Devices) == 0 {
		logger.Fatal("No devices configured")
	}

	logger.Info("Starting BigSkies Alpaca server",
		zap.String("listen_address", cfg.Server.ListenAddress),
		zap.Int("discovery_port", cfg.Server.DiscoveryPort),
		zap.Int("devices", len(cfg.Devices)),
		zap.Bool("mqtt", cfg.MQTT.Enabled))

	server, err := ascomserver.NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var client *mqtt.Client
	var reporter *healthcheck.Reporter
	if cfg.MQTT.Enabled {
		client, err = connectMQTT(cfg.MQTT, logger)
		if err != nil {
			logger.Fatal("Failed to connect to MQTT broker", zap.Error(err))
		}
		defer client.Disconnect()

		events := ascomserver.NewMQTTEventPublisher(client, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS,
			cfg.MQTT.EventQueueSize, server.Metrics(), logger)
		events.Start()
		defer events.Stop()
		server.SetEventPublisher(events)

		reporter = healthcheck.NewReporter(server.Health(), func(ctx context.Context, result *healthcheck.AggregatedResult) error {
			return client.PublishJSON(mqtt.ServerHealthTopic(cfg.MQTT.TopicPrefix), cfg.MQTT.QoS, true, result)
		}, logger)
	}

	var bridges []*mqttbridge.Bridge
	defer func() {
		for _, b := range bridges {
			if err := b.Stop(); err != nil {
				logger.Warn("Failed to stop MQTT bridge", zap.Error(err))
			}
		}
	}()

	for _, dc := range cfg.Devices {
		opts := handlers.Options{
			Name:            dc.Name,
			Description:     dc.Description,
			DriverInfo:      dc.DriverInfo,
			FirmwareVersion: dc.FirmwareVersion,
			Capabilities:    dc.Capabilities,
			Logger:          logger,
		}

		var h handlers.DeviceHandler
		switch dc.Driver {
		case ascomserver.DriverMQTT:
			var bridge *mqttbridge.Bridge
			bridge, err = mqttbridge.New(client, bridgeConfig(cfg, dc), logger)
			if err == nil {
				err = bridge.Start()
			}
			if err == nil {
				bridges = append(bridges, bridge)
				h, err = remoteDevice(dc, bridge, opts)
			}
		default:
			h, err = simulatedDevice(dc, opts)
		}
		if err == nil {
			err = server.AddDevice(h.AlpacaDevice())
		}
		if err != nil {
			logger.Fatal("Failed to create device",
				zap.String("device", ascomserver.DeviceKey(dc.Type, dc.Number)),
				zap.Error(err))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return server.Start(gctx)
	})
	if reporter != nil {
		g.Go(func() error {
			reporter.Run(gctx, cfg.Health.ReportInterval)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Alpaca server stopped")
}

func newLogger(cfg ascomserver.LoggingConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}

func connectMQTT(cfg ascomserver.MQTTConfig, logger *zap.Logger) (*mqtt.Client, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "alpaca-server-" + uuid.NewString()[:8]
	}
	client, err := mqtt.NewClient(&mqtt.Config{
		BrokerURL:            cfg.BrokerURL,
		ClientID:             clientID,
		Username:             cfg.Username,
		Password:             cfg.Password,
		KeepAlive:            cfg.KeepAlive,
		ConnectTimeout:       cfg.ConnectTimeout,
		AutoReconnect:        true,
		MaxReconnectInterval: 60 * time.Second,
		StatusTopic:          mqtt.ServerStatusTopic(cfg.TopicPrefix),
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func bridgeConfig(cfg *ascomserver.Config, dc ascomserver.DeviceConfig) mqttbridge.Config {
	return mqttbridge.Config{
		Prefix:          cfg.MQTT.TopicPrefix,
		DeviceType:      dc.Type,
		DeviceNumber:    dc.Number,
		QoS:             cfg.MQTT.QoS,
		ResponseTimeout: cfg.Drivers.HookTimeout,
		FirmwareVersion: dc.FirmwareVersion,
		Source:          cfg.MQTT.ClientID,
	}
}

// simulatedDevice builds a handler backed by an in-memory driver.
func simulatedDevice(dc ascomserver.DeviceConfig, opts handlers.Options) (handlers.DeviceHandler, error) {
	switch dc.Type {
	case ascomserver.DeviceTypeDome:
		return handlers.NewDomeHandler(dc.Number, sim.NewDome(), opts)
	case ascomserver.DeviceTypeSafetyMonitor:
		return handlers.NewSafetyMonitorHandler(dc.Number, sim.NewSafetyMonitor(), opts)
	case ascomserver.DeviceTypeFocuser:
		return handlers.NewFocuserHandler(dc.Number, sim.NewFocuser(dc.MaxStep), opts)
	case ascomserver.DeviceTypeSwitch:
		return handlers.NewSwitchHandler(dc.Number, sim.NewSwitch(dc.Switches), opts)
	case ascomserver.DeviceTypeCoverCalibrator:
		return handlers.NewCoverCalibratorHandler(dc.Number, sim.NewCoverCalibrator(), opts)
	case ascomserver.DeviceTypeObservingConditions:
		return handlers.NewObservingConditionsHandler(dc.Number, sim.NewObservingConditions(), opts)
	}
	return nil, fmt.Errorf("no simulator for device type %q", dc.Type)
}

// remoteDevice builds a handler whose hooks are forwarded over MQTT.
func remoteDevice(dc ascomserver.DeviceConfig, bridge *mqttbridge.Bridge, opts handlers.Options) (handlers.DeviceHandler, error) {
	switch dc.Type {
	case ascomserver.DeviceTypeDome:
		return handlers.NewDomeHandler(dc.Number, mqttbridge.NewDome(bridge), opts)
	case ascomserver.DeviceTypeSafetyMonitor:
		return handlers.NewSafetyMonitorHandler(dc.Number, mqttbridge.NewSafetyMonitor(bridge), opts)
	}
	return nil, errors.New("mqtt driver supports only dome and safetymonitor")
}
