package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver"
	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver/handlers"
	"github.com/unklstewy/bigskies-alpaca/pkg/drivers/mqttbridge"
	"github.com/unklstewy/bigskies-alpaca/pkg/mqtt"
)

func TestSimulatedDevice(t *testing.T) {
	types := []string{
		ascomserver.DeviceTypeDome,
		ascomserver.DeviceTypeSafetyMonitor,
		ascomserver.DeviceTypeFocuser,
		ascomserver.DeviceTypeSwitch,
		ascomserver.DeviceTypeCoverCalibrator,
		ascomserver.DeviceTypeObservingConditions,
	}
	for _, typ := range types {
		t.Run(typ, func(t *testing.T) {
			h, err := simulatedDevice(ascomserver.DeviceConfig{Type: typ, Number: 1, Switches: 4}, handlers.Options{})
			require.NoError(t, err)
			desc := h.AlpacaDevice().Descriptor()
			assert.Equal(t, typ, desc.DeviceType)
			assert.Equal(t, 1, desc.DeviceNumber)
		})
	}

	_, err := simulatedDevice(ascomserver.DeviceConfig{Type: "telescope"}, handlers.Options{})
	assert.Error(t, err)
}

func TestRemoteDeviceRejectsUnsupportedTypes(t *testing.T) {
	bridge, err := mqttbridge.New(nopTransport{}, mqttbridge.Config{DeviceType: "focuser"}, nil)
	require.NoError(t, err)
	_, err = remoteDevice(ascomserver.DeviceConfig{Type: "focuser"}, bridge, handlers.Options{})
	assert.Error(t, err)
}

func TestBridgeConfig(t *testing.T) {
	cfg := ascomserver.DefaultConfig()
	cfg.MQTT.TopicPrefix = "obs"
	cfg.MQTT.QoS = 1
	cfg.MQTT.ClientID = "alpaca-1"
	cfg.Drivers.HookTimeout = 3 * time.Second

	bc := bridgeConfig(cfg, ascomserver.DeviceConfig{Type: "dome", Number: 2, FirmwareVersion: "fw-7"})
	assert.Equal(t, "obs", bc.Prefix)
	assert.Equal(t, "dome", bc.DeviceType)
	assert.Equal(t, 2, bc.DeviceNumber)
	assert.Equal(t, byte(1), bc.QoS)
	assert.Equal(t, 3*time.Second, bc.ResponseTimeout)
	assert.Equal(t, "fw-7", bc.FirmwareVersion)
	assert.Equal(t, "alpaca-1", bc.Source)
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger(ascomserver.LoggingConfig{Level: "debug", Format: "console"})
	assert.NoError(t, err)
	_, err = newLogger(ascomserver.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

type nopTransport struct{}

func (nopTransport) PublishJSON(string, byte, bool, interface{}) error { return nil }
func (nopTransport) Subscribe(string, byte, mqtt.MessageHandler) error { return nil }
func (nopTransport) Unsubscribe(string) error                          { return nil }
