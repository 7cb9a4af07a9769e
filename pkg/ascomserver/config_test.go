package ascomserver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	t.Run("fills defaults", func(t *testing.T) {
		cfg := &Config{}
		require.NoError(t, cfg.Validate())
		assert.Equal(t, ":11111", cfg.Server.ListenAddress)
		assert.Equal(t, DefaultDiscoveryPort, cfg.Server.DiscoveryPort)
		assert.Equal(t, DefaultMaxClients, cfg.Sessions.MaxClients)
		assert.Equal(t, DefaultClientTimeout, cfg.Sessions.ClientTimeout)
		assert.Equal(t, DefaultHookTimeout, cfg.Drivers.HookTimeout)
		assert.Equal(t, "/metrics", cfg.Metrics.Path)
	})

	t.Run("device defaults", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Devices = []DeviceConfig{{Type: "Dome", Number: 0}}
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "dome", cfg.Devices[0].Type)
		assert.Equal(t, DriverSim, cfg.Devices[0].Driver)
	})

	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"negative max clients", func(c *Config) { c.Sessions.MaxClients = -1 }},
		{"negative max devices", func(c *Config) { c.Server.MaxDevices = -2 }},
		{"qos out of range", func(c *Config) { c.MQTT.QoS = 3 }},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled = true }},
		{"unknown device type", func(c *Config) { c.Devices = []DeviceConfig{{Type: "telescope"}} }},
		{"missing device type", func(c *Config) { c.Devices = []DeviceConfig{{}} }},
		{"negative device number", func(c *Config) { c.Devices = []DeviceConfig{{Type: "dome", Number: -1}} }},
		{"duplicate device", func(c *Config) {
			c.Devices = []DeviceConfig{{Type: "dome"}, {Type: "DOME"}}
		}},
		{"too many devices", func(c *Config) {
			c.Server.MaxDevices = 1
			c.Devices = []DeviceConfig{{Type: "dome"}, {Type: "focuser"}}
		}},
		{"unknown driver", func(c *Config) { c.Devices = []DeviceConfig{{Type: "dome", Driver: "serial"}} }},
		{"mqtt driver without mqtt", func(c *Config) { c.Devices = []DeviceConfig{{Type: "dome", Driver: DriverMQTT}} }},
		{"mqtt driver for unsupported type", func(c *Config) {
			c.MQTT.Enabled = true
			c.MQTT.BrokerURL = "tcp://localhost:1883"
			c.Devices = []DeviceConfig{{Type: "focuser", Driver: DriverMQTT}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("yaml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "alpaca.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
server:
  listen_address: ":8080"
  server_name: "Roll-off Roof"
  disable_discovery: true
sessions:
  max_clients: 4
  client_timeout: 30s
logging:
  level: debug
devices:
  - type: dome
    number: 0
    name: Roof
  - type: covercalibrator
    number: 0
    capabilities:
      action: false
      commandblind: true
`), 0o600))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Server.ListenAddress)
		assert.Equal(t, "Roll-off Roof", cfg.Server.ServerName)
		assert.True(t, cfg.Server.DisableDiscovery)
		assert.Equal(t, 4, cfg.Sessions.MaxClients)
		assert.Equal(t, 30*time.Second, cfg.Sessions.ClientTimeout)
		assert.Equal(t, DefaultDiscoveryPort, cfg.Server.DiscoveryPort)
		require.Len(t, cfg.Devices, 2)
		assert.Equal(t, "Roof", cfg.Devices[0].Name)
		assert.Nil(t, cfg.Devices[0].Capabilities)
		require.NotNil(t, cfg.Devices[1].Capabilities)
		assert.True(t, cfg.Devices[1].Capabilities.CommandBlind)
		assert.False(t, cfg.Devices[1].Capabilities.Action)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("ALPACA_SERVER_SERVER_NAME", "From Env")
		t.Setenv("ALPACA_SESSIONS_MAX_CLIENTS", "3")

		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, "From Env", cfg.Server.ServerName)
		assert.Equal(t, 3, cfg.Sessions.MaxClients)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid contents", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("mqtt:\n  qos: 7\n"), 0o600))
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})
}
