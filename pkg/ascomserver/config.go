package ascomserver

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all configuration settings for the Alpaca server.
// It is fixed at deployment time from a YAML/JSON file and ALPACA_*
// environment variables; remote clients can never change it.
type Config struct {
	// Server contains HTTP and discovery settings.
	Server ServerConfig `json:"server" yaml:"server" mapstructure:"server"`

	// Sessions bounds the per-device client table.
	Sessions SessionConfig `json:"sessions" yaml:"sessions" mapstructure:"sessions"`

	// Drivers contains settings shared by all hardware drivers.
	Drivers DriverConfig `json:"drivers" yaml:"drivers" mapstructure:"drivers"`

	// CORS contains Cross-Origin Resource Sharing settings.
	CORS CORSConfig `json:"cors" yaml:"cors" mapstructure:"cors"`

	// MQTT configures the broker used for events, health reports and the
	// mqtt hardware driver.
	MQTT MQTTConfig `json:"mqtt" yaml:"mqtt" mapstructure:"mqtt"`

	// Metrics controls the Prometheus endpoint.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics" mapstructure:"metrics"`

	// Health controls periodic health reporting.
	Health HealthConfig `json:"health" yaml:"health" mapstructure:"health"`

	// Logging contains logging configuration.
	Logging LoggingConfig `json:"logging" yaml:"logging" mapstructure:"logging"`

	// Devices lists the devices hosted by this server.
	Devices []DeviceConfig `json:"devices" yaml:"devices" mapstructure:"devices"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// ListenAddress is the address to bind the HTTP server to.
	// Format: "host:port" or ":port"
	ListenAddress string `json:"listen_address" yaml:"listen_address" mapstructure:"listen_address"`

	// DiscoveryPort is the UDP port for Alpaca discovery.
	DiscoveryPort int `json:"discovery_port" yaml:"discovery_port" mapstructure:"discovery_port"`

	// DisableDiscovery turns off the UDP responder.
	DisableDiscovery bool `json:"disable_discovery" yaml:"disable_discovery" mapstructure:"disable_discovery"`

	// ServerName is reported in the management API and discovery replies.
	ServerName string `json:"server_name" yaml:"server_name" mapstructure:"server_name"`

	// Manufacturer is the manufacturer name reported in the API.
	Manufacturer string `json:"manufacturer" yaml:"manufacturer" mapstructure:"manufacturer"`

	// ManufacturerVersion is the version string for the server software.
	ManufacturerVersion string `json:"manufacturer_version" yaml:"manufacturer_version" mapstructure:"manufacturer_version"`

	// Location is a human-readable location string (e.g., "Backyard Observatory").
	Location string `json:"location" yaml:"location" mapstructure:"location"`

	// MaxDevices is the number of devices the server may host.
	MaxDevices int `json:"max_devices" yaml:"max_devices" mapstructure:"max_devices"`

	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// SessionConfig bounds the client session table of each device.
type SessionConfig struct {
	MaxClients    int           `json:"max_clients" yaml:"max_clients" mapstructure:"max_clients"`
	ClientTimeout time.Duration `json:"client_timeout" yaml:"client_timeout" mapstructure:"client_timeout"`
}

// DriverConfig contains settings applied to every hardware hook call.
type DriverConfig struct {
	// HookTimeout bounds a single hook invocation.
	HookTimeout time.Duration `json:"hook_timeout" yaml:"hook_timeout" mapstructure:"hook_timeout"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
// CORS is needed for web-based Alpaca clients that run in browsers.
type CORSConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	AllowedOrigins   []string `json:"allowed_origins" yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods" yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers" yaml:"allowed_headers" mapstructure:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials" yaml:"allow_credentials" mapstructure:"allow_credentials"`
	MaxAge           int      `json:"max_age" yaml:"max_age" mapstructure:"max_age"`
}

// MQTTConfig contains broker connection settings.
type MQTTConfig struct {
	Enabled        bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	BrokerURL      string        `json:"broker_url" yaml:"broker_url" mapstructure:"broker_url"`
	ClientID       string        `json:"client_id" yaml:"client_id" mapstructure:"client_id"`
	Username       string        `json:"username" yaml:"username" mapstructure:"username"`
	Password       string        `json:"password" yaml:"password" mapstructure:"password"`
	TopicPrefix    string        `json:"topic_prefix" yaml:"topic_prefix" mapstructure:"topic_prefix"`
	QoS            byte          `json:"qos" yaml:"qos" mapstructure:"qos"`
	KeepAlive      time.Duration `json:"keep_alive" yaml:"keep_alive" mapstructure:"keep_alive"`
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout" mapstructure:"connect_timeout"`

	// EventQueueSize bounds the number of device events awaiting delivery.
	EventQueueSize int `json:"event_queue_size" yaml:"event_queue_size" mapstructure:"event_queue_size"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" yaml:"path" mapstructure:"path"`
}

// HealthConfig controls periodic health reporting over MQTT.
type HealthConfig struct {
	ReportInterval time.Duration `json:"report_interval" yaml:"report_interval" mapstructure:"report_interval"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the logging level: "debug", "info", "warn", "error"
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is the log format: "json" or "console"
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// Driver backends for DeviceConfig.Driver.
const (
	DriverSim  = "sim"
	DriverMQTT = "mqtt"
)

// DeviceConfig defines a device hosted by the server.
type DeviceConfig struct {
	// Type is the Alpaca device type (dome, safetymonitor, ...).
	Type string `json:"type" yaml:"type" mapstructure:"type"`

	// Number is the device number (0-based).
	Number int `json:"number" yaml:"number" mapstructure:"number"`

	Name            string `json:"name" yaml:"name" mapstructure:"name"`
	Description     string `json:"description" yaml:"description" mapstructure:"description"`
	DriverInfo      string `json:"driver_info" yaml:"driver_info" mapstructure:"driver_info"`
	FirmwareVersion string `json:"firmware_version" yaml:"firmware_version" mapstructure:"firmware_version"`

	// Driver selects the hardware backend: "sim" or "mqtt".
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver"`

	// Capabilities overrides the device type's default optional commands.
	Capabilities *Capabilities `json:"capabilities,omitempty" yaml:"capabilities,omitempty" mapstructure:"capabilities"`

	// Switches is the number of channels for a simulated switch.
	Switches int `json:"switches" yaml:"switches" mapstructure:"switches"`

	// MaxStep is the travel of a simulated focuser.
	MaxStep int `json:"max_step" yaml:"max_step" mapstructure:"max_step"`
}

// Validate checks the configuration for errors and sets defaults.
// This should be called after loading configuration from file or environment.
func (c *Config) Validate() error {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = fmt.Sprintf(":%d", DefaultAPIPort)
	}
	if c.Server.DiscoveryPort == 0 {
		c.Server.DiscoveryPort = DefaultDiscoveryPort
	}
	if c.Server.ServerName == "" {
		c.Server.ServerName = DefaultServerName
	}
	if c.Server.Manufacturer == "" {
		c.Server.Manufacturer = DefaultManufacturer
	}
	if c.Server.ManufacturerVersion == "" {
		c.Server.ManufacturerVersion = LibraryVersion
	}
	if c.Server.Location == "" {
		c.Server.Location = DefaultLocation
	}
	if c.Server.MaxDevices == 0 {
		c.Server.MaxDevices = DefaultMaxDevices
	}
	if c.Server.MaxDevices < 0 {
		return fmt.Errorf("max_devices must be positive, got %d", c.Server.MaxDevices)
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}

	if c.Sessions.MaxClients == 0 {
		c.Sessions.MaxClients = DefaultMaxClients
	}
	if c.Sessions.MaxClients < 0 {
		return fmt.Errorf("sessions.max_clients must be positive, got %d", c.Sessions.MaxClients)
	}
	if c.Sessions.ClientTimeout == 0 {
		c.Sessions.ClientTimeout = DefaultClientTimeout
	}
	if c.Drivers.HookTimeout == 0 {
		c.Drivers.HookTimeout = DefaultHookTimeout
	}

	if c.CORS.Enabled {
		if len(c.CORS.AllowedOrigins) == 0 {
			c.CORS.AllowedOrigins = []string{"*"}
		}
		if len(c.CORS.AllowedMethods) == 0 {
			c.CORS.AllowedMethods = []string{"GET", "PUT", "OPTIONS"}
		}
		if len(c.CORS.AllowedHeaders) == 0 {
			c.CORS.AllowedHeaders = []string{"*"}
		}
		if c.CORS.MaxAge == 0 {
			c.CORS.MaxAge = 3600
		}
	}

	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "bigskies"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "alpaca-server"
	}
	if c.MQTT.KeepAlive == 0 {
		c.MQTT.KeepAlive = 60 * time.Second
	}
	if c.MQTT.ConnectTimeout == 0 {
		c.MQTT.ConnectTimeout = 10 * time.Second
	}
	if c.MQTT.EventQueueSize == 0 {
		c.MQTT.EventQueueSize = 64
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.MQTT.Enabled && c.MQTT.BrokerURL == "" {
		return fmt.Errorf("mqtt.broker_url is required when mqtt is enabled")
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Health.ReportInterval == 0 {
		c.Health.ReportInterval = 30 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if len(c.Devices) > c.Server.MaxDevices {
		return fmt.Errorf("%d devices configured, server hosts at most %d", len(c.Devices), c.Server.MaxDevices)
	}

	deviceKeys := make(map[string]bool)
	for i := range c.Devices {
		dev := &c.Devices[i]
		dev.Type = strings.ToLower(dev.Type)
		if dev.Type == "" {
			return fmt.Errorf("device %d: type is required", i)
		}
		if !IsKnownDeviceType(dev.Type) {
			return fmt.Errorf("device %d: unsupported type %q", i, dev.Type)
		}
		if dev.Number < 0 {
			return fmt.Errorf("device %d: number must be non-negative", i)
		}

		key := DeviceKey(dev.Type, dev.Number)
		if deviceKeys[key] {
			return fmt.Errorf("duplicate device: %s (type=%s, number=%d)", key, dev.Type, dev.Number)
		}
		deviceKeys[key] = true

		if dev.Driver == "" {
			dev.Driver = DriverSim
		}
		switch dev.Driver {
		case DriverSim:
		case DriverMQTT:
			if !c.MQTT.Enabled {
				return fmt.Errorf("device %s: mqtt driver requires mqtt.enabled", key)
			}
			if dev.Type != DeviceTypeDome && dev.Type != DeviceTypeSafetyMonitor {
				return fmt.Errorf("device %s: mqtt driver supports only dome and safetymonitor", key)
			}
		default:
			return fmt.Errorf("device %s: invalid driver %q (must be 'sim' or 'mqtt')", key, dev.Driver)
		}
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress:       fmt.Sprintf(":%d", DefaultAPIPort),
			DiscoveryPort:       DefaultDiscoveryPort,
			ServerName:          DefaultServerName,
			Manufacturer:        DefaultManufacturer,
			ManufacturerVersion: LibraryVersion,
			Location:            DefaultLocation,
			MaxDevices:          DefaultMaxDevices,
			ReadTimeout:         30 * time.Second,
			WriteTimeout:        30 * time.Second,
			IdleTimeout:         60 * time.Second,
			ShutdownTimeout:     30 * time.Second,
		},
		Sessions: SessionConfig{
			MaxClients:    DefaultMaxClients,
			ClientTimeout: DefaultClientTimeout,
		},
		Drivers: DriverConfig{
			HookTimeout: DefaultHookTimeout,
		},
		CORS: CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			MaxAge:         3600,
		},
		MQTT: MQTTConfig{
			TopicPrefix:    "bigskies",
			ClientID:       "alpaca-server",
			QoS:            1,
			KeepAlive:      60 * time.Second,
			ConnectTimeout: 10 * time.Second,
			EventQueueSize: 64,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Health: HealthConfig{
			ReportInterval: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Devices: []DeviceConfig{},
	}
}
