package ascomserver

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// ALPACA_SERVER_LISTEN_ADDRESS or ALPACA_SESSIONS_CLIENT_TIMEOUT.
const EnvPrefix = "ALPACA"

// LoadConfig reads configuration from path (YAML or JSON, chosen by file
// extension), applies ALPACA_* environment overrides and validates the result.
// An empty path uses defaults and the environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every scalar key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.listen_address", d.Server.ListenAddress)
	v.SetDefault("server.discovery_port", d.Server.DiscoveryPort)
	v.SetDefault("server.disable_discovery", d.Server.DisableDiscovery)
	v.SetDefault("server.server_name", d.Server.ServerName)
	v.SetDefault("server.manufacturer", d.Server.Manufacturer)
	v.SetDefault("server.manufacturer_version", d.Server.ManufacturerVersion)
	v.SetDefault("server.location", d.Server.Location)
	v.SetDefault("server.max_devices", d.Server.MaxDevices)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("sessions.max_clients", d.Sessions.MaxClients)
	v.SetDefault("sessions.client_timeout", d.Sessions.ClientTimeout)
	v.SetDefault("drivers.hook_timeout", d.Drivers.HookTimeout)

	v.SetDefault("cors.enabled", d.CORS.Enabled)
	v.SetDefault("cors.allowed_origins", d.CORS.AllowedOrigins)
	v.SetDefault("cors.allowed_methods", d.CORS.AllowedMethods)
	v.SetDefault("cors.allowed_headers", d.CORS.AllowedHeaders)
	v.SetDefault("cors.allow_credentials", d.CORS.AllowCredentials)
	v.SetDefault("cors.max_age", d.CORS.MaxAge)

	v.SetDefault("mqtt.enabled", d.MQTT.Enabled)
	v.SetDefault("mqtt.broker_url", d.MQTT.BrokerURL)
	v.SetDefault("mqtt.client_id", d.MQTT.ClientID)
	v.SetDefault("mqtt.username", d.MQTT.Username)
	v.SetDefault("mqtt.password", d.MQTT.Password)
	v.SetDefault("mqtt.topic_prefix", d.MQTT.TopicPrefix)
	v.SetDefault("mqtt.qos", d.MQTT.QoS)
	v.SetDefault("mqtt.keep_alive", d.MQTT.KeepAlive)
	v.SetDefault("mqtt.connect_timeout", d.MQTT.ConnectTimeout)
	v.SetDefault("mqtt.event_queue_size", d.MQTT.EventQueueSize)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("health.report_interval", d.Health.ReportInterval)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}
