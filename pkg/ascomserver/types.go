// Package ascomserver provides a native ASCOM Alpaca device server.
// It accepts Alpaca REST requests from clients (such as N.I.N.A., TheSkyX, etc.),
// validates the calling client against a bounded session table, dispatches the
// request to a device-type handler and answers with the standard Alpaca JSON
// envelope. Servers are located on the network through UDP discovery.
//
// The ASCOM Alpaca protocol is a RESTful HTTP API standard for astronomical equipment
// developed by the ASCOM Initiative (https://ascom-standards.org/).
package ascomserver

import (
	"fmt"
	"strings"
	"time"
)

// Constants for ASCOM Alpaca protocol compliance.
const (
	// AlpacaAPIVersion is the supported Alpaca API version.
	AlpacaAPIVersion = 1

	// AlpacaDiscoveryMessage is the UDP broadcast message used for device discovery.
	// Clients send this message to discover ASCOM Alpaca servers on the network.
	AlpacaDiscoveryMessage = "alpacadiscovery1"

	// DefaultDiscoveryPort is the standard UDP port for ASCOM Alpaca discovery broadcasts.
	DefaultDiscoveryPort = 32227

	// DefaultAPIPort is the default HTTP port for the ASCOM Alpaca REST API.
	DefaultAPIPort = 11111

	// DefaultServerName is the default name reported in the management API
	// and in discovery replies.
	DefaultServerName = "BigSkies Alpaca Server"

	// DefaultManufacturer is the default manufacturer name.
	DefaultManufacturer = "BigSkies Framework"

	// DefaultLocation is the default location string.
	DefaultLocation = "Observatory"

	// LibraryVersion is appended to every device's firmware version to form
	// the DriverVersion property.
	LibraryVersion = "1.0.0"

	// DefaultMaxClients is the number of concurrent client sessions per device.
	DefaultMaxClients = 8

	// DefaultMaxDevices is the number of devices a single server may host.
	DefaultMaxDevices = 4

	// DefaultClientTimeout is the inactivity window after which a client
	// slot may be reclaimed by a new client.
	DefaultClientTimeout = 120 * time.Second

	// ConnectionlessClientID is the reserved ClientID used by tools that talk
	// to a device without holding a session. It never occupies a table slot.
	ConnectionlessClientID uint32 = 42424242

	// MaxParamLength is the longest parameter value accepted, in bytes.
	// Longer values are rejected rather than truncated.
	MaxParamLength = 256

	// DefaultHookTimeout bounds every call into device hardware.
	DefaultHookTimeout = 5 * time.Second

	// DiscoveryReadTimeout is how long the UDP loop blocks before
	// re-checking for shutdown.
	DiscoveryReadTimeout = time.Second
)

// Bounded lengths for descriptor strings.
const (
	MaxNameLength        = 64
	MaxDescriptionLength = 128
	MaxDriverInfoLength  = 128
	MaxVersionLength     = 32
)

// Device type identifiers as they appear in the URL path.
const (
	DeviceTypeCoverCalibrator     = "covercalibrator"
	DeviceTypeDome                = "dome"
	DeviceTypeFocuser             = "focuser"
	DeviceTypeObservingConditions = "observingconditions"
	DeviceTypeSafetyMonitor       = "safetymonitor"
	DeviceTypeSwitch              = "switch"
)

var deviceTypeNames = map[string]string{
	DeviceTypeCoverCalibrator:     "CoverCalibrator",
	DeviceTypeDome:                "Dome",
	DeviceTypeFocuser:             "Focuser",
	DeviceTypeObservingConditions: "ObservingConditions",
	DeviceTypeSafetyMonitor:       "SafetyMonitor",
	DeviceTypeSwitch:              "Switch",
}

// DeviceTypeName returns the ASCOM display spelling of a device type
// ("safetymonitor" -> "SafetyMonitor"). Unknown types are returned unchanged.
func DeviceTypeName(deviceType string) string {
	if name, ok := deviceTypeNames[strings.ToLower(deviceType)]; ok {
		return name
	}
	return deviceType
}

// IsKnownDeviceType reports whether the server has a handler family for deviceType.
func IsKnownDeviceType(deviceType string) bool {
	_, ok := deviceTypeNames[strings.ToLower(deviceType)]
	return ok
}

// APIResponse is the standard response format for ASCOM Alpaca API calls.
// Every device request receives exactly one of these.
type APIResponse struct {
	// Value contains the return value, omitted for operations without one.
	Value interface{} `json:"Value,omitempty"`

	// ClientTransactionID echoes the ClientTransactionID from the request.
	ClientTransactionID uint32 `json:"ClientTransactionID"`

	// ServerTransactionID is the per-slot counter value for this request.
	ServerTransactionID uint32 `json:"ServerTransactionID"`

	// ErrorNumber is 0 on success, otherwise an ASCOM error code.
	ErrorNumber int `json:"ErrorNumber"`

	// ErrorMessage is empty on success.
	ErrorMessage string `json:"ErrorMessage"`
}

// DiscoveryResponse is the JSON reply sent to a discovery packet.
type DiscoveryResponse struct {
	AlpacaPort   int    `json:"AlpacaPort"`
	ServerName   string `json:"ServerName,omitempty"`
	Manufacturer string `json:"Manufacturer,omitempty"`
}

// DeviceKey generates the registry key for a device.
// Format: "{device_type}-{device_number}", e.g. "dome-0".
func DeviceKey(deviceType string, deviceNumber int) string {
	return fmt.Sprintf("%s-%d", strings.ToLower(deviceType), deviceNumber)
}
