package ascomserver

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ServerDescription is the value of /management/v1/description.
type ServerDescription struct {
	ServerName          string `json:"ServerName"`
	Manufacturer        string `json:"Manufacturer"`
	ManufacturerVersion string `json:"ManufacturerVersion"`
	Location            string `json:"Location"`
}

// DeviceConfiguration is one entry of /management/v1/configureddevices.
type DeviceConfiguration struct {
	DeviceName   string `json:"DeviceName"`
	DeviceType   string `json:"DeviceType"`
	DeviceNumber int    `json:"DeviceNumber"`
	UniqueID     string `json:"UniqueID"`
}

// ManagementAPI implements the server-level Alpaca management endpoints.
// These are not tied to a device and never require a session, so every
// caller is served through the connectionless slot of a dedicated registry.
type ManagementAPI struct {
	server   *Server
	sessions *SessionRegistry
	logger   *zap.Logger
}

// NewManagementAPI creates the management handlers for server.
func NewManagementAPI(server *Server) *ManagementAPI {
	return &ManagementAPI{
		server:   server,
		sessions: NewSessionRegistry(1, DefaultClientTimeout, server.logger),
		logger:   server.logger.With(zap.String("component", "management")),
	}
}

// RegisterRoutes registers the management endpoints on router.
func (m *ManagementAPI) RegisterRoutes(router gin.IRouter) {
	management := router.Group("/management")
	management.GET("/apiversions", m.handleAPIVersions)

	v1 := management.Group("/v1")
	v1.GET("/description", m.handleDescription)
	v1.GET("/configureddevices", m.handleConfiguredDevices)
}

func (m *ManagementAPI) respond(c *gin.Context, v Value) {
	params := ParamsFromRequest(c.Request)
	clientTxnID, err := params.Uint32("ClientTransactionID", SpellingIgnoreCase)
	if err != nil {
		clientTxnID = 0
	}
	session := m.sessions.Resolve(ConnectionlessClientID, clientTxnID)
	if err := writeEnvelope(c, NewResponse(session, clientTxnID, OK(v))); err != nil {
		m.logger.Error("Envelope suppressed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
}

func (m *ManagementAPI) handleAPIVersions(c *gin.Context) {
	m.respond(c, ListValue([]int{AlpacaAPIVersion}))
}

func (m *ManagementAPI) handleDescription(c *gin.Context) {
	cfg := m.server.config.Server
	m.respond(c, ObjectValue(ServerDescription{
		ServerName:          cfg.ServerName,
		Manufacturer:        cfg.Manufacturer,
		ManufacturerVersion: cfg.ManufacturerVersion,
		Location:            cfg.Location,
	}))
}

func (m *ManagementAPI) handleConfiguredDevices(c *gin.Context) {
	devices := m.server.Devices()
	configured := make([]DeviceConfiguration, 0, len(devices))
	for _, d := range devices {
		desc := d.Descriptor()
		configured = append(configured, DeviceConfiguration{
			DeviceName:   desc.Name,
			DeviceType:   DeviceTypeName(desc.DeviceType),
			DeviceNumber: desc.DeviceNumber,
			UniqueID:     desc.UniqueID,
		})
	}
	m.logger.Debug("Returning configured devices", zap.Int("count", len(configured)))
	m.respond(c, ListValue(configured))
}
