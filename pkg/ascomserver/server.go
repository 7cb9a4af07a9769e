package ascomserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/unklstewy/bigskies-alpaca/pkg/healthcheck"
)

// Server hosts Alpaca devices over HTTP and answers UDP discovery.
type Server struct {
	config  *Config
	logger  *zap.Logger
	metrics *Metrics
	health  *healthcheck.Engine
	events  EventPublisher

	mu      sync.RWMutex
	devices map[string]*Device

	discovery atomic.Pointer[DiscoveryService]
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewServer validates config and creates a server with no devices.
func NewServer(config *Config, logger *zap.Logger) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:  config,
		logger:  logger.With(zap.String("component", "alpaca_server")),
		metrics: NewMetrics(),
		events:  NopPublisher{},
		devices: make(map[string]*Device),
		stopCh:  make(chan struct{}),
	}
	s.health = healthcheck.NewEngine(logger, 0)
	s.health.Register(healthcheck.NewChecker("discovery", s.checkDiscovery))

	s.logger.Info("Alpaca server created",
		zap.String("listen_address", config.Server.ListenAddress),
		zap.Int("max_devices", config.Server.MaxDevices),
		zap.Int("max_clients", config.Sessions.MaxClients))
	return s, nil
}

// Config returns the validated configuration.
func (s *Server) Config() *Config { return s.config }

// Metrics returns the server's Prometheus collectors.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Health returns the health engine so callers can register extra checkers.
func (s *Server) Health() *healthcheck.Engine { return s.health }

// SetEventPublisher routes device events of all current and future devices to p.
func (s *Server) SetEventPublisher(p EventPublisher) {
	if p == nil {
		p = NopPublisher{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = p
	for _, d := range s.devices {
		d.SetEventPublisher(p)
	}
}

// AddDevice registers d with the server. Devices must be added before Start.
func (s *Server) AddDevice(d *Device) error {
	if d == nil {
		return errors.New("device cannot be nil")
	}
	desc := d.Descriptor()
	key := DeviceKey(desc.DeviceType, desc.DeviceNumber)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.devices[key]; exists {
		return fmt.Errorf("device %s already registered", key)
	}
	if len(s.devices) >= s.config.Server.MaxDevices {
		return fmt.Errorf("cannot add %s: server hosts at most %d devices", key, s.config.Server.MaxDevices)
	}

	d.attach(s.config.Sessions.MaxClients, s.config.Sessions.ClientTimeout, s.metrics)
	d.SetHookTimeout(s.config.Drivers.HookTimeout)
	d.SetEventPublisher(s.events)
	s.devices[key] = d
	s.health.Register(newDeviceChecker(d))

	s.logger.Info("Registered device",
		zap.String("key", key),
		zap.String("name", desc.Name),
		zap.String("unique_id", desc.UniqueID),
		zap.Int("interface_version", desc.InterfaceVersion))
	return nil
}

// Device looks up a hosted device.
func (s *Server) Device(deviceType string, deviceNumber int) (*Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[DeviceKey(deviceType, deviceNumber)]
	return d, ok
}

// Devices returns all hosted devices ordered by type and number.
func (s *Server) Devices() []*Device {
	s.mu.RLock()
	devices := make([]*Device, 0, len(s.devices))
	for _, d := range s.devices {
		devices = append(devices, d)
	}
	s.mu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		a, b := devices[i].Descriptor(), devices[j].Descriptor()
		if a.DeviceType != b.DeviceType {
			return a.DeviceType < b.DeviceType
		}
		return a.DeviceNumber < b.DeviceNumber
	})
	return devices
}

// Start serves HTTP and discovery until ctx is cancelled, Stop is called or
// the HTTP listener fails. It shuts down gracefully before returning.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting Alpaca server")

	listener, err := net.Listen("tcp", s.config.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.ListenAddress, err)
	}
	apiPort := listener.Addr().(*net.TCPAddr).Port

	if !s.config.Server.DisableDiscovery {
		var discovery *DiscoveryService
		discovery, err = NewDiscoveryService(s.config.Server.DiscoveryPort, DiscoveryResponse{
			AlpacaPort:   apiPort,
			ServerName:   s.config.Server.ServerName,
			Manufacturer: s.config.Server.Manufacturer,
		}, s.metrics, s.logger)
		if err == nil {
			err = discovery.Start()
		}
		if err == nil {
			s.discovery.Store(discovery)
		}
		if err != nil {
			_ = listener.Close()
			return fmt.Errorf("failed to start discovery service: %w", err)
		}
	}

	httpServer := &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	serverErrors := make(chan error, 1)
	go func() {
		defer wg.Done()
		s.logger.Info("HTTP server starting", zap.String("address", listener.Addr().String()))
		serverErrors <- httpServer.Serve(listener)
	}()

	var runErr error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("HTTP server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received")
	case <-s.stopCh:
		s.logger.Info("Server stop requested")
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Error during HTTP server shutdown", zap.Error(err))
	}
	if discovery := s.discovery.Load(); discovery != nil {
		discovery.Stop()
	}
	wg.Wait()

	s.logger.Info("Server shutdown complete")
	return runErr
}

// Stop asks Start to shut down. It is safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Router builds the HTTP handler for the Alpaca, management, health and
// metrics endpoints.
func (s *Server) Router() *gin.Engine {
	if s.config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(ErrorHandlerMiddleware(s.logger))
	router.Use(LoggingMiddleware(s.logger))
	if s.config.CORS.Enabled {
		router.Use(CORSMiddleware(s.config.CORS))
	}

	api := router.Group(fmt.Sprintf("/api/v%d", AlpacaAPIVersion))
	api.GET("/:device_type/:device_number/:action", s.dispatch)
	api.PUT("/:device_type/:device_number/:action", s.dispatch)

	NewManagementAPI(s).RegisterRoutes(router)

	router.GET("/health", s.handleHealth)
	if s.config.Metrics.Enabled {
		router.GET(s.config.Metrics.Path, gin.WrapH(s.metrics.Handler()))
	}

	router.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "404 page not found: %s", c.Request.URL.Path)
	})
	router.NoMethod(func(c *gin.Context) {
		c.String(http.StatusMethodNotAllowed, "method %s not allowed", c.Request.Method)
	})

	return router
}

// dispatch routes a device request. Failures to locate the device or action
// are transport-level errors answered with plain text, not envelopes.
func (s *Server) dispatch(c *gin.Context) {
	deviceType := strings.ToLower(c.Param("device_type"))
	number, err := strconv.Atoi(c.Param("device_number"))
	if err != nil || number < 0 {
		c.String(http.StatusNotFound, "device %s/%s not found", deviceType, c.Param("device_number"))
		return
	}

	d, ok := s.Device(deviceType, number)
	if !ok {
		c.String(http.StatusNotFound, "device %s/%d not found", deviceType, number)
		return
	}

	action := strings.ToLower(c.Param("action"))
	h, status := d.route(c.Request.Method, action)
	switch status {
	case routeUnknownAction:
		c.String(http.StatusNotFound, "%s/%d has no action %s", deviceType, number, action)
		return
	case routeWrongMethod:
		c.String(http.StatusMethodNotAllowed, "%s not allowed for %s", c.Request.Method, action)
		return
	}
	d.serve(c, action, h)
}

func (s *Server) handleHealth(c *gin.Context) {
	result := s.health.CheckAll(c.Request.Context())
	status := http.StatusOK
	if result.OverallStatus == healthcheck.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, result)
}
