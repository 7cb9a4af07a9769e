package ascomserver

import (
	"context"
	"fmt"

	"github.com/unklstewy/bigskies-alpaca/pkg/healthcheck"
)

func (s *Server) checkDiscovery(ctx context.Context) *healthcheck.Result {
	discovery := s.discovery.Load()
	switch {
	case s.config.Server.DisableDiscovery:
		return healthcheck.NewResult("discovery", healthcheck.StatusHealthy, "discovery disabled")
	case discovery == nil:
		return healthcheck.NewResult("discovery", healthcheck.StatusUnknown, "discovery not started")
	case !discovery.Running():
		return healthcheck.NewResult("discovery", healthcheck.StatusUnhealthy, "discovery loop stopped")
	}
	return healthcheck.NewResult("discovery", healthcheck.StatusHealthy, "").
		WithDetail("address", discovery.Addr().String())
}

// newDeviceChecker reports a device as degraded while its client table is full,
// since new clients are being turned away.
func newDeviceChecker(d *Device) healthcheck.Checker {
	desc := d.Descriptor()
	name := DeviceKey(desc.DeviceType, desc.DeviceNumber)

	return healthcheck.NewChecker(name, func(ctx context.Context) *healthcheck.Result {
		sessions := d.Sessions()
		active, capacity := sessions.Active(), sessions.Capacity()

		status := healthcheck.StatusHealthy
		message := ""
		if active >= capacity {
			status = healthcheck.StatusDegraded
			message = fmt.Sprintf("client table full (%d/%d)", active, capacity)
		}
		return healthcheck.NewResult(name, status, message).
			WithDetail("sessions", active).
			WithDetail("capacity", capacity).
			WithDetail("requests", d.ServiceCount())
	})
}
