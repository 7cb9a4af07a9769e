package ascomserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DiscoveryService answers Alpaca discovery broadcasts on UDP so that clients
// can find the HTTP API port without prior configuration.
type DiscoveryService struct {
	port    int
	reply   []byte
	metrics *Metrics
	logger  *zap.Logger

	conn     *net.UDPConn
	running  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDiscoveryService prepares a responder that advertises apiPort.
// Port 0 binds an ephemeral port, which is useful in tests.
func NewDiscoveryService(port int, info DiscoveryResponse, metrics *Metrics, logger *zap.Logger) (*DiscoveryService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if info.AlpacaPort <= 0 || info.AlpacaPort > 65535 {
		return nil, fmt.Errorf("invalid alpaca port %d", info.AlpacaPort)
	}
	reply, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal discovery response: %w", err)
	}

	return &DiscoveryService{
		port:    port,
		reply:   reply,
		metrics: metrics,
		logger:  logger.With(zap.String("component", "discovery")),
		stopCh:  make(chan struct{}),
	}, nil
}

// Reply returns the response for an incoming packet, or false when the packet
// is not a discovery request. Trailing bytes after the discovery token are
// tolerated.
func (d *DiscoveryService) Reply(packet []byte) ([]byte, bool) {
	if !strings.HasPrefix(string(packet), AlpacaDiscoveryMessage) {
		return nil, false
	}
	return d.reply, true
}

// Start binds the UDP socket and launches the responder loop.
func (d *DiscoveryService) Start() error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: d.port})
	if err != nil {
		return fmt.Errorf("failed to create UDP listener: %w", err)
	}
	d.conn = conn
	d.running.Store(true)

	d.logger.Info("Discovery service started",
		zap.String("listen_address", conn.LocalAddr().String()),
		zap.ByteString("reply", d.reply))

	d.wg.Add(1)
	go d.loop()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (d *DiscoveryService) Addr() net.Addr {
	if d.conn == nil {
		return nil
	}
	return d.conn.LocalAddr()
}

// Running reports whether the responder loop is active.
func (d *DiscoveryService) Running() bool {
	return d.running.Load()
}

// Stop terminates the loop and waits for it to exit.
func (d *DiscoveryService) Stop() {
	d.stopOnce.Do(func() {
		d.logger.Info("Stopping discovery service")
		close(d.stopCh)
	})
	d.wg.Wait()
}

func (d *DiscoveryService) loop() {
	defer d.wg.Done()
	defer d.running.Store(false)
	defer func() { _ = d.conn.Close() }()

	buffer := make([]byte, 1024)
	for {
		select {
		case <-d.stopCh:
			return
		default:
		}

		_ = d.conn.SetReadDeadline(time.Now().Add(DiscoveryReadTimeout))
		n, remoteAddr, err := d.conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			d.logger.Warn("Error reading UDP packet", zap.Error(err))
			continue
		}

		reply, ok := d.Reply(buffer[:n])
		if !ok {
			d.logger.Debug("Ignoring non-discovery packet",
				zap.String("from", remoteAddr.String()),
				zap.Int("bytes", n))
			continue
		}

		if _, err := d.conn.WriteToUDP(reply, remoteAddr); err != nil {
			d.logger.Error("Failed to send discovery response",
				zap.String("to", remoteAddr.String()),
				zap.Error(err))
			continue
		}
		d.metrics.observeDiscovery()
		d.logger.Debug("Discovery response sent", zap.String("to", remoteAddr.String()))
	}
}
