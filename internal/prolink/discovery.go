package prolink

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tessro/decklink/internal/core"
	"github.com/tessro/decklink/internal/dispatch"
)

const defaultDeviceTimeout = 10 * time.Second

// Discovery tracks the devices announcing themselves on the network.
type Discovery struct {
	timeout time.Duration
	clock   clock.Clock
	logger  *slog.Logger

	mu      sync.RWMutex
	devices map[int]*core.DeviceAnnouncement // keyed by device number
	conn    net.PacketConn
	cancel  context.CancelFunc

	listeners *dispatch.Listeners[core.DeviceEvent]
}

// NewDiscovery creates a Discovery that reports a device lost after timeout of silence.
func NewDiscovery(timeout time.Duration, clk clock.Clock, logger *slog.Logger) *Discovery {
	if timeout == 0 {
		timeout = defaultDeviceTimeout
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Discovery{
		timeout:   timeout,
		clock:     clk,
		logger:    logger,
		devices:   make(map[int]*core.DeviceAnnouncement),
		listeners: dispatch.NewListeners[core.DeviceEvent]("devices", logger),
	}
}

// Start binds the announcement port and begins tracking devices.
func (d *Discovery) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return nil
	}
	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", AnnouncePort))
	if err != nil {
		return fmt.Errorf("listen for announcements: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	d.conn = conn
	d.cancel = cancel

	go d.receive(conn)
	go d.expireLoop(ctx)
	return nil
}

// Stop closes the socket and reports every known device as lost.
func (d *Discovery) Stop() {
	d.mu.Lock()
	conn, cancel := d.conn, d.cancel
	d.conn, d.cancel = nil, nil
	lost := make([]core.DeviceAnnouncement, 0, len(d.devices))
	for n, dev := range d.devices {
		lost = append(lost, *dev)
		delete(d.devices, n)
	}
	d.mu.Unlock()

	if conn == nil {
		return
	}
	cancel()
	_ = conn.Close()
	for _, dev := range lost {
		d.listeners.Deliver(core.DeviceEvent{Device: dev, Lost: true})
	}
}

func (d *Discovery) receive(conn net.PacketConn) {
	buf := make([]byte, 512)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return
		}
		d.Handle(buf[:n])
	}
}

// Handle processes one announcement packet.
func (d *Discovery) Handle(packet []byte) {
	ann, err := ParseKeepAlive(packet, d.clock.Now())
	if err != nil {
		return
	}
	d.mu.Lock()
	_, known := d.devices[ann.Number]
	d.devices[ann.Number] = ann
	d.mu.Unlock()

	if !known {
		d.logger.Info("device found", "player", ann.Number, "name", ann.Name, "address", ann.Address.String())
		d.listeners.Deliver(core.DeviceEvent{Device: *ann})
	}
}

func (d *Discovery) expireLoop(ctx context.Context) {
	ticker := d.clock.Ticker(d.timeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Expire()
		}
	}
}

// Expire drops devices that have been silent longer than the timeout.
func (d *Discovery) Expire() {
	now := d.clock.Now()
	var lost []core.DeviceAnnouncement
	d.mu.Lock()
	for n, dev := range d.devices {
		if now.Sub(dev.LastSeen) >= d.timeout {
			lost = append(lost, *dev)
			delete(d.devices, n)
		}
	}
	d.mu.Unlock()

	for _, dev := range lost {
		d.logger.Info("device lost", "player", dev.Number, "name", dev.Name)
		d.listeners.Deliver(core.DeviceEvent{Device: dev, Lost: true})
	}
}

// Devices returns the devices currently on the network, ordered by number.
func (d *Discovery) Devices() []core.DeviceAnnouncement {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]core.DeviceAnnouncement, 0, len(d.devices))
	for _, dev := range d.devices {
		out = append(out, *dev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Device returns the announcement for a device number.
func (d *Discovery) Device(number int) (core.DeviceAnnouncement, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dev, ok := d.devices[number]
	if !ok {
		return core.DeviceAnnouncement{}, false
	}
	return *dev, true
}

// Address returns the IP address of a device.
func (d *Discovery) Address(number int) (net.IP, bool) {
	dev, ok := d.Device(number)
	if !ok {
		return nil, false
	}
	return dev.Address, true
}

// AddListener registers fn for device found and lost events.
func (d *Discovery) AddListener(fn func(core.DeviceEvent)) dispatch.Subscription {
	return d.listeners.Add(fn)
}

// RemoveListener unregisters a device listener.
func (d *Discovery) RemoveListener(id dispatch.Subscription) {
	d.listeners.Remove(id)
}
