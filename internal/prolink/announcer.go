package prolink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tessro/decklink/internal/core"
)

// Announcer makes this process visible on the network as a virtual player so
// that players answer its database and media queries.
type Announcer struct {
	Name     string
	Number   int
	Interval time.Duration

	clock  clock.Clock
	logger *slog.Logger

	ip        net.IP
	mac       net.HardwareAddr
	broadcast net.IP
}

// NewAnnouncer prepares an announcer on the named interface, or the first
// suitable IPv4 interface when iface is empty.
func NewAnnouncer(iface, name string, number int, interval time.Duration, clk clock.Clock, logger *slog.Logger) (*Announcer, error) {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ip, mask, mac, err := findInterface(iface)
	if err != nil {
		return nil, err
	}
	bcast := make(net.IP, 4)
	for i := range bcast {
		bcast[i] = ip[i] | ^mask[i]
	}
	return &Announcer{
		Name:      name,
		Number:    number,
		Interval:  interval,
		clock:     clk,
		logger:    logger,
		ip:        ip,
		mac:       mac,
		broadcast: bcast,
	}, nil
}

func findInterface(name string) (net.IP, net.IPMask, net.HardwareAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list interfaces: %w", err)
	}
	for _, ifc := range ifaces {
		if name != "" && ifc.Name != name {
			continue
		}
		if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if v4 := ipnet.IP.To4(); v4 != nil && len(ipnet.Mask) == net.IPv4len {
				return v4, ipnet.Mask, ifc.HardwareAddr, nil
			}
		}
	}
	if name != "" {
		return nil, nil, nil, fmt.Errorf("interface %s has no usable IPv4 address", name)
	}
	return nil, nil, nil, errors.New("no network interface with an IPv4 address")
}

// Address returns the IP address announcements are sent from.
func (a *Announcer) Address() net.IP {
	return a.ip
}

// Run broadcasts keep-alives until ctx is done.
func (a *Announcer) Run(ctx context.Context) error {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return fmt.Errorf("open announce socket: %w", err)
	}
	defer func() { _ = conn.Close() }()

	dst := &net.UDPAddr{IP: a.broadcast, Port: AnnouncePort}
	packet := BuildKeepAlive(a.Name, a.Number, a.mac, a.ip)
	a.logger.Info("announcing as virtual player", "player", a.Number, "address", a.ip.String())

	ticker := a.clock.Ticker(a.Interval)
	defer ticker.Stop()
	for {
		if _, err := conn.WriteTo(packet, dst); err != nil {
			a.logger.Warn("keep-alive failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// QueryMedia asks the player owning slot to send details of its media.
func (a *Announcer) QueryMedia(slot core.SlotReference, player net.IP) error {
	conn, err := net.Dial("udp4", net.JoinHostPort(player.String(), fmt.Sprint(StatusPort)))
	if err != nil {
		return fmt.Errorf("media query: %w", err)
	}
	defer func() { _ = conn.Close() }()
	_, err = conn.Write(BuildMediaQuery(a.Name, a.Number, a.ip, slot))
	return err
}
