package prolink

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/tessro/decklink/internal/core"
	"github.com/tessro/decklink/internal/dispatch"
)

// Listener receives beat, position, status and media packets and fans them
// out to registered listeners. Listeners run on the receive goroutine and
// must hand work off rather than block.
type Listener struct {
	clock  clock.Clock
	logger *slog.Logger

	mu    sync.Mutex
	conns []net.PacketConn

	status    *dispatch.Listeners[*core.CdjStatus]
	beats     *dispatch.Listeners[*core.Beat]
	positions *dispatch.Listeners[*core.PrecisePosition]
	media     *dispatch.Listeners[*core.MediaDetails]
}

// NewListener creates an unstarted Listener.
func NewListener(clk clock.Clock, logger *slog.Logger) *Listener {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		clock:     clk,
		logger:    logger,
		status:    dispatch.NewListeners[*core.CdjStatus]("status", logger),
		beats:     dispatch.NewListeners[*core.Beat]("beats", logger),
		positions: dispatch.NewListeners[*core.PrecisePosition]("positions", logger),
		media:     dispatch.NewListeners[*core.MediaDetails]("media", logger),
	}
}

// Start binds the beat and status ports.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.conns) > 0 {
		return nil
	}
	for _, port := range []int{BeatPort, StatusPort} {
		conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", port))
		if err != nil {
			for _, c := range l.conns {
				_ = c.Close()
			}
			l.conns = nil
			return fmt.Errorf("listen on port %d: %w", port, err)
		}
		l.conns = append(l.conns, conn)
		go l.receive(conn)
	}
	go func() {
		<-ctx.Done()
		l.Stop()
	}()
	return nil
}

// Stop closes the sockets.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.conns {
		_ = c.Close()
	}
	l.conns = nil
}

func (l *Listener) receive(conn net.PacketConn) {
	buf := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return
		}
		l.Handle(buf[:n])
	}
}

// Handle parses one packet and delivers it to the matching listeners.
func (l *Listener) Handle(packet []byte) {
	t, err := packetType(packet)
	if err != nil {
		return
	}
	now := l.clock.Now()
	switch {
	case t == typeBeat:
		if b, err := ParseBeat(packet, now); err == nil {
			l.beats.Deliver(b)
		}
	case t == typePrecisePosition:
		if p, err := ParsePrecisePosition(packet, now); err == nil {
			l.positions.Deliver(p)
		}
	case t == typeCdjStatus:
		if s, err := ParseCdjStatus(packet, now); err == nil {
			l.status.Deliver(s)
		} else {
			l.logger.Debug("ignoring status packet", "error", err)
		}
	case IsMediaResponse(packet):
		if m, err := ParseMediaDetails(packet); err == nil {
			l.media.Deliver(m)
		}
	}
}

// OnStatus registers fn for player status updates.
func (l *Listener) OnStatus(fn func(*core.CdjStatus)) dispatch.Subscription {
	return l.status.Add(fn)
}

// OnBeat registers fn for beat packets.
func (l *Listener) OnBeat(fn func(*core.Beat)) dispatch.Subscription {
	return l.beats.Add(fn)
}

// OnPrecisePosition registers fn for precise position packets.
func (l *Listener) OnPrecisePosition(fn func(*core.PrecisePosition)) dispatch.Subscription {
	return l.positions.Add(fn)
}

// OnMediaDetails registers fn for media query responses.
func (l *Listener) OnMediaDetails(fn func(*core.MediaDetails)) dispatch.Subscription {
	return l.media.Add(fn)
}

// Remove unregisters a listener added with any of the On methods.
func (l *Listener) Remove(id dispatch.Subscription) {
	l.status.Remove(id)
	l.beats.Remove(id)
	l.positions.Remove(id)
	l.media.Remove(id)
}
