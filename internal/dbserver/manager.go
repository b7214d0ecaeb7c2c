package dbserver

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	dlerrors "github.com/tessro/decklink/internal/errors"
)

// PortDiscoveryPort is where players answer "which port is your database server on".
const PortDiscoveryPort = 12523

var portQuery = append([]byte{0, 0, 0, 0x0f}, append([]byte("RemoteDBServer"), 0)...)

// Addresser resolves a player number to its IP address.
type Addresser interface {
	Address(player int) (net.IP, bool)
}

// DialFunc opens a TCP connection.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Manager hands out exclusive, short-lived sessions with players' database servers.
type Manager struct {
	devices Addresser
	posing  int
	timeout time.Duration
	logger  *slog.Logger
	dial    DialFunc

	mu    sync.Mutex
	ports map[int]int
	locks map[int]*sync.Mutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDialer replaces the network dialer.
func WithDialer(dial DialFunc) ManagerOption {
	return func(m *Manager) { m.dial = dial }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a session manager that sends requests as device number posing.
// timeout bounds connection setup and each request within a session, so a
// session may run longer than timeout as long as the player keeps answering.
func NewManager(devices Addresser, posing int, timeout time.Duration, opts ...ManagerOption) *Manager {
	var d net.Dialer
	m := &Manager{
		devices: devices,
		posing:  posing,
		timeout: timeout,
		logger:  slog.Default(),
		dial:    d.DialContext,
		ports:   make(map[int]int),
		locks:   make(map[int]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) lockFor(player int) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[player]
	if !ok {
		l = &sync.Mutex{}
		m.locks[player] = l
	}
	return l
}

// Do runs fn with a fresh session to the player's database server. Sessions to
// one player are serialized; the connection is closed when fn returns. Every
// request fn makes fails with errors.ErrTimeout if the player does not answer
// within the manager's timeout.
func (m *Manager) Do(ctx context.Context, player int, fn func(*Client) error) error {
	ip, ok := m.devices.Address(player)
	if !ok {
		return fmt.Errorf("player %d: %w", player, dlerrors.ErrDeviceNotFound)
	}

	lock := m.lockFor(player)
	lock.Lock()
	defer lock.Unlock()

	client, err := m.connect(ctx, player, ip)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			m.logger.Debug("closing database session", "player", player, "error", err)
		}
	}()
	return fn(client)
}

func (m *Manager) connect(ctx context.Context, player int, ip net.IP) (*Client, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	port, err := m.port(ctx, player, ip)
	if err != nil {
		return nil, err
	}
	conn, err := m.dial(ctx, "tcp", net.JoinHostPort(ip.String(), strconv.Itoa(port)))
	if err != nil {
		m.forgetPort(player)
		return nil, fmt.Errorf("connect to player %d database: %w", player, err)
	}
	client, err := NewClient(ctx, conn, player, m.posing, m.logger)
	if err != nil {
		m.forgetPort(player)
		return nil, fmt.Errorf("player %d database: %w", player, err)
	}
	client.Timeout = m.timeout
	return client, nil
}

// WithSession runs fn with a session to player and returns its result.
func WithSession[T any](ctx context.Context, m *Manager, player int, fn func(*Client) (T, error)) (T, error) {
	var out T
	err := m.Do(ctx, player, func(c *Client) error {
		var err error
		out, err = fn(c)
		return err
	})
	return out, err
}

func (m *Manager) port(ctx context.Context, player int, ip net.IP) (int, error) {
	m.mu.Lock()
	port, ok := m.ports[player]
	m.mu.Unlock()
	if ok {
		return port, nil
	}

	conn, err := m.dial(ctx, "tcp", net.JoinHostPort(ip.String(), strconv.Itoa(PortDiscoveryPort)))
	if err != nil {
		return 0, fmt.Errorf("query database port of player %d: %w", player, err)
	}
	defer func() { _ = conn.Close() }()
	if d, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(d)
	}
	if _, err := conn.Write(portQuery); err != nil {
		return 0, fmt.Errorf("query database port of player %d: %w", player, err)
	}
	var b [2]byte
	if _, err := io.ReadFull(conn, b[:]); err != nil {
		return 0, fmt.Errorf("read database port of player %d: %w", player, err)
	}
	port = int(binary.BigEndian.Uint16(b[:]))
	if port == 0 || port == 0xffff {
		return 0, fmt.Errorf("player %d has no database server: %w", player, dlerrors.ErrUnavailable)
	}

	m.mu.Lock()
	m.ports[player] = port
	m.mu.Unlock()
	m.logger.Debug("found database server", "player", player, "port", port)
	return port, nil
}

func (m *Manager) forgetPort(player int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ports, player)
}

// Forget drops cached state for a player that left the network.
func (m *Manager) Forget(player int) {
	m.forgetPort(player)
}
