package dbserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/tessro/decklink/internal/core"
	dlerrors "github.com/tessro/decklink/internal/errors"
)

// Client is one connection to a player's database server.
type Client struct {
	conn   net.Conn
	r      *bufio.Reader
	logger *slog.Logger

	// Player is the device number of the server.
	Player int
	// Posing is the device number requests are sent on behalf of.
	Posing int
	// Timeout bounds each request. Zero leaves requests bounded only by
	// their context.
	Timeout time.Duration

	mu  sync.Mutex
	txn uint32
}

// NewClient performs the greeting and setup exchange on an open connection.
func NewClient(ctx context.Context, conn net.Conn, player, posing int, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		conn:   conn,
		r:      bufio.NewReader(conn),
		logger: logger,
		Player: player,
		Posing: posing,
	}
	if err := c.handshake(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) handshake(ctx context.Context) error {
	defer c.setDeadline(ctx)()

	greeting, err := Number4(1).Encode()
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(greeting); err != nil {
		return fmt.Errorf("send greeting: %w", err)
	}
	resp, err := ReadField(c.r)
	if err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}
	if resp.Type != TypeNumber4 || resp.Number != 1 {
		return fmt.Errorf("unexpected greeting response %s", resp)
	}

	setup := NewMessage(setupTransaction, SetupReq, Number4(uint32(c.Posing)))
	if err := c.write(setup); err != nil {
		return fmt.Errorf("send setup: %w", err)
	}
	ack, err := ReadMessage(c.r)
	if err != nil {
		return fmt.Errorf("read setup response: %w", err)
	}
	if ack.Type != MenuAvailable {
		return fmt.Errorf("setup rejected by player %d: %s", c.Player, ack.Type)
	}
	return nil
}

// setDeadline bounds the next exchange by the earlier of ctx's deadline and
// Timeout, and aborts it when ctx is canceled. The returned func releases the
// cancellation hook.
func (c *Client) setDeadline(ctx context.Context) func() bool {
	var d time.Time
	if c.Timeout > 0 {
		d = time.Now().Add(c.Timeout)
	}
	if cd, ok := ctx.Deadline(); ok && (d.IsZero() || cd.Before(d)) {
		d = cd
	}
	_ = c.conn.SetDeadline(d)
	return context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
}

func (c *Client) write(m *Message) error {
	b, err := m.Encode()
	if err != nil {
		return err
	}
	_, err = c.conn.Write(b)
	return err
}

// Query sends a request and returns the player's response.
func (c *Client) Query(ctx context.Context, t MessageType, args ...Field) (*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.setDeadline(ctx)()

	c.txn++
	req := NewMessage(c.txn, t, args...)
	c.logger.Debug("dbserver request", "player", c.Player, "request", req.String())
	if err := c.write(req); err != nil {
		return nil, c.wrap(ctx, fmt.Errorf("send %s: %w", t, err))
	}
	resp, err := ReadMessage(c.r)
	if err != nil {
		return nil, c.wrap(ctx, fmt.Errorf("read %s response: %w", t, err))
	}
	if resp.Transaction != req.Transaction {
		return nil, fmt.Errorf("%s response has transaction %d, want %d", t, resp.Transaction, req.Transaction)
	}
	if resp.Type == Unavailable {
		return nil, fmt.Errorf("%s: %w", t, dlerrors.ErrUnavailable)
	}
	return resp, nil
}

// wrap maps deadline failures onto ErrTimeout, or ErrCanceled when ctx was
// canceled.
func (c *Client) wrap(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%w: %w", dlerrors.ErrCanceled, err)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", dlerrors.ErrTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %w", dlerrors.ErrTimeout, err)
	}
	return err
}

// MenuRequest sends a request that stages menu items for rendering and returns
// how many items are available.
func (c *Client) MenuRequest(ctx context.Context, t MessageType, menu MenuID, slot core.TrackSourceSlot, trackType core.TrackType, args ...Field) (int, error) {
	all := append([]Field{DMST(c.Posing, menu, slot, trackType)}, args...)
	resp, err := c.Query(ctx, t, all...)
	if err != nil {
		return 0, err
	}
	if resp.Type != MenuAvailable {
		return 0, fmt.Errorf("%s: unexpected response %s", t, resp.Type)
	}
	count, err := resp.NumberArg(1)
	if err != nil {
		return 0, err
	}
	if count == 0xffffffff {
		return 0, fmt.Errorf("%s: %w", t, dlerrors.ErrUnavailable)
	}
	return int(count), nil
}

// RenderMenuItems retrieves staged menu items. The returned messages are the
// items followed by the menu footer.
func (c *Client) RenderMenuItems(ctx context.Context, menu MenuID, slot core.TrackSourceSlot, trackType core.TrackType, offset, count int) ([]*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.setDeadline(ctx)()

	c.txn++
	req := NewMessage(c.txn, RenderMenuReq,
		DMST(c.Posing, menu, slot, trackType),
		Number4(uint32(offset)),
		Number4(uint32(count)),
		Number4(0),
		Number4(uint32(count)),
		Number4(0),
	)
	if err := c.write(req); err != nil {
		return nil, c.wrap(ctx, fmt.Errorf("send render: %w", err))
	}

	header, err := ReadMessage(c.r)
	if err != nil {
		return nil, c.wrap(ctx, fmt.Errorf("read menu header: %w", err))
	}
	if header.Type != MenuHeader {
		return nil, fmt.Errorf("expected menu header, got %s", header.Type)
	}

	var items []*Message
	for {
		m, err := ReadMessage(c.r)
		if err != nil {
			return nil, c.wrap(ctx, fmt.Errorf("read menu item: %w", err))
		}
		items = append(items, m)
		if m.Type == MenuFooter {
			return items, nil
		}
		if m.Type != MenuItem {
			return nil, fmt.Errorf("unexpected %s while rendering menu", m.Type)
		}
	}
}

// Close tears down the session and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetDeadline(time.Now().Add(time.Second))
	if err := c.write(NewMessage(setupTransaction, TeardownReq)); err != nil {
		c.logger.Debug("teardown failed", "player", c.Player, "error", err)
	}
	return c.conn.Close()
}
