package dbserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessro/decklink/internal/core"
	dlerrors "github.com/tessro/decklink/internal/errors"
)

func TestFieldRoundTrip(t *testing.T) {
	fields := []Field{
		Number1(7),
		Number2(0xbeef),
		Number4(0x872349ae),
		Binary([]byte{1, 2, 3}),
		Text("Déjà Vu"),
		Text(""),
	}
	for _, f := range fields {
		b, err := f.Encode()
		require.NoError(t, err)
		got, err := ReadField(bytes.NewReader(b))
		require.NoError(t, err, f.String())
		assert.Equal(t, f, got)
	}
}

func TestStringFieldLayout(t *testing.T) {
	b, err := Text("AB").Encode()
	require.NoError(t, err)
	// tag, three code units including the terminator, UTF-16BE text
	assert.Equal(t, []byte{0x26, 0, 0, 0, 3, 0, 'A', 0, 'B', 0, 0}, b)
}

func TestMessageRoundTrip(t *testing.T) {
	m := NewMessage(42, MetadataReq,
		DMST(5, MainMenu, core.SlotUSB, core.TrackTypeRekordbox),
		Number4(1234),
		Text("hello"),
		Binary([]byte{9, 9}),
	)
	b, err := m.Encode()
	require.NoError(t, err)

	got, err := ReadMessage(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, m, got)
	assert.Equal(t, uint32(0x05010301), got.Args[0].Number)
}

func TestMessageOmitsEmptyBlobAfterZero(t *testing.T) {
	m := NewMessage(1, AlbumArtResp, Number4(0), Number4(0), Number4(0), Binary(nil))
	b, err := m.Encode()
	require.NoError(t, err)

	withBlob := NewMessage(1, AlbumArtResp, Number4(0), Number4(0), Number4(0))
	short, err := withBlob.Encode()
	require.NoError(t, err)
	assert.Equal(t, len(short), len(b))

	got, err := ReadMessage(bytes.NewReader(b))
	require.NoError(t, err)
	require.Len(t, got.Args, 4)
	assert.Empty(t, got.Args[3].Blob)
}

func TestReadMessagesStopsAtFooter(t *testing.T) {
	msgs := []*Message{
		NewItem(1, Item{ID: 300, Label1: "x", Type: ItemDuration}),
		NewMessage(1, MenuFooter),
	}
	b, err := EncodeMessages(msgs)
	require.NoError(t, err)

	got, err := ReadMessages(b)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, MenuFooter, got[1].Type)
}

func TestTrackMetadataFromItems(t *testing.T) {
	track := core.DataReference{Player: 2, Slot: core.SlotUSB, ID: 7}
	items := []*Message{
		NewItem(1, Item{Label1: "Strings of Life", Type: ItemTitle, ArtworkID: 55}),
		NewItem(1, Item{Label1: "Rhythim Is Rhythim", Type: ItemArtist}),
		NewItem(1, Item{ID: 372, Type: ItemDuration}),
		NewItem(1, Item{ID: 12450, Type: ItemTempo}),
		NewItem(1, Item{Label1: "8A", Type: ItemKey}),
		NewItem(1, Item{Type: ItemColorNone + 3}),
		NewMessage(1, MenuFooter),
	}
	md := TrackMetadataFromItems(track, core.TrackTypeRekordbox, items)
	assert.Equal(t, "Strings of Life", md.Title)
	assert.Equal(t, "Rhythim Is Rhythim", md.Artist)
	assert.Equal(t, 55, md.ArtworkID)
	assert.Equal(t, 372, md.Duration)
	assert.Equal(t, 12450, md.Tempo)
	assert.Equal(t, "8A", md.Key)
	assert.Equal(t, 3, md.Color)
}

func TestFourCC(t *testing.T) {
	assert.Equal(t, uint32('I')<<24|uint32('S')<<16|uint32('S')<<8|uint32('P'), fourCC("PSSI"))
}

// fakePlayer answers database requests on one connection.
type fakePlayer struct {
	handle func(req *Message) []*Message
}

func (p *fakePlayer) serve(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	r := bufio.NewReader(conn)
	write := func(m *Message) bool {
		b, err := m.Encode()
		if err != nil {
			return false
		}
		_, err = conn.Write(b)
		return err == nil
	}

	if _, err := ReadField(r); err != nil {
		return
	}
	greeting, _ := Number4(1).Encode()
	if _, err := conn.Write(greeting); err != nil {
		return
	}
	setup, err := ReadMessage(r)
	if err != nil {
		return
	}
	if !write(NewMessage(setup.Transaction, MenuAvailable, Number4(0), Number4(2))) {
		return
	}
	for {
		req, err := ReadMessage(r)
		if err != nil || req.Type == TeardownReq {
			return
		}
		for _, resp := range p.handle(req) {
			resp.Transaction = req.Transaction
			if !write(resp) {
				return
			}
		}
	}
}

func cueListPayload() []byte {
	b := make([]byte, 36)
	b[1] = 1
	b[2] = 1
	binary.LittleEndian.PutUint32(b[12:], 150)
	return b
}

func metadataPlayer() *fakePlayer {
	return &fakePlayer{handle: func(req *Message) []*Message {
		switch req.Type {
		case MetadataReq:
			return []*Message{NewMessage(0, MenuAvailable, Number4(uint32(MetadataReq)), Number4(2))}
		case RenderMenuReq:
			return []*Message{
				NewMessage(0, MenuHeader),
				NewItem(0, Item{Label1: "Title", Type: ItemTitle, ArtworkID: 9}),
				NewItem(0, Item{ID: 200, Type: ItemDuration}),
				NewMessage(0, MenuFooter),
			}
		case CueListReq:
			raw := cueListPayload()
			return []*Message{NewMessage(0, CueListResp, Number4(0), Number4(0), Number4(uint32(len(raw))), Binary(raw))}
		case BeatGridReq:
			return []*Message{NewMessage(0, Unavailable, Number4(uint32(BeatGridReq)))}
		}
		return []*Message{NewMessage(0, Unavailable)}
	}}
}

func dialFake(t *testing.T, p *fakePlayer) *Client {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()
	go p.serve(serverEnd)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := NewClient(ctx, clientEnd, 2, 5, nil)
	require.NoError(t, err)
	return c
}

func TestClientTrackMetadata(t *testing.T) {
	c := dialFake(t, metadataPlayer())
	defer func() { _ = c.Close() }()

	track := core.DataReference{Player: 2, Slot: core.SlotUSB, ID: 11}
	res, err := c.TrackMetadata(context.Background(), track, core.TrackTypeRekordbox)
	require.NoError(t, err)
	assert.Equal(t, "Title", res.Metadata.Title)
	assert.Equal(t, 9, res.Metadata.ArtworkID)
	assert.Equal(t, 200, res.Metadata.Duration)
	assert.Len(t, res.Items, 3)
	require.NotNil(t, res.Metadata.CueList)
	assert.Equal(t, []int{1}, res.Metadata.HotCues())
}

func TestClientUnavailable(t *testing.T) {
	c := dialFake(t, metadataPlayer())
	defer func() { _ = c.Close() }()

	_, err := c.BeatGrid(context.Background(), core.DataReference{Player: 2, Slot: core.SlotUSB, ID: 11})
	assert.ErrorIs(t, err, dlerrors.ErrUnavailable)
}

type addrs map[int]net.IP

func (a addrs) Address(player int) (net.IP, bool) {
	ip, ok := a[player]
	return ip, ok
}

func TestManagerDiscoversPortAndRunsSession(t *testing.T) {
	var portQueries atomic.Int32
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		clientEnd, serverEnd := net.Pipe()
		if strings.HasSuffix(addr, ":12523") {
			portQueries.Add(1)
			go func() {
				defer func() { _ = serverEnd.Close() }()
				buf := make([]byte, len(portQuery))
				if _, err := io.ReadFull(serverEnd, buf); err != nil {
					return
				}
				_, _ = serverEnd.Write([]byte{0x04, 0x1b})
			}()
		} else {
			if !strings.HasSuffix(addr, ":1051") {
				t.Errorf("dialed %s, want port 1051", addr)
			}
			go metadataPlayer().serve(serverEnd)
		}
		return clientEnd, nil
	}
	m := NewManager(addrs{2: net.ParseIP("10.0.0.2")}, 5, 2*time.Second, WithDialer(dial))

	for i := 0; i < 2; i++ {
		md, err := WithSession(context.Background(), m, 2, func(c *Client) (*TrackMetadataResult, error) {
			return c.TrackMetadata(context.Background(), core.DataReference{Player: 2, Slot: core.SlotSD, ID: 1}, core.TrackTypeRekordbox)
		})
		require.NoError(t, err)
		assert.Equal(t, "Title", md.Metadata.Title)
	}
	assert.Equal(t, int32(1), portQueries.Load())
}

func TestManagerUnknownPlayer(t *testing.T) {
	m := NewManager(addrs{}, 5, time.Second)
	err := m.Do(context.Background(), 9, func(*Client) error { return nil })
	assert.ErrorIs(t, err, dlerrors.ErrDeviceNotFound)
}

// dialPlayer answers port discovery with 1051 and serves p on the database port.
func dialPlayer(p *fakePlayer) DialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		clientEnd, serverEnd := net.Pipe()
		if strings.HasSuffix(addr, ":12523") {
			go func() {
				defer func() { _ = serverEnd.Close() }()
				buf := make([]byte, len(portQuery))
				if _, err := io.ReadFull(serverEnd, buf); err != nil {
					return
				}
				_, _ = serverEnd.Write([]byte{0x04, 0x1b})
			}()
		} else {
			go p.serve(serverEnd)
		}
		return clientEnd, nil
	}
}

func TestManagerTimesOutSilentPlayer(t *testing.T) {
	silent := &fakePlayer{handle: func(*Message) []*Message { return nil }}
	m := NewManager(addrs{2: net.ParseIP("10.0.0.2")}, 5, 200*time.Millisecond, WithDialer(dialPlayer(silent)))

	track := core.DataReference{Player: 2, Slot: core.SlotUSB, ID: 1}
	done := make(chan error, 1)
	go func() {
		done <- m.Do(context.Background(), 2, func(c *Client) error {
			_, err := c.TrackMetadata(context.Background(), track, core.TrackTypeRekordbox)
			return err
		})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, dlerrors.ErrTimeout)
	case <-time.After(3 * time.Second):
		t.Fatal("request to a silent player never timed out")
	}

	// The player lock is released for the next session.
	err := m.Do(context.Background(), 2, func(*Client) error { return nil })
	assert.NoError(t, err)
}

func TestManagerTimeoutAppliesPerRequest(t *testing.T) {
	slow := metadataPlayer()
	answer := slow.handle
	slow.handle = func(req *Message) []*Message {
		time.Sleep(100 * time.Millisecond)
		return answer(req)
	}
	m := NewManager(addrs{2: net.ParseIP("10.0.0.2")}, 5, 300*time.Millisecond, WithDialer(dialPlayer(slow)))

	// The session outlasts the timeout but every request is answered in time.
	err := m.Do(context.Background(), 2, func(c *Client) error {
		for i := 0; i < 2; i++ {
			if _, err := c.TrackMetadata(context.Background(), core.DataReference{Player: 2, Slot: core.SlotUSB, ID: i + 1}, core.TrackTypeRekordbox); err != nil {
				return err
			}
		}
		return nil
	})
	assert.NoError(t, err)
}

func TestClientQueryCanceled(t *testing.T) {
	silent := &fakePlayer{handle: func(*Message) []*Message { return nil }}
	c := dialFake(t, silent)
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	_, err := c.Query(ctx, MetadataReq, Number4(1))
	assert.ErrorIs(t, err, dlerrors.ErrCanceled)
}
