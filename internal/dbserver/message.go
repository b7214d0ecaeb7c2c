package dbserver

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// MessageStart begins every message.
const MessageStart uint32 = 0x872349ae

const maxArgs = 12

// setupTransaction is the transaction id used for session setup and teardown.
const setupTransaction uint32 = 0xfffffffe

// MessageType identifies a request or response.
type MessageType uint16

const (
	SetupReq        MessageType = 0x0000
	TeardownReq     MessageType = 0x0100
	TrackMenuReq    MessageType = 0x1004
	PlaylistReq     MessageType = 0x1105
	MetadataReq     MessageType = 0x2002
	AlbumArtReq     MessageType = 0x2003
	WavePreviewReq  MessageType = 0x2004
	CueListReq      MessageType = 0x2104
	UnanalyzedReq   MessageType = 0x2202
	BeatGridReq     MessageType = 0x2204
	WaveDetailReq   MessageType = 0x2904
	AnlzTagReq      MessageType = 0x2c04
	RenderMenuReq   MessageType = 0x3000
	MenuAvailable   MessageType = 0x4000
	MenuHeader      MessageType = 0x4001
	AlbumArtResp    MessageType = 0x4002
	Unavailable     MessageType = 0x4003
	MenuItem        MessageType = 0x4101
	MenuFooter      MessageType = 0x4201
	WavePreviewResp MessageType = 0x4402
	BeatGridResp    MessageType = 0x4602
	CueListResp     MessageType = 0x4702
	WaveDetailResp  MessageType = 0x4a02
	AnlzTagResp     MessageType = 0x4f02
)

var messageTypeNames = map[MessageType]string{
	SetupReq:        "setup",
	TeardownReq:     "teardown",
	TrackMenuReq:    "track menu",
	PlaylistReq:     "playlist",
	MetadataReq:     "metadata",
	AlbumArtReq:     "album art",
	WavePreviewReq:  "wave preview",
	CueListReq:      "cue list",
	UnanalyzedReq:   "unanalyzed metadata",
	BeatGridReq:     "beat grid",
	WaveDetailReq:   "wave detail",
	AnlzTagReq:      "analysis tag",
	RenderMenuReq:   "render menu",
	MenuAvailable:   "menu available",
	MenuHeader:      "menu header",
	AlbumArtResp:    "album art response",
	Unavailable:     "unavailable",
	MenuItem:        "menu item",
	MenuFooter:      "menu footer",
	WavePreviewResp: "wave preview response",
	BeatGridResp:    "beat grid response",
	CueListResp:     "cue list response",
	WaveDetailResp:  "wave detail response",
	AnlzTagResp:     "analysis tag response",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(0x%04x)", uint16(t))
}

// Message is one request or response.
type Message struct {
	Transaction uint32
	Type        MessageType
	Args        []Field
}

// NewMessage builds a message.
func NewMessage(txn uint32, t MessageType, args ...Field) *Message {
	return &Message{Transaction: txn, Type: t, Args: args}
}

// Encode returns the wire form of the message. A zero-length blob that follows
// a zero number is omitted, as the players do.
func (m *Message) Encode() ([]byte, error) {
	if len(m.Args) > maxArgs {
		return nil, fmt.Errorf("%s message has %d arguments, limit is %d", m.Type, len(m.Args), maxArgs)
	}
	tags := make([]byte, maxArgs)
	for i, a := range m.Args {
		tags[i] = a.argTag()
	}
	header := []Field{
		Number4(MessageStart),
		Number4(m.Transaction),
		Number2(uint16(m.Type)),
		Number1(uint8(len(m.Args))),
		Binary(tags),
	}

	var buf bytes.Buffer
	for _, f := range header {
		b, err := f.Encode()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	for i, a := range m.Args {
		if omitted(m.Args, i) {
			continue
		}
		b, err := a.Encode()
		if err != nil {
			return nil, fmt.Errorf("%s argument %d: %w", m.Type, i, err)
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

func omitted(args []Field, i int) bool {
	return args[i].Type == TypeBinary && len(args[i].Blob) == 0 &&
		i > 0 && args[i-1].IsNumber() && args[i-1].Number == 0
}

// ReadMessage reads one message from r.
func ReadMessage(r io.Reader) (*Message, error) {
	start, err := readNumber(r, TypeNumber4, "message start")
	if err != nil {
		return nil, err
	}
	if start != MessageStart {
		return nil, fmt.Errorf("bad message start 0x%08x", start)
	}
	txn, err := readNumber(r, TypeNumber4, "transaction")
	if err != nil {
		return nil, err
	}
	mt, err := readNumber(r, TypeNumber2, "message type")
	if err != nil {
		return nil, err
	}
	argc, err := readNumber(r, TypeNumber1, "argument count")
	if err != nil {
		return nil, err
	}
	tagField, err := ReadField(r)
	if err != nil {
		return nil, fmt.Errorf("read argument tags: %w", err)
	}
	if tagField.Type != TypeBinary || int(argc) > len(tagField.Blob) {
		return nil, fmt.Errorf("malformed argument tags for %d arguments", argc)
	}

	m := &Message{Transaction: txn, Type: MessageType(mt), Args: make([]Field, 0, argc)}
	for i := 0; i < int(argc); i++ {
		if tagField.Blob[i] == argTagBinary && i > 0 &&
			m.Args[i-1].IsNumber() && m.Args[i-1].Number == 0 {
			m.Args = append(m.Args, Binary(nil))
			continue
		}
		f, err := ReadField(r)
		if err != nil {
			return nil, fmt.Errorf("read %s argument %d: %w", m.Type, i, err)
		}
		m.Args = append(m.Args, f)
	}
	return m, nil
}

func readNumber(r io.Reader, want FieldType, what string) (uint32, error) {
	f, err := ReadField(r)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", what, err)
	}
	if f.Type != want {
		return 0, fmt.Errorf("read %s: got field type 0x%02x, want 0x%02x", what, byte(f.Type), byte(want))
	}
	return f.Number, nil
}

// ReadMessages decodes every message in data, stopping after a menu footer.
func ReadMessages(data []byte) ([]*Message, error) {
	r := bufio.NewReader(bytes.NewReader(data))
	var out []*Message
	for {
		if _, err := r.Peek(1); err == io.EOF {
			return out, nil
		}
		m, err := ReadMessage(r)
		if err != nil {
			return out, err
		}
		out = append(out, m)
		if m.Type == MenuFooter {
			return out, nil
		}
	}
}

// EncodeMessages concatenates the wire forms of msgs.
func EncodeMessages(msgs []*Message) ([]byte, error) {
	var buf bytes.Buffer
	for _, m := range msgs {
		b, err := m.Encode()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

// NumberArg returns argument i as a number.
func (m *Message) NumberArg(i int) (uint32, error) {
	if i >= len(m.Args) || !m.Args[i].IsNumber() {
		return 0, fmt.Errorf("%s argument %d is not a number", m.Type, i)
	}
	return m.Args[i].Number, nil
}

// BlobArg returns argument i as bytes.
func (m *Message) BlobArg(i int) ([]byte, error) {
	if i >= len(m.Args) || m.Args[i].Type != TypeBinary {
		return nil, fmt.Errorf("%s argument %d is not a blob", m.Type, i)
	}
	return m.Args[i].Blob, nil
}

// TextArg returns argument i as a string.
func (m *Message) TextArg(i int) (string, error) {
	if i >= len(m.Args) || m.Args[i].Type != TypeString {
		return "", fmt.Errorf("%s argument %d is not a string", m.Type, i)
	}
	return m.Args[i].Text, nil
}

func (m *Message) String() string {
	return fmt.Sprintf("%s txn=%d args=%v", m.Type, m.Transaction, m.Args)
}
