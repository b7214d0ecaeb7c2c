// Package dbserver speaks the request/response protocol of the database server
// embedded in each player, used to fetch track metadata and analysis data.
package dbserver

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
)

// FieldType is the tag byte that starts every field on the wire.
type FieldType byte

const (
	TypeNumber1 FieldType = 0x0f
	TypeNumber2 FieldType = 0x10
	TypeNumber4 FieldType = 0x11
	TypeBinary  FieldType = 0x14
	TypeString  FieldType = 0x26
)

// Argument tags listed in a message's tag blob.
const (
	argTagString = 0x02
	argTagBinary = 0x03
	argTagNumber = 0x06
)

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// Field is one typed value in a message.
type Field struct {
	Type   FieldType
	Number uint32
	Blob   []byte
	Text   string
}

// Number1 returns a one-byte number field.
func Number1(v uint8) Field { return Field{Type: TypeNumber1, Number: uint32(v)} }

// Number2 returns a two-byte number field.
func Number2(v uint16) Field { return Field{Type: TypeNumber2, Number: uint32(v)} }

// Number4 returns a four-byte number field.
func Number4(v uint32) Field { return Field{Type: TypeNumber4, Number: v} }

// Binary returns a blob field.
func Binary(b []byte) Field { return Field{Type: TypeBinary, Blob: b} }

// Text returns a string field.
func Text(s string) Field { return Field{Type: TypeString, Text: s} }

// IsNumber reports whether the field holds a number of any width.
func (f Field) IsNumber() bool {
	return f.Type == TypeNumber1 || f.Type == TypeNumber2 || f.Type == TypeNumber4
}

func (f Field) argTag() byte {
	switch f.Type {
	case TypeBinary:
		return argTagBinary
	case TypeString:
		return argTagString
	default:
		return argTagNumber
	}
}

// Encode returns the wire form of the field.
func (f Field) Encode() ([]byte, error) {
	switch f.Type {
	case TypeNumber1:
		return []byte{byte(f.Type), byte(f.Number)}, nil
	case TypeNumber2:
		b := []byte{byte(f.Type), 0, 0}
		binary.BigEndian.PutUint16(b[1:], uint16(f.Number))
		return b, nil
	case TypeNumber4:
		b := []byte{byte(f.Type), 0, 0, 0, 0}
		binary.BigEndian.PutUint32(b[1:], f.Number)
		return b, nil
	case TypeBinary:
		b := make([]byte, 5, 5+len(f.Blob))
		b[0] = byte(f.Type)
		binary.BigEndian.PutUint32(b[1:], uint32(len(f.Blob)))
		return append(b, f.Blob...), nil
	case TypeString:
		text, err := utf16be.NewEncoder().Bytes([]byte(f.Text + "\x00"))
		if err != nil {
			return nil, fmt.Errorf("encode string field: %w", err)
		}
		b := make([]byte, 5, 5+len(text))
		b[0] = byte(f.Type)
		binary.BigEndian.PutUint32(b[1:], uint32(len(text)/2))
		return append(b, text...), nil
	}
	return nil, fmt.Errorf("unknown field type 0x%02x", byte(f.Type))
}

// maxFieldLength bounds blob and string sizes read from the network.
const maxFieldLength = 16 << 20

// ReadField reads one field from r.
func ReadField(r io.Reader) (Field, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return Field{}, err
	}
	t := FieldType(tag[0])
	switch t {
	case TypeNumber1:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return Field{}, err
		}
		return Number1(b[0]), nil
	case TypeNumber2:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return Field{}, err
		}
		return Number2(binary.BigEndian.Uint16(b[:])), nil
	case TypeNumber4:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return Field{}, err
		}
		return Number4(binary.BigEndian.Uint32(b[:])), nil
	case TypeBinary, TypeString:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return Field{}, err
		}
		n := int(binary.BigEndian.Uint32(b[:]))
		if t == TypeString {
			n *= 2
		}
		if n > maxFieldLength {
			return Field{}, fmt.Errorf("field length %d exceeds limit", n)
		}
		data := make([]byte, n)
		if _, err := io.ReadFull(r, data); err != nil {
			return Field{}, err
		}
		if t == TypeBinary {
			return Binary(data), nil
		}
		text, err := utf16be.NewDecoder().Bytes(data)
		if err != nil {
			return Field{}, fmt.Errorf("decode string field: %w", err)
		}
		return Text(string(bytes.TrimRight(text, "\x00"))), nil
	}
	return Field{}, fmt.Errorf("unknown field type 0x%02x", tag[0])
}

func (f Field) String() string {
	switch f.Type {
	case TypeBinary:
		return fmt.Sprintf("blob(%d bytes)", len(f.Blob))
	case TypeString:
		return fmt.Sprintf("%q", f.Text)
	default:
		return fmt.Sprintf("%d", f.Number)
	}
}
