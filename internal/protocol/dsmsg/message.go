// Package dsmsg implements the DsServer wire format.
//
// A message is a fixed 32-byte XDR header followed by NParts tagged parts.
// Each part is an XDR struct {type uint32; data opaque<>}. On the wire every
// message is carried in a record-marked frame (see frame.go).
package dsmsg

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"
)

var (
	ErrShortMessage = errors.New("dsmsg: message shorter than header")
	ErrBadMagic     = errors.New("dsmsg: bad magic")
	ErrBadVersion   = errors.New("dsmsg: unsupported version")
	ErrBadCategory  = errors.New("dsmsg: unknown category")
	ErrTooManyParts = errors.New("dsmsg: too many parts")
	ErrTruncated    = errors.New("dsmsg: truncated part")
	ErrNoPart       = errors.New("dsmsg: part not present")
)

// Header is the fixed-size prefix of every message.
type Header struct {
	Magic    uint32
	Version  uint32
	Category Category
	Type     int32
	SubType  int32
	Mode     int32
	Error    ErrorCode
	NParts   uint32
}

// Part is one tagged body element.
type Part struct {
	Type PartType
	Data []byte
}

// Message is a decoded header plus its parts. Header.NParts is recomputed on
// Encode, so callers only append to Parts.
type Message struct {
	Header
	Parts []Part
}

// NewRequest returns an empty request of the given category and type.
func NewRequest(category Category, msgType int32) *Message {
	return &Message{Header: Header{
		Magic:    Magic,
		Version:  Version,
		Category: category,
		Type:     msgType,
	}}
}

// NewReply returns an empty success reply echoing the request type.
func NewReply(req Header) *Message {
	return &Message{Header: Header{
		Magic:    Magic,
		Version:  Version,
		Category: CategoryGeneric,
		Type:     req.Type,
		SubType:  req.SubType,
		Mode:     req.Mode,
	}}
}

// NewErrorReply returns a generic reply carrying code and a reason string.
func NewErrorReply(msgType int32, code ErrorCode, reason string) *Message {
	m := &Message{Header: Header{
		Magic:    Magic,
		Version:  Version,
		Category: CategoryGeneric,
		Type:     msgType,
		Error:    code,
	}}
	if reason != "" {
		m.AddString(PartErrString, reason)
	}
	return m
}

func (m *Message) AddPart(t PartType, data []byte) *Message {
	m.Parts = append(m.Parts, Part{Type: t, Data: data})
	return m
}

func (m *Message) AddString(t PartType, s string) *Message {
	return m.AddPart(t, []byte(s))
}

// AddInt appends v as an XDR hyper.
func (m *Message) AddInt(t PartType, v int64) *Message {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return m.AddPart(t, buf[:])
}

// Part returns the data of the first part of type t.
func (m *Message) Part(t PartType) ([]byte, bool) {
	for _, p := range m.Parts {
		if p.Type == t {
			return p.Data, true
		}
	}
	return nil, false
}

// PartsOf returns the data of every part of type t, in order.
func (m *Message) PartsOf(t PartType) [][]byte {
	var out [][]byte
	for _, p := range m.Parts {
		if p.Type == t {
			out = append(out, p.Data)
		}
	}
	return out
}

func (m *Message) PartString(t PartType) (string, bool) {
	data, ok := m.Part(t)
	if !ok {
		return "", false
	}
	return string(data), true
}

func (m *Message) PartInt(t PartType) (int64, error) {
	data, ok := m.Part(t)
	if !ok {
		return 0, fmt.Errorf("%w: type %d", ErrNoPart, t)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("int part has %d bytes, want 8", len(data))
	}
	return int64(binary.BigEndian.Uint64(data)), nil
}

// ErrString returns the reason attached to an error reply, if any.
func (m *Message) ErrString() string {
	s, _ := m.PartString(PartErrString)
	return s
}

// Encode serializes the message body (without frame header).
func (m *Message) Encode() ([]byte, error) {
	if len(m.Parts) > MaxParts {
		return nil, fmt.Errorf("%w: %d", ErrTooManyParts, len(m.Parts))
	}

	h := m.Header
	if h.Magic == 0 {
		h.Magic = Magic
	}
	if h.Version == 0 {
		h.Version = Version
	}
	h.NParts = uint32(len(m.Parts))

	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &h); err != nil {
		return nil, fmt.Errorf("marshal header: %w", err)
	}
	for i := range m.Parts {
		if _, err := xdr.Marshal(&buf, &m.Parts[i]); err != nil {
			return nil, fmt.Errorf("marshal part %d: %w", i, err)
		}
	}

	m.Header = h
	return buf.Bytes(), nil
}

// DecodeHeader decodes and validates only the header. It does not look at
// the parts, so it is cheap enough to run before routing.
func DecodeHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, fmt.Errorf("%w: %d bytes", ErrShortMessage, len(data))
	}

	if _, err := xdr.Unmarshal(bytes.NewReader(data[:HeaderSize]), &h); err != nil {
		return h, fmt.Errorf("unmarshal header: %w", err)
	}

	switch {
	case h.Magic != Magic:
		return h, fmt.Errorf("%w: 0x%08x", ErrBadMagic, h.Magic)
	case h.Version != Version:
		return h, fmt.Errorf("%w: %d", ErrBadVersion, h.Version)
	case !h.Category.Valid():
		return h, fmt.Errorf("%w: %d", ErrBadCategory, int32(h.Category))
	case h.NParts > MaxParts:
		return h, fmt.Errorf("%w: %d", ErrTooManyParts, h.NParts)
	}

	return h, nil
}

// Decode fully disassembles a message body.
func Decode(data []byte) (*Message, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: h, Parts: make([]Part, 0, h.NParts)}
	off := HeaderSize

	for i := uint32(0); i < h.NParts; i++ {
		// Check the declared length before handing the bytes to xdr, which
		// would otherwise allocate whatever the length word says.
		if len(data)-off < 8 {
			return nil, fmt.Errorf("%w: part %d header", ErrTruncated, i)
		}
		dataLen := int(binary.BigEndian.Uint32(data[off+4 : off+8]))
		padded := dataLen + (4-dataLen%4)%4
		if dataLen < 0 || len(data)-off-8 < padded {
			return nil, fmt.Errorf("%w: part %d wants %d bytes", ErrTruncated, i, dataLen)
		}

		var p Part
		n, err := xdr.Unmarshal(bytes.NewReader(data[off:]), &p)
		if err != nil {
			return nil, fmt.Errorf("unmarshal part %d: %w", i, err)
		}
		off += n
		m.Parts = append(m.Parts, p)
	}

	return m, nil
}
