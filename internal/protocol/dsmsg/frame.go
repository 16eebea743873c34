package dsmsg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrFrameTooLarge is returned when a record exceeds the reader's limit.
var ErrFrameTooLarge = errors.New("dsmsg: frame exceeds maximum size")

// FragmentHeader is the 4-byte record mark that precedes every fragment:
// bit 31 flags the last fragment, bits 0-30 carry the fragment length.
type FragmentHeader struct {
	IsLast bool
	Length uint32
}

func readFragmentHeader(r io.Reader) (FragmentHeader, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return FragmentHeader{}, err
	}

	v := binary.BigEndian.Uint32(buf[:])
	return FragmentHeader{
		IsLast: v&lastFragmentBit != 0,
		Length: v & fragmentLenMask,
	}, nil
}

// ReadFrame reads one complete record, joining continuation fragments.
// A maxSize of 0 selects DefaultMaxMessageSize.
//
// io.EOF is returned unwrapped when the peer closes before any byte of the
// record arrives.
func ReadFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}

	var body []byte
	for {
		fh, err := readFragmentHeader(r)
		if err != nil {
			if err == io.EOF && body != nil {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}

		if uint64(len(body))+uint64(fh.Length) > uint64(maxSize) {
			return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, uint64(len(body))+uint64(fh.Length), maxSize)
		}

		start := len(body)
		if body == nil {
			body = make([]byte, fh.Length)
		} else {
			body = append(body, make([]byte, fh.Length)...)
		}
		if _, err := io.ReadFull(r, body[start:]); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("read fragment: %w", err)
		}

		if fh.IsLast {
			return body, nil
		}
	}
}

// WriteFrame writes body as a single last-fragment record.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > fragmentLenMask {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}

	buf := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(buf[:4], lastFragmentBit|uint32(len(body)))
	copy(buf[4:], body)

	_, err := w.Write(buf)
	return err
}

// WriteMessage encodes m and writes it as one frame.
func WriteMessage(w io.Writer, m *Message) error {
	body, err := m.Encode()
	if err != nil {
		return err
	}
	return WriteFrame(w, body)
}

// ReadMessage reads one frame and fully decodes it.
func ReadMessage(r io.Reader, maxSize uint32) (*Message, error) {
	body, err := ReadFrame(r, maxSize)
	if err != nil {
		return nil, err
	}
	return Decode(body)
}
