// Package frame implements the length-prefixed binary framing used on both
// the producer and consumer sides of a data connection: a 4-byte big-endian
// length followed by that many payload bytes.
package frame

import (
	"encoding/binary"
	"errors"
	"io"
)

// MaxSize is the largest payload a frame may carry (16 MiB).
const MaxSize = 16 * 1024 * 1024

// ErrInvalidInput is returned when a caller asks to write an oversized frame.
var ErrInvalidInput = errors.New("frame: payload exceeds max frame size")

// ErrInvalidData is returned when a decoded length exceeds MaxSize.
var ErrInvalidData = errors.New("frame: decoded length exceeds max frame size")

// Write encodes payload as a length-prefixed frame to w. It writes nothing if
// payload is larger than MaxSize.
func Write(w io.Writer, payload []byte) error {
	if len(payload) > MaxSize {
		return ErrInvalidInput
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// Read decodes one length-prefixed frame from r.
//
// A clean end-of-stream at the frame boundary (before any length byte is
// read) is reported as (nil, io.EOF) — the caller's "none". Any short read
// that occurs mid-length or mid-payload is a hard failure
// (io.ErrUnexpectedEOF), since a legitimate peer never closes there. A
// decoded length over MaxSize is rejected as ErrInvalidData before any
// payload buffer is allocated.
func Read(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF // clean shutdown at a frame boundary
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.ErrUnexpectedEOF // peer died mid-length
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxSize {
		return nil, ErrInvalidData
	}
	if n == 0 {
		return []byte{}, nil
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.ErrUnexpectedEOF // peer died mid-payload
		}
		return nil, err
	}
	return payload, nil
}
