package frame

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		[]byte("hello world"),
		bytes.Repeat([]byte{0xAB}, 4096),
	}
	var buf bytes.Buffer
	for _, payload := range cases {
		if err := Write(&buf, payload); err != nil {
			t.Fatalf("Write(%d bytes): %v", len(payload), err)
		}
	}
	for i, want := range cases {
		got, err := Read(&buf)
		if err != nil {
			t.Fatalf("Read #%d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Read #%d = % X, want % X", i, got, want)
		}
	}
	if _, err := Read(&buf); err != io.EOF {
		t.Fatalf("expected clean io.EOF after N frames, got %v", err)
	}
}

func TestWriteRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	big := make([]byte, MaxSize+1)
	if err := Write(&buf, big); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no bytes written on rejected frame, wrote %d", buf.Len())
	}
}

func TestReadRejectsOversizeLengthBeforeAllocating(t *testing.T) {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], MaxSize+1)
	r := bytes.NewReader(hdr[:])
	if _, err := Read(r); !errors.Is(err, ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData, got %v", err)
	}
}

func TestReadMidLengthEOFIsHardFailure(t *testing.T) {
	r := bytes.NewReader([]byte{0, 0})
	if _, err := Read(r); err != io.ErrUnexpectedEOF {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadMidPayloadEOFIsHardFailure(t *testing.T) {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], 10)
	r := bytes.NewReader(append(hdr[:], []byte{1, 2, 3}...))
	if _, err := Read(r); err != io.ErrUnexpectedEOF {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadCleanEOFAtBoundary(t *testing.T) {
	r := bytes.NewReader(nil)
	if _, err := Read(r); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestConcatenatedWritesDecodeInOrder(t *testing.T) {
	var buf bytes.Buffer
	payloads := make([][]byte, 10)
	for i := range payloads {
		p := make([]byte, i*3)
		_, _ = rand.Read(p)
		payloads[i] = p
		if err := Write(&buf, p); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	for i, want := range payloads {
		got, err := Read(&buf)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d mismatch", i)
		}
	}
	if _, err := Read(&buf); err != io.EOF {
		t.Fatalf("expected trailing EOF, got %v", err)
	}
}

func FuzzRead(f *testing.F) {
	seeds := [][]byte{
		{0, 0, 0, 0},
		{0, 0, 0, 1, 0xAA},
		{0xFF, 0xFF, 0xFF, 0xFF},
		{0, 0, 0, 2, 1},
	}
	for _, s := range seeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		r := bytes.NewReader(data)
		for i := 0; i < 8 && r.Len() > 0; i++ {
			if _, err := Read(r); err != nil {
				break
			}
		}
	})
}
