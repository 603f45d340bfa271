// Package binstream provides big-endian fixed-width reads and writes over a
// seekable byte cursor, plus a bounded substream view. Every multi-byte
// field in the DOL, FST and GC disc header formats is big-endian; this
// package makes that explicit rather than leaving it to host byte order.
package binstream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

// ErrSeekOutOfRange is returned when a Substream seek would land before
// its start or past its end (seeking to exactly start+length is allowed).
var ErrSeekOutOfRange = errors.New("binstream: seek out of range")

// Stream is a big-endian reader/writer over any seekable byte source or
// sink. It has no state of its own beyond the wrapped cursor.
type Stream struct {
	rw io.ReadWriteSeeker
}

// New wraps rw for big-endian fixed-width access.
func New(rw io.ReadWriteSeeker) *Stream {
	return &Stream{rw: rw}
}

func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	return s.rw.Seek(offset, whence)
}

func (s *Stream) Tell() (int64, error) {
	return s.rw.Seek(0, io.SeekCurrent)
}

// ReadBytes reads exactly n bytes into a newly allocated slice. A short
// read surfaces as an error rather than a silently truncated buffer.
func (s *Stream) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.rw, buf); err != nil {
		return nil, fmt.Errorf("binstream: read %d bytes: %w", n, err)
	}
	return buf, nil
}

func (s *Stream) WriteBytes(b []byte) error {
	_, err := s.rw.Write(b)
	if err != nil {
		return fmt.Errorf("binstream: write %d bytes: %w", len(b), err)
	}
	return nil
}

func (s *Stream) ReadU8() (uint8, error) {
	b, err := s.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (s *Stream) WriteU8(v uint8) error {
	return s.WriteBytes([]byte{v})
}

func (s *Stream) ReadU16() (uint16, error) {
	b, err := s.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (s *Stream) WriteU16(v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return s.WriteBytes(b[:])
}

func (s *Stream) ReadU32() (uint32, error) {
	b, err := s.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (s *Stream) WriteU32(v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return s.WriteBytes(b[:])
}

func (s *Stream) ReadU64() (uint64, error) {
	b, err := s.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (s *Stream) WriteU64(v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return s.WriteBytes(b[:])
}

func (s *Stream) ReadF32() (float32, error) {
	v, err := s.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (s *Stream) WriteF32(v float32) error {
	return s.WriteU32(math.Float32bits(v))
}

func (s *Stream) ReadF64() (float64, error) {
	v, err := s.ReadU64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (s *Stream) WriteF64(v float64) error {
	return s.WriteU64(math.Float64bits(v))
}

// ReadString reads a fixed-length byte region and decodes it as UTF-8.
// Decode failure surfaces as an error, never a silent replacement.
func (s *Stream) ReadString(n int) (string, error) {
	b, err := s.ReadBytes(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("binstream: fixed string of %d bytes is not valid UTF-8", n)
	}
	return string(b), nil
}

func (s *Stream) WriteString(v string) error {
	return s.WriteBytes([]byte(v))
}

// ReadSizedString reads a u32 length prefix followed by that many bytes of
// UTF-8 text.
func (s *Stream) ReadSizedString() (string, error) {
	n, err := s.ReadU32()
	if err != nil {
		return "", err
	}
	return s.ReadString(int(n))
}

func (s *Stream) WriteSizedString(v string) error {
	if err := s.WriteU32(uint32(len(v))); err != nil {
		return err
	}
	return s.WriteString(v)
}
