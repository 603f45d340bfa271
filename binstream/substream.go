package binstream

import (
	"fmt"
	"io"
)

// Substream is an independently-seekable [start, start+length) view over a
// parent io.ReaderAt. Seek and Read positions are expressed relative to
// start; an out-of-range seek fails with ErrSeekOutOfRange rather than
// silently clamping.
type Substream struct {
	r      io.ReaderAt
	start  int64
	length int64
	off    int64
}

// NewSubstream creates a view over r covering [start, start+length).
func NewSubstream(r io.ReaderAt, start, length int64) *Substream {
	return &Substream{r: r, start: start, length: length}
}

func (s *Substream) Read(p []byte) (int, error) {
	if s.off >= s.length {
		return 0, io.EOF
	}
	if max := s.length - s.off; int64(len(p)) > max {
		p = p[:max]
	}
	n, err := s.r.ReadAt(p, s.start+s.off)
	s.off += int64(n)
	return n, err
}

func (s *Substream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= s.length {
		return 0, io.EOF
	}
	if max := s.length - off; int64(len(p)) > max {
		p = p[:max]
		n, err := s.r.ReadAt(p, s.start+off)
		if err == nil {
			err = io.EOF
		}
		return n, err
	}
	return s.r.ReadAt(p, s.start+off)
}

func (s *Substream) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = s.off + offset
	case io.SeekEnd:
		target = s.length + offset
	default:
		return 0, fmt.Errorf("binstream: substream seek: invalid whence %d", whence)
	}
	if target < 0 || target > s.length {
		return 0, fmt.Errorf("%w: offset %d outside [0, %d]", ErrSeekOutOfRange, target, s.length)
	}
	s.off = target
	return s.off, nil
}

// Len returns the substream's declared length.
func (s *Substream) Len() int64 {
	return s.length
}
