package dol

import (
	"bytes"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/metroidprimemodding/gcn-patcher/binstream"
)

type memRWS struct{ *bytes.Reader }

func newMemRWS(b []byte) *memRWS { return &memRWS{bytes.NewReader(b)} }

func (m *memRWS) Write(p []byte) (int, error) { return 0, io.ErrClosedPipe }
func (m *memRWS) Seek(offset int64, whence int) (int64, error) {
	return m.Reader.Seek(offset, whence)
}

type growRWS struct {
	buf []byte
	pos int64
}

func (g *growRWS) Read(p []byte) (int, error) {
	if g.pos >= int64(len(g.buf)) {
		return 0, io.EOF
	}
	n := copy(p, g.buf[g.pos:])
	g.pos += int64(n)
	return n, nil
}

func (g *growRWS) Write(p []byte) (int, error) {
	end := g.pos + int64(len(p))
	if end > int64(len(g.buf)) {
		grown := make([]byte, end)
		copy(grown, g.buf)
		g.buf = grown
	}
	copy(g.buf[g.pos:end], p)
	g.pos = end
	return len(p), nil
}

func (g *growRWS) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		g.pos = offset
	case io.SeekCurrent:
		g.pos += offset
	case io.SeekEnd:
		g.pos = int64(len(g.buf)) + offset
	}
	return g.pos, nil
}

func sampleHeaderBytes() []byte {
	buf := &growRWS{buf: make([]byte, HeaderSize)}
	s := binstream.New(buf)
	h := &Header{
		BSSAddr:    0x80400000,
		BSSSize:    0x1000,
		EntryPoint: 0x80003100,
	}
	h.Text[0] = Segment{Offset: 0x100, Load: 0x80003100, Size: 0xE00}
	if err := h.WriteTo(s); err != nil {
		panic(err)
	}
	return buf.buf
}

func TestHeaderRoundTrip(t *testing.T) {
	original := sampleHeaderBytes()

	h, err := ReadFrom(binstream.New(newMemRWS(original)))
	if err != nil {
		t.Fatal(err)
	}

	buf := &growRWS{buf: make([]byte, HeaderSize)}
	if err := h.WriteTo(binstream.New(buf)); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(original, buf.buf) {
		t.Fatalf("round trip mismatch:\norig: % x\ngot:  % x", original, buf.buf)
	}

	h2, err := ReadFrom(binstream.New(newMemRWS(buf.buf)))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(h, h2); diff != "" {
		t.Fatalf("read(write(h)) != h (-want +got):\n%s", diff)
	}
}

func TestTotalLength(t *testing.T) {
	h := &Header{}
	h.Text[0] = Segment{Offset: 0x100, Load: 0x80003100, Size: 0xE00}
	h.Data[0] = Segment{Offset: 0xF00, Load: 0x80004000, Size: 0x200}
	if got, want := h.TotalLength(), uint32(0x1100); got != want {
		t.Fatalf("TotalLength() = 0x%X; want 0x%X", got, want)
	}
}

func TestAllVacantHeaderAppendsIntoFirstText(t *testing.T) {
	h := &Header{}
	if err := h.Append(0x100, 0x80003100, 0xE00); err != nil {
		t.Fatal(err)
	}
	if h.Text[0] != (Segment{Offset: 0x100, Load: 0x80003100, Size: 0xE00}) {
		t.Fatalf("Text[0] = %+v; want occupied", h.Text[0])
	}
	for i := 1; i < numText; i++ {
		if !h.Text[i].vacant() {
			t.Fatalf("Text[%d] unexpectedly occupied: %+v", i, h.Text[i])
		}
	}
}

func TestFullyOccupiedHeaderAppendFails(t *testing.T) {
	h := &Header{}
	for i := range h.Text {
		h.Text[i] = Segment{Offset: uint32(0x100 + i*0x10), Load: uint32(0x80000000 + i*0x10), Size: 0x10}
	}
	for i := range h.Data {
		h.Data[i] = Segment{Offset: uint32(0x1000 + i*0x10), Load: uint32(0x80100000 + i*0x10), Size: 0x10}
	}
	if err := h.Append(0x9999, 0x80999999, 0x10); err == nil {
		t.Fatal("expected ErrNoVacantSegment, got nil")
	}
}

func TestEachMatchingOffsetNoMatchReturnsZero(t *testing.T) {
	h := &Header{}
	h.Text[0] = Segment{Offset: 0x100, Load: 0x80003100, Size: 0xE00}
	matches := h.EachMatchingOffset(0x90000000, func(uint32) {})
	if matches != 0 {
		t.Fatalf("matches = %d; want 0", matches)
	}
}

func TestEachMatchingOffsetResolvesAddress(t *testing.T) {
	h := &Header{}
	h.Text[0] = Segment{Offset: 0x100, Load: 0x80003100, Size: 0xE00}
	var got []uint32
	matches := h.EachMatchingOffset(0x80003104, func(off uint32) { got = append(got, off) })
	if matches != 1 || len(got) != 1 || got[0] != 0x104 {
		t.Fatalf("matches=%d got=%v; want 1 match at offset 0x104", matches, got)
	}
}
