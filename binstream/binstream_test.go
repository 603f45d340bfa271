package binstream

import (
	"bytes"
	"testing"
)

type memRWS struct {
	*bytes.Reader
	buf []byte
}

func newMemRWS(size int) *memRWS {
	m := &memRWS{buf: make([]byte, size)}
	m.Reader = bytes.NewReader(m.buf)
	return m
}

func (m *memRWS) Write(p []byte) (int, error) {
	pos, _ := m.Reader.Seek(0, 1)
	end := int(pos) + len(p)
	if end > len(m.buf) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[pos:end], p)
	m.Reader = bytes.NewReader(m.buf)
	_, _ = m.Reader.Seek(int64(end), 0)
	return len(p), nil
}

func (m *memRWS) Seek(offset int64, whence int) (int64, error) {
	return m.Reader.Seek(offset, whence)
}

func TestIntegerRoundTrip(t *testing.T) {
	buf := newMemRWS(64)
	s := New(buf)

	if err := s.WriteU8(0xAB); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteU16(0x1234); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteU32(0xDEADBEEF); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteU64(0x0102030405060708); err != nil {
		t.Fatal(err)
	}

	s.Seek(0, 0)
	u8, err := s.ReadU8()
	if err != nil || u8 != 0xAB {
		t.Fatalf("ReadU8() = %#x, %v; want 0xAB", u8, err)
	}
	u16, err := s.ReadU16()
	if err != nil || u16 != 0x1234 {
		t.Fatalf("ReadU16() = %#x, %v; want 0x1234", u16, err)
	}
	u32, err := s.ReadU32()
	if err != nil || u32 != 0xDEADBEEF {
		t.Fatalf("ReadU32() = %#x, %v; want 0xDEADBEEF", u32, err)
	}
	u64, err := s.ReadU64()
	if err != nil || u64 != 0x0102030405060708 {
		t.Fatalf("ReadU64() = %#x, %v; want 0x0102030405060708", u64, err)
	}
}

func TestBigEndianByteOrder(t *testing.T) {
	buf := newMemRWS(4)
	s := New(buf)
	if err := s.WriteU32(0x01020304); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x01, 0x02, 0x03, 0x04}
	if !bytes.Equal(buf.buf, want) {
		t.Fatalf("bytes = % x; want % x", buf.buf, want)
	}
}

func TestSizedStringRoundTrip(t *testing.T) {
	buf := newMemRWS(64)
	s := New(buf)
	if err := s.WriteSizedString("hello, gamecube"); err != nil {
		t.Fatal(err)
	}
	s.Seek(0, 0)
	got, err := s.ReadSizedString()
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello, gamecube" {
		t.Fatalf("ReadSizedString() = %q; want %q", got, "hello, gamecube")
	}
}

func TestShortReadSurfacesAsError(t *testing.T) {
	buf := newMemRWS(2)
	s := New(buf)
	if _, err := s.ReadU32(); err == nil {
		t.Fatal("expected error on short read, got nil")
	}
}

func TestSubstreamSeekOutOfRangeFails(t *testing.T) {
	data := []byte("0123456789")
	sub := NewSubstream(bytes.NewReader(data), 2, 4)
	if _, err := sub.Seek(5, 0); err == nil {
		t.Fatal("expected seek out of range error")
	}
	if _, err := sub.Seek(-1, 0); err == nil {
		t.Fatal("expected seek out of range error for negative offset")
	}
}

func TestSubstreamReadsWithinBounds(t *testing.T) {
	data := []byte("0123456789")
	sub := NewSubstream(bytes.NewReader(data), 2, 4)
	got := make([]byte, 4)
	n, err := sub.Read(got)
	if err != nil && err.Error() != "EOF" {
		t.Fatal(err)
	}
	if n != 4 || string(got) != "2345" {
		t.Fatalf("Read() = %q, n=%d; want %q, n=4", got, n, "2345")
	}
	// reading past the window should EOF without touching parent bytes beyond it
	n2, err := sub.Read(got)
	if n2 != 0 {
		t.Fatalf("expected 0 bytes past window, got %d", n2)
	}
	_ = err
}
