// Package dol implements the fixed 0x100-byte DOL header used by GameCube
// executable images: seven text segment descriptors, eleven data segment
// descriptors, a BSS descriptor, and an entry point, all big-endian.
package dol

import (
	"errors"
	"fmt"

	"github.com/metroidprimemodding/gcn-patcher/binstream"
)

const (
	numText = 7
	numData = 11
	numSegs = numText + numData
	// HeaderSize is the fixed on-disk size of a DOL header.
	HeaderSize = 0x100
)

// ErrAddressNotMapped is returned when an address does not fall within any
// segment's load range.
var ErrAddressNotMapped = errors.New("dol: address not mapped by any segment")

// Segment is a (file offset, load address, size) triple. A segment is
// vacant iff Offset == 0.
type Segment struct {
	Offset uint32
	Load   uint32
	Size   uint32
}

func (s Segment) vacant() bool { return s.Offset == 0 }

func (s Segment) contains(addr uint32) bool {
	return s.Size > 0 && s.Load <= addr && addr < s.Load+s.Size
}

// Header is the parsed DOL header: 7 text + 11 data segment descriptors,
// BSS descriptor, entry point.
type Header struct {
	Text       [numText]Segment
	Data       [numData]Segment
	BSSAddr    uint32
	BSSSize    uint32
	EntryPoint uint32
}

// ReadFrom parses a Header from the given stream, which must be positioned
// at the start of the DOL header.
func ReadFrom(s *binstream.Stream) (*Header, error) {
	var h Header

	var offsets, loads, sizes [numSegs]uint32
	for i := range offsets {
		v, err := s.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("dol: read offset field %d: %w", i, err)
		}
		offsets[i] = v
	}
	for i := range loads {
		v, err := s.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("dol: read load field %d: %w", i, err)
		}
		loads[i] = v
	}
	for i := range sizes {
		v, err := s.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("dol: read size field %d: %w", i, err)
		}
		sizes[i] = v
	}
	for i := 0; i < numSegs; i++ {
		seg := Segment{Offset: offsets[i], Load: loads[i], Size: sizes[i]}
		if i < numText {
			h.Text[i] = seg
		} else {
			h.Data[i-numText] = seg
		}
	}

	var err error
	if h.BSSAddr, err = s.ReadU32(); err != nil {
		return nil, fmt.Errorf("dol: read bss address: %w", err)
	}
	if h.BSSSize, err = s.ReadU32(); err != nil {
		return nil, fmt.Errorf("dol: read bss size: %w", err)
	}
	if h.EntryPoint, err = s.ReadU32(); err != nil {
		return nil, fmt.Errorf("dol: read entry point: %w", err)
	}
	return &h, nil
}

// WriteTo serializes h in the same field order ReadFrom expects.
func (h *Header) WriteTo(s *binstream.Stream) error {
	for _, seg := range h.Text {
		if err := s.WriteU32(seg.Offset); err != nil {
			return fmt.Errorf("dol: write text offset: %w", err)
		}
	}
	for _, seg := range h.Data {
		if err := s.WriteU32(seg.Offset); err != nil {
			return fmt.Errorf("dol: write data offset: %w", err)
		}
	}
	for _, seg := range h.Text {
		if err := s.WriteU32(seg.Load); err != nil {
			return fmt.Errorf("dol: write text load: %w", err)
		}
	}
	for _, seg := range h.Data {
		if err := s.WriteU32(seg.Load); err != nil {
			return fmt.Errorf("dol: write data load: %w", err)
		}
	}
	for _, seg := range h.Text {
		if err := s.WriteU32(seg.Size); err != nil {
			return fmt.Errorf("dol: write text size: %w", err)
		}
	}
	for _, seg := range h.Data {
		if err := s.WriteU32(seg.Size); err != nil {
			return fmt.Errorf("dol: write data size: %w", err)
		}
	}
	if err := s.WriteU32(h.BSSAddr); err != nil {
		return fmt.Errorf("dol: write bss address: %w", err)
	}
	if err := s.WriteU32(h.BSSSize); err != nil {
		return fmt.Errorf("dol: write bss size: %w", err)
	}
	if err := s.WriteU32(h.EntryPoint); err != nil {
		return fmt.Errorf("dol: write entry point: %w", err)
	}
	return nil
}

// segments iterates text then data descriptors as a single slice view.
func (h *Header) segments() []*Segment {
	out := make([]*Segment, 0, numSegs)
	for i := range h.Text {
		out = append(out, &h.Text[i])
	}
	for i := range h.Data {
		out = append(out, &h.Data[i])
	}
	return out
}

// TotalLength returns the maximum (offset+size) across all 18 descriptors.
func (h *Header) TotalLength() uint32 {
	var max uint32
	for _, seg := range h.segments() {
		if end := seg.Offset + seg.Size; end > max {
			max = end
		}
	}
	return max
}

// FirstVacant returns a pointer to the first vacant descriptor, scanning
// text descriptors before data descriptors, or nil if none remain.
func (h *Header) FirstVacant() *Segment {
	for i := range h.Text {
		if h.Text[i].vacant() {
			return &h.Text[i]
		}
	}
	for i := range h.Data {
		if h.Data[i].vacant() {
			return &h.Data[i]
		}
	}
	return nil
}

// EachMatchingOffset invokes fn with the file offset of every descriptor
// whose load range contains addr. Returns the number of matches; callers
// (see ppcpatch.Splice) treat zero matches as ErrAddressNotMapped.
func (h *Header) EachMatchingOffset(addr uint32, fn func(offset uint32)) int {
	matches := 0
	for _, seg := range h.segments() {
		if seg.contains(addr) {
			fn(seg.Offset + (addr - seg.Load))
			matches++
		}
	}
	return matches
}
