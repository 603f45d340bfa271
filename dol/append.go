package dol

import (
	"errors"
)

// ErrNoVacantSegment is returned when appending a segment but every text
// and data descriptor is already occupied.
var ErrNoVacantSegment = errors.New("dol: no available DOL segment descriptor")

// Append occupies the first vacant descriptor (text scanned before data)
// with a segment that starts at fileOffset, loads at load, and is size
// bytes long. It mutates exactly one previously-vacant descriptor and
// leaves every other descriptor unchanged.
func (h *Header) Append(fileOffset, load, size uint32) error {
	seg := h.FirstVacant()
	if seg == nil {
		return ErrNoVacantSegment
	}
	seg.Offset = fileOffset
	seg.Load = load
	seg.Size = size
	return nil
}
