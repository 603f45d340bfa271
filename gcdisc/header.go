// Package gcdisc implements the GameCube disc header and File System Table
// (FST) codecs: the fixed 0x440-byte header at disc offset 0, and the flat
// entry-array-plus-string-table representation of the disc's directory
// tree.
package gcdisc

import (
	"fmt"
	"strings"

	"github.com/metroidprimemodding/gcn-patcher/binstream"
)

// HeaderSize is the fixed on-disk size of a GameCube disc header.
const HeaderSize = 0x440

// MagicWord is the big-endian magic value expected at offset 0x1C.
const MagicWord = 0xC2339F3D

// Header is the fixed 0x440-byte GameCube disc header.
type Header struct {
	GameCode       [4]byte
	MakerCode      [2]byte
	DiskID         uint8
	Version        uint8
	AudioStreaming uint8
	StreamBufSize  uint8
	Reserved1      [0x12]byte
	MagicWord      uint32
	GameName       [0x3E0]byte
	DebugMonitor   uint32
	DebugMonLoad   uint32
	Reserved2      [0x18]byte
	DOLOffset      uint32
	FSTOffset      uint32
	FSTSize        uint32
	FSTMaxSize     uint32
	UserPos        uint32
	UserLen        uint32
	Reserved3      uint32
	Reserved4      uint32
}

// ReadHeader parses a Header from s, which must be positioned at disc
// offset 0.
func ReadHeader(s *binstream.Stream) (*Header, error) {
	var h Header

	b, err := s.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("gcdisc: read game code: %w", err)
	}
	copy(h.GameCode[:], b)

	b, err = s.ReadBytes(2)
	if err != nil {
		return nil, fmt.Errorf("gcdisc: read maker code: %w", err)
	}
	copy(h.MakerCode[:], b)

	if h.DiskID, err = s.ReadU8(); err != nil {
		return nil, fmt.Errorf("gcdisc: read disk id: %w", err)
	}
	if h.Version, err = s.ReadU8(); err != nil {
		return nil, fmt.Errorf("gcdisc: read version: %w", err)
	}
	if h.AudioStreaming, err = s.ReadU8(); err != nil {
		return nil, fmt.Errorf("gcdisc: read audio streaming: %w", err)
	}
	if h.StreamBufSize, err = s.ReadU8(); err != nil {
		return nil, fmt.Errorf("gcdisc: read streaming buffer size: %w", err)
	}
	if b, err = s.ReadBytes(len(h.Reserved1)); err != nil {
		return nil, fmt.Errorf("gcdisc: read reserved1: %w", err)
	}
	copy(h.Reserved1[:], b)

	if h.MagicWord, err = s.ReadU32(); err != nil {
		return nil, fmt.Errorf("gcdisc: read magic word: %w", err)
	}

	if b, err = s.ReadBytes(len(h.GameName)); err != nil {
		return nil, fmt.Errorf("gcdisc: read game name: %w", err)
	}
	copy(h.GameName[:], b)

	if h.DebugMonitor, err = s.ReadU32(); err != nil {
		return nil, fmt.Errorf("gcdisc: read debug monitor offset: %w", err)
	}
	if h.DebugMonLoad, err = s.ReadU32(); err != nil {
		return nil, fmt.Errorf("gcdisc: read debug monitor load: %w", err)
	}
	if b, err = s.ReadBytes(len(h.Reserved2)); err != nil {
		return nil, fmt.Errorf("gcdisc: read reserved2: %w", err)
	}
	copy(h.Reserved2[:], b)

	if h.DOLOffset, err = s.ReadU32(); err != nil {
		return nil, fmt.Errorf("gcdisc: read dol offset: %w", err)
	}
	if h.FSTOffset, err = s.ReadU32(); err != nil {
		return nil, fmt.Errorf("gcdisc: read fst offset: %w", err)
	}
	if h.FSTSize, err = s.ReadU32(); err != nil {
		return nil, fmt.Errorf("gcdisc: read fst size: %w", err)
	}
	if h.FSTMaxSize, err = s.ReadU32(); err != nil {
		return nil, fmt.Errorf("gcdisc: read fst max size: %w", err)
	}
	if h.UserPos, err = s.ReadU32(); err != nil {
		return nil, fmt.Errorf("gcdisc: read user pos: %w", err)
	}
	if h.UserLen, err = s.ReadU32(); err != nil {
		return nil, fmt.Errorf("gcdisc: read user len: %w", err)
	}
	if h.Reserved3, err = s.ReadU32(); err != nil {
		return nil, fmt.Errorf("gcdisc: read reserved3: %w", err)
	}
	if h.Reserved4, err = s.ReadU32(); err != nil {
		return nil, fmt.Errorf("gcdisc: read reserved4: %w", err)
	}

	return &h, nil
}

// WriteTo serializes h in the same field order ReadHeader expects.
func (h *Header) WriteTo(s *binstream.Stream) error {
	if err := s.WriteBytes(h.GameCode[:]); err != nil {
		return err
	}
	if err := s.WriteBytes(h.MakerCode[:]); err != nil {
		return err
	}
	if err := s.WriteU8(h.DiskID); err != nil {
		return err
	}
	if err := s.WriteU8(h.Version); err != nil {
		return err
	}
	if err := s.WriteU8(h.AudioStreaming); err != nil {
		return err
	}
	if err := s.WriteU8(h.StreamBufSize); err != nil {
		return err
	}
	if err := s.WriteBytes(h.Reserved1[:]); err != nil {
		return err
	}
	if err := s.WriteU32(h.MagicWord); err != nil {
		return err
	}
	if err := s.WriteBytes(h.GameName[:]); err != nil {
		return err
	}
	if err := s.WriteU32(h.DebugMonitor); err != nil {
		return err
	}
	if err := s.WriteU32(h.DebugMonLoad); err != nil {
		return err
	}
	if err := s.WriteBytes(h.Reserved2[:]); err != nil {
		return err
	}
	if err := s.WriteU32(h.DOLOffset); err != nil {
		return err
	}
	if err := s.WriteU32(h.FSTOffset); err != nil {
		return err
	}
	if err := s.WriteU32(h.FSTSize); err != nil {
		return err
	}
	if err := s.WriteU32(h.FSTMaxSize); err != nil {
		return err
	}
	if err := s.WriteU32(h.UserPos); err != nil {
		return err
	}
	if err := s.WriteU32(h.UserLen); err != nil {
		return err
	}
	if err := s.WriteU32(h.Reserved3); err != nil {
		return err
	}
	if err := s.WriteU32(h.Reserved4); err != nil {
		return err
	}
	return nil
}

// NameString builds the display form "CODEMAKER: GAME_NAME" using ASCII
// decoding of the ID fields and NUL-trimmed decoding of the name field.
func (h *Header) NameString() string {
	code := string(h.GameCode[:])
	maker := string(h.MakerCode[:])
	name := strings.TrimRight(string(h.GameName[:]), "\x00")
	return fmt.Sprintf("%s%s: %s", code, maker, name)
}

// SetGameName overwrites the leading bytes of the game name field with s,
// left-aligned, without clearing the remaining bytes.
func (h *Header) SetGameName(s string) {
	copy(h.GameName[:], s)
}
