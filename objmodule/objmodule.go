// Package objmodule reads the precompiled ELF-shaped mod object: its
// loadable segments, symbol table, entry point, and the UTF-8 config text
// carried in its .patcher_config section. It is a thin domain wrapper
// around the standard library's debug/elf reader; no third-party ELF
// library was found anywhere in the retrieved corpus, unlike the
// container formats (Mach-O, PE) the rest of the corpus reimplements
// precisely because the standard library has no equivalent for them.
package objmodule

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// ErrSymbolNotFound is returned when a required symbol is absent from the
// mod object's symbol table.
var ErrSymbolNotFound = errors.New("objmodule: symbol not found")

// ErrSectionNotFound is returned when a named section is absent.
var ErrSectionNotFound = errors.New("objmodule: section not found")

// Segment is a loadable segment: its link-time address, its bytes as
// stored in the mod object, and its section name for diagnostics (a
// segment may span more than one section; the name reported is the first
// section whose address range contains the segment's start address, or ""
// if none does).
type Segment struct {
	Address uint32
	Bytes   []byte
	Section string
}

// Module is the parsed mod object.
type Module struct {
	EntryPoint uint32
	Segments   []Segment
	Symbols    map[string]uint32

	elf *elf.File
}

// Open parses an ELF-shaped mod object from r.
func Open(r io.ReaderAt) (*Module, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("objmodule: parse elf: %w", err)
	}

	m := &Module{
		EntryPoint: uint32(f.Entry),
		Symbols:    map[string]uint32{},
		elf:        f,
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Filesz == 0 {
			continue
		}
		data := make([]byte, prog.Filesz)
		if _, err := prog.ReadAt(data, 0); err != nil {
			return nil, fmt.Errorf("objmodule: read segment at 0x%x: %w", prog.Vaddr, err)
		}
		seg := Segment{Address: uint32(prog.Vaddr), Bytes: data, Section: sectionNameFor(f, prog.Vaddr)}
		m.Segments = append(m.Segments, seg)
		logrus.WithFields(logrus.Fields{
			"address": fmt.Sprintf("0x%08X", seg.Address),
			"size":    len(seg.Bytes),
			"section": seg.Section,
		}).Debug("objmodule: loaded segment")
	}

	syms, err := f.Symbols()
	if err != nil && err != elf.ErrNoSymbols {
		return nil, fmt.Errorf("objmodule: read symbol table: %w", err)
	}
	for _, sym := range syms {
		if sym.Name == "" {
			continue
		}
		m.Symbols[sym.Name] = uint32(sym.Value)
	}

	return m, nil
}

func sectionNameFor(f *elf.File, vaddr uint64) string {
	for _, sec := range f.Sections {
		if sec.Addr != 0 && vaddr >= sec.Addr && vaddr < sec.Addr+sec.Size {
			return sec.Name
		}
	}
	return ""
}

// Symbol resolves name to its address, or ErrSymbolNotFound.
func (m *Module) Symbol(name string) (uint32, error) {
	addr, ok := m.Symbols[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
	}
	return addr, nil
}

// SectionBytes returns the raw bytes of the named section (e.g.
// ".patcher_config").
func (m *Module) SectionBytes(name string) ([]byte, error) {
	sec := m.elf.Section(name)
	if sec == nil {
		return nil, fmt.Errorf("%w: %s", ErrSectionNotFound, name)
	}
	data, err := sec.Data()
	if err != nil {
		return nil, fmt.Errorf("objmodule: read section %s: %w", name, err)
	}
	return data, nil
}

