package objmodule

import (
	"debug/elf"
	"testing"
)

func TestSymbolNotFoundWrapsSentinel(t *testing.T) {
	m := &Module{Symbols: map[string]uint32{"_LINK_END": 0x80100000}}
	_, err := m.Symbol("_MISSING")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSectionNotFoundWrapsSentinel(t *testing.T) {
	m := &Module{elf: &elf.File{}}
	_, err := m.SectionBytes(".patcher_config")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSectionNameForPicksContainingSection(t *testing.T) {
	f := &elf.File{}
	f.Sections = []*elf.Section{
		{SectionHeader: elf.SectionHeader{Name: ".text", Addr: 0x80003100, Size: 0x100}},
		{SectionHeader: elf.SectionHeader{Name: ".data", Addr: 0x80004000, Size: 0x100}},
	}
	if got, want := sectionNameFor(f, 0x80003110), ".text"; got != want {
		t.Fatalf("sectionNameFor() = %q; want %q", got, want)
	}
	if got, want := sectionNameFor(f, 0x90000000), ""; got != want {
		t.Fatalf("sectionNameFor() = %q; want %q", got, want)
	}
}
