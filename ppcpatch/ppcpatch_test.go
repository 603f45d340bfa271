package ppcpatch

import (
	"testing"

	"github.com/metroidprimemodding/gcn-patcher/dol"
)

func TestEncodeLIS(t *testing.T) {
	if got, want := EncodeLIS(3, 0x8034), uint32(0x3C608034); got != want {
		t.Fatalf("EncodeLIS() = 0x%08X; want 0x%08X", got, want)
	}
}

func TestEncodeADDI(t *testing.T) {
	if got, want := EncodeADDI(3, 3, 0x1234), uint32(0x38631234); got != want {
		t.Fatalf("EncodeADDI() = 0x%08X; want 0x%08X", got, want)
	}
}

func TestArenaHalvesNoCompensation(t *testing.T) {
	upper, lower := ArenaHalves(0x80340000)
	if upper != 0x8034 || lower != 0x0000 {
		t.Fatalf("ArenaHalves() = (0x%04X, 0x%04X); want (0x8034, 0x0000)", upper, lower)
	}
}

func TestArenaHalvesWithSignCompensation(t *testing.T) {
	// 0x80348500: lower half 0x8500 has its sign bit set, so addi would
	// sign-extend it; the upper half must be bumped by one to compensate.
	upper, lower := ArenaHalves(0x80348500)
	if upper != 0x8035 || lower != 0x8500 {
		t.Fatalf("ArenaHalves() = (0x%04X, 0x%04X); want (0x8035, 0x8500)", upper, lower)
	}
}

func TestBranchEncodeDecodeRoundTrip(t *testing.T) {
	pc := uint32(0x80003100)
	target := uint32(0x80003200)
	instr, err := EncodeBranch(pc, target, true)
	if err != nil {
		t.Fatal(err)
	}
	if instr&1 == 0 {
		t.Fatal("expected LK bit set")
	}
	if got := DecodeBranch(instr, pc); got != target {
		t.Fatalf("DecodeBranch() = 0x%08X; want 0x%08X", got, target)
	}
}

func TestBranchDisplacementBoundary(t *testing.T) {
	pc := uint32(0x80000000)
	// Exactly at the boundary: should still encode.
	if _, err := EncodeBranch(pc, pc+maxBranchDisplacement-4, false); err != nil {
		t.Fatalf("expected in-range displacement to encode, got %v", err)
	}
	// One past the boundary: must fail.
	if _, err := EncodeBranch(pc, pc+maxBranchDisplacement, false); err == nil {
		t.Fatal("expected out-of-range displacement to fail")
	}
}

func TestSpliceWritesAllMatchingDescriptors(t *testing.T) {
	h := &dol.Header{}
	h.Text[0] = dol.Segment{Offset: 0x100, Load: 0x80003100, Size: 0xE00}
	buf := make([]byte, 0x1000)

	matches, err := Splice(h, buf, 0x80003104, 0xDEADBEEF)
	if err != nil {
		t.Fatal(err)
	}
	if matches != 1 {
		t.Fatalf("matches = %d; want 1", matches)
	}
	if got, want := uint32(buf[0x104])<<24|uint32(buf[0x105])<<16|uint32(buf[0x106])<<8|uint32(buf[0x107]), uint32(0xDEADBEEF); got != want {
		t.Fatalf("spliced bytes = 0x%08X; want 0x%08X", got, want)
	}
}

func TestSpliceFailsWhenAddressUnmapped(t *testing.T) {
	h := &dol.Header{}
	buf := make([]byte, 0x10)
	if _, err := Splice(h, buf, 0x90000000, 0); err == nil {
		t.Fatal("expected error for unmapped address")
	}
}
