// Package ppcpatch encodes and decodes the handful of 32-bit PowerPC
// instructions the patcher needs to rewrite: lis/addi pairs used to load
// the arena pointer, and b/bl branches used for the entry hook and extra
// branch patches.
package ppcpatch

import (
	"fmt"

	"github.com/metroidprimemodding/gcn-patcher/dol"
)

// EncodeLIS encodes "lis rD, imm16".
func EncodeLIS(d, imm16 uint32) uint32 {
	return 0x3C000000 | (d&0x1F)<<21 | (imm16 & 0xFFFF)
}

// EncodeADDI encodes "addi rD, rA, imm16".
func EncodeADDI(d, a, imm16 uint32) uint32 {
	return 0x38000000 | (a&0x1F)<<21 | (d&0x1F)<<16 | (imm16 & 0xFFFF)
}

// maxBranchDisplacement is the largest magnitude (exclusive) representable
// in a 26-bit signed, 4-byte-aligned branch displacement.
const maxBranchDisplacement = 1 << 25

// EncodeBranch encodes a b/bl instruction at pc targeting target. link
// sets the LK bit. Returns an error if the displacement does not fit in
// the 26-bit field.
func EncodeBranch(pc, target uint32, link bool) (uint32, error) {
	disp := int64(target) - int64(pc)
	if disp >= maxBranchDisplacement || disp < -maxBranchDisplacement {
		return 0, fmt.Errorf("ppcpatch: branch displacement %d out of range at pc=0x%08X target=0x%08X", disp, pc, target)
	}
	instr := uint32(0x48000000) | (uint32(disp) & 0x03FFFFFC)
	if link {
		instr |= 1
	}
	return instr, nil
}

// DecodeBranch returns the absolute target address of a b/bl instruction
// encoded at pc.
func DecodeBranch(instr, pc uint32) uint32 {
	disp := instr & 0x03FFFFFC
	if disp&0x02000000 != 0 {
		disp |= 0xFC000000
	}
	return pc + disp
}

// ArenaHalves splits a 32-bit address into the (upper, lower) halves
// fed to lis/addi, compensating for addi's sign extension of its
// immediate: when the lower half's sign bit would be set, the upper half
// is incremented so lis+addi reconstructs the original address exactly.
func ArenaHalves(arena uint32) (upper, lower uint32) {
	upper = (arena >> 16) & 0xFFFF
	lower = arena & 0xFFFF
	if lower&0x8000 != 0 {
		upper = (upper + 1) & 0xFFFF
	}
	return upper, lower
}

// Splice writes value, big-endian, at every file offset in buf that
// dol.Header.EachMatchingOffset resolves addr to. It returns the number
// of descriptors written and fails only when none match.
func Splice(h *dol.Header, buf []byte, addr uint32, value uint32) (int, error) {
	matches := h.EachMatchingOffset(addr, func(offset uint32) {
		buf[offset+0] = byte(value >> 24)
		buf[offset+1] = byte(value >> 16)
		buf[offset+2] = byte(value >> 8)
		buf[offset+3] = byte(value)
	})
	if matches == 0 {
		return 0, fmt.Errorf("%w: address 0x%08X", dol.ErrAddressNotMapped, addr)
	}
	return matches, nil
}
