// Package dolpatch applies a mod object's segments and PowerPC patches to
// a DOL executable image: hash verification, segment injection, arena
// pointer patching, entry hook installation, and the mod's extra branch
// patches.
package dolpatch

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/metroidprimemodding/gcn-patcher/binstream"
	"github.com/metroidprimemodding/gcn-patcher/dol"
	"github.com/metroidprimemodding/gcn-patcher/modconfig"
	"github.com/metroidprimemodding/gcn-patcher/objmodule"
	"github.com/metroidprimemodding/gcn-patcher/ppcpatch"
)

// ErrHashMismatch is returned when a DOL's MD5 digest does not match the
// mod config's expected hash and verification was not disabled.
var ErrHashMismatch = errors.New("dolpatch: hash mismatch")

// Symbol names the mod object is required to export.
const (
	symLinkEnd             = "_LINK_END"
	symArenaPatch1         = "_PATCH_ARENA_LO_1"
	symArenaPatch2         = "_PATCH_ARENA_LO_2"
	symEarlybootMemsetHook = "_PATCH_EARLYBOOT_MEMSET"
	symEarlybootMemsetFn   = "_earlyboot_memset"
)

// Options controls patch behavior.
type Options struct {
	IgnoreHash bool
}

// Patch applies mod to the DOL image dolBytes per cfg, returning the
// patched image. dolBytes is not mutated; a private copy is grown and
// returned.
func Patch(dolBytes []byte, mod *objmodule.Module, cfg *modconfig.Config, opts Options) ([]byte, error) {
	if !opts.IgnoreHash && cfg.ExpectedDOLHash != "" {
		if err := verifyHash(dolBytes, cfg.ExpectedDOLHash); err != nil {
			return nil, err
		}
	}

	buf := append([]byte(nil), dolBytes...)

	header, err := dol.ReadFrom(binstream.New(&growBuffer{buf: buf}))
	if err != nil {
		return nil, fmt.Errorf("dolpatch: read header: %w", err)
	}

	for _, seg := range mod.Segments {
		if len(seg.Bytes) == 0 {
			continue
		}
		fileOffset := uint32(len(buf))
		buf = append(buf, seg.Bytes...)
		if err := header.Append(fileOffset, seg.Address, uint32(len(seg.Bytes))); err != nil {
			return nil, fmt.Errorf("dolpatch: append segment at 0x%08X: %w", seg.Address, err)
		}
		logrus.WithFields(logrus.Fields{
			"address": fmt.Sprintf("0x%08X", seg.Address),
			"size":    len(seg.Bytes),
			"section": seg.Section,
		}).Info("dolpatch: injected segment")
	}

	headerBuf := &growBuffer{}
	if err := header.WriteTo(binstream.New(headerBuf)); err != nil {
		return nil, fmt.Errorf("dolpatch: rewrite header: %w", err)
	}
	copy(buf[:dol.HeaderSize], headerBuf.buf)

	if err := patchArena(header, buf, mod); err != nil {
		return nil, err
	}
	if err := patchEntryHook(header, buf, mod, cfg); err != nil {
		return nil, err
	}
	if err := patchEarlybootMemsetHook(header, buf, mod); err != nil {
		return nil, err
	}
	if err := patchExtraBranches(header, buf, mod, cfg); err != nil {
		return nil, err
	}

	return buf, nil
}

func verifyHash(data []byte, expectedHex string) error {
	sum := md5.Sum(data)
	got := hex.EncodeToString(sum[:])
	if got != expectedHex {
		return fmt.Errorf("%w: expected %s, got %s", ErrHashMismatch, expectedHex, got)
	}
	return nil
}

func patchArena(header *dol.Header, buf []byte, mod *objmodule.Module) error {
	arena, err := mod.Symbol(symLinkEnd)
	if err != nil {
		return fmt.Errorf("dolpatch: resolve arena value: %w", err)
	}
	upper, lower := ppcpatch.ArenaHalves(arena)

	lisAddr, err := mod.Symbol(symArenaPatch1)
	if err != nil {
		return fmt.Errorf("dolpatch: resolve arena patch site 1: %w", err)
	}
	if err := patchImmediateHalf(header, buf, lisAddr, upper, true); err != nil {
		return fmt.Errorf("dolpatch: patch arena lis at 0x%08X: %w", lisAddr, err)
	}

	addiAddr, err := mod.Symbol(symArenaPatch2)
	if err != nil {
		return fmt.Errorf("dolpatch: resolve arena patch site 2: %w", err)
	}
	if err := patchImmediateHalf(header, buf, addiAddr, lower, false); err != nil {
		return fmt.Errorf("dolpatch: patch arena addi at 0x%08X: %w", addiAddr, err)
	}
	return nil
}

// patchImmediateHalf rewrites the 16-bit immediate of the lis/addi
// instruction at addr, preserving its existing opcode and register
// fields (the register the game's own code already uses).
func patchImmediateHalf(header *dol.Header, buf []byte, addr, imm16 uint32, lis bool) error {
	var existing uint32
	matches := header.EachMatchingOffset(addr, func(offset uint32) {
		existing = uint32(buf[offset])<<24 | uint32(buf[offset+1])<<16 | uint32(buf[offset+2])<<8 | uint32(buf[offset+3])
	})
	if matches == 0 {
		return fmt.Errorf("%w: address 0x%08X", dol.ErrAddressNotMapped, addr)
	}
	d := (existing >> 21) & 0x1F
	var instr uint32
	if lis {
		instr = ppcpatch.EncodeLIS(d, imm16)
	} else {
		a := (existing >> 16) & 0x1F
		instr = ppcpatch.EncodeADDI(d, a, imm16)
	}
	_, err := ppcpatch.Splice(header, buf, addr, instr)
	return err
}

func patchEntryHook(header *dol.Header, buf []byte, mod *objmodule.Module, cfg *modconfig.Config) error {
	hookAddr, err := mod.Symbol(cfg.EntryPointSymbol)
	if err != nil {
		return fmt.Errorf("dolpatch: resolve entry hook site %q: %w", cfg.EntryPointSymbol, err)
	}
	instr, err := ppcpatch.EncodeBranch(hookAddr, mod.EntryPoint, false)
	if err != nil {
		return fmt.Errorf("dolpatch: encode entry hook branch: %w", err)
	}
	if _, err := ppcpatch.Splice(header, buf, hookAddr, instr); err != nil {
		return fmt.Errorf("dolpatch: splice entry hook: %w", err)
	}
	return nil
}

// patchEarlybootMemsetHook installs an unconditional branch from the mod's
// early-boot memset hook site to its replacement memset implementation.
// Both symbols are required exports, same as the arena and entry-hook
// sites: a mod object missing either one fails the whole patch.
func patchEarlybootMemsetHook(header *dol.Header, buf []byte, mod *objmodule.Module) error {
	hookAddr, err := mod.Symbol(symEarlybootMemsetHook)
	if err != nil {
		return fmt.Errorf("dolpatch: resolve earlyboot memset hook site: %w", err)
	}
	fnAddr, err := mod.Symbol(symEarlybootMemsetFn)
	if err != nil {
		return fmt.Errorf("dolpatch: resolve earlyboot memset function: %w", err)
	}
	instr, err := ppcpatch.EncodeBranch(hookAddr, fnAddr, false)
	if err != nil {
		return fmt.Errorf("dolpatch: encode earlyboot memset branch: %w", err)
	}
	if _, err := ppcpatch.Splice(header, buf, hookAddr, instr); err != nil {
		return fmt.Errorf("dolpatch: splice earlyboot memset hook: %w", err)
	}
	return nil
}

func patchExtraBranches(header *dol.Header, buf []byte, mod *objmodule.Module, cfg *modconfig.Config) error {
	for _, bp := range cfg.BranchPatches {
		fromAddr, err := mod.Symbol(bp.BranchFromSymbol)
		if err != nil {
			return fmt.Errorf("dolpatch: resolve branch patch source %q: %w", bp.BranchFromSymbol, err)
		}
		toAddr, err := mod.Symbol(bp.ToSymbol)
		if err != nil {
			return fmt.Errorf("dolpatch: resolve branch patch target %q: %w", bp.ToSymbol, err)
		}
		instr, err := ppcpatch.EncodeBranch(fromAddr, toAddr, bp.Link)
		if err != nil {
			return fmt.Errorf("dolpatch: encode branch patch %s -> %s: %w", bp.BranchFromSymbol, bp.ToSymbol, err)
		}
		if _, err := ppcpatch.Splice(header, buf, fromAddr, instr); err != nil {
			return fmt.Errorf("dolpatch: splice branch patch %s -> %s: %w", bp.BranchFromSymbol, bp.ToSymbol, err)
		}
	}
	return nil
}

type growBuffer struct {
	buf []byte
	pos int64
}

func (g *growBuffer) Read(p []byte) (int, error) {
	if g.pos >= int64(len(g.buf)) {
		return 0, errShortBuffer
	}
	n := copy(p, g.buf[g.pos:])
	g.pos += int64(n)
	return n, nil
}

var errShortBuffer = errors.New("dolpatch: short buffer")

func (g *growBuffer) Write(p []byte) (int, error) {
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

func (g *growBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		g.pos = offset
	case 1:
		g.pos += offset
	case 2:
		g.pos = int64(len(g.buf)) + offset
	}
	return g.pos, nil
}
