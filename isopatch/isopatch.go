// Package isopatch applies a patched DOL and its mod object to a
// byte-identical copy of a GameCube disc image: it parses the disc
// header and File System Table, frees a slot by truncating the attract
// trailer, relocates the patched DOL into the first large-enough gap
// among the disc's file ranges, registers the new DOL in the FST, and
// splices everything into a freshly written output file.
package isopatch

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/edsrzf/mmap-go"
	"github.com/sirupsen/logrus"

	"github.com/metroidprimemodding/gcn-patcher/binstream"
	"github.com/metroidprimemodding/gcn-patcher/dol"
	"github.com/metroidprimemodding/gcn-patcher/dolpatch"
	"github.com/metroidprimemodding/gcn-patcher/gcdisc"
	"github.com/metroidprimemodding/gcn-patcher/modconfig"
	"github.com/metroidprimemodding/gcn-patcher/objmodule"
	"github.com/metroidprimemodding/gcn-patcher/progress"
)

// ErrOutputExists is returned when the output path already exists; this
// package never overwrites an existing file.
var ErrOutputExists = errors.New("isopatch: output file already exists")

// ErrNoSuitableGap is returned when no gap between the disc's existing
// file ranges is large enough to hold the patched DOL.
var ErrNoSuitableGap = errors.New("isopatch: no gap large enough for patched DOL")

// ErrFSTTooLarge is returned when the rewritten FST no longer fits in the
// space reserved for it by the source disc.
var ErrFSTTooLarge = errors.New("isopatch: patched FST exceeds reserved max size")

const (
	attractPath  = "Video/Attract02_32.thp"
	modDOLName   = "default_mod.dol"
	gapAlignment = 8 * 1024
	hashChunk    = 1 << 20
)

// Options controls the patch run.
type Options struct {
	IgnoreHash bool
	Progress   progress.Callback
}

// Patch reads the disc image at inputPath, applies mod per cfg, and
// writes the result to outputPath. On failure, opts.Progress (if set)
// receives one terminal record with Error set before Patch returns.
func Patch(inputPath, outputPath string, mod *objmodule.Module, cfg *modconfig.Config, opts Options) (err error) {
	defer func() {
		if err != nil && opts.Progress != nil {
			opts.Progress(progress.Progress{Description: "patch failed", Error: err})
		}
	}()

	if _, err := os.Stat(outputPath); err == nil {
		return fmt.Errorf("%w: %s", ErrOutputExists, outputPath)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("isopatch: stat output: %w", err)
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("isopatch: open input: %w", err)
	}
	defer in.Close()

	src, err := mmap.Map(in, mmap.RDONLY, 0)
	if err != nil {
		return fmt.Errorf("isopatch: mmap input: %w", err)
	}
	defer src.Unmap()

	report := progress.Throttle(opts.Progress, hashChunk)
	if !opts.IgnoreHash && cfg.ExpectedISOHash != "" {
		if err := verifyHash([]byte(src), cfg.ExpectedISOHash, report); err != nil {
			return err
		}
	}

	srcReaderAt := readerAtBytes(src)

	headerBytes := make([]byte, gcdisc.HeaderSize)
	if _, err := io.ReadFull(binstream.NewSubstream(srcReaderAt, 0, gcdisc.HeaderSize), headerBytes); err != nil {
		return fmt.Errorf("isopatch: read header region: %w", err)
	}
	header, err := gcdisc.ReadHeader(binstream.New(sliceStream(headerBytes)))
	if err != nil {
		return fmt.Errorf("isopatch: read header: %w", err)
	}

	fstBytes := make([]byte, header.FSTSize)
	if _, err := io.ReadFull(binstream.NewSubstream(srcReaderAt, int64(header.FSTOffset), int64(header.FSTSize)), fstBytes); err != nil {
		return fmt.Errorf("isopatch: read fst region: %w", err)
	}
	fst, err := gcdisc.ReadFST(binstream.New(sliceStream(fstBytes)))
	if err != nil {
		return fmt.Errorf("isopatch: read fst: %w", err)
	}

	if entry := fst.Find(splitPath(attractPath)); entry != nil {
		if f, ok := entry.(*gcdisc.File); ok {
			f.Length = 0
		}
	} else {
		logrus.Warnf("isopatch: %s not found in FST, skipping attract trailer removal", attractPath)
	}

	dolBytes, err := extractDOL(src, header)
	if err != nil {
		return err
	}

	patchedDOL, err := dolpatch.Patch(dolBytes, mod, cfg, dolpatch.Options{IgnoreHash: opts.IgnoreHash})
	if err != nil {
		return fmt.Errorf("isopatch: patch dol: %w", err)
	}

	newDOLOffset, err := allocateGap(fst.Ranges(), uint32(len(patchedDOL)), uint32(header.FSTOffset))
	if err != nil {
		return err
	}

	fst.AddChild(&gcdisc.File{Name: modDOLName, Offset: newDOLOffset, Length: uint32(len(patchedDOL))})

	fstBuf := &growBuffer{}
	if err := gcdisc.WriteFST(binstream.New(fstBuf), fst); err != nil {
		return fmt.Errorf("isopatch: write fst: %w", err)
	}
	if uint32(len(fstBuf.buf)) > header.FSTMaxSize {
		return fmt.Errorf("%w: %d > %d", ErrFSTTooLarge, len(fstBuf.buf), header.FSTMaxSize)
	}

	if cfg.GameName != "" {
		header.SetGameName(cfg.GameName)
	}
	header.DOLOffset = newDOLOffset
	header.FSTSize = uint32(len(fstBuf.buf))

	out, err := os.OpenFile(outputPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", ErrOutputExists, outputPath)
		}
		return fmt.Errorf("isopatch: create output: %w", err)
	}
	defer out.Close()

	if err := out.Truncate(int64(len(src))); err != nil {
		return fmt.Errorf("isopatch: size output: %w", err)
	}

	dst, err := mmap.Map(out, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("isopatch: mmap output: %w", err)
	}
	defer dst.Unmap()

	copyThrottled([]byte(dst), []byte(src), report)

	copy(dst[newDOLOffset:], patchedDOL)
	copy(dst[header.FSTOffset:], fstBuf.buf)

	if cfg.BNRFile != "" && header.UserPos != 0 {
		banner, err := os.ReadFile(cfg.BNRFile)
		if err != nil {
			return fmt.Errorf("isopatch: read banner file: %w", err)
		}
		if uint32(len(banner)) > header.UserLen {
			return fmt.Errorf("isopatch: banner file %d bytes exceeds reserved %d bytes", len(banner), header.UserLen)
		}
		copy(dst[header.UserPos:], banner)
	}

	headerBuf := &growBuffer{}
	if err := header.WriteTo(binstream.New(headerBuf)); err != nil {
		return fmt.Errorf("isopatch: write header: %w", err)
	}
	copy(dst[:gcdisc.HeaderSize], headerBuf.buf)

	if err := dst.Flush(); err != nil {
		return fmt.Errorf("isopatch: flush output: %w", err)
	}
	return nil
}

func splitPath(p string) []string {
	var out []string
	start := 0
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			out = append(out, p[start:i])
			start = i + 1
		}
	}
	out = append(out, p[start:])
	return out
}

func verifyHash(data []byte, expectedHex string, report progress.Callback) error {
	h := md5.New()
	total := uint64(len(data))
	for off := uint64(0); off < total; off += hashChunk {
		end := off + hashChunk
		if end > total {
			end = total
		}
		h.Write(data[off:end])
		report(progress.Progress{Description: "hashing", Current: end, Total: total})
	}
	got := hex.EncodeToString(h.Sum(nil))
	if got != expectedHex {
		return fmt.Errorf("%w: expected %s, got %s", dolpatch.ErrHashMismatch, expectedHex, got)
	}
	return nil
}

func copyThrottled(dst, src []byte, report progress.Callback) {
	total := uint64(len(src))
	for off := uint64(0); off < total; off += hashChunk {
		end := off + hashChunk
		if end > total {
			end = total
		}
		copy(dst[off:end], src[off:end])
		report(progress.Progress{Description: "copying", Current: end, Total: total})
	}
}

func extractDOL(src []byte, header *gcdisc.Header) ([]byte, error) {
	maxLen := int64(header.FSTOffset) - int64(header.DOLOffset)
	region := make([]byte, maxLen)
	if _, err := io.ReadFull(binstream.NewSubstream(readerAtBytes(src), int64(header.DOLOffset), maxLen), region); err != nil {
		return nil, fmt.Errorf("isopatch: read embedded dol region: %w", err)
	}

	h, err := dol.ReadFrom(binstream.New(sliceStream(region)))
	if err != nil {
		return nil, fmt.Errorf("isopatch: read embedded dol: %w", err)
	}
	length := h.TotalLength()
	if uint64(length) > uint64(len(region)) {
		return nil, fmt.Errorf("isopatch: embedded dol length %d exceeds space before fst", length)
	}
	return region[:length:length], nil
}

// readerAtBytes adapts a plain byte slice (or an mmap.MMap, which shares
// []byte's underlying representation) to io.ReaderAt for use with
// binstream.Substream.
type readerAtBytes []byte

func (b readerAtBytes) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// allocateGap finds the first gap (in ascending-start order) among ranges
// that is at least size bytes, and returns an 8 KiB-aligned placement for
// size bytes at the end of that gap. The region beyond the last range up
// to fstOffset is treated as a final candidate gap.
func allocateGap(ranges []gcdisc.Range, size uint32, fstOffset uint32) (uint32, error) {
	sorted := append([]gcdisc.Range(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	type gap struct{ start, end uint32 }
	var gaps []gap
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Start > sorted[i-1].End {
			gaps = append(gaps, gap{sorted[i-1].End, sorted[i].Start})
		}
	}
	if len(sorted) > 0 {
		gaps = append(gaps, gap{sorted[len(sorted)-1].End, fstOffset})
	} else {
		gaps = append(gaps, gap{0, fstOffset})
	}

	for _, g := range gaps {
		if g.end <= g.start {
			continue
		}
		if uint32(g.end-g.start) < size {
			continue
		}
		placement := (g.end - size) &^ (gapAlignment - 1)
		if placement < g.start {
			continue
		}
		return placement, nil
	}
	return 0, ErrNoSuitableGap
}

func sliceStream(b []byte) *bytesReadWriteSeeker {
	return &bytesReadWriteSeeker{buf: b}
}

// bytesReadWriteSeeker adapts a fixed byte slice to io.ReadWriteSeeker for
// read-only parsing via binstream.Stream.
type bytesReadWriteSeeker struct {
	buf []byte
	pos int64
}

func (b *bytesReadWriteSeeker) Read(p []byte) (int, error) {
	if b.pos >= int64(len(b.buf)) {
		return 0, bytes.ErrTooLarge
	}
	n := copy(p, b.buf[b.pos:])
	b.pos += int64(n)
	return n, nil
}

func (b *bytesReadWriteSeeker) Write([]byte) (int, error) {
	return 0, errReadOnly
}

var errReadOnly = errors.New("isopatch: read-only region")

func (b *bytesReadWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		b.pos = offset
	case 1:
		b.pos += offset
	case 2:
		b.pos = int64(len(b.buf)) + offset
	}
	return b.pos, nil
}

type growBuffer struct {
	buf []byte
	pos int64
}

func (g *growBuffer) Read(p []byte) (int, error) {
	if g.pos >= int64(len(g.buf)) {
		return 0, bytes.ErrTooLarge
	}
	n := copy(p, g.buf[g.pos:])
	g.pos += int64(n)
	return n, nil
}

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
