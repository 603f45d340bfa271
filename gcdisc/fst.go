package gcdisc

import (
	"fmt"
	"sort"

	"github.com/metroidprimemodding/gcn-patcher/binstream"
)

const entrySize = 12

// Entry is a node in the FST tree: either a Dir or a File. It is a tagged
// variant the way the original's FSTEntry enum is; Go expresses that as an
// interface with an unexported marker method rather than a sum type.
type Entry interface {
	entryName() string
	isDir() bool
}

// Dir is a directory node. Its children are traversed in tree order on
// read; the writer reorders them (files, then directories) regardless of
// Children's order, per the FST's mandatory child-ordering rule.
type Dir struct {
	Name     string
	Children []Entry
}

func (d *Dir) entryName() string { return d.Name }
func (d *Dir) isDir() bool       { return true }

// File is a file entry: an absolute byte offset and length on the disc.
type File struct {
	Name   string
	Offset uint32
	Length uint32
}

func (f *File) entryName() string { return f.Name }
func (f *File) isDir() bool       { return false }

// FST is the parsed File System Table: a root directory plus its subtree.
type FST struct {
	Root *Dir
}

// Range is a half-open byte range [Start, End) occupied by a file.
type Range struct {
	Start, End uint32
}

// Count returns the total number of entries in the tree, including the
// root directory itself.
func (fst *FST) Count() uint32 {
	return countEntry(fst.Root)
}

func countEntry(e Entry) uint32 {
	d, ok := e.(*Dir)
	if !ok {
		return 1
	}
	n := uint32(1)
	for _, c := range d.Children {
		n += countEntry(c)
	}
	return n
}

// Ranges returns every file's [offset, offset+length) range across the
// whole tree, sorted by start offset.
func (fst *FST) Ranges() []Range {
	var out []Range
	collectRanges(fst.Root, &out)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func collectRanges(e Entry, out *[]Range) {
	switch v := e.(type) {
	case *Dir:
		for _, c := range v.Children {
			collectRanges(c, out)
		}
	case *File:
		*out = append(*out, Range{Start: v.Offset, End: v.Offset + v.Length})
	}
}

// Find resolves a path, given as its components (excluding the root's own
// name), against the tree and returns the matching entry, or nil if not found.
func (fst *FST) Find(path []string) Entry {
	return find(fst.Root, path)
}

func find(e Entry, path []string) Entry {
	if len(path) == 0 {
		return e
	}
	d, ok := e.(*Dir)
	if !ok {
		return nil
	}
	head, rest := path[0], path[1:]
	for _, c := range d.Children {
		if c.entryName() != head {
			continue
		}
		if len(rest) == 0 {
			return c
		}
		if found := find(c, rest); found != nil {
			return found
		}
	}
	return nil
}

// AddChild appends e as a direct child of the root directory.
func (fst *FST) AddChild(e Entry) {
	fst.Root.Children = append(fst.Root.Children, e)
}

// ReadFST parses an FST from s, which must be positioned at the start of
// the FST region (entry 0 / the root directory).
func ReadFST(s *binstream.Stream) (*FST, error) {
	start, err := s.Tell()
	if err != nil {
		return nil, fmt.Errorf("gcdisc: fst: tell start: %w", err)
	}

	root, err := readEntryData(s)
	if err != nil {
		return nil, fmt.Errorf("gcdisc: fst: read root entry: %w", err)
	}
	if !root.directory {
		return nil, fmt.Errorf("gcdisc: fst: entry 0 is not a directory")
	}
	count := root.lengthOrNext

	rawEntries := make([]rawEntry, count)
	rawEntries[0] = root
	for i := uint32(1); i < count; i++ {
		e, err := readEntryData(s)
		if err != nil {
			return nil, fmt.Errorf("gcdisc: fst: read entry %d: %w", i, err)
		}
		rawEntries[i] = e
	}

	stringTableStart := start + int64(count)*entrySize

	readName := func(nameOffset uint32) (string, error) {
		cur, err := s.Tell()
		if err != nil {
			return "", err
		}
		if _, err := s.Seek(stringTableStart+int64(nameOffset), 0); err != nil {
			return "", err
		}
		var buf []byte
		for {
			b, err := s.ReadU8()
			if err != nil {
				return "", err
			}
			if b == 0 {
				break
			}
			buf = append(buf, b)
		}
		if _, err := s.Seek(cur, 0); err != nil {
			return "", err
		}
		return string(buf), nil
	}

	maxStringEnd := uint64(0)
	names := make([]string, count)
	for i, re := range rawEntries {
		name, err := readName(re.nameOffset)
		if err != nil {
			return nil, fmt.Errorf("gcdisc: fst: read name for entry %d: %w", i, err)
		}
		names[i] = name
		if end := uint64(re.nameOffset) + uint64(len(name)) + 1; end > maxStringEnd {
			maxStringEnd = end
		}
	}

	entries := make([]Entry, count)
	rootDir := &Dir{Name: names[0]}
	entries[0] = rootDir

	type frame struct {
		index int
		next  uint32
	}
	stack := []frame{{index: 0, next: count}}

	for i := uint32(1); i < count; i++ {
		for len(stack) > 1 && i == stack[len(stack)-1].next {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1].index

		re := rawEntries[i]
		if re.directory {
			d := &Dir{Name: names[i]}
			entries[i] = d
			entries[parent].(*Dir).Children = append(entries[parent].(*Dir).Children, d)
			stack = append(stack, frame{index: int(i), next: re.lengthOrNext})
		} else {
			f := &File{Name: names[i], Offset: re.offsetOrParent, Length: re.lengthOrNext}
			entries[i] = f
			entries[parent].(*Dir).Children = append(entries[parent].(*Dir).Children, f)
		}
	}

	totalLen := uint64(count)*entrySize + maxStringEnd
	if _, err := s.Seek(start+int64(totalLen), 0); err != nil {
		return nil, fmt.Errorf("gcdisc: fst: seek past region: %w", err)
	}

	return &FST{Root: rootDir}, nil
}

// rawEntry is the raw 12-byte on-disk entry before it is resolved into a
// tree node.
type rawEntry struct {
	directory      bool
	nameOffset     uint32
	offsetOrParent uint32
	lengthOrNext   uint32
}

func readEntryData(s *binstream.Stream) (rawEntry, error) {
	first, err := s.ReadU32()
	if err != nil {
		return rawEntry{}, err
	}
	directory := first&0xFF000000 != 0
	nameOffset := first & 0x00FFFFFF

	offsetOrParent, err := s.ReadU32()
	if err != nil {
		return rawEntry{}, err
	}
	lengthOrNext, err := s.ReadU32()
	if err != nil {
		return rawEntry{}, err
	}
	return rawEntry{
		directory:      directory,
		nameOffset:     nameOffset,
		offsetOrParent: offsetOrParent,
		lengthOrNext:   lengthOrNext,
	}, nil
}

// WriteFST serializes fst at the stream's current position, following the
// mandatory child-ordering rule: within every directory, file children are
// written (and thus indexed) before directory children, regardless of the
// order they appear in Children.
func WriteFST(s *binstream.Stream, fst *FST) error {
	base, err := s.Tell()
	if err != nil {
		return fmt.Errorf("gcdisc: fst: tell base: %w", err)
	}
	total := fst.Count()
	stringTableStart := base + int64(total)*entrySize

	w := &fstWriter{s: s, base: base, stringTableStart: stringTableStart, total: total}
	if err := w.writeEntry(fst.Root, 0, true); err != nil {
		return err
	}

	totalLen := int64(total)*entrySize + int64(w.stringOffset)
	if _, err := s.Seek(base+totalLen, 0); err != nil {
		return fmt.Errorf("gcdisc: fst: seek past written region: %w", err)
	}
	return nil
}

type fstWriter struct {
	s                *binstream.Stream
	base             int64
	stringTableStart int64
	total            uint32
	fileIndex        uint32
	stringOffset     uint32
}

func (w *fstWriter) writeString(name string) (nameOffset uint32, err error) {
	nameOffset = w.stringOffset
	if _, err := w.s.Seek(w.stringTableStart+int64(nameOffset), 0); err != nil {
		return 0, err
	}
	if err := w.s.WriteString(name); err != nil {
		return 0, err
	}
	if err := w.s.WriteU8(0); err != nil {
		return 0, err
	}
	w.stringOffset += uint32(len(name)) + 1
	return nameOffset, nil
}

func (w *fstWriter) writeU32At(byteOffset int64, v uint32) error {
	if _, err := w.s.Seek(w.base+byteOffset, 0); err != nil {
		return err
	}
	return w.s.WriteU32(v)
}

// writeEntry writes e at the next available index, returning any write
// error; it recurses for directories. isRoot controls the parent/next-boundary
// encoding of index 0.
func (w *fstWriter) writeEntry(e Entry, parentIndex uint32, isRoot bool) error {
	nameOffset, err := w.writeString(e.entryName())
	if err != nil {
		return err
	}

	myIndex := w.fileIndex
	w.fileIndex++
	myByteOffset := int64(myIndex) * entrySize

	switch v := e.(type) {
	case *Dir:
		header := (uint32(1) << 24) | nameOffset
		if err := w.writeU32At(myByteOffset+0x0, header); err != nil {
			return err
		}
		if isRoot {
			if err := w.writeU32At(myByteOffset+0x4, 0); err != nil {
				return err
			}
			if err := w.writeU32At(myByteOffset+0x8, w.total); err != nil {
				return err
			}
		} else {
			if err := w.writeU32At(myByteOffset+0x4, parentIndex); err != nil {
				return err
			}
			nextBoundary := myIndex + countEntry(v)
			if err := w.writeU32At(myByteOffset+0x8, nextBoundary); err != nil {
				return err
			}
		}

		var files, dirs []Entry
		for _, c := range v.Children {
			if c.isDir() {
				dirs = append(dirs, c)
			} else {
				files = append(files, c)
			}
		}
		for _, c := range files {
			if err := w.writeEntry(c, myIndex, false); err != nil {
				return err
			}
		}
		for _, c := range dirs {
			if err := w.writeEntry(c, myIndex, false); err != nil {
				return err
			}
		}

	case *File:
		if err := w.writeU32At(myByteOffset+0x0, nameOffset); err != nil {
			return err
		}
		if err := w.writeU32At(myByteOffset+0x4, v.Offset); err != nil {
			return err
		}
		if err := w.writeU32At(myByteOffset+0x8, v.Length); err != nil {
			return err
		}
	}
	return nil
}
