package loader

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sarchlab/armsim/emu"
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// Segment represents a loadable segment from an ELF binary.
type Segment struct {
	// VirtAddr is the address where this segment should be placed.
	VirtAddr uint32
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for BSS).
	MemSize uint32
	// Flags contains the segment protection flags.
	Flags SegmentFlags
}

// Image is a 32-bit ARM ELF executable split into its loadable segments.
type Image struct {
	// EntryPoint is the address where execution should begin.
	EntryPoint uint32
	// Segments contains all loadable segments from the ELF file.
	Segments []Segment
}

// LoadELF parses a little-endian 32-bit ARM ELF binary.
func LoadELF(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS32 {
		return nil, fmt.Errorf("not a 32-bit ELF file")
	}

	if f.Machine != elf.EM_ARM {
		return nil, fmt.Errorf("not an ARM ELF file (machine type: %v)", f.Machine)
	}

	if f.Data != elf.ELFDATA2LSB {
		return nil, fmt.Errorf("not a little-endian ELF file")
	}

	img := &Image{EntryPoint: uint32(f.Entry)}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Vaddr, err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Vaddr, n, phdr.Filesz)
			}
		}

		var flags SegmentFlags
		if phdr.Flags&elf.PF_X != 0 {
			flags |= SegmentFlagExecute
		}
		if phdr.Flags&elf.PF_W != 0 {
			flags |= SegmentFlagWrite
		}
		if phdr.Flags&elf.PF_R != 0 {
			flags |= SegmentFlagRead
		}

		img.Segments = append(img.Segments, Segment{
			VirtAddr: uint32(phdr.Vaddr),
			Data:     data,
			MemSize:  uint32(phdr.Memsz),
			Flags:    flags,
		})
	}

	return img, nil
}

// Words returns the segment as little-endian words covering MemSize. A
// trailing partial word and the BSS tail are zero filled.
func (s Segment) Words() []uint32 {
	size := s.MemSize
	if uint32(len(s.Data)) > size {
		size = uint32(len(s.Data))
	}

	buf := make([]byte, (size+3)/4*4)
	copy(buf, s.Data)

	words := make([]uint32, len(buf)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return words
}

// Place stores every segment into mem as data words. Segments must start
// on a word boundary.
func (img *Image) Place(mem *emu.Memory) error {
	for _, seg := range img.Segments {
		for i, w := range seg.Words() {
			if err := mem.AddData(seg.VirtAddr+uint32(i)*4, w); err != nil {
				return fmt.Errorf("segment at 0x%x: %w", seg.VirtAddr, err)
			}
		}
	}
	return nil
}
