package loader_test

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/armsim/emu"
	"github.com/sarchlab/armsim/loader"
)

const (
	pfX = 0x1
	pfW = 0x2
	pfR = 0x4
)

type elfSegment struct {
	vaddr   uint32
	flags   uint32
	data    []byte
	memSize uint32
}

var _ = Describe("ELF Loader", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "elf-loader-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	// mov r0, #42; b .
	code := []byte{
		0x2a, 0x00, 0xa0, 0xe3,
		0xfe, 0xff, 0xff, 0xea,
	}

	Describe("LoadELF", func() {
		Context("with a valid ARM ELF binary", func() {
			var elfPath string

			BeforeEach(func() {
				elfPath = filepath.Join(tempDir, "test.elf")
				writeARMELF(elfPath, 40, 0x8000, elfSegment{vaddr: 0x8000, flags: pfR | pfX, data: code})
			})

			It("should extract the correct entry point", func() {
				img, err := loader.LoadELF(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(img.EntryPoint).To(Equal(uint32(0x8000)))
			})

			It("should load the segment contents", func() {
				img, err := loader.LoadELF(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(img.Segments).To(HaveLen(1))
				Expect(img.Segments[0].VirtAddr).To(Equal(uint32(0x8000)))
				Expect(img.Segments[0].Data).To(Equal(code))
				Expect(img.Segments[0].Flags & loader.SegmentFlagExecute).NotTo(BeZero())
				Expect(img.Segments[0].Flags & loader.SegmentFlagWrite).To(BeZero())
			})

			It("should place little-endian words into memory", func() {
				img, err := loader.LoadELF(elfPath)
				Expect(err).NotTo(HaveOccurred())

				memory := emu.NewMemory()
				Expect(img.Place(memory)).To(Succeed())
				Expect(memory.Line(0x8000).Word).To(Equal(uint32(0xe3a0002a)))
				Expect(memory.Line(0x8004).Word).To(Equal(uint32(0xeafffffe)))
			})
		})

		Context("with invalid files", func() {
			It("should return error for non-existent file", func() {
				_, err := loader.LoadELF("/nonexistent/path/test.elf")
				Expect(err).To(HaveOccurred())
			})

			It("should return error for non-ELF file", func() {
				path := filepath.Join(tempDir, "notelf.txt")
				Expect(os.WriteFile(path, []byte("hello"), 0644)).To(Succeed())

				_, err := loader.LoadELF(path)
				Expect(err).To(HaveOccurred())
			})

			It("should return error for another machine", func() {
				path := filepath.Join(tempDir, "x86.elf")
				writeARMELF(path, 3, 0, elfSegment{vaddr: 0, flags: pfR | pfX, data: code})

				_, err := loader.LoadELF(path)
				Expect(err).To(MatchError(ContainSubstring("not an ARM ELF")))
			})

			It("should return error for a 64-bit ELF", func() {
				path := filepath.Join(tempDir, "arm64.elf")
				header := make([]byte, 64)
				copy(header[0:4], []byte{0x7f, 'E', 'L', 'F'})
				header[4] = 2                                     // ELFCLASS64
				header[5] = 1                                     // little endian
				header[6] = 1                                     // version
				binary.LittleEndian.PutUint16(header[16:18], 2)   // executable
				binary.LittleEndian.PutUint16(header[18:20], 183) // AArch64
				binary.LittleEndian.PutUint32(header[20:24], 1)   // version
				binary.LittleEndian.PutUint16(header[52:54], 64)  // ehsize
				binary.LittleEndian.PutUint16(header[54:56], 56)  // phentsize
				Expect(os.WriteFile(path, header, 0644)).To(Succeed())

				_, err := loader.LoadELF(path)
				Expect(err).To(MatchError(ContainSubstring("not a 32-bit ELF")))
			})
		})
	})

	Describe("Multi-segment ELFs", func() {
		It("should load multiple PT_LOAD segments", func() {
			path := filepath.Join(tempDir, "multi.elf")
			data := []byte{0x01, 0x02, 0x03, 0x04}
			writeARMELF(path, 40, 0x8000,
				elfSegment{vaddr: 0x8000, flags: pfR | pfX, data: code},
				elfSegment{vaddr: 0x9000, flags: pfR | pfW, data: data},
			)

			img, err := loader.LoadELF(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Segments).To(HaveLen(2))
			Expect(img.Segments[1].Flags & loader.SegmentFlagWrite).NotTo(BeZero())

			memory := emu.NewMemory()
			Expect(img.Place(memory)).To(Succeed())
			Expect(memory.Line(0x9000).Word).To(Equal(uint32(0x04030201)))
		})
	})

	Describe("Segment.Words", func() {
		It("should zero fill BSS and partial words", func() {
			seg := loader.Segment{Data: []byte{0xaa, 0xbb, 0xcc, 0xdd, 0x11}, MemSize: 12}
			Expect(seg.Words()).To(Equal([]uint32{0xddccbbaa, 0x11, 0}))
		})

		It("should round a short tail up to a word", func() {
			seg := loader.Segment{Data: []byte{0x01, 0x02}, MemSize: 2}
			Expect(seg.Words()).To(Equal([]uint32{0x0201}))
		})
	})

	Describe("Image.Place", func() {
		It("should reject unaligned segments", func() {
			img := &loader.Image{Segments: []loader.Segment{{VirtAddr: 2, Data: code, MemSize: 8}}}
			err := img.Place(emu.NewMemory())
			Expect(errors.Is(err, emu.ErrUnalignedAddress)).To(BeTrue())
		})
	})
})

// writeARMELF writes a minimal little-endian ELF32 executable with one
// PT_LOAD program header per segment.
func writeARMELF(path string, machine uint16, entry uint32, segs ...elfSegment) {
	const ehsize, phentsize = 52, 32

	header := make([]byte, ehsize)
	copy(header[0:4], []byte{0x7f, 'E', 'L', 'F'})
	header[4] = 1 // ELFCLASS32
	header[5] = 1 // little endian
	header[6] = 1 // version
	binary.LittleEndian.PutUint16(header[16:18], 2)       // executable
	binary.LittleEndian.PutUint16(header[18:20], machine) // EM_ARM is 40
	binary.LittleEndian.PutUint32(header[20:24], 1)       // version
	binary.LittleEndian.PutUint32(header[24:28], entry)
	binary.LittleEndian.PutUint32(header[28:32], ehsize) // phoff
	binary.LittleEndian.PutUint16(header[40:42], ehsize)
	binary.LittleEndian.PutUint16(header[42:44], phentsize)
	binary.LittleEndian.PutUint16(header[44:46], uint16(len(segs)))

	offset := uint32(ehsize + phentsize*len(segs))
	var progHeaders, contents []byte
	for _, s := range segs {
		memSize := s.memSize
		if memSize == 0 {
			memSize = uint32(len(s.data))
		}

		ph := make([]byte, phentsize)
		binary.LittleEndian.PutUint32(ph[0:4], 1) // PT_LOAD
		binary.LittleEndian.PutUint32(ph[4:8], offset)
		binary.LittleEndian.PutUint32(ph[8:12], s.vaddr)
		binary.LittleEndian.PutUint32(ph[12:16], s.vaddr)
		binary.LittleEndian.PutUint32(ph[16:20], uint32(len(s.data)))
		binary.LittleEndian.PutUint32(ph[20:24], memSize)
		binary.LittleEndian.PutUint32(ph[24:28], s.flags)
		binary.LittleEndian.PutUint32(ph[28:32], 0x1000)

		progHeaders = append(progHeaders, ph...)
		contents = append(contents, s.data...)
		offset += uint32(len(s.data))
	}

	file, err := os.Create(path)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = file.Close() }()

	_, _ = file.Write(header)
	_, _ = file.Write(progHeaders)
	_, _ = file.Write(contents)
}
