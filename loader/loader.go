// Package loader places an already-assembled program image into a
// simulator's backing memory. Assembling source into that image is out of
// scope here: the loader only consumes the resulting segments.
package loader

import (
	"fmt"
	"os"

	"github.com/sarchlab/simtsim/emu"
)

// Kind distinguishes what a Segment's bytes represent.
type Kind int

// Segment kinds.
const (
	Instructions Kind = iota
	Data
	Shared
)

func (k Kind) String() string {
	switch k {
	case Instructions:
		return "instructions"
	case Data:
		return "data"
	case Shared:
		return "shared"
	default:
		return "unknown"
	}
}

// Segment is one contiguous region of an assembled program image.
type Segment struct {
	Kind        Kind
	BaseAddress uint32
	Data        []byte
}

// Program is a fully assembled image: one or more instruction/data/shared
// segments plus the PC execution begins at.
type Program struct {
	EntryPC  uint32
	Segments []Segment
}

// NewProgram constructs a Program from its entry PC and segments.
func NewProgram(entryPC uint32, segments ...Segment) *Program {
	return &Program{EntryPC: entryPC, Segments: segments}
}

// LoadRawImage reads a flat binary of pre-assembled 32-bit little-endian
// instructions and wraps it in a single-segment Program with the given
// base address as both load address and entry PC.
func LoadRawImage(path string, baseAddress uint32) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program image: %w", err)
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("program image size %d is not a multiple of 4", len(data))
	}
	return NewProgram(baseAddress, Segment{Kind: Instructions, BaseAddress: baseAddress, Data: data}), nil
}

// LoadInto copies every segment's bytes into mem at its base address.
// Shared-memory segments are validated against SharedMemBase so a
// mis-tagged segment is caught at load time rather than silently
// corrupting the global address space.
func LoadInto(prog *Program, mem *emu.Memory, sharedMemBase uint32) error {
	for _, seg := range prog.Segments {
		if seg.Kind == Shared && seg.BaseAddress < sharedMemBase {
			return fmt.Errorf("shared segment at 0x%x falls below shared memory base 0x%x", seg.BaseAddress, sharedMemBase)
		}
		mem.LoadSegment(seg.BaseAddress, seg.Data)
	}
	return nil
}
