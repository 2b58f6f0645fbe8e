// Package texture defines the opaque texture-sampler collaborator the
// execution unit routes texture-space loads to. Its filtering behavior is
// out of scope (SPEC_FULL.md §1); only the sampling contract is specified.
package texture

// Sampler is the opaque read-only texture sampling collaborator. An
// implementation may apply bilinear or nearest filtering, mipmapping, or
// any other policy; the simulator only depends on this interface.
type Sampler interface {
	// Sample returns the per-lane word stored at address for the active
	// lanes of mask. Lanes not set in mask are unspecified in the result.
	Sample(mask uint32, addresses [32]uint32) ([32]uint32, error)
}

// PassthroughSampler is a trivial Sampler backed by a flat word array,
// useful as a default when a benchmark has no dedicated texture image.
type PassthroughSampler struct {
	Words []uint32
}

// Sample returns Words[address] for each active lane, treating addresses
// as word indices.
func (p *PassthroughSampler) Sample(mask uint32, addresses [32]uint32) ([32]uint32, error) {
	var out [32]uint32
	for lane := 0; lane < 32; lane++ {
		if mask&(1<<uint(lane)) == 0 {
			continue
		}
		idx := addresses[lane]
		if int(idx) < len(p.Words) {
			out[lane] = p.Words[idx]
		}
	}
	return out, nil
}
