package emu

// ComputeAddresses evaluates the per-lane effective address rs1[lane] + imm
// for every lane set in mask (SPEC_FULL.md §4.9 "Memory"). Disabled lanes
// are left at 0 in the result; callers must consult mask, not the value,
// to decide participation.
func ComputeAddresses(mask LaneMask, rs1 LaneValues, imm int32) LaneValues {
	var out LaneValues
	for lane := 0; lane < LanesPerWarp; lane++ {
		if !mask.Test(lane) {
			continue
		}
		out[lane] = uint32(int32(rs1[lane]) + imm)
	}
	return out
}
