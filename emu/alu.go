package emu

import (
	"math"

	pkgmath "github.com/pkg/math"
	"github.com/sarchlab/simtsim/insts"
)

// ALU evaluates the integer operations of SPEC_FULL.md §4.9 elementwise
// across a warp's active lanes. Disabled lanes are left untouched by the
// caller (the execution unit only writes back through the active mask).
type ALU struct{}

// NewALU creates a new ALU. The ALU is stateless; it is a value type kept
// for symmetry with the rest of the execution pipeline's constructors.
func NewALU() *ALU {
	return &ALU{}
}

// Eval computes op(src1, src2) for every lane set in mask. A division or
// modulo by zero on any active lane returns a DivideByZero fault and the
// caller must transition the warp to Finished without applying any partial
// result.
func (a *ALU) Eval(op insts.ALUOp, mask LaneMask, src1, src2 LaneValues) (LaneValues, error) {
	var out LaneValues
	for lane := 0; lane < LanesPerWarp; lane++ {
		if !mask.Test(lane) {
			continue
		}
		v, err := a.evalLane(op, int32(src1[lane]), int32(src2[lane]))
		if err != nil {
			return out, err
		}
		out[lane] = uint32(v)
	}
	return out, nil
}

func (a *ALU) evalLane(op insts.ALUOp, x, y int32) (int32, error) {
	switch op {
	case insts.ALUAdd:
		return x + y, nil
	case insts.ALUSub:
		return x - y, nil
	case insts.ALUMul:
		return x * y, nil
	case insts.ALUDiv:
		if y == 0 {
			return 0, NewFault(FaultDivideByZero, "integer division by zero")
		}
		return x / y, nil
	case insts.ALUMod:
		if y == 0 {
			return 0, NewFault(FaultDivideByZero, "integer modulo by zero")
		}
		return x % y, nil
	case insts.ALUAnd:
		return x & y, nil
	case insts.ALUOr:
		return x | y, nil
	case insts.ALUXor:
		return x ^ y, nil
	case insts.ALUShl:
		return x << (uint32(y) % 32), nil
	case insts.ALUShr:
		return int32(uint32(x) >> (uint32(y) % 32)), nil
	case insts.ALUSar:
		return x >> (uint32(y) % 32), nil
	case insts.ALUSlt:
		return boolToInt32(x < y), nil
	case insts.ALUSltu:
		return boolToInt32(uint32(x) < uint32(y)), nil
	case insts.ALUMin:
		return int32(pkgmath.MinInt(int(x), int(y))), nil
	case insts.ALUMax:
		return int32(pkgmath.MaxInt(int(x), int(y))), nil
	case insts.ALUAbs:
		return absInt32(x), nil
	default:
		return 0, NewFault(FaultIllegalInstruction, "unrecognized ALU opcode")
	}
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// absInt32 returns the absolute value of x. ABS(INT_MIN) is defined by the
// spec to return INT_MIN, matching two's-complement overflow rather than
// panicking or promoting to a wider type.
func absInt32(x int32) int32 {
	if x == math.MinInt32 {
		return x
	}
	if x < 0 {
		return -x
	}
	return x
}
