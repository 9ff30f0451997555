package lower

import (
	"math"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/gogpu/shaderlower/interp"
	"github.com/gogpu/shaderlower/nir"
)

func mainImpl(s *nir.Shader) *nir.Impl {
	return s.Functions[0].Impl
}

func countOps(s *nir.Shader, ops ...nir.Op) int {
	n := 0
	for _, block := range mainImpl(s).Blocks() {
		for _, instr := range block.Instrs() {
			alu, ok := instr.(*nir.ALUInstr)
			if !ok {
				continue
			}
			for _, op := range ops {
				if alu.Op == op {
					n++
				}
			}
		}
	}
	return n
}

func countInstrs(s *nir.Shader) int {
	n := 0
	for _, block := range mainImpl(s).Blocks() {
		n += block.Len()
	}
	return n
}

func assertValid(t *testing.T, s *nir.Shader) {
	t.Helper()
	errs := nir.Validate(s)
	assert.Assert(t, errs == nil, "validation errors: %v\n%s", errs, s)
}

// run executes s with the given inputs and returns its outputs.
func run(s *nir.Shader, inputs map[int][4]uint64) map[int][4]uint64 {
	st := interp.NewState()
	for slot, v := range inputs {
		st.Inputs[slot] = v
	}
	interp.Run(mainImpl(s), st)
	return st.Outputs
}

func f32(v float32) uint64 { return uint64(math.Float32bits(v)) }
func f64(v float64) uint64 { return math.Float64bits(v) }

// ulps counts representable doubles between a and b, treating ±0 as equal.
func ulps(a, b float64) uint64 {
	oa, ob := ordered(a), ordered(b)
	if oa > ob {
		return uint64(oa - ob)
	}
	return uint64(ob - oa)
}

func ordered(f float64) int64 {
	b := int64(math.Float64bits(f))
	if b < 0 {
		return math.MinInt64 - b
	}
	return b
}
