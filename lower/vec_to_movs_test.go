package lower

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/gogpu/shaderlower/interp"
	"github.com/gogpu/shaderlower/nir"
	"github.com/gogpu/shaderlower/samples"
)

// writesTo returns the ALU instructions writing reg, in program order.
func writesTo(s *nir.Shader, reg *nir.Register) []*nir.ALUInstr {
	var out []*nir.ALUInstr
	for _, block := range mainImpl(s).Blocks() {
		for _, instr := range block.Instrs() {
			if alu, ok := instr.(*nir.ALUInstr); ok && !alu.Dest.Dest.IsSSA() && alu.Dest.Dest.Reg.Reg == reg {
				out = append(out, alu)
			}
		}
	}
	return out
}

// assertPartition checks that the writes to reg cover mask exactly once.
func assertPartition(t *testing.T, writes []*nir.ALUInstr, mask uint8) {
	t.Helper()
	var seen uint8
	for _, w := range writes {
		assert.Check(t, seen&w.Dest.WriteMask == 0, "channel written twice by %s", nir.InstrString(w))
		seen |= w.Dest.WriteMask
	}
	assert.Check(t, is.Equal(seen, mask))
}

func TestLowerVecToMovs_SelfOverwrite(t *testing.T) {
	s, r := samples.VecSelfOverwrite()
	assert.Assert(t, LowerVecToMovs(s))
	assertValid(t, s)
	assert.Check(t, is.Equal(countOps(s, nir.OpVec2, nir.OpVec3, nir.OpVec4), 0))

	writes := writesTo(s, r)
	assertPartition(t, writes, 0xf)

	// The move reading R.y must come before anything overwrites R.
	first := writes[0]
	assert.Check(t, is.Equal(first.Dest.WriteMask, uint8(0x1)))
	assert.Check(t, first.Srcs[0].Src.Reg.Reg == r)
	assert.Check(t, is.Equal(first.Srcs[0].Swizzle[0], uint8(1)))

	st := interp.NewState()
	st.SetReg(r, f32(1), f32(2), f32(3), f32(4))
	interp.Run(mainImpl(s), st)
	assert.DeepEqual(t, st.Reg(r), []uint64{f32(2), f32(5), f32(6), f32(7)})
}

func TestLowerVecToMovs_Coalesce(t *testing.T) {
	s, dst := samples.VecCoalesce()
	assert.Assert(t, LowerVecToMovs(s))
	assertValid(t, s)

	want := strings.Join([]string{
		"shader: vec_coalesce",
		"",
		"impl main {",
		"\tdecl_reg vec4 32 b",
		"\tdecl_reg vec3 32 dst",
		"\tblock block_0:",
		"\t/* preds: */",
		"\tvec4 32 ssa_0 = load_input () (base=0)",
		"\tvec4 32 ssa_1 = load_input () (base=1)",
		"\tb = load_input () (base=2)",
		"\tdst.xy = fadd ssa_0.xy, ssa_1.xy",
		"\tdst.z = imov b.z",
		"\tstore_output (dst) (base=0)",
		"\t/* succs: */",
		"}",
		"",
	}, "\n")
	if diff := cmp.Diff(want, s.String()); diff != "" {
		t.Errorf("dump mismatch (-want +got):\n%s", diff)
	}
	assertPartition(t, writesTo(s, dst), 0x7)
}

func TestLowerVecToMovs_PreservesResults(t *testing.T) {
	inputs := map[int][4]uint64{
		0: {f32(1), f32(2), f32(3), f32(4)},
		1: {f32(10), f32(20), f32(30), f32(40)},
		2: {f32(-1), f32(-2), f32(-3), f32(-4)},
	}
	before, _ := samples.VecCoalesce()
	after, _ := samples.VecCoalesce()
	assert.Assert(t, LowerVecToMovs(after))

	got := run(after, inputs)
	assert.DeepEqual(t, got, run(before, inputs))
	assert.DeepEqual(t, got[0], [4]uint64{f32(11), f32(22), f32(-3), 0})
}

func TestLowerVecToMovs_Idempotent(t *testing.T) {
	s, _ := samples.VecCoalesce()
	assert.Assert(t, LowerVecToMovs(s))
	dump := s.String()

	assert.Check(t, !LowerVecToMovs(s))
	assert.Check(t, is.Equal(s.String(), dump))
}

func TestLowerVecToMovs_SSADestPanics(t *testing.T) {
	s := nir.NewShader("ssa")
	b := nir.NewBuilder(s.AddFunction("main").CreateImpl())
	x := b.ImmFloat(1)
	b.Vec(x, x)

	defer func() {
		assert.Check(t, recover() != nil, "expected panic on an SSA vector")
	}()
	LowerVecToMovs(s)
}

// buildVec emits a vecN writing the mask channels of dst.
func buildVec(b *nir.Builder, dst *nir.Register, mask uint8, srcs ...nir.ALUSrc) *nir.ALUInstr {
	vec := nir.NewALU(nir.VecOp(len(srcs)))
	copy(vec.Srcs, srcs)
	vec.Dest = nir.ALUDest{Dest: nir.DestForReg(dst), WriteMask: mask}
	b.Insert(vec)
	return vec
}

func regWrite(b *nir.Builder, op nir.Op, dst *nir.Register, mask uint8, srcs ...nir.Src) *nir.ALUInstr {
	alu := nir.NewALU(op)
	for i, s := range srcs {
		alu.Srcs[i].Src = s
	}
	alu.Dest = nir.ALUDest{Dest: nir.DestForReg(dst), WriteMask: mask}
	b.Insert(alu)
	return alu
}

func lane(src nir.Src, c uint8) nir.ALUSrc {
	return nir.ALUSrc{Src: src, Swizzle: [4]uint8{c, c, c, c}}
}

func TestLowerVecToMovs_SkipsUnsafeCoalescing(t *testing.T) {
	tests := []struct {
		name  string
		build func(impl *nir.Impl, b *nir.Builder) (*nir.Register, *nir.ALUInstr)
	}{
		{
			name: "source overwritten before vec",
			build: func(impl *nir.Impl, b *nir.Builder) (*nir.Register, *nir.ALUInstr) {
				tmp := impl.NewRegister(2, 32)
				a := impl.NewRegister(2, 32)
				dst := impl.NewRegister(2, 32)
				in := nir.SrcForSSA(b.LoadInput(0, 2, 32))
				regWrite(b, nir.OpIMov, tmp, 0x3, in)
				add := regWrite(b, nir.OpFAdd, a, 0x3, nir.SrcForReg(tmp), nir.SrcForReg(tmp))
				regWrite(b, nir.OpFNeg, tmp, 0x3, nir.SrcForReg(tmp))
				buildVec(b, dst, 0x3, lane(nir.SrcForReg(a), 0), lane(nir.SrcForReg(a), 1))
				b.StoreOutput(0, nir.SrcForReg(dst))
				b.StoreOutput(1, nir.SrcForReg(tmp))
				return a, add
			},
		},
		{
			name: "temporary read elsewhere",
			build: func(impl *nir.Impl, b *nir.Builder) (*nir.Register, *nir.ALUInstr) {
				a := impl.NewRegister(2, 32)
				dst := impl.NewRegister(2, 32)
				in := nir.SrcForSSA(b.LoadInput(0, 2, 32))
				add := regWrite(b, nir.OpFAdd, a, 0x3, in, in)
				buildVec(b, dst, 0x3, lane(nir.SrcForReg(a), 1), lane(nir.SrcForReg(a), 0))
				b.StoreOutput(0, nir.SrcForReg(dst))
				b.StoreOutput(1, nir.SrcForReg(a))
				return a, add
			},
		},
		{
			name: "definition reads the vector destination",
			build: func(impl *nir.Impl, b *nir.Builder) (*nir.Register, *nir.ALUInstr) {
				a := impl.NewRegister(2, 32)
				dst := impl.NewRegister(2, 32)
				in := nir.SrcForSSA(b.LoadInput(0, 2, 32))
				regWrite(b, nir.OpIMov, dst, 0x3, in)
				add := regWrite(b, nir.OpFAdd, a, 0x3, nir.SrcForReg(dst), in)
				buildVec(b, dst, 0x3, lane(in, 1), lane(nir.SrcForReg(a), 0))
				b.StoreOutput(0, nir.SrcForReg(dst))
				return a, add
			},
		},
		{
			name: "plain move",
			build: func(impl *nir.Impl, b *nir.Builder) (*nir.Register, *nir.ALUInstr) {
				a := impl.NewRegister(2, 32)
				dst := impl.NewRegister(2, 32)
				in := nir.SrcForSSA(b.LoadInput(0, 2, 32))
				mov := regWrite(b, nir.OpIMov, a, 0x3, in)
				buildVec(b, dst, 0x3, lane(nir.SrcForReg(a), 1), lane(nir.SrcForReg(a), 0))
				b.StoreOutput(0, nir.SrcForReg(dst))
				return a, mov
			},
		},
		{
			name: "definition in another block",
			build: func(impl *nir.Impl, b *nir.Builder) (*nir.Register, *nir.ALUInstr) {
				a := impl.NewRegister(2, 32)
				dst := impl.NewRegister(2, 32)
				x := b.LoadInput(0, 2, 32)
				in := nir.SrcForSSA(x)
				add := regWrite(b, nir.OpFAdd, a, 0x3, in, in)
				n := b.PushIf(b.FLt(b.Channel(x, 0), b.ImmFloat(0)))
				b.PopIf(n)
				buildVec(b, dst, 0x3, lane(nir.SrcForReg(a), 1), lane(nir.SrcForReg(a), 0))
				b.StoreOutput(0, nir.SrcForReg(dst))
				return a, add
			},
		},
	}

	inputs := map[int][4]uint64{0: {f32(3), f32(5)}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			build := func() (*nir.Shader, *nir.Register, *nir.ALUInstr) {
				s := nir.NewShader(tt.name)
				impl := s.AddFunction("main").CreateImpl()
				a, def := tt.build(impl, nir.NewBuilder(impl))
				return s, a, def
			}
			before, _, _ := build()
			s, a, def := build()
			assertValid(t, s)

			assert.Assert(t, LowerVecToMovs(s))
			assertValid(t, s)
			assert.Check(t, def.Block() != nil, "definition should stay in place")
			assert.Check(t, !a.Removed(), "temporary register should survive")
			assert.DeepEqual(t, run(s, inputs), run(before, inputs))
		})
	}
}

func TestLowerVecToMovs_DotProduct(t *testing.T) {
	build := func() (*nir.Shader, *nir.Register) {
		s := nir.NewShader("dot")
		impl := s.AddFunction("main").CreateImpl()
		b := nir.NewBuilder(impl)

		x := nir.SrcForSSA(b.LoadInput(0, 2, 32))
		y := nir.SrcForSSA(b.LoadInput(1, 2, 32))
		a := impl.NewRegister(1, 32)
		dst := impl.NewRegister(3, 32)
		dot := nir.NewALU(nir.OpFDot2)
		dot.Srcs[0].Src = x
		dot.Srcs[1].Src = y
		dot.Srcs[1].Swizzle = [4]uint8{1, 0, 0, 0}
		dot.Dest = nir.ALUDest{Dest: nir.DestForReg(a), WriteMask: 0x1}
		b.Insert(dot)
		buildVec(b, dst, 0x7, lane(nir.SrcForReg(a), 0), lane(x, 1), lane(nir.SrcForReg(a), 0))
		b.StoreOutput(0, nir.SrcForReg(dst))
		return s, a
	}

	before, _ := build()
	s, a := build()
	assert.Assert(t, LowerVecToMovs(s))
	assertValid(t, s)
	assert.Check(t, a.Removed())
	assert.Check(t, is.Equal(countOps(s, nir.OpFDot2), 1))

	inputs := map[int][4]uint64{0: {f32(1), f32(2)}, 1: {f32(3), f32(4)}}
	got := run(s, inputs)
	assert.DeepEqual(t, got, run(before, inputs))
	// x.x*y.y + x.y*y.x = 4 + 6
	assert.DeepEqual(t, got[0], [4]uint64{f32(10), f32(2), f32(10), 0})
}

func TestLowerVecToMovs_GroupsEqualSources(t *testing.T) {
	s := nir.NewShader("group")
	impl := s.AddFunction("main").CreateImpl()
	b := nir.NewBuilder(impl)
	src := impl.NewRegister(4, 32)
	dst := impl.NewRegister(4, 32)
	in := b.LoadInput(0, 4, 32)
	regWrite(b, nir.OpIMov, src, 0xf, nir.SrcForSSA(in))
	buildVec(b, dst, 0xb,
		lane(nir.SrcForReg(src), 3),
		lane(nir.SrcForReg(src), 2),
		lane(nir.SrcForSSA(in), 0),
		lane(nir.SrcForReg(src), 0),
	)

	assert.Assert(t, LowerVecToMovs(s))
	assertValid(t, s)

	writes := writesTo(s, dst)
	assertPartition(t, writes, 0xb)
	assert.Assert(t, is.Len(writes, 1))
	assert.Check(t, is.Equal(writes[0].Srcs[0].Swizzle[0], uint8(3)))
	assert.Check(t, is.Equal(writes[0].Srcs[0].Swizzle[1], uint8(2)))
	assert.Check(t, is.Equal(writes[0].Srcs[0].Swizzle[3], uint8(0)))
}
