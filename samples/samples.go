// Package samples builds small shaders that exercise the lowering passes.
// They stand in for front-end output in the CLI and in tests.
package samples

import (
	"fmt"
	"sort"

	"github.com/gogpu/shaderlower/nir"
)

// Sample is a named shader constructor.
type Sample struct {
	Name        string
	Description string
	Build       func() *nir.Shader
}

var registry = map[string]Sample{}

func register(s Sample) {
	if _, dup := registry[s.Name]; dup {
		panic(fmt.Sprintf("samples: duplicate sample %q", s.Name))
	}
	registry[s.Name] = s
}

// All returns every sample sorted by name.
func All() []Sample {
	out := make([]Sample, 0, len(registry))
	for _, s := range registry {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup finds a sample by name.
func Lookup(name string) (Sample, bool) {
	s, ok := registry[name]
	return s, ok
}

func init() {
	register(Sample{
		Name:        "vec_self_overwrite",
		Description: "vec4 R = (R.y, 5, 6, 7) reading its own destination",
		Build:       func() *nir.Shader { s, _ := VecSelfOverwrite(); return s },
	})
	register(Sample{
		Name:        "vec_coalesce",
		Description: "vec3 dst = (a.x, a.y, b.z) with a computed by a single fadd",
		Build:       func() *nir.Shader { s, _ := VecCoalesce(); return s },
	})
	register(Sample{
		Name:        "blend",
		Description: "double-precision floor/fract/rcp mixed with a vec4 store",
		Build:       Blend,
	})
	for _, op := range []nir.Op{
		nir.OpFRcp, nir.OpFSqrt, nir.OpFRsq, nir.OpFTrunc,
		nir.OpFFloor, nir.OpFCeil, nir.OpFFract, nir.OpFRoundEven,
	} {
		register(Sample{
			Name:        "double_" + op.String(),
			Description: fmt.Sprintf("%s on a 64-bit input, result stored to output 0", op),
			Build:       func() *nir.Shader { return DoubleOp(op, 1) },
		})
	}
}

// VecSelfOverwrite builds a register-form shader whose vec4 reads channel y
// of the register it writes. It returns the shader and that register.
func VecSelfOverwrite() (*nir.Shader, *nir.Register) {
	s := nir.NewShader("vec_self_overwrite")
	impl := s.AddFunction("main").CreateImpl()
	b := nir.NewBuilder(impl)

	r := impl.NewRegister(4, 32)
	r.Name = "R"

	vec := nir.NewALU(nir.OpVec4)
	vec.Srcs[0] = nir.ALUSrc{Src: nir.SrcForReg(r), Swizzle: [4]uint8{1, 1, 1, 1}}
	vec.Srcs[1] = nir.ALUSrc{Src: nir.SrcForSSA(b.ImmFloat(5))}
	vec.Srcs[2] = nir.ALUSrc{Src: nir.SrcForSSA(b.ImmFloat(6))}
	vec.Srcs[3] = nir.ALUSrc{Src: nir.SrcForSSA(b.ImmFloat(7))}
	vec.Dest = nir.ALUDest{Dest: nir.DestForReg(r), WriteMask: 0xf}
	b.Insert(vec)

	b.StoreOutput(0, nir.SrcForReg(r))
	return s, r
}

// VecCoalesce builds vec3 dst = (a.x, a.y, b.z) where a is written only by
// an fadd of two inputs and b is an input copied into a register. It returns
// the shader and dst.
func VecCoalesce() (*nir.Shader, *nir.Register) {
	s := nir.NewShader("vec_coalesce")
	impl := s.AddFunction("main").CreateImpl()
	b := nir.NewBuilder(impl)

	x := b.LoadInput(0, 4, 32)
	y := b.LoadInput(1, 4, 32)

	a := impl.NewRegister(4, 32)
	a.Name = "a"
	add := nir.NewALU(nir.OpFAdd)
	add.Srcs[0].Src = nir.SrcForSSA(x)
	add.Srcs[1].Src = nir.SrcForSSA(y)
	add.Dest = nir.ALUDest{Dest: nir.DestForReg(a), WriteMask: 0xf}
	b.Insert(add)

	src := impl.NewRegister(4, 32)
	src.Name = "b"
	in := nir.NewIntrinsic(nir.IntrinsicLoadInput)
	in.Base = 2
	in.NumComponents = 4
	in.Dest = nir.DestForReg(src)
	b.Insert(in)

	dst := impl.NewRegister(3, 32)
	dst.Name = "dst"
	vec := nir.NewALU(nir.OpVec3)
	vec.Srcs[0] = nir.ALUSrc{Src: nir.SrcForReg(a), Swizzle: [4]uint8{0, 0, 0, 0}}
	vec.Srcs[1] = nir.ALUSrc{Src: nir.SrcForReg(a), Swizzle: [4]uint8{1, 1, 1, 1}}
	vec.Srcs[2] = nir.ALUSrc{Src: nir.SrcForReg(src), Swizzle: [4]uint8{2, 2, 2, 2}}
	vec.Dest = nir.ALUDest{Dest: nir.DestForReg(dst), WriteMask: 0x7}
	b.Insert(vec)

	b.StoreOutput(0, nir.SrcForReg(dst))
	return s, dst
}

// DoubleOp builds an SSA shader computing op on an n-component 64-bit input
// read from slot 0 and storing the result to output 0.
func DoubleOp(op nir.Op, n uint8) *nir.Shader {
	s := nir.NewShader("double_" + op.String())
	impl := s.AddFunction("main").CreateImpl()
	b := nir.NewBuilder(impl)

	x := b.LoadInput(0, n, 64)
	b.StoreOutput(0, nir.SrcForSSA(b.BuildALU(op, x)))
	return s
}

// Blend builds an SSA shader that mixes double lowering with vector
// construction:
//
//	d   = input0.x (double)
//	f   = floor(d) + fract(d) * rcp(d)
//	out = vec4(d2f(f), in1.y, in1.x, 1.0)
func Blend() *nir.Shader {
	s := nir.NewShader("blend")
	impl := s.AddFunction("main").CreateImpl()
	b := nir.NewBuilder(impl)

	d := b.LoadInput(0, 1, 64)
	v := b.LoadInput(1, 2, 32)

	f := b.FAdd(b.FFloor(d), b.FMul(b.FFract(d), b.FRcp(d)))
	out := b.Vec(b.D2F(f), b.Channel(v, 1), b.Channel(v, 0), b.ImmFloat(1))
	b.StoreOutput(0, nir.SrcForSSA(out))
	return s
}
