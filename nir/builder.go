package nir

import (
	"fmt"
	"math"
)

// Builder emits instructions at Cursor and advances the cursor past each
// instruction it inserts.
type Builder struct {
	Impl   *Impl
	Cursor Cursor
}

// NewBuilder returns a builder positioned at the end of impl.
func NewBuilder(impl *Impl) *Builder {
	return &Builder{Impl: impl, Cursor: AfterCFList(impl.Body)}
}

// Insert places instr at the cursor and moves the cursor after it.
func (b *Builder) Insert(instr Instr) {
	InsertInstr(b.Cursor, instr)
	b.Cursor = AfterInstr(instr)
}

// BuildALU emits op applied to srcs and returns the new value. The result
// width follows the op table: per-component ops take the widest source, and
// unsized outputs take the bit size of the first unsized input.
func (b *Builder) BuildALU(op Op, srcs ...*SSADef) *SSADef {
	info := &OpInfos[op]
	if len(srcs) != info.NumInputs {
		panic(fmt.Sprintf("nir: %s takes %d sources, got %d", info.Name, info.NumInputs, len(srcs)))
	}

	numComponents := info.OutputSize
	if numComponents == 0 {
		for i, s := range srcs {
			if info.InputSizes[i] == 0 && s.NumComponents > numComponents {
				numComponents = s.NumComponents
			}
		}
	}

	bitSize := info.OutputType.BitSize
	if bitSize == 0 {
		for i, s := range srcs {
			if !info.InputTypes[i].Sized() {
				bitSize = s.BitSize
				break
			}
		}
	}

	instr := NewALU(op)
	for i, s := range srcs {
		instr.Srcs[i].Src = SrcForSSA(s)
		for c := uint8(0); c < 4; c++ {
			switch {
			case info.InputSizes[i] == 0 && s.NumComponents == 1:
				// Scalars broadcast across per-component ops.
				instr.Srcs[i].Swizzle[c] = 0
			case c < s.NumComponents:
				instr.Srcs[i].Swizzle[c] = c
			default:
				instr.Srcs[i].Swizzle[c] = s.NumComponents - 1
			}
		}
	}
	instr.Dest.WriteMask = uint8(1)<<numComponents - 1
	b.Impl.NewSSADest(&instr.Dest.Dest, numComponents, bitSize)
	b.Insert(instr)
	return instr.Dest.Dest.SSA
}

// MovALU copies an ALU operand into a fresh SSA value of numComponents
// channels, preserving its swizzle.
func (b *Builder) MovALU(src ALUSrc, numComponents uint8) *SSADef {
	mov := NewALU(OpIMov)
	mov.Srcs[0] = src.Copy()
	mov.Dest.WriteMask = uint8(1)<<numComponents - 1
	b.Impl.NewSSADest(&mov.Dest.Dest, numComponents, src.Src.BitSize())
	b.Insert(mov)
	return mov.Dest.Dest.SSA
}

// Swizzle selects channels of def.
func (b *Builder) Swizzle(def *SSADef, channels ...uint8) *SSADef {
	if len(channels) == 0 || len(channels) > 4 {
		panic("nir: swizzle needs one to four channels")
	}
	src := ALUSrc{Src: SrcForSSA(def)}
	for i, c := range channels {
		if c >= def.NumComponents {
			panic(fmt.Sprintf("nir: swizzle channel %d out of range for %s", c, def))
		}
		src.Swizzle[i] = c
	}
	return b.MovALU(src, uint8(len(channels)))
}

// Channel extracts a single channel of def.
func (b *Builder) Channel(def *SSADef, c uint8) *SSADef {
	return b.Swizzle(def, c)
}

// Vec packs scalars into a vector. A single scalar is returned as is.
func (b *Builder) Vec(scalars ...*SSADef) *SSADef {
	if len(scalars) == 1 {
		return scalars[0]
	}
	return b.BuildALU(VecOp(len(scalars)), scalars...)
}

// ---------------------------------------------------------------------------
// Immediates
// ---------------------------------------------------------------------------

// Imm emits a constant with the given raw component bits.
func (b *Builder) Imm(bitSize uint8, values ...uint64) *SSADef {
	lc := NewLoadConst()
	copy(lc.Value[:], values)
	b.Impl.NewSSADest(&lc.Dest, uint8(len(values)), bitSize)
	b.Insert(lc)
	return lc.Dest.SSA
}

// ImmInt emits a 32-bit signed constant.
func (b *Builder) ImmInt(v int32) *SSADef {
	return b.Imm(32, uint64(uint32(v)))
}

// ImmUint emits a 32-bit unsigned constant.
func (b *Builder) ImmUint(v uint32) *SSADef {
	return b.Imm(32, uint64(v))
}

// ImmFloat emits a 32-bit float constant.
func (b *Builder) ImmFloat(v float32) *SSADef {
	return b.Imm(32, uint64(math.Float32bits(v)))
}

// ImmDouble emits a 64-bit float constant.
func (b *Builder) ImmDouble(v float64) *SSADef {
	return b.Imm(64, math.Float64bits(v))
}

// Imm64 emits a 64-bit constant from raw bits.
func (b *Builder) Imm64(bits uint64) *SSADef {
	return b.Imm(64, bits)
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

// PushIf inserts an if on cond at the cursor and moves the cursor into the
// then branch.
func (b *Builder) PushIf(cond *SSADef) *If {
	n := b.Impl.NewIf(SrcForSSA(cond))
	InsertIf(b.Cursor, n)
	b.Cursor = AfterCFList(n.Then)
	return n
}

// PushElse moves the cursor into the else branch of n.
func (b *Builder) PushElse(n *If) {
	b.Cursor = AfterCFList(n.Else)
}

// PopIf moves the cursor after n.
func (b *Builder) PopIf(n *If) {
	b.Cursor = AfterCFNode(n)
}

// IfPhi merges the values computed by the two branches of n. The cursor
// must be right after n.
func (b *Builder) IfPhi(n *If, thenDef, elseDef *SSADef) *SSADef {
	if thenDef.NumComponents != elseDef.NumComponents || thenDef.BitSize != elseDef.BitSize {
		panic("nir: phi sources disagree in shape")
	}
	phi := NewPhi()
	phi.AddSrc(n.Then.LastBlock(), SrcForSSA(thenDef))
	phi.AddSrc(n.Else.LastBlock(), SrcForSSA(elseDef))
	b.Impl.NewSSADest(&phi.Dest, thenDef.NumComponents, thenDef.BitSize)
	b.Insert(phi)
	return phi.Dest.SSA
}

// ---------------------------------------------------------------------------
// Op helpers
// ---------------------------------------------------------------------------

func (b *Builder) FMov(x *SSADef) *SSADef { return b.BuildALU(OpFMov, x) }
func (b *Builder) IMov(x *SSADef) *SSADef { return b.BuildALU(OpIMov, x) }
func (b *Builder) FAdd(x, y *SSADef) *SSADef { return b.BuildALU(OpFAdd, x, y) }
func (b *Builder) FSub(x, y *SSADef) *SSADef { return b.BuildALU(OpFSub, x, y) }
func (b *Builder) FMul(x, y *SSADef) *SSADef { return b.BuildALU(OpFMul, x, y) }
func (b *Builder) FFma(x, y, z *SSADef) *SSADef { return b.BuildALU(OpFFma, x, y, z) }
func (b *Builder) FNeg(x *SSADef) *SSADef { return b.BuildALU(OpFNeg, x) }
func (b *Builder) FAbs(x *SSADef) *SSADef { return b.BuildALU(OpFAbs, x) }
func (b *Builder) FRcp(x *SSADef) *SSADef { return b.BuildALU(OpFRcp, x) }
func (b *Builder) FRsq(x *SSADef) *SSADef { return b.BuildALU(OpFRsq, x) }
func (b *Builder) FSqrt(x *SSADef) *SSADef { return b.BuildALU(OpFSqrt, x) }
func (b *Builder) FTrunc(x *SSADef) *SSADef { return b.BuildALU(OpFTrunc, x) }
func (b *Builder) FFloor(x *SSADef) *SSADef { return b.BuildALU(OpFFloor, x) }
func (b *Builder) FCeil(x *SSADef) *SSADef { return b.BuildALU(OpFCeil, x) }
func (b *Builder) FFract(x *SSADef) *SSADef { return b.BuildALU(OpFFract, x) }
func (b *Builder) FRoundEven(x *SSADef) *SSADef { return b.BuildALU(OpFRoundEven, x) }

func (b *Builder) FEq(x, y *SSADef) *SSADef { return b.BuildALU(OpFEq, x, y) }
func (b *Builder) FNe(x, y *SSADef) *SSADef { return b.BuildALU(OpFNe, x, y) }
func (b *Builder) FLt(x, y *SSADef) *SSADef { return b.BuildALU(OpFLt, x, y) }
func (b *Builder) FGe(x, y *SSADef) *SSADef { return b.BuildALU(OpFGe, x, y) }
func (b *Builder) ILt(x, y *SSADef) *SSADef { return b.BuildALU(OpILt, x, y) }
func (b *Builder) IGe(x, y *SSADef) *SSADef { return b.BuildALU(OpIGe, x, y) }

func (b *Builder) IAdd(x, y *SSADef) *SSADef { return b.BuildALU(OpIAdd, x, y) }
func (b *Builder) ISub(x, y *SSADef) *SSADef { return b.BuildALU(OpISub, x, y) }
func (b *Builder) IAnd(x, y *SSADef) *SSADef { return b.BuildALU(OpIAnd, x, y) }
func (b *Builder) IOr(x, y *SSADef) *SSADef { return b.BuildALU(OpIOr, x, y) }
func (b *Builder) IShl(x, y *SSADef) *SSADef { return b.BuildALU(OpIShl, x, y) }
func (b *Builder) IShr(x, y *SSADef) *SSADef { return b.BuildALU(OpIShr, x, y) }

func (b *Builder) Bfi(mask, insert, base *SSADef) *SSADef {
	return b.BuildALU(OpBfi, mask, insert, base)
}

func (b *Builder) UBitfieldExtract(value, offset, bits *SSADef) *SSADef {
	return b.BuildALU(OpUBitfieldExtract, value, offset, bits)
}

func (b *Builder) Bcsel(cond, x, y *SSADef) *SSADef { return b.BuildALU(OpBcsel, cond, x, y) }

func (b *Builder) F2D(x *SSADef) *SSADef { return b.BuildALU(OpF2D, x) }
func (b *Builder) D2F(x *SSADef) *SSADef { return b.BuildALU(OpD2F, x) }

func (b *Builder) PackDouble2x32Split(lo, hi *SSADef) *SSADef {
	return b.BuildALU(OpPackDouble2x32Split, lo, hi)
}

func (b *Builder) UnpackDouble2x32SplitX(x *SSADef) *SSADef {
	return b.BuildALU(OpUnpackDouble2x32SplitX, x)
}

func (b *Builder) UnpackDouble2x32SplitY(x *SSADef) *SSADef {
	return b.BuildALU(OpUnpackDouble2x32SplitY, x)
}

// ---------------------------------------------------------------------------
// Intrinsics
// ---------------------------------------------------------------------------

// LoadInput reads numComponents channels of input slot base.
func (b *Builder) LoadInput(base int, numComponents, bitSize uint8) *SSADef {
	in := NewIntrinsic(IntrinsicLoadInput)
	in.Base = base
	in.NumComponents = numComponents
	b.Impl.NewSSADest(&in.Dest, numComponents, bitSize)
	b.Insert(in)
	return in.Dest.SSA
}

// StoreOutput writes value to output slot base.
func (b *Builder) StoreOutput(base int, value Src) *IntrinsicInstr {
	in := NewIntrinsic(IntrinsicStoreOutput)
	in.Base = base
	in.NumComponents = value.NumComponents()
	in.Srcs[0] = value
	b.Insert(in)
	return in
}
