package lower

import (
	"fmt"
	"math"
	"strings"

	"github.com/gogpu/shaderlower/nir"
)

// DoubleOps selects which 64-bit float operations LowerDoubles emulates.
type DoubleOps uint32

// Lowerable double operations.
const (
	DRcp DoubleOps = 1 << iota
	DSqrt
	DRsq
	DTrunc
	DFloor
	DCeil
	DFract
	DRoundEven

	AllDoubleOps = DRcp | DSqrt | DRsq | DTrunc | DFloor | DCeil | DFract | DRoundEven
)

var doubleOpNames = []struct {
	flag DoubleOps
	name string
	op   nir.Op
}{
	{DRcp, "rcp", nir.OpFRcp},
	{DSqrt, "sqrt", nir.OpFSqrt},
	{DRsq, "rsq", nir.OpFRsq},
	{DTrunc, "trunc", nir.OpFTrunc},
	{DFloor, "floor", nir.OpFFloor},
	{DCeil, "ceil", nir.OpFCeil},
	{DFract, "fract", nir.OpFFract},
	{DRoundEven, "round_even", nir.OpFRoundEven},
}

func (o DoubleOps) String() string {
	if o == 0 {
		return "none"
	}
	if o == AllDoubleOps {
		return "all"
	}
	var names []string
	for _, e := range doubleOpNames {
		if o&e.flag != 0 {
			names = append(names, e.name)
		}
	}
	return strings.Join(names, ",")
}

// ParseDoubleOps parses a comma-separated list such as "rcp,floor". The
// words "all" and "none" select every operation and no operation.
func ParseDoubleOps(s string) (DoubleOps, error) {
	var ops DoubleOps
	for _, word := range strings.Split(s, ",") {
		word = strings.TrimSpace(word)
		switch word {
		case "", "none":
			continue
		case "all":
			ops |= AllDoubleOps
			continue
		}
		flag := doubleOpFlag(word)
		if flag == 0 {
			return 0, fmt.Errorf("unknown double operation %q", word)
		}
		ops |= flag
	}
	return ops, nil
}

func doubleOpFlag(name string) DoubleOps {
	for _, e := range doubleOpNames {
		if e.name == name {
			return e.flag
		}
	}
	return 0
}

// flagForOp returns the option bit controlling op, or zero.
func flagForOp(op nir.Op) DoubleOps {
	for _, e := range doubleOpNames {
		if e.op == op {
			return e.flag
		}
	}
	return 0
}

// LowerDoubles rewrites the 64-bit float operations selected by ops into
// sequences of 32-bit integer and float arithmetic, conversions, 64-bit
// add/mul/fma, selects and control flow. Every other instruction is left
// untouched.
func LowerDoubles(s *nir.Shader, ops DoubleOps) bool {
	progress := false
	nir.ForeachImpl(s, func(impl *nir.Impl) {
		impl.ForeachBlock(func(block *nir.Block) {
			block.ForeachInstrSafe(func(instr nir.Instr) {
				alu, ok := instr.(*nir.ALUInstr)
				if !ok {
					return
				}
				if lowerDoubleInstr(impl, alu, ops) {
					progress = true
				}
			})
		})
	})
	return progress
}

func lowerDoubleInstr(impl *nir.Impl, alu *nir.ALUInstr, ops DoubleOps) bool {
	flag := flagForOp(alu.Op)
	if flag == 0 || ops&flag == 0 {
		return false
	}
	if alu.Dest.Dest.BitSize() != 64 {
		return false
	}
	if !alu.Dest.Dest.IsSSA() {
		panic(fmt.Sprintf("lower_doubles: %s must define an SSA value", alu.Op))
	}

	l := &doubleLowering{
		b:   &nir.Builder{Impl: impl, Cursor: nir.BeforeInstr(alu)},
		ops: ops,
	}
	src := l.b.MovALU(alu.Srcs[0], alu.Dest.Dest.NumComponents())
	result := l.lower(alu.Op, src)

	alu.Dest.Dest.SSA.RewriteUses(nir.SrcForSSA(result))
	nir.RemoveInstr(alu)
	return true
}

type doubleLowering struct {
	b   *nir.Builder
	ops DoubleOps
}

func (l *doubleLowering) lower(op nir.Op, src *nir.SSADef) *nir.SSADef {
	switch op {
	case nir.OpFRcp:
		return l.rcp(src)
	case nir.OpFSqrt:
		return l.sqrtRsq(src, true)
	case nir.OpFRsq:
		return l.sqrtRsq(src, false)
	case nir.OpFTrunc:
		return l.perChannel(src, l.truncScalar)
	case nir.OpFFloor:
		return l.floor(src)
	case nir.OpFCeil:
		return l.ceil(src)
	case nir.OpFFract:
		return l.fract(src)
	case nir.OpFRoundEven:
		return l.perChannel(src, l.roundEvenScalar)
	}
	panic(fmt.Sprintf("lower_doubles: unhandled op %s", op))
}

// emit produces op(src), expanding it inline when it is itself lowered.
func (l *doubleLowering) emit(op nir.Op, src *nir.SSADef) *nir.SSADef {
	if l.ops&flagForOp(op) != 0 {
		return l.lower(op, src)
	}
	return l.b.BuildALU(op, src)
}

// perChannel applies fn to every channel of src separately. The expansions
// that branch test one channel per if.
func (l *doubleLowering) perChannel(src *nir.SSADef, fn func(*nir.SSADef) *nir.SSADef) *nir.SSADef {
	if src.NumComponents == 1 {
		return fn(src)
	}
	channels := make([]*nir.SSADef, src.NumComponents)
	for c := range channels {
		channels[c] = fn(l.b.Channel(src, uint8(c)))
	}
	return l.b.Vec(channels...)
}

// setExponent replaces the biased exponent bits of src with exp.
func (l *doubleLowering) setExponent(src, exp *nir.SSADef) *nir.SSADef {
	b := l.b
	lo := b.UnpackDouble2x32SplitX(src)
	hi := b.UnpackDouble2x32SplitY(src)

	// Bits 52-62 of the double are bits 20-30 of the high word.
	newHi := b.Bfi(b.ImmUint(0x7ff00000), exp, hi)
	return b.PackDouble2x32Split(lo, newHi)
}

// exponent returns the biased exponent of src.
func (l *doubleLowering) exponent(src *nir.SSADef) *nir.SSADef {
	b := l.b
	hi := b.UnpackDouble2x32SplitY(src)
	return b.UBitfieldExtract(hi, b.ImmInt(20), b.ImmInt(11))
}

// signedInf returns infinity with the sign of zero, which must be ±0.
func (l *doubleLowering) signedInf(zero *nir.SSADef) *nir.SSADef {
	b := l.b
	hi := b.UnpackDouble2x32SplitY(zero)
	infHi := b.IOr(b.ImmUint(0x7ff00000), hi)
	return b.PackDouble2x32Split(b.ImmUint(0), infHi)
}

// fixInvResult flushes res to zero when exp underflowed or src is infinite
// or NaN, and yields a signed infinity when src is zero. Signed zeros are
// not preserved in the flushed case.
func (l *doubleLowering) fixInvResult(res, src, exp *nir.SSADef) *nir.SSADef {
	b := l.b
	flush := b.IOr(
		b.IGe(b.ImmInt(0), exp),
		b.FEq(b.FAbs(src), b.ImmDouble(math.Inf(1))),
	)
	res = b.Bcsel(flush, b.ImmDouble(0), res)
	return b.Bcsel(b.FNe(src, b.ImmDouble(0)), res, l.signedInf(src))
}

func (l *doubleLowering) rcp(src *nir.SSADef) *nir.SSADef {
	b := l.b

	// Normalize to [1, 2) so the single-precision estimate cannot overflow.
	norm := l.setExponent(src, b.ImmInt(1023))
	ra := b.F2D(b.FRcp(b.D2F(norm)))

	newExp := b.ISub(l.exponent(ra), b.ISub(l.exponent(src), b.ImmInt(1023)))
	ra = l.setExponent(ra, newExp)

	// Two Newton-Raphson steps take the 24-bit estimate past 53 bits:
	// x' = x - x*(x*src - 1)
	minusOne := b.ImmDouble(-1)
	ra = b.FFma(b.FNeg(ra), b.FFma(ra, src, minusOne), ra)
	ra = b.FFma(b.FNeg(ra), b.FFma(ra, src, minusOne), ra)

	return l.fixInvResult(ra, src, newExp)
}

// sqrtRsq computes sqrt(src) or 1/sqrt(src) from a single-precision rsq
// estimate refined by one Goldschmidt step and one Newton-Raphson step:
//
//	h0 = .5 * y0, g0 = a * y0, r0 = .5 - h0*g0, h1 = h0*r0 + h0
//	sqrt:  g1 = g0*r0 + g0, r1 = a - g1*g1, g2 = h1*r1 + g1
//	rsq:   y1 = 2*h1, r1 = .5 - y1*(h1*a), y2 = y1*r1 + y1
func (l *doubleLowering) sqrtRsq(src *nir.SSADef, sqrt bool) *nir.SSADef {
	b := l.b

	// An odd exponent moves one factor of two into the mantissa so the
	// remaining exponent halves exactly.
	unbiased := b.ISub(l.exponent(src), b.ImmInt(1023))
	odd := b.IAnd(unbiased, b.ImmInt(1))
	half := b.IShr(unbiased, b.ImmInt(1))

	norm := l.setExponent(src, b.IAdd(b.ImmInt(1023), odd))
	ra := b.F2D(b.FRsq(b.D2F(norm)))
	newExp := b.ISub(l.exponent(ra), half)
	ra = l.setExponent(ra, newExp)

	oneHalf := b.ImmDouble(0.5)
	h0 := b.FMul(oneHalf, ra)
	g0 := b.FMul(src, ra)
	r0 := b.FFma(b.FNeg(h0), g0, oneHalf)
	h1 := b.FFma(h0, r0, h0)

	if sqrt {
		g1 := b.FFma(g0, r0, g0)
		r1 := b.FFma(b.FNeg(g1), g1, src)
		res := b.FFma(h1, r1, g1)

		// 0 and +inf map to themselves.
		special := b.IOr(
			b.FEq(src, b.ImmDouble(0)),
			b.FEq(src, b.ImmDouble(math.Inf(1))),
		)
		return b.Bcsel(special, src, res)
	}

	y1 := b.FMul(b.ImmDouble(2), h1)
	r1 := b.FFma(b.FNeg(y1), b.FMul(h1, src), oneHalf)
	res := b.FFma(y1, r1, y1)
	return l.fixInvResult(res, src, newExp)
}

// truncScalar clears the fraction bits of a scalar double. The mask of bits
// to keep depends on the unbiased exponent e:
//
//	e < 0        sign only
//	0 <= e < 53  sign, exponent and the top e mantissa bits
//	e >= 53      everything
//
// The middle case needs shifts that are only valid in that range, so it is
// computed under an if; the other two are a select on the else side.
func (l *doubleLowering) truncScalar(src *nir.SSADef) *nir.SSADef {
	b := l.b
	unbiased := b.ISub(l.exponent(src), b.ImmInt(1023))
	fracBits := b.ISub(b.ImmInt(52), unbiased)

	inRange := b.IAnd(
		b.IGe(unbiased, b.ImmInt(0)),
		b.ILt(unbiased, b.ImmInt(53)),
	)
	n := b.PushIf(inRange)

	ones := b.ImmUint(0xffffffff)
	keepLo := b.Bcsel(
		b.IGe(fracBits, b.ImmInt(32)),
		b.ImmUint(0),
		b.IShl(ones, fracBits),
	)
	keepHi := b.Bcsel(
		b.ILt(fracBits, b.ImmInt(33)),
		ones,
		b.IShl(ones, b.ISub(fracBits, b.ImmInt(32))),
	)
	thenMask := b.PackDouble2x32Split(keepLo, keepHi)

	b.PushElse(n)
	elseMask := b.Bcsel(
		b.ILt(unbiased, b.ImmInt(0)),
		b.Imm64(0x8000000000000000),
		b.Imm64(0xffffffffffffffff),
	)

	b.PopIf(n)
	mask := b.IfPhi(n, thenMask, elseMask)

	lo := b.IAnd(b.UnpackDouble2x32SplitX(src), b.UnpackDouble2x32SplitX(mask))
	hi := b.IAnd(b.UnpackDouble2x32SplitY(src), b.UnpackDouble2x32SplitY(mask))
	return b.PackDouble2x32Split(lo, hi)
}

// floor is trunc for x >= 0, x itself when x is integral, and trunc(x) - 1
// otherwise.
func (l *doubleLowering) floor(src *nir.SSADef) *nir.SSADef {
	b := l.b
	tr := l.emit(nir.OpFTrunc, src)
	zero := b.ImmDouble(0)
	return b.Bcsel(
		b.FGe(src, zero),
		tr,
		b.Bcsel(
			b.FNe(b.FSub(src, tr), zero),
			b.FSub(tr, b.ImmDouble(1)),
			src,
		),
	)
}

// ceil is trunc for x < 0 and -floor(-x) otherwise.
func (l *doubleLowering) ceil(src *nir.SSADef) *nir.SSADef {
	b := l.b
	tr := l.emit(nir.OpFTrunc, src)
	return b.Bcsel(
		b.FLt(src, b.ImmDouble(0)),
		tr,
		b.FNeg(l.emit(nir.OpFFloor, b.FNeg(src))),
	)
}

func (l *doubleLowering) fract(src *nir.SSADef) *nir.SSADef {
	return l.b.FSub(src, l.emit(nir.OpFFloor, src))
}

// roundEvenScalar rounds halfway cases to the even neighbour. Off a tie the
// result is floor(x + .5). On a tie, mod(|x|, 2) < 1 means trunc(x) is
// even; otherwise x is pushed away from zero by .5.
func (l *doubleLowering) roundEvenScalar(src *nir.SSADef) *nir.SSADef {
	b := l.b
	fract := l.emit(nir.OpFFract, src)

	n := b.PushIf(b.FNe(fract, b.ImmDouble(0.5)))
	thenDest := l.emit(nir.OpFFloor, b.FAdd(src, b.ImmDouble(0.5)))

	b.PushElse(n)
	// mod(|x|, 2) = |x| - 2*floor(|x| / 2)
	abs := b.FAbs(src)
	mod := b.FSub(abs, b.FMul(b.ImmDouble(2), l.emit(nir.OpFFloor, b.FMul(abs, b.ImmDouble(0.5)))))
	elseDest := b.Bcsel(
		b.FLt(mod, b.ImmDouble(1)),
		l.emit(nir.OpFTrunc, src),
		b.Bcsel(
			b.FGe(src, b.ImmDouble(0)),
			b.FAdd(src, b.ImmDouble(0.5)),
			b.FSub(src, b.ImmDouble(0.5)),
		),
	)

	b.PopIf(n)
	return b.IfPhi(n, thenDest, elseDest)
}
