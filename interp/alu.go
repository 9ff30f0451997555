package interp

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/gogpu/shaderlower/nir"
)

const boolTrue = 0xffffffff

func (m *machine) alu(a *nir.ALUInstr) {
	info := a.Op.Info()
	srcs := make([][4]uint64, len(a.Srcs))
	for i := range a.Srcs {
		srcs[i] = m.src(&a.Srcs[i].Src)
	}

	bitSize := a.Dest.Dest.BitSize()
	if info.OutputType.Sized() {
		for i := range a.Srcs {
			if !info.InputTypes[i].Sized() {
				bitSize = a.Srcs[i].Src.BitSize()
				break
			}
		}
	}

	var out [4]uint64
	if info.OutputSize == 0 {
		for c := uint8(0); c < a.Dest.Dest.NumComponents(); c++ {
			if a.Dest.WriteMask&(1<<c) == 0 {
				continue
			}
			var args [4]uint64
			for i := range a.Srcs {
				args[i] = srcs[i][a.Srcs[i].Swizzle[c]]
			}
			out[c] = evalComponent(a.Op, bitSize, args)
		}
	} else {
		inputs := make([][4]uint64, len(a.Srcs))
		for i := range a.Srcs {
			for c := uint8(0); c < info.InputSizes[i]; c++ {
				inputs[i][c] = srcs[i][a.Srcs[i].Swizzle[c]]
			}
		}
		res := evalHorizontal(a.Op, bitSize, inputs)
		for c := uint8(0); c < 4; c++ {
			if c < info.OutputSize {
				out[c] = res[c]
			} else {
				// Single-channel results broadcast into wider writes.
				out[c] = res[0]
			}
		}
	}
	m.write(&a.Dest.Dest, a.Dest.WriteMask, out)
}

func mask(v uint64, bitSize uint8) uint64 {
	if bitSize >= 64 {
		return v
	}
	return v & (uint64(1)<<bitSize - 1)
}

func toFloat(v uint64, bitSize uint8) float64 {
	switch bitSize {
	case 32:
		return float64(math.Float32frombits(uint32(v)))
	case 64:
		return math.Float64frombits(v)
	}
	panic(fmt.Sprintf("interp: unsupported float bit size %d", bitSize))
}

func fromFloat(f float64, bitSize uint8) uint64 {
	switch bitSize {
	case 32:
		return uint64(math.Float32bits(float32(f)))
	case 64:
		return math.Float64bits(f)
	}
	panic(fmt.Sprintf("interp: unsupported float bit size %d", bitSize))
}

func toInt(v uint64, bitSize uint8) int64 {
	if bitSize >= 64 {
		return int64(v)
	}
	shift := 64 - bitSize
	return int64(v<<shift) >> shift
}

func fromBool(b bool) uint64 {
	if b {
		return boolTrue
	}
	return 0
}

func signBit(bitSize uint8) uint64 {
	return uint64(1) << (bitSize - 1)
}

//nolint:gocyclo,cyclop // One case per opcode.
func evalComponent(op nir.Op, bitSize uint8, a [4]uint64) uint64 {
	f := func(i int) float64 { return toFloat(a[i], bitSize) }
	ret := func(x float64) uint64 { return fromFloat(x, bitSize) }
	i := func(k int) int64 { return toInt(a[k], bitSize) }
	u := func(k int) uint64 { return mask(a[k], bitSize) }

	switch op {
	case nir.OpFMov, nir.OpIMov:
		return u(0)

	case nir.OpFAdd:
		return ret(f(0) + f(1))
	case nir.OpFSub:
		return ret(f(0) - f(1))
	case nir.OpFMul:
		return ret(f(0) * f(1))
	case nir.OpFFma:
		return ret(math.FMA(f(0), f(1), f(2)))
	case nir.OpFNeg:
		return u(0) ^ signBit(bitSize)
	case nir.OpFAbs:
		return u(0) &^ signBit(bitSize)
	case nir.OpFMin:
		return ret(math.Min(f(0), f(1)))
	case nir.OpFMax:
		return ret(math.Max(f(0), f(1)))
	case nir.OpFRcp:
		if bitSize == 32 {
			return uint64(math.Float32bits(1 / float32(f(0))))
		}
		return ret(1 / f(0))
	case nir.OpFRsq:
		return ret(1 / math.Sqrt(f(0)))
	case nir.OpFSqrt:
		return ret(math.Sqrt(f(0)))
	case nir.OpFTrunc:
		return ret(math.Trunc(f(0)))
	case nir.OpFFloor:
		return ret(math.Floor(f(0)))
	case nir.OpFCeil:
		return ret(math.Ceil(f(0)))
	case nir.OpFFract:
		return ret(f(0) - math.Floor(f(0)))
	case nir.OpFRoundEven:
		return ret(math.RoundToEven(f(0)))

	case nir.OpFEq:
		return fromBool(f(0) == f(1))
	case nir.OpFNe:
		return fromBool(f(0) != f(1))
	case nir.OpFLt:
		return fromBool(f(0) < f(1))
	case nir.OpFGe:
		return fromBool(f(0) >= f(1))
	case nir.OpIEq:
		return fromBool(u(0) == u(1))
	case nir.OpINe:
		return fromBool(u(0) != u(1))
	case nir.OpILt:
		return fromBool(i(0) < i(1))
	case nir.OpIGe:
		return fromBool(i(0) >= i(1))
	case nir.OpULt:
		return fromBool(u(0) < u(1))
	case nir.OpUGe:
		return fromBool(u(0) >= u(1))

	case nir.OpIAdd:
		return mask(a[0]+a[1], bitSize)
	case nir.OpISub:
		return mask(a[0]-a[1], bitSize)
	case nir.OpIMul:
		return mask(a[0]*a[1], bitSize)
	case nir.OpINeg:
		return mask(-a[0], bitSize)
	case nir.OpIAnd:
		return u(0) & u(1)
	case nir.OpIOr:
		return u(0) | u(1)
	case nir.OpIXor:
		return u(0) ^ u(1)
	case nir.OpINot:
		return mask(^a[0], bitSize)
	case nir.OpIShl:
		return mask(a[0]<<(a[1]&uint64(bitSize-1)), bitSize)
	case nir.OpIShr:
		return mask(uint64(i(0)>>(a[1]&uint64(bitSize-1))), bitSize)
	case nir.OpUShr:
		return u(0) >> (a[1] & uint64(bitSize-1))
	case nir.OpBfi:
		m, insert, base := uint32(a[0]), uint32(a[1]), uint32(a[2])
		if m == 0 {
			return uint64(base)
		}
		shift := bits.TrailingZeros32(m)
		return uint64((base &^ m) | ((insert << shift) & m))
	case nir.OpUBitfieldExtract:
		value, offset, count := uint32(a[0]), int32(a[1]), int32(a[2])
		if count == 0 {
			return 0
		}
		if count < 0 || offset < 0 || offset+count > 32 {
			panic(fmt.Sprintf("interp: ubitfield_extract(%d, %d) out of range", offset, count))
		}
		return uint64(value>>uint(offset)) & (uint64(1)<<uint(count) - 1)

	case nir.OpBcsel:
		if uint32(a[0]) != 0 {
			return u(1)
		}
		return u(2)

	case nir.OpF2D:
		return math.Float64bits(toFloat(a[0], 32))
	case nir.OpD2F:
		return fromFloat(toFloat(a[0], 64), 32)
	case nir.OpI2F:
		return fromFloat(float64(int32(a[0])), 32)
	case nir.OpF2I:
		return uint64(uint32(int32(toFloat(a[0], 32))))
	case nir.OpU2F:
		return fromFloat(float64(uint32(a[0])), 32)

	case nir.OpPackDouble2x32Split:
		return uint64(uint32(a[0])) | uint64(uint32(a[1]))<<32
	case nir.OpUnpackDouble2x32SplitX:
		return a[0] & 0xffffffff
	case nir.OpUnpackDouble2x32SplitY:
		return a[0] >> 32
	}
	panic(fmt.Sprintf("interp: %s is not a per-component op", op))
}

func evalHorizontal(op nir.Op, bitSize uint8, in [][4]uint64) [4]uint64 {
	var out [4]uint64
	switch op {
	case nir.OpVec2, nir.OpVec3, nir.OpVec4:
		for i := range in {
			out[i] = in[i][0]
		}
	case nir.OpFDot2, nir.OpFDot3, nir.OpFDot4:
		n := int(op.Info().InputSizes[0])
		sum := 0.0
		for c := 0; c < n; c++ {
			sum += toFloat(in[0][c], bitSize) * toFloat(in[1][c], bitSize)
			sum = toFloat(fromFloat(sum, bitSize), bitSize)
		}
		out[0] = fromFloat(sum, bitSize)
	case nir.OpPackDouble2x32:
		out[0] = uint64(uint32(in[0][0])) | uint64(uint32(in[0][1]))<<32
	case nir.OpUnpackDouble2x32:
		out[0] = in[0][0] & 0xffffffff
		out[1] = in[0][0] >> 32
	default:
		panic(fmt.Sprintf("interp: %s is not a horizontal op", op))
	}
	return out
}
