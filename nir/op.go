package nir

// Op identifies an ALU operation.
type Op uint8

// ALU operations.
const (
	OpFMov Op = iota
	OpIMov
	OpVec2
	OpVec3
	OpVec4

	OpFAdd
	OpFSub
	OpFMul
	OpFFma
	OpFNeg
	OpFAbs
	OpFMin
	OpFMax
	OpFRcp
	OpFRsq
	OpFSqrt
	OpFTrunc
	OpFFloor
	OpFCeil
	OpFFract
	OpFRoundEven
	OpFDot2
	OpFDot3
	OpFDot4

	OpFEq
	OpFNe
	OpFLt
	OpFGe
	OpIEq
	OpINe
	OpILt
	OpIGe
	OpULt
	OpUGe

	OpIAdd
	OpISub
	OpIMul
	OpINeg
	OpIAnd
	OpIOr
	OpIXor
	OpINot
	OpIShl
	OpIShr
	OpUShr
	OpBfi
	OpUBitfieldExtract

	OpBcsel

	OpF2D
	OpD2F
	OpI2F
	OpF2I
	OpU2F

	OpPackDouble2x32
	OpUnpackDouble2x32
	OpPackDouble2x32Split
	OpUnpackDouble2x32SplitX
	OpUnpackDouble2x32SplitY

	NumOps
)

// BaseType is the interpretation of an ALU operand.
type BaseType uint8

// Base types.
const (
	BaseInvalid BaseType = iota
	BaseInt
	BaseUint
	BaseFloat
	BaseBool
)

// ALUType is an operand type. A zero BitSize means the operand takes the bit
// size of the instruction.
type ALUType struct {
	Base    BaseType
	BitSize uint8
}

// Sized reports whether the type has a fixed bit size.
func (t ALUType) Sized() bool {
	return t.BitSize != 0
}

var (
	tFloat   = ALUType{BaseFloat, 0}
	tFloat32 = ALUType{BaseFloat, 32}
	tFloat64 = ALUType{BaseFloat, 64}
	tInt     = ALUType{BaseInt, 0}
	tInt32   = ALUType{BaseInt, 32}
	tUint    = ALUType{BaseUint, 0}
	tUint32  = ALUType{BaseUint, 32}
	tUint64  = ALUType{BaseUint, 64}
	tBool32  = ALUType{BaseBool, 32}
)

// OpProps are algebraic properties of an operation.
type OpProps uint8

// Operation properties.
const (
	PropCommutative OpProps = 1 << iota
	PropAssociative
)

// OpInfo describes the shape of an ALU operation.
//
// OutputSize and InputSizes are component counts; zero means the operation
// is per-component and the count follows the destination.
type OpInfo struct {
	Name       string
	NumInputs  int
	OutputSize uint8
	OutputType ALUType
	InputSizes [4]uint8
	InputTypes [4]ALUType
	Props      OpProps
}

func unop(name string, out, in ALUType) OpInfo {
	return OpInfo{Name: name, NumInputs: 1, OutputType: out, InputTypes: [4]ALUType{in}}
}

func unopHoriz(name string, outSize uint8, out ALUType, inSize uint8, in ALUType) OpInfo {
	return OpInfo{
		Name:       name,
		NumInputs:  1,
		OutputSize: outSize,
		OutputType: out,
		InputSizes: [4]uint8{inSize},
		InputTypes: [4]ALUType{in},
	}
}

func binop(name string, out, in ALUType, props OpProps) OpInfo {
	return OpInfo{Name: name, NumInputs: 2, OutputType: out, InputTypes: [4]ALUType{in, in}, Props: props}
}

func binopConvert(name string, out, in0, in1 ALUType) OpInfo {
	return OpInfo{Name: name, NumInputs: 2, OutputType: out, InputTypes: [4]ALUType{in0, in1}}
}

func triop(name string, out, in0, in1, in2 ALUType) OpInfo {
	return OpInfo{Name: name, NumInputs: 3, OutputType: out, InputTypes: [4]ALUType{in0, in1, in2}}
}

func vec(name string, n uint8) OpInfo {
	info := OpInfo{Name: name, NumInputs: int(n), OutputSize: n, OutputType: tUint}
	for i := uint8(0); i < n; i++ {
		info.InputSizes[i] = 1
		info.InputTypes[i] = tUint
	}
	return info
}

func dot(name string, n uint8) OpInfo {
	return OpInfo{
		Name:       name,
		NumInputs:  2,
		OutputSize: 1,
		OutputType: tFloat,
		InputSizes: [4]uint8{n, n},
		InputTypes: [4]ALUType{tFloat, tFloat},
		Props:      PropCommutative,
	}
}

const commAssoc = PropCommutative | PropAssociative

// OpInfos is indexed by Op.
var OpInfos = [NumOps]OpInfo{
	OpFMov: unop("fmov", tFloat, tFloat),
	OpIMov: unop("imov", tInt, tInt),
	OpVec2: vec("vec2", 2),
	OpVec3: vec("vec3", 3),
	OpVec4: vec("vec4", 4),

	OpFAdd:       binop("fadd", tFloat, tFloat, commAssoc),
	OpFSub:       binop("fsub", tFloat, tFloat, 0),
	OpFMul:       binop("fmul", tFloat, tFloat, commAssoc),
	OpFFma:       triop("ffma", tFloat, tFloat, tFloat, tFloat),
	OpFNeg:       unop("fneg", tFloat, tFloat),
	OpFAbs:       unop("fabs", tFloat, tFloat),
	OpFMin:       binop("fmin", tFloat, tFloat, commAssoc),
	OpFMax:       binop("fmax", tFloat, tFloat, commAssoc),
	OpFRcp:       unop("frcp", tFloat, tFloat),
	OpFRsq:       unop("frsq", tFloat, tFloat),
	OpFSqrt:      unop("fsqrt", tFloat, tFloat),
	OpFTrunc:     unop("ftrunc", tFloat, tFloat),
	OpFFloor:     unop("ffloor", tFloat, tFloat),
	OpFCeil:      unop("fceil", tFloat, tFloat),
	OpFFract:     unop("ffract", tFloat, tFloat),
	OpFRoundEven: unop("fround_even", tFloat, tFloat),
	OpFDot2:      dot("fdot2", 2),
	OpFDot3:      dot("fdot3", 3),
	OpFDot4:      dot("fdot4", 4),

	OpFEq: binop("feq", tBool32, tFloat, PropCommutative),
	OpFNe: binop("fne", tBool32, tFloat, PropCommutative),
	OpFLt: binop("flt", tBool32, tFloat, 0),
	OpFGe: binop("fge", tBool32, tFloat, 0),
	OpIEq: binop("ieq", tBool32, tInt, PropCommutative),
	OpINe: binop("ine", tBool32, tInt, PropCommutative),
	OpILt: binop("ilt", tBool32, tInt, 0),
	OpIGe: binop("ige", tBool32, tInt, 0),
	OpULt: binop("ult", tBool32, tUint, 0),
	OpUGe: binop("uge", tBool32, tUint, 0),

	OpIAdd:             binop("iadd", tInt, tInt, commAssoc),
	OpISub:             binop("isub", tInt, tInt, 0),
	OpIMul:             binop("imul", tInt, tInt, commAssoc),
	OpINeg:             unop("ineg", tInt, tInt),
	OpIAnd:             binop("iand", tUint, tUint, commAssoc),
	OpIOr:              binop("ior", tUint, tUint, commAssoc),
	OpIXor:             binop("ixor", tUint, tUint, commAssoc),
	OpINot:             unop("inot", tInt, tInt),
	OpIShl:             binopConvert("ishl", tInt, tInt, tUint32),
	OpIShr:             binopConvert("ishr", tInt, tInt, tUint32),
	OpUShr:             binopConvert("ushr", tUint, tUint, tUint32),
	OpBfi:              triop("bfi", tUint32, tUint32, tUint32, tUint32),
	OpUBitfieldExtract: triop("ubitfield_extract", tUint32, tUint32, tInt32, tInt32),

	OpBcsel: triop("bcsel", tUint, tBool32, tUint, tUint),

	OpF2D: unop("f2d", tFloat64, tFloat32),
	OpD2F: unop("d2f", tFloat32, tFloat64),
	OpI2F: unop("i2f", tFloat32, tInt32),
	OpF2I: unop("f2i", tInt32, tFloat32),
	OpU2F: unop("u2f", tFloat32, tUint32),

	OpPackDouble2x32:         unopHoriz("pack_double_2x32", 1, tUint64, 2, tUint32),
	OpUnpackDouble2x32:       unopHoriz("unpack_double_2x32", 2, tUint32, 1, tUint64),
	OpPackDouble2x32Split:    binopConvert("pack_double_2x32_split", tUint64, tUint32, tUint32),
	OpUnpackDouble2x32SplitX: unop("unpack_double_2x32_split_x", tUint32, tUint64),
	OpUnpackDouble2x32SplitY: unop("unpack_double_2x32_split_y", tUint32, tUint64),
}

// Info returns the table entry for op.
func (op Op) Info() *OpInfo {
	return &OpInfos[op]
}

func (op Op) String() string {
	if op >= NumOps {
		return "invalid"
	}
	return OpInfos[op].Name
}

// IsVec reports whether op builds a vector from scalars.
func (op Op) IsVec() bool {
	return op == OpVec2 || op == OpVec3 || op == OpVec4
}

// IsMov reports whether op is a plain move.
func (op Op) IsMov() bool {
	return op == OpFMov || op == OpIMov
}

// IsDot reports whether op is a dot product.
func (op Op) IsDot() bool {
	return op == OpFDot2 || op == OpFDot3 || op == OpFDot4
}

// VecOp returns the vector construction op for n components.
func VecOp(n int) Op {
	switch n {
	case 2:
		return OpVec2
	case 3:
		return OpVec3
	case 4:
		return OpVec4
	}
	panic("nir: no vec op for size")
}

// LookupOp finds an op by its printed name.
func LookupOp(name string) (Op, bool) {
	for i := range OpInfos {
		if OpInfos[i].Name == name {
			return Op(i), true
		}
	}
	return 0, false
}
