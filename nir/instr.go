package nir

import "fmt"

// Instr is one of *ALUInstr, *PhiInstr, *LoadConstInstr or *IntrinsicInstr.
type Instr interface {
	// Block returns the containing block, or nil once removed.
	Block() *Block
	base() *instrBase
}

type instrBase struct {
	block *Block
}

func (b *instrBase) Block() *Block {
	return b.block
}

func (b *instrBase) base() *instrBase {
	return b
}

// ALUSrc is an ALU operand with a per-channel swizzle.
type ALUSrc struct {
	Src     Src
	Swizzle [4]uint8
}

// Copy returns an independent duplicate of the operand.
func (s *ALUSrc) Copy() ALUSrc {
	return ALUSrc{Src: s.Src.Copy(), Swizzle: s.Swizzle}
}

// ALUDest is an ALU destination with a write mask over its channels.
type ALUDest struct {
	Dest      Dest
	WriteMask uint8
}

// Copy returns an independent duplicate of a register destination.
func (d *ALUDest) Copy() ALUDest {
	return ALUDest{Dest: d.Dest.Copy(), WriteMask: d.WriteMask}
}

// ALUInstr applies an Op to its sources.
type ALUInstr struct {
	instrBase
	Op   Op
	Dest ALUDest
	Srcs []ALUSrc
}

// NewALU creates an ALU instruction with as many sources as the op takes and
// identity swizzles.
func NewALU(op Op) *ALUInstr {
	if op >= NumOps {
		panic(fmt.Sprintf("nir: invalid op %d", op))
	}
	instr := &ALUInstr{Op: op, Srcs: make([]ALUSrc, OpInfos[op].NumInputs)}
	for i := range instr.Srcs {
		instr.Srcs[i].Swizzle = [4]uint8{0, 1, 2, 3}
	}
	instr.Dest.Dest.parent = instr
	return instr
}

// SrcNumComponents returns how many channels source i contributes.
func (a *ALUInstr) SrcNumComponents(i int) uint8 {
	if n := OpInfos[a.Op].InputSizes[i]; n != 0 {
		return n
	}
	return a.Dest.Dest.NumComponents()
}

// ChannelUsed reports whether source i is read at channel c.
func (a *ALUInstr) ChannelUsed(i int, c uint8) bool {
	if n := OpInfos[a.Op].InputSizes[i]; n != 0 {
		return c < n
	}
	return a.Dest.WriteMask&(1<<c) != 0
}

// SetSrc replaces source i, keeping use sets in sync.
func (a *ALUInstr) SetSrc(i int, src Src) {
	a.Srcs[i].Src.replace(src)
}

// PhiSrc is the value a phi takes when control arrives from Pred.
type PhiSrc struct {
	Pred *Block
	Src  Src
}

// PhiInstr selects a value by predecessor block.
type PhiInstr struct {
	instrBase
	Dest Dest
	Srcs []*PhiSrc
}

// NewPhi creates a phi without sources.
func NewPhi() *PhiInstr {
	phi := &PhiInstr{}
	phi.Dest.parent = phi
	return phi
}

// AddSrc appends a source for pred. The phi must not be inserted yet.
func (p *PhiInstr) AddSrc(pred *Block, src Src) {
	if p.block != nil {
		panic("nir: adding a phi source after insertion")
	}
	p.Srcs = append(p.Srcs, &PhiSrc{Pred: pred, Src: src})
}

// SrcFor returns the phi source for pred, or nil.
func (p *PhiInstr) SrcFor(pred *Block) *PhiSrc {
	for _, ps := range p.Srcs {
		if ps.Pred == pred {
			return ps
		}
	}
	return nil
}

// LoadConstInstr defines an SSA value from raw component bits.
type LoadConstInstr struct {
	instrBase
	Dest  Dest
	Value [4]uint64
}

// NewLoadConst creates a constant instruction. Its destination must be
// initialized with Impl.NewSSADest.
func NewLoadConst() *LoadConstInstr {
	lc := &LoadConstInstr{}
	lc.Dest.parent = lc
	return lc
}

// IntrinsicOp identifies an intrinsic.
type IntrinsicOp uint8

// Intrinsics.
const (
	IntrinsicLoadInput IntrinsicOp = iota
	IntrinsicStoreOutput
	NumIntrinsics
)

// IntrinsicInfo describes an intrinsic's operands.
type IntrinsicInfo struct {
	Name    string
	NumSrcs int
	HasDest bool
}

// IntrinsicInfos is indexed by IntrinsicOp.
var IntrinsicInfos = [NumIntrinsics]IntrinsicInfo{
	IntrinsicLoadInput:   {Name: "load_input", NumSrcs: 0, HasDest: true},
	IntrinsicStoreOutput: {Name: "store_output", NumSrcs: 1, HasDest: false},
}

func (op IntrinsicOp) String() string {
	if op >= NumIntrinsics {
		return "invalid"
	}
	return IntrinsicInfos[op].Name
}

// IntrinsicInstr is a side-effecting or external operation. Base is the
// input or output slot.
type IntrinsicInstr struct {
	instrBase
	Op            IntrinsicOp
	NumComponents uint8
	Base          int
	Srcs          []Src
	Dest          Dest
}

// NewIntrinsic creates an intrinsic with its source slots allocated.
func NewIntrinsic(op IntrinsicOp) *IntrinsicInstr {
	in := &IntrinsicInstr{Op: op, Srcs: make([]Src, IntrinsicInfos[op].NumSrcs)}
	in.Dest.parent = in
	return in
}

// ---------------------------------------------------------------------------
// Operand walkers
// ---------------------------------------------------------------------------

// ForeachSrc calls fn for every source of instr, stopping when fn returns
// false. Indirect sources of register operands are not included.
func ForeachSrc(instr Instr, fn func(*Src) bool) bool {
	switch in := instr.(type) {
	case *ALUInstr:
		for i := range in.Srcs {
			if !fn(&in.Srcs[i].Src) {
				return false
			}
		}
	case *PhiInstr:
		for _, ps := range in.Srcs {
			if !fn(&ps.Src) {
				return false
			}
		}
	case *LoadConstInstr:
	case *IntrinsicInstr:
		for i := range in.Srcs {
			if !fn(&in.Srcs[i]) {
				return false
			}
		}
	default:
		panic(fmt.Sprintf("nir: unknown instruction %T", instr))
	}
	return true
}

// InstrDest returns the destination of instr, or nil if it has none.
func InstrDest(instr Instr) *Dest {
	switch in := instr.(type) {
	case *ALUInstr:
		return &in.Dest.Dest
	case *PhiInstr:
		return &in.Dest
	case *LoadConstInstr:
		return &in.Dest
	case *IntrinsicInstr:
		if IntrinsicInfos[in.Op].HasDest {
			return &in.Dest
		}
		return nil
	default:
		panic(fmt.Sprintf("nir: unknown instruction %T", instr))
	}
}

// InstrSSADef returns the SSA value instr defines, or nil.
func InstrSSADef(instr Instr) *SSADef {
	if d := InstrDest(instr); d != nil {
		return d.SSA
	}
	return nil
}

// SetDestReg turns the destination of an inserted instruction into a write
// of reg. Any SSA value it defined must already be unused.
func SetDestReg(instr Instr, reg *Register) {
	d := InstrDest(instr)
	if d == nil {
		panic("nir: instruction has no destination")
	}
	if d.SSA != nil && d.SSA.HasUses() {
		panic("nir: replacing an SSA destination that is still used")
	}
	live := instr.Block() != nil
	if live {
		d.unlink()
	}
	d.SSA = nil
	d.Reg = RegRef{Reg: reg}
	if live {
		d.link()
	}
}

func linkInstr(instr Instr) {
	ForeachSrc(instr, func(s *Src) bool {
		s.parentInstr = instr
		s.parentIf = nil
		s.link()
		return true
	})
	if d := InstrDest(instr); d != nil {
		d.parent = instr
		d.link()
	}
}

func unlinkInstr(instr Instr) {
	ForeachSrc(instr, func(s *Src) bool {
		s.unlink()
		return true
	})
	if d := InstrDest(instr); d != nil {
		d.unlink()
	}
}
