package nir

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// ValidationError describes one broken invariant.
type ValidationError struct {
	Message string
	// Optional context
	Function string
	Block    int
	Instr    string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Function == "" {
		return e.Message
	}
	if e.Instr != "" {
		return fmt.Sprintf("in function %s, block %d, instruction %q: %s", e.Function, e.Block, e.Instr, e.Message)
	}
	if e.Block >= 0 {
		return fmt.Sprintf("in function %s, block %d: %s", e.Function, e.Block, e.Message)
	}
	return fmt.Sprintf("in function %s: %s", e.Function, e.Message)
}

type validator struct {
	shader *Shader
	errors []ValidationError

	impl  *Impl
	block *Block
	instr Instr

	defined *bitset.BitSet
	defs    map[*SSADef]bool
	srcs    map[*Src]bool
	dests   map[*Dest]bool
}

// Validate checks the structural invariants of s: control-flow list shape,
// use/def symmetry, op arity, write masks, swizzles and phi predecessors.
// It returns nil when the shader is well formed.
func Validate(s *Shader) []ValidationError {
	v := &validator{shader: s}
	globalDests := make(map[*Dest]bool)
	globalSrcs := make(map[*Src]bool)
	for _, f := range s.Functions {
		if f.Impl == nil {
			continue
		}
		v.validateImpl(f.Impl)
		for d := range v.dests {
			globalDests[d] = true
		}
		for src := range v.srcs {
			globalSrcs[src] = true
		}
	}
	v.impl, v.block, v.instr = nil, nil, nil
	for _, reg := range s.Registers {
		v.validateRegister(reg, globalDests, globalSrcs)
	}
	if len(v.errors) == 0 {
		return nil
	}
	return v.errors
}

func (v *validator) errorf(format string, args ...any) {
	e := ValidationError{Message: fmt.Sprintf(format, args...), Block: -1}
	if v.impl != nil {
		e.Function = v.impl.Function.Name
	}
	if v.block != nil {
		e.Block = v.block.Index
	}
	if v.instr != nil {
		e.Instr = InstrString(v.instr)
	}
	v.errors = append(v.errors, e)
}

func (v *validator) validateImpl(impl *Impl) {
	v.impl = impl
	v.block, v.instr = nil, nil
	v.defined = bitset.New(uint(impl.ssaAlloc))
	v.defs = make(map[*SSADef]bool)
	v.srcs = make(map[*Src]bool)
	v.dests = make(map[*Dest]bool)

	if impl.Body.owner != impl {
		v.errorf("body list is not owned by its impl")
	}
	v.validateCFList(impl.Body)

	v.block, v.instr = nil, nil
	for def := range v.defs {
		for _, use := range def.uses.items {
			if !v.srcs[use] {
				v.errorf("%s has a use that is not a live source", def)
			}
		}
		for _, use := range def.ifUses.items {
			if !v.srcs[use] {
				v.errorf("%s has an if-use that is not a live condition", def)
			}
		}
	}
	for src := range v.srcs {
		if src.SSA != nil && !v.defs[src.SSA] {
			v.errorf("source reads %s which is not defined in this function", src.SSA)
		}
	}
	for _, reg := range impl.Registers {
		if reg.impl != impl || reg.Global {
			v.errorf("register %s is not owned by this function", reg)
		}
		v.validateRegister(reg, v.dests, v.srcs)
	}
}

func (v *validator) validateRegister(reg *Register, dests map[*Dest]bool, srcs map[*Src]bool) {
	for _, d := range reg.defs.items {
		if !dests[d] {
			v.errorf("register %s has a def that is not a live destination", reg)
		}
	}
	for _, s := range reg.uses.items {
		if !srcs[s] {
			v.errorf("register %s has a use that is not a live source", reg)
		}
	}
	for _, s := range reg.ifUses.items {
		if !srcs[s] {
			v.errorf("register %s has an if-use that is not a live condition", reg)
		}
	}
}

func (v *validator) validateCFList(l *CFList) {
	if len(l.nodes) == 0 {
		v.errorf("empty control-flow list")
		return
	}
	if _, ok := l.nodes[0].(*Block); !ok {
		v.errorf("control-flow list does not start with a block")
	}
	if _, ok := l.nodes[len(l.nodes)-1].(*Block); !ok {
		v.errorf("control-flow list does not end with a block")
	}
	for i, node := range l.nodes {
		if node.ParentList() != l {
			v.errorf("control-flow node %d has the wrong parent list", i)
		}
		if i > 0 {
			_, prevBlock := l.nodes[i-1].(*Block)
			_, curBlock := node.(*Block)
			if prevBlock == curBlock {
				v.errorf("control-flow nodes %d and %d are both %T", i-1, i, node)
			}
		}
		switch n := node.(type) {
		case *Block:
			v.validateBlock(n)
		case *If:
			v.block, v.instr = nil, nil
			v.validateSrc(&n.Condition, nil, n)
			if n.Then.owner != n || n.Else.owner != n {
				v.errorf("if branches are not owned by the if")
			}
			v.validateCFList(n.Then)
			v.validateCFList(n.Else)
		default:
			v.errorf("unknown control-flow node %T", node)
		}
	}
}

func (v *validator) validateBlock(b *Block) {
	v.block = b
	v.instr = nil
	if b.impl != v.impl {
		v.errorf("block belongs to another function")
	}
	phisDone := false
	for _, instr := range b.instrs {
		v.instr = instr
		if instr.Block() != b {
			v.errorf("instruction does not point back at its block")
		}
		_, isPhi := instr.(*PhiInstr)
		if isPhi && phisDone {
			v.errorf("phi below a non-phi instruction")
		}
		if !isPhi {
			phisDone = true
		}
		v.validateInstr(instr)
	}
	v.instr = nil
}

func (v *validator) validateSrc(s *Src, instr Instr, n *If) {
	v.srcs[s] = true
	if s.parentInstr != instr || s.parentIf != n {
		v.errorf("source has the wrong parent")
	}
	if s.SSA != nil {
		set := &s.SSA.uses
		if n != nil {
			set = &s.SSA.ifUses
		}
		if !set.contains(s) {
			v.errorf("source of %s is missing from its use set", s.SSA)
		}
		return
	}
	if s.Reg.Reg == nil {
		v.errorf("source reads nothing")
		return
	}
	if s.Reg.Reg.Removed() {
		v.errorf("source reads removed register %s", s.Reg.Reg)
	}
	set := &s.Reg.Reg.uses
	if n != nil {
		set = &s.Reg.Reg.ifUses
	}
	if !set.contains(s) {
		v.errorf("source of %s is missing from its use set", s.Reg.Reg)
	}
	v.validateRegRef(&s.Reg, instr, n)
}

func (v *validator) validateRegRef(r *RegRef, instr Instr, n *If) {
	if r.Reg.NumArrayElems == 0 && (r.BaseOffset != 0 || r.Indirect != nil) {
		v.errorf("register %s is not an array but is accessed with an offset", r.Reg)
	}
	if r.Reg.NumArrayElems > 0 && r.BaseOffset >= r.Reg.NumArrayElems {
		v.errorf("offset %d out of bounds for %s", r.BaseOffset, r.Reg)
	}
	if r.Indirect != nil {
		v.validateSrc(r.Indirect, instr, n)
	}
}

func (v *validator) validateDest(d *Dest, instr Instr) {
	if d.parent != instr {
		v.errorf("destination has the wrong parent")
	}
	if d.SSA != nil {
		def := d.SSA
		if def.parent != instr {
			v.errorf("%s does not point back at its definition", def)
		}
		if v.defs[def] || v.defined.Test(uint(def.Index)) {
			v.errorf("%s is defined more than once", def)
		}
		v.defs[def] = true
		v.defined.Set(uint(def.Index))
		if def.BitSize != 1 && def.BitSize != 8 && def.BitSize != 16 && def.BitSize != 32 && def.BitSize != 64 {
			v.errorf("%s has invalid bit size %d", def, def.BitSize)
		}
		return
	}
	if d.Reg.Reg == nil {
		v.errorf("destination writes nothing")
		return
	}
	v.dests[d] = true
	if d.Reg.Reg.Removed() {
		v.errorf("destination writes removed register %s", d.Reg.Reg)
	}
	if !d.Reg.Reg.defs.contains(d) {
		v.errorf("destination is missing from the def set of %s", d.Reg.Reg)
	}
	v.validateRegRef(&d.Reg, instr, nil)
}

func (v *validator) validateInstr(instr Instr) {
	switch in := instr.(type) {
	case *ALUInstr:
		v.validateALU(in)
	case *PhiInstr:
		v.validatePhi(in)
	case *LoadConstInstr:
		v.validateDest(&in.Dest, in)
		if !in.Dest.IsSSA() {
			v.errorf("load_const must define an SSA value")
		}
	case *IntrinsicInstr:
		info := IntrinsicInfos[in.Op]
		if len(in.Srcs) != info.NumSrcs {
			v.errorf("%s takes %d sources, has %d", in.Op, info.NumSrcs, len(in.Srcs))
		}
		for i := range in.Srcs {
			v.validateSrc(&in.Srcs[i], in, nil)
		}
		if info.HasDest {
			v.validateDest(&in.Dest, in)
		}
	default:
		v.errorf("unknown instruction %T", instr)
	}
}

func (v *validator) validateALU(a *ALUInstr) {
	info := &OpInfos[a.Op]
	if len(a.Srcs) != info.NumInputs {
		v.errorf("%s takes %d sources, has %d", a.Op, info.NumInputs, len(a.Srcs))
		return
	}
	v.validateDest(&a.Dest.Dest, a)
	if a.Dest.Dest.SSA == nil && a.Dest.Dest.Reg.Reg == nil {
		return
	}

	numComponents := a.Dest.Dest.NumComponents()
	if a.Dest.Dest.IsSSA() {
		if a.Dest.WriteMask != uint8(1)<<numComponents-1 {
			v.errorf("SSA destination must write every channel")
		}
		if info.OutputSize != 0 && numComponents != info.OutputSize {
			v.errorf("%s produces %d channels, destination has %d", a.Op, info.OutputSize, numComponents)
		}
	} else {
		if a.Dest.WriteMask == 0 || a.Dest.WriteMask>>numComponents != 0 {
			v.errorf("write mask %#x does not fit %s", a.Dest.WriteMask, a.Dest.Dest.Reg.Reg)
		}
		if info.OutputSize > 1 && a.Dest.WriteMask>>info.OutputSize != 0 {
			v.errorf("write mask %#x exceeds the %d channels %s produces", a.Dest.WriteMask, info.OutputSize, a.Op)
		}
	}
	if bits := info.OutputType.BitSize; bits != 0 && a.Dest.Dest.BitSize() != bits {
		v.errorf("%s produces %d-bit values, destination is %d-bit", a.Op, bits, a.Dest.Dest.BitSize())
	}

	var unsized uint8
	if !info.OutputType.Sized() {
		unsized = a.Dest.Dest.BitSize()
	}
	for i := range a.Srcs {
		src := &a.Srcs[i]
		v.validateSrc(&src.Src, a, nil)
		if src.Src.SSA == nil && src.Src.Reg.Reg == nil {
			continue
		}
		want := info.InputTypes[i].BitSize
		if want == 0 {
			if unsized == 0 {
				unsized = src.Src.BitSize()
			}
			want = unsized
		}
		if src.Src.BitSize() != want {
			v.errorf("source %d of %s is %d-bit, expected %d-bit", i, a.Op, src.Src.BitSize(), want)
		}
		for c := uint8(0); c < 4; c++ {
			if !a.ChannelUsed(i, c) {
				continue
			}
			if src.Swizzle[c] >= src.Src.NumComponents() {
				v.errorf("source %d of %s swizzles channel %d of a %d-channel value", i, a.Op, src.Swizzle[c], src.Src.NumComponents())
			}
		}
	}
}

func (v *validator) validatePhi(p *PhiInstr) {
	v.validateDest(&p.Dest, p)
	if !p.Dest.IsSSA() {
		v.errorf("phi must define an SSA value")
	}
	preds := p.block.Predecessors()
	if len(preds) != len(p.Srcs) {
		v.errorf("phi has %d sources for %d predecessors", len(p.Srcs), len(preds))
	}
	for _, pred := range preds {
		if p.SrcFor(pred) == nil {
			v.errorf("phi has no source for predecessor block %d", pred.Index)
		}
	}
	for _, ps := range p.Srcs {
		v.validateSrc(&ps.Src, p, nil)
		if p.Dest.SSA != nil && (ps.Src.SSA != nil || ps.Src.Reg.Reg != nil) {
			if ps.Src.NumComponents() != p.Dest.SSA.NumComponents || ps.Src.BitSize() != p.Dest.SSA.BitSize {
				v.errorf("phi source shape does not match its destination")
			}
		}
	}
}
