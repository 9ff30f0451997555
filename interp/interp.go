// Package interp executes nir functions on concrete values.
//
// It is the reference semantics the lowering passes are checked against:
// running a shader before and after a pass must produce the same outputs and
// register contents. Values are carried as raw bits, one uint64 per
// component; 32-bit floats are rounded to float32 after every operation.
package interp

import (
	"fmt"

	"github.com/gogpu/shaderlower/nir"
)

// State holds the storage an execution reads and writes.
type State struct {
	Regs    map[*nir.Register][]uint64
	Inputs  map[int][4]uint64
	Outputs map[int][4]uint64

	ssa map[*nir.SSADef][4]uint64
}

// NewState returns empty storage.
func NewState() *State {
	return &State{
		Regs:    make(map[*nir.Register][]uint64),
		Inputs:  make(map[int][4]uint64),
		Outputs: make(map[int][4]uint64),
		ssa:     make(map[*nir.SSADef][4]uint64),
	}
}

// SetReg stores raw component values into reg, starting at element 0.
func (s *State) SetReg(reg *nir.Register, values ...uint64) {
	storage := s.regStorage(reg)
	copy(storage, values)
}

// Reg returns the raw contents of reg.
func (s *State) Reg(reg *nir.Register) []uint64 {
	return s.regStorage(reg)
}

// SSA returns the value computed for def.
func (s *State) SSA(def *nir.SSADef) [4]uint64 {
	v, ok := s.ssa[def]
	if !ok {
		panic(fmt.Sprintf("interp: %s has not been computed", def))
	}
	return v
}

func (s *State) regStorage(reg *nir.Register) []uint64 {
	storage, ok := s.Regs[reg]
	if !ok {
		elems := reg.NumArrayElems
		if elems == 0 {
			elems = 1
		}
		storage = make([]uint64, uint(reg.NumComponents)*elems)
		s.Regs[reg] = storage
	}
	return storage
}

// Run executes impl against st.
func Run(impl *nir.Impl, st *State) {
	m := &machine{st: st}
	m.cfList(impl.Body)
}

type machine struct {
	st   *State
	prev *nir.Block
}

func (m *machine) cfList(l *nir.CFList) {
	for _, node := range l.Nodes() {
		switch n := node.(type) {
		case *nir.Block:
			m.block(n)
		case *nir.If:
			cond := m.src(&n.Condition)
			if cond[0] != 0 {
				m.cfList(n.Then)
			} else {
				m.cfList(n.Else)
			}
		default:
			panic(fmt.Sprintf("interp: unknown control-flow node %T", node))
		}
	}
}

func (m *machine) block(b *nir.Block) {
	instrs := b.Instrs()

	// Phis read their sources in parallel.
	phis := b.Phis()
	vals := make([][4]uint64, len(phis))
	for i, phi := range phis {
		ps := phi.SrcFor(m.prev)
		if ps == nil {
			panic(fmt.Sprintf("interp: phi in block %d has no source for the incoming edge", b.Index))
		}
		vals[i] = m.src(&ps.Src)
	}
	for i, phi := range phis {
		m.st.ssa[phi.Dest.SSA] = vals[i]
	}

	for _, instr := range instrs[len(phis):] {
		m.instr(instr)
	}
	m.prev = b
}

func (m *machine) instr(instr nir.Instr) {
	switch in := instr.(type) {
	case *nir.ALUInstr:
		m.alu(in)
	case *nir.LoadConstInstr:
		m.st.ssa[in.Dest.SSA] = in.Value
	case *nir.IntrinsicInstr:
		m.intrinsic(in)
	case *nir.PhiInstr:
		panic("interp: phi below a non-phi instruction")
	default:
		panic(fmt.Sprintf("interp: unknown instruction %T", instr))
	}
}

func (m *machine) intrinsic(in *nir.IntrinsicInstr) {
	switch in.Op {
	case nir.IntrinsicLoadInput:
		m.write(&in.Dest, uint8(1)<<in.NumComponents-1, m.st.Inputs[in.Base])
	case nir.IntrinsicStoreOutput:
		v := m.src(&in.Srcs[0])
		var out [4]uint64
		copy(out[:in.NumComponents], v[:in.NumComponents])
		m.st.Outputs[in.Base] = out
	default:
		panic(fmt.Sprintf("interp: unknown intrinsic %s", in.Op))
	}
}

func (m *machine) regIndex(r *nir.RegRef) uint {
	elem := r.BaseOffset
	if r.Indirect != nil {
		elem += uint(m.src(r.Indirect)[0])
	}
	if r.Reg.NumArrayElems > 0 && elem >= r.Reg.NumArrayElems {
		panic(fmt.Sprintf("interp: %s[%d] out of bounds", r.Reg, elem))
	}
	return elem * uint(r.Reg.NumComponents)
}

// src reads every channel of the value s refers to.
func (m *machine) src(s *nir.Src) [4]uint64 {
	if s.SSA != nil {
		return m.st.SSA(s.SSA)
	}
	storage := m.st.regStorage(s.Reg.Reg)
	base := m.regIndex(&s.Reg)
	var out [4]uint64
	copy(out[:s.Reg.Reg.NumComponents], storage[base:])
	return out
}

func (m *machine) write(d *nir.Dest, writeMask uint8, v [4]uint64) {
	if d.SSA != nil {
		m.st.ssa[d.SSA] = v
		return
	}
	storage := m.st.regStorage(d.Reg.Reg)
	base := m.regIndex(&d.Reg)
	for c := uint(0); c < uint(d.Reg.Reg.NumComponents); c++ {
		if writeMask&(1<<c) != 0 {
			storage[base+c] = v[c]
		}
	}
}
