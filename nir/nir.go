package nir

import "fmt"

// Shader is the top-level container: functions plus global registers.
type Shader struct {
	Name      string
	Functions []*Function
	Registers []*Register

	regAlloc int
}

// NewShader creates an empty shader.
func NewShader(name string) *Shader {
	return &Shader{Name: name}
}

// Function is a named function. Impl is nil for declarations without a body.
type Function struct {
	Name   string
	Shader *Shader
	Impl   *Impl
}

// AddFunction appends a new function without a body.
func (s *Shader) AddFunction(name string) *Function {
	fn := &Function{Name: name, Shader: s}
	s.Functions = append(s.Functions, fn)
	return fn
}

// Impl is a function body.
type Impl struct {
	Function  *Function
	Body      *CFList
	Registers []*Register

	ssaAlloc   int
	regAlloc   int
	blockAlloc int
}

// CreateImpl gives the function an empty body consisting of one block.
func (f *Function) CreateImpl() *Impl {
	impl := &Impl{Function: f}
	impl.Body = &CFList{owner: impl}
	impl.Body.append(impl.newBlock())
	f.Impl = impl
	return impl
}

// Shader returns the shader owning the impl.
func (impl *Impl) Shader() *Shader {
	return impl.Function.Shader
}

// SSACount returns one past the highest SSA index allocated so far.
func (impl *Impl) SSACount() int {
	return impl.ssaAlloc
}

// BlockCount returns one past the highest block index allocated so far.
func (impl *Impl) BlockCount() int {
	return impl.blockAlloc
}

func (impl *Impl) newBlock() *Block {
	b := &Block{Index: impl.blockAlloc, impl: impl}
	impl.blockAlloc++
	return b
}

// StartBlock returns the first block of the body.
func (impl *Impl) StartBlock() *Block {
	return impl.Body.FirstBlock()
}

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

// refSet is an ordered set of back-references.
type refSet[T comparable] struct {
	items []T
}

func (s *refSet[T]) add(x T) {
	s.items = append(s.items, x)
}

func (s *refSet[T]) remove(x T) {
	for i, it := range s.items {
		if it == x {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
	panic("nir: removing an unregistered reference")
}

func (s *refSet[T]) contains(x T) bool {
	for _, it := range s.items {
		if it == x {
			return true
		}
	}
	return false
}

func (s *refSet[T]) len() int {
	return len(s.items)
}

func (s *refSet[T]) slice() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// SSADef is a value defined exactly once.
type SSADef struct {
	Index         int
	NumComponents uint8
	BitSize       uint8

	parent Instr
	uses   refSet[*Src]
	ifUses refSet[*Src]
}

// Parent returns the defining instruction.
func (d *SSADef) Parent() Instr {
	return d.parent
}

// Uses returns a snapshot of the instruction sources reading d.
func (d *SSADef) Uses() []*Src {
	return d.uses.slice()
}

// IfUses returns a snapshot of the if conditions reading d.
func (d *SSADef) IfUses() []*Src {
	return d.ifUses.slice()
}

// HasUses reports whether anything reads d.
func (d *SSADef) HasUses() bool {
	return d.uses.len() > 0 || d.ifUses.len() > 0
}

// RewriteUses points every use of d at src instead.
func (d *SSADef) RewriteUses(src Src) {
	if src.SSA == d {
		panic("nir: rewriting uses of a value to itself")
	}
	for _, use := range d.uses.slice() {
		use.replace(src)
	}
	for _, use := range d.ifUses.slice() {
		use.replace(src)
	}
}

func (d *SSADef) String() string {
	return fmt.Sprintf("ssa_%d", d.Index)
}

// Register is mutable storage that may be written by several instructions.
type Register struct {
	Index         int
	Name          string
	NumComponents uint8
	BitSize       uint8
	NumArrayElems uint
	Global        bool

	shader *Shader
	impl   *Impl
	defs   refSet[*Dest]
	uses   refSet[*Src]
	ifUses refSet[*Src]
}

// NewRegister adds a function-local register.
func (impl *Impl) NewRegister(numComponents, bitSize uint8) *Register {
	reg := &Register{
		Index:         impl.regAlloc,
		NumComponents: numComponents,
		BitSize:       bitSize,
		impl:          impl,
	}
	impl.regAlloc++
	impl.Registers = append(impl.Registers, reg)
	return reg
}

// NewGlobalRegister adds a shader-global register.
func (s *Shader) NewGlobalRegister(numComponents, bitSize uint8) *Register {
	reg := &Register{
		Index:         s.regAlloc,
		NumComponents: numComponents,
		BitSize:       bitSize,
		Global:        true,
		shader:        s,
	}
	s.regAlloc++
	s.Registers = append(s.Registers, reg)
	return reg
}

// Defs returns a snapshot of the destinations writing r.
func (r *Register) Defs() []*Dest {
	return r.defs.slice()
}

// Uses returns a snapshot of the instruction sources reading r.
func (r *Register) Uses() []*Src {
	return r.uses.slice()
}

// IfUses returns a snapshot of the if conditions reading r.
func (r *Register) IfUses() []*Src {
	return r.ifUses.slice()
}

// Remove drops an unused register from its owner. It panics if the register
// is still defined or read.
func (r *Register) Remove() {
	if r.defs.len() > 0 || r.uses.len() > 0 || r.ifUses.len() > 0 {
		panic(fmt.Sprintf("nir: removing register %s that is still referenced", r))
	}
	if r.Global {
		r.shader.Registers = removeReg(r.shader.Registers, r)
		r.shader = nil
		return
	}
	r.impl.Registers = removeReg(r.impl.Registers, r)
	r.impl = nil
}

// Removed reports whether the register has been dropped from its owner.
func (r *Register) Removed() bool {
	return r.shader == nil && r.impl == nil
}

func removeReg(regs []*Register, r *Register) []*Register {
	for i, it := range regs {
		if it == r {
			return append(regs[:i], regs[i+1:]...)
		}
	}
	return regs
}

func (r *Register) String() string {
	if r.Name != "" {
		return r.Name
	}
	if r.Global {
		return fmt.Sprintf("gr%d", r.Index)
	}
	return fmt.Sprintf("r%d", r.Index)
}

// ---------------------------------------------------------------------------
// Operands
// ---------------------------------------------------------------------------

// RegRef addresses a register, optionally an element of a register array.
type RegRef struct {
	Reg        *Register
	BaseOffset uint
	Indirect   *Src
}

// Src reads either an SSA value or a register.
type Src struct {
	SSA *SSADef
	Reg RegRef

	parentInstr Instr
	parentIf    *If
}

// SrcForSSA returns a source reading def.
func SrcForSSA(def *SSADef) Src {
	return Src{SSA: def}
}

// SrcForReg returns a source reading reg directly.
func SrcForReg(reg *Register) Src {
	return Src{Reg: RegRef{Reg: reg}}
}

// IsSSA reports whether the source reads an SSA value.
func (s *Src) IsSSA() bool {
	return s.SSA != nil
}

// ParentInstr returns the instruction reading through s, if any.
func (s *Src) ParentInstr() Instr {
	return s.parentInstr
}

// ParentIf returns the if whose condition is s, if any.
func (s *Src) ParentIf() *If {
	return s.parentIf
}

// NumComponents returns the component count of the value read.
func (s *Src) NumComponents() uint8 {
	if s.SSA != nil {
		return s.SSA.NumComponents
	}
	return s.Reg.Reg.NumComponents
}

// BitSize returns the bit size of the value read.
func (s *Src) BitSize() uint8 {
	if s.SSA != nil {
		return s.SSA.BitSize
	}
	return s.Reg.Reg.BitSize
}

// Copy returns an unlinked duplicate, including a fresh indirect source.
func (s Src) Copy() Src {
	out := Src{SSA: s.SSA, Reg: RegRef{Reg: s.Reg.Reg, BaseOffset: s.Reg.BaseOffset}}
	if s.Reg.Indirect != nil {
		ind := s.Reg.Indirect.Copy()
		out.Reg.Indirect = &ind
	}
	return out
}

// SrcsEqual reports whether a and b read the same storage.
func SrcsEqual(a, b Src) bool {
	if a.IsSSA() || b.IsSSA() {
		return a.SSA == b.SSA
	}
	if a.Reg.Reg != b.Reg.Reg || a.Reg.BaseOffset != b.Reg.BaseOffset {
		return false
	}
	if (a.Reg.Indirect == nil) != (b.Reg.Indirect == nil) {
		return false
	}
	if a.Reg.Indirect != nil {
		return SrcsEqual(*a.Reg.Indirect, *b.Reg.Indirect)
	}
	return true
}

func (s *Src) link() {
	if s.SSA != nil {
		if s.parentIf != nil {
			s.SSA.ifUses.add(s)
		} else {
			s.SSA.uses.add(s)
		}
		return
	}
	if s.Reg.Reg == nil {
		panic("nir: source reads nothing")
	}
	if s.parentIf != nil {
		s.Reg.Reg.ifUses.add(s)
	} else {
		s.Reg.Reg.uses.add(s)
	}
	if s.Reg.Indirect != nil {
		s.Reg.Indirect.parentInstr = s.parentInstr
		s.Reg.Indirect.parentIf = s.parentIf
		s.Reg.Indirect.link()
	}
}

func (s *Src) unlink() {
	if s.SSA != nil {
		if s.parentIf != nil {
			s.SSA.ifUses.remove(s)
		} else {
			s.SSA.uses.remove(s)
		}
		return
	}
	if s.parentIf != nil {
		s.Reg.Reg.ifUses.remove(s)
	} else {
		s.Reg.Reg.uses.remove(s)
	}
	if s.Reg.Indirect != nil {
		s.Reg.Indirect.unlink()
	}
}

func (s *Src) linked() bool {
	if s.parentInstr != nil {
		return s.parentInstr.Block() != nil
	}
	return s.parentIf != nil && s.parentIf.parent != nil
}

// replace swaps what s reads, keeping use sets in sync.
func (s *Src) replace(src Src) {
	live := s.linked()
	if live {
		s.unlink()
	}
	pi, pif := s.parentInstr, s.parentIf
	*s = src.Copy()
	s.parentInstr, s.parentIf = pi, pif
	if live {
		s.link()
	}
}

// Dest is written by an instruction: either a new SSA value or a register.
type Dest struct {
	SSA *SSADef
	Reg RegRef

	parent Instr
}

// IsSSA reports whether the destination defines an SSA value.
func (d *Dest) IsSSA() bool {
	return d.SSA != nil
}

// Parent returns the instruction owning the destination.
func (d *Dest) Parent() Instr {
	return d.parent
}

// NumComponents returns the component count of the written value.
func (d *Dest) NumComponents() uint8 {
	if d.SSA != nil {
		return d.SSA.NumComponents
	}
	return d.Reg.Reg.NumComponents
}

// BitSize returns the bit size of the written value.
func (d *Dest) BitSize() uint8 {
	if d.SSA != nil {
		return d.SSA.BitSize
	}
	return d.Reg.Reg.BitSize
}

// Copy returns an unlinked duplicate of a register destination. SSA
// destinations cannot be copied because they define a value.
func (d Dest) Copy() Dest {
	if d.SSA != nil {
		panic("nir: copying an SSA destination")
	}
	out := Dest{Reg: RegRef{Reg: d.Reg.Reg, BaseOffset: d.Reg.BaseOffset}}
	if d.Reg.Indirect != nil {
		ind := d.Reg.Indirect.Copy()
		out.Reg.Indirect = &ind
	}
	return out
}

// DestForReg returns a destination writing reg directly.
func DestForReg(reg *Register) Dest {
	return Dest{Reg: RegRef{Reg: reg}}
}

// NewSSADest turns d into a fresh SSA definition.
func (impl *Impl) NewSSADest(d *Dest, numComponents, bitSize uint8) *SSADef {
	if numComponents == 0 || numComponents > 4 {
		panic(fmt.Sprintf("nir: invalid component count %d", numComponents))
	}
	def := &SSADef{Index: impl.ssaAlloc, NumComponents: numComponents, BitSize: bitSize}
	impl.ssaAlloc++
	d.SSA = def
	d.Reg = RegRef{}
	return def
}

func (d *Dest) link() {
	if d.SSA != nil {
		d.SSA.parent = d.parent
		return
	}
	d.Reg.Reg.defs.add(d)
	if d.Reg.Indirect != nil {
		d.Reg.Indirect.parentInstr = d.parent
		d.Reg.Indirect.link()
	}
}

func (d *Dest) unlink() {
	if d.SSA != nil {
		return
	}
	d.Reg.Reg.defs.remove(d)
	if d.Reg.Indirect != nil {
		d.Reg.Indirect.unlink()
	}
}
