package nir

import "fmt"

// CFNode is a node of a structured control-flow list: *Block or *If.
type CFNode interface {
	// ParentList returns the list containing the node.
	ParentList() *CFList
	cf() *cfBase
}

type cfBase struct {
	parent *CFList
}

func (c *cfBase) ParentList() *CFList {
	return c.parent
}

func (c *cfBase) cf() *cfBase {
	return c
}

// CFList is an ordered list of control-flow nodes owned by an Impl or an If.
type CFList struct {
	nodes []CFNode
	owner any
}

// Nodes returns the nodes of the list. Callers must not modify the slice.
func (l *CFList) Nodes() []CFNode {
	return l.nodes
}

// Impl returns the owning impl when the list is a function body.
func (l *CFList) Impl() *Impl {
	impl, _ := l.owner.(*Impl)
	return impl
}

// If returns the owning if when the list is one of its branches.
func (l *CFList) If() *If {
	n, _ := l.owner.(*If)
	return n
}

// FirstBlock returns the block the list starts with.
func (l *CFList) FirstBlock() *Block {
	return l.nodes[0].(*Block)
}

// LastBlock returns the block the list ends with.
func (l *CFList) LastBlock() *Block {
	return l.nodes[len(l.nodes)-1].(*Block)
}

func (l *CFList) append(n CFNode) {
	n.cf().parent = l
	l.nodes = append(l.nodes, n)
}

func (l *CFList) indexOf(n CFNode) int {
	for i, it := range l.nodes {
		if it == n {
			return i
		}
	}
	panic("nir: control-flow node is not in its parent list")
}

func (l *CFList) insertAt(i int, ns ...CFNode) {
	for _, n := range ns {
		n.cf().parent = l
	}
	l.nodes = append(l.nodes[:i], append(ns, l.nodes[i:]...)...)
}

// Block is a straight-line sequence of instructions.
type Block struct {
	cfBase
	Index int

	instrs []Instr
	impl   *Impl
}

// Instrs returns the instructions of the block. Callers must not modify the
// slice; use ForeachInstrSafe when the walk mutates the block.
func (b *Block) Instrs() []Instr {
	return b.instrs
}

// Impl returns the function body containing b.
func (b *Block) Impl() *Impl {
	return b.impl
}

// Len returns the instruction count.
func (b *Block) Len() int {
	return len(b.instrs)
}

func (b *Block) indexOf(instr Instr) int {
	for i, it := range b.instrs {
		if it == instr {
			return i
		}
	}
	panic("nir: instruction is not in its block")
}

// Phis returns the phi instructions at the top of the block.
func (b *Block) Phis() []*PhiInstr {
	var phis []*PhiInstr
	for _, instr := range b.instrs {
		phi, ok := instr.(*PhiInstr)
		if !ok {
			break
		}
		phis = append(phis, phi)
	}
	return phis
}

// Successors returns the blocks control may flow to from b.
func (b *Block) Successors() []*Block {
	list := b.parent
	i := list.indexOf(b)
	if i+1 < len(list.nodes) {
		switch n := list.nodes[i+1].(type) {
		case *If:
			return []*Block{n.Then.FirstBlock(), n.Else.FirstBlock()}
		case *Block:
			return []*Block{n}
		}
	}
	owner, ok := list.owner.(*If)
	if !ok {
		return nil
	}
	return []*Block{owner.nextBlock()}
}

// Predecessors returns the blocks control may arrive from.
func (b *Block) Predecessors() []*Block {
	list := b.parent
	i := list.indexOf(b)
	if i > 0 {
		switch n := list.nodes[i-1].(type) {
		case *If:
			return []*Block{n.Then.LastBlock(), n.Else.LastBlock()}
		case *Block:
			return []*Block{n}
		}
	}
	owner, ok := list.owner.(*If)
	if !ok {
		return nil
	}
	return []*Block{owner.prevBlock()}
}

// Next returns the block following b in program order, descending into ifs.
func (b *Block) Next() *Block {
	var node CFNode = b
	for {
		list := node.ParentList()
		i := list.indexOf(node)
		if i+1 < len(list.nodes) {
			switch n := list.nodes[i+1].(type) {
			case *Block:
				return n
			case *If:
				return n.Then.FirstBlock()
			}
		}
		owner, ok := list.owner.(*If)
		if !ok {
			return nil
		}
		if list == owner.Then {
			return owner.Else.FirstBlock()
		}
		node = owner
	}
}

// If branches on the first component of Condition.
type If struct {
	cfBase
	Condition Src
	Then      *CFList
	Else      *CFList
}

// NewIf creates a detached if whose branches each hold one empty block.
func (impl *Impl) NewIf(cond Src) *If {
	n := &If{Condition: cond}
	n.Condition.parentIf = n
	n.Then = &CFList{owner: n}
	n.Then.append(impl.newBlock())
	n.Else = &CFList{owner: n}
	n.Else.append(impl.newBlock())
	return n
}

func (n *If) prevBlock() *Block {
	i := n.parent.indexOf(n)
	return n.parent.nodes[i-1].(*Block)
}

func (n *If) nextBlock() *Block {
	i := n.parent.indexOf(n)
	return n.parent.nodes[i+1].(*Block)
}

// SetCondition replaces the condition, keeping use sets in sync.
func (n *If) SetCondition(src Src) {
	n.Condition.replace(src)
	n.Condition.parentIf = n
}

// ---------------------------------------------------------------------------
// Cursor
// ---------------------------------------------------------------------------

// CursorOption says where a cursor points relative to its anchor.
type CursorOption uint8

// Cursor positions.
const (
	CursorBeforeBlock CursorOption = iota
	CursorAfterBlock
	CursorBeforeInstr
	CursorAfterInstr
)

// Cursor is an insertion point.
type Cursor struct {
	Option CursorOption
	Block  *Block
	Instr  Instr
}

// BeforeBlock points at the start of b.
func BeforeBlock(b *Block) Cursor {
	return Cursor{Option: CursorBeforeBlock, Block: b}
}

// AfterBlock points at the end of b.
func AfterBlock(b *Block) Cursor {
	return Cursor{Option: CursorAfterBlock, Block: b}
}

// BeforeInstr points just before instr.
func BeforeInstr(instr Instr) Cursor {
	return Cursor{Option: CursorBeforeInstr, Instr: instr}
}

// AfterInstr points just after instr.
func AfterInstr(instr Instr) Cursor {
	return Cursor{Option: CursorAfterInstr, Instr: instr}
}

// BeforeCFNode points just before n.
func BeforeCFNode(n CFNode) Cursor {
	switch n := n.(type) {
	case *Block:
		return BeforeBlock(n)
	case *If:
		return AfterBlock(n.prevBlock())
	}
	panic(fmt.Sprintf("nir: unknown control-flow node %T", n))
}

// AfterCFNode points just after n.
func AfterCFNode(n CFNode) Cursor {
	switch n := n.(type) {
	case *Block:
		return AfterBlock(n)
	case *If:
		return BeforeBlock(n.nextBlock())
	}
	panic(fmt.Sprintf("nir: unknown control-flow node %T", n))
}

// BeforeCFList points at the start of l.
func BeforeCFList(l *CFList) Cursor {
	return BeforeBlock(l.FirstBlock())
}

// AfterCFList points at the end of l.
func AfterCFList(l *CFList) Cursor {
	return AfterBlock(l.LastBlock())
}

// resolve returns the block and instruction index the cursor inserts at.
func (c Cursor) resolve() (*Block, int) {
	switch c.Option {
	case CursorBeforeBlock:
		return c.Block, 0
	case CursorAfterBlock:
		return c.Block, len(c.Block.instrs)
	case CursorBeforeInstr:
		b := c.Instr.Block()
		if b == nil {
			panic("nir: cursor anchored to a removed instruction")
		}
		return b, b.indexOf(c.Instr)
	case CursorAfterInstr:
		b := c.Instr.Block()
		if b == nil {
			panic("nir: cursor anchored to a removed instruction")
		}
		return b, b.indexOf(c.Instr) + 1
	}
	panic("nir: invalid cursor")
}

// ---------------------------------------------------------------------------
// Mutation
// ---------------------------------------------------------------------------

// InsertInstr inserts a detached instruction at c and links its operands.
func InsertInstr(c Cursor, instr Instr) {
	if instr.Block() != nil {
		panic("nir: inserting an instruction that is already in a block")
	}
	b, i := c.resolve()
	if _, isPhi := instr.(*PhiInstr); !isPhi && i < len(b.instrs) {
		// Non-phis may not go above phis.
		for j := i; j < len(b.instrs); j++ {
			if _, ok := b.instrs[j].(*PhiInstr); ok {
				panic("nir: inserting an instruction above a phi")
			}
		}
	}
	b.instrs = append(b.instrs, nil)
	copy(b.instrs[i+1:], b.instrs[i:])
	b.instrs[i] = instr
	instr.base().block = b
	linkInstr(instr)
}

// RemoveInstr unlinks instr from its block and from every use and def set.
// An SSA value it defines must be unused.
func RemoveInstr(instr Instr) {
	b := instr.Block()
	if b == nil {
		panic("nir: removing an instruction twice")
	}
	if def := InstrSSADef(instr); def != nil && def.HasUses() {
		panic(fmt.Sprintf("nir: removing the definition of %s while it is still used", def))
	}
	unlinkInstr(instr)
	i := b.indexOf(instr)
	b.instrs = append(b.instrs[:i], b.instrs[i+1:]...)
	instr.base().block = nil
}

// InsertIf inserts a detached if at c. The block containing c is split in
// two and the if goes between the halves; phis that named the original block
// as a predecessor are retargeted to the second half.
func InsertIf(c Cursor, n *If) {
	if n.parent != nil {
		panic("nir: inserting an if that is already in a list")
	}
	b, i := c.resolve()
	for _, instr := range b.instrs[i:] {
		if _, ok := instr.(*PhiInstr); ok {
			panic("nir: inserting control flow above a phi")
		}
	}

	succs := b.Successors()

	tail := b.impl.newBlock()
	tail.instrs = append(tail.instrs, b.instrs[i:]...)
	b.instrs = b.instrs[:i:i]
	for _, instr := range tail.instrs {
		instr.base().block = tail
	}

	for _, s := range succs {
		for _, phi := range s.Phis() {
			for _, ps := range phi.Srcs {
				if ps.Pred == b {
					ps.Pred = tail
				}
			}
		}
	}

	list := b.parent
	list.insertAt(list.indexOf(b)+1, n, tail)
	n.Condition.parentIf = n
	n.Condition.link()
}
