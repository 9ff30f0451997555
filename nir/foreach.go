package nir

import "github.com/bits-and-blooms/bitset"

// ForeachImpl calls fn for every function of s that has a body.
func ForeachImpl(s *Shader, fn func(*Impl)) {
	for _, f := range s.Functions {
		if f.Impl != nil {
			fn(f.Impl)
		}
	}
}

// ForeachBlock calls fn for every block of impl in program order. The next
// block is looked up after fn returns, so blocks created by fn (for instance
// by inserting an if) are visited too. Each block is visited at most once.
func (impl *Impl) ForeachBlock(fn func(*Block)) {
	visited := bitset.New(uint(impl.blockAlloc))
	for b := impl.StartBlock(); b != nil; b = b.Next() {
		if visited.Test(uint(b.Index)) {
			continue
		}
		visited.Set(uint(b.Index))
		fn(b)
	}
}

// Blocks returns the blocks of impl in program order.
func (impl *Impl) Blocks() []*Block {
	var blocks []*Block
	for b := impl.StartBlock(); b != nil; b = b.Next() {
		blocks = append(blocks, b)
	}
	return blocks
}

// ForeachInstrSafe calls fn for every instruction of b as it was when the
// walk began. fn may insert or remove instructions: instructions it inserts
// are not visited, and instructions that have been removed or moved to
// another block by the time the walk reaches them are skipped.
func (b *Block) ForeachInstrSafe(fn func(Instr)) {
	snapshot := make([]Instr, len(b.instrs))
	copy(snapshot, b.instrs)
	for _, instr := range snapshot {
		if instr.Block() != b {
			continue
		}
		fn(instr)
	}
}

// IndexBlocks renumbers the blocks of impl in program order.
func (impl *Impl) IndexBlocks() {
	n := 0
	for b := impl.StartBlock(); b != nil; b = b.Next() {
		b.Index = n
		n++
	}
	impl.blockAlloc = n
}

// IndexSSA renumbers the SSA values of impl in program order.
func (impl *Impl) IndexSSA() {
	n := 0
	for b := impl.StartBlock(); b != nil; b = b.Next() {
		for _, instr := range b.instrs {
			if def := InstrSSADef(instr); def != nil {
				def.Index = n
				n++
			}
		}
	}
	impl.ssaAlloc = n
}
