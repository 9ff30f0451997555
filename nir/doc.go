// Package nir defines the shader intermediate representation consumed by the
// lowering passes.
//
// A Shader owns Functions; a Function with a body owns an Impl, which is a
// structured control-flow list of Blocks and Ifs. Blocks hold Instrs. Values
// are either SSA definitions or non-SSA Registers, and every Src that reads a
// value is recorded in that value's use set so passes can rewrite uses
// without scanning the whole program.
//
// # Use-def bookkeeping
//
// Operands are linked into use/def sets when their instruction (or if) is
// inserted into a block and unlinked when it is removed. An instruction that
// has not been inserted is free to be edited directly; once inserted, use
// SetSrc, Dest rewriting helpers or SSADef.RewriteUses so both directions of
// the graph stay in sync.
//
// # Control flow
//
// Control flow is structured: a CFList always begins and ends with a Block,
// and every If is surrounded by Blocks. Predecessors and successors are
// derived from that structure on demand, so they are never stale after an
// insertion splits a block.
//
// # Building code
//
// Passes emit code through a Builder positioned by a Cursor:
//
//	b := nir.NewBuilder(impl)
//	b.Cursor = nir.BeforeInstr(instr)
//	sum := b.FAdd(x, y)
//
// Malformed IR is a programming error in an earlier stage and panics; use
// Validate to check a shader between passes.
package nir
