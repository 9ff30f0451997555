package lower

import (
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/gogpu/shaderlower/nir"
)

func TestEliminateDeadCode_SSAChain(t *testing.T) {
	s := nir.NewShader("chain")
	b := nir.NewBuilder(s.AddFunction("main").CreateImpl())
	x := b.LoadInput(0, 2, 32)
	b.FNeg(b.FAdd(x, b.ImmFloat(3)))
	b.LoadInput(1, 4, 32)
	b.StoreOutput(0, nir.SrcForSSA(x))

	assert.Assert(t, EliminateDeadCode(s))
	assertValid(t, s)
	assert.Check(t, is.Equal(countInstrs(s), 2))
	assert.Check(t, !EliminateDeadCode(s))
}

func TestEliminateDeadCode_Registers(t *testing.T) {
	s := nir.NewShader("regs")
	impl := s.AddFunction("main").CreateImpl()
	b := nir.NewBuilder(impl)

	unread := impl.NewRegister(1, 32)
	read := impl.NewRegister(1, 32)
	global := s.NewGlobalRegister(1, 32)

	x := b.LoadInput(0, 1, 32)
	for _, r := range []*nir.Register{unread, read, global} {
		mov := nir.NewALU(nir.OpIMov)
		mov.Srcs[0].Src = nir.SrcForSSA(x)
		mov.Dest = nir.ALUDest{Dest: nir.DestForReg(r), WriteMask: 1}
		b.Insert(mov)
	}
	b.StoreOutput(0, nir.SrcForReg(read))

	assert.Assert(t, EliminateDeadCode(s))
	assertValid(t, s)
	assert.Check(t, unread.Removed())
	assert.Check(t, !read.Removed())
	assert.Check(t, !global.Removed())
	assert.Check(t, is.Len(global.Defs(), 1))
	assert.Check(t, is.Len(impl.Registers, 1))
	// load_input, two moves, store_output
	assert.Check(t, is.Equal(countInstrs(s), 4))
}

func TestEliminateDeadCode_CascadesThroughRegisters(t *testing.T) {
	s := nir.NewShader("cascade")
	impl := s.AddFunction("main").CreateImpl()
	b := nir.NewBuilder(impl)

	tmp := impl.NewRegister(1, 32)
	dead := impl.NewRegister(1, 32)

	x := b.LoadInput(0, 1, 32)
	mov := nir.NewALU(nir.OpIMov)
	mov.Srcs[0].Src = nir.SrcForSSA(x)
	mov.Dest = nir.ALUDest{Dest: nir.DestForReg(tmp), WriteMask: 1}
	b.Insert(mov)

	neg := nir.NewALU(nir.OpFNeg)
	neg.Srcs[0].Src = nir.SrcForReg(tmp)
	neg.Dest = nir.ALUDest{Dest: nir.DestForReg(dead), WriteMask: 1}
	b.Insert(neg)

	assert.Assert(t, EliminateDeadCode(s))
	assertValid(t, s)
	assert.Check(t, is.Len(impl.Registers, 0))
	assert.Check(t, is.Equal(countInstrs(s), 0))
}

func TestEliminateDeadCode_KeepsConditions(t *testing.T) {
	s := buildSelect()
	before := countInstrs(s)
	assert.Check(t, !EliminateDeadCode(s))
	assert.Check(t, is.Equal(countInstrs(s), before))
}
