package lower

import "github.com/gogpu/shaderlower/nir"

// ConvertFromSSA moves every SSA value except constants into a fresh local
// register. Each phi becomes a copy into its register at the end of every
// predecessor block. The control flow is structured and loop-free, so no
// edge needs splitting and copies never interfere.
func ConvertFromSSA(s *nir.Shader) bool {
	progress := false
	nir.ForeachImpl(s, func(impl *nir.Impl) {
		if convertImplFromSSA(impl) {
			progress = true
		}
	})
	return progress
}

func convertImplFromSSA(impl *nir.Impl) bool {
	blocks := impl.Blocks()
	progress := false

	// Phis first: their copies must exist before the sources they read are
	// themselves moved to registers.
	for _, block := range blocks {
		for _, phi := range block.Phis() {
			lowerPhiToCopies(impl, phi)
			progress = true
		}
	}

	for _, block := range blocks {
		block.ForeachInstrSafe(func(instr nir.Instr) {
			def := nir.InstrSSADef(instr)
			if def == nil {
				return
			}
			if _, ok := instr.(*nir.LoadConstInstr); ok {
				return
			}
			reg := impl.NewRegister(def.NumComponents, def.BitSize)
			def.RewriteUses(nir.SrcForReg(reg))
			nir.SetDestReg(instr, reg)
			progress = true
		})
	}
	return progress
}

func lowerPhiToCopies(impl *nir.Impl, phi *nir.PhiInstr) {
	def := phi.Dest.SSA
	reg := impl.NewRegister(def.NumComponents, def.BitSize)

	for _, ps := range phi.Srcs {
		mov := nir.NewALU(nir.OpIMov)
		mov.Srcs[0].Src = ps.Src.Copy()
		mov.Dest = nir.ALUDest{
			Dest:      nir.DestForReg(reg),
			WriteMask: uint8(1)<<def.NumComponents - 1,
		}
		nir.InsertInstr(nir.AfterBlock(ps.Pred), mov)
	}

	def.RewriteUses(nir.SrcForReg(reg))
	nir.RemoveInstr(phi)
}
