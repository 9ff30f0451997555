package lower

import "github.com/gogpu/shaderlower/nir"

// EliminateDeadCode removes instructions whose results are never read,
// repeating until nothing changes. Local registers that are never read lose
// every write and are then dropped. Global registers and output stores are
// always kept.
func EliminateDeadCode(s *nir.Shader) bool {
	progress := false
	nir.ForeachImpl(s, func(impl *nir.Impl) {
		for dceImpl(impl) {
			progress = true
		}
	})
	return progress
}

func dceImpl(impl *nir.Impl) bool {
	progress := false

	impl.ForeachBlock(func(block *nir.Block) {
		// Walk backwards so a chain of dead values goes in one sweep.
		instrs := block.Instrs()
		for i := len(instrs) - 1; i >= 0; i-- {
			instr := instrs[i]
			if isDeadSSA(instr) {
				nir.RemoveInstr(instr)
				progress = true
				instrs = block.Instrs()
			}
		}
	})

	for _, reg := range append([]*nir.Register(nil), impl.Registers...) {
		if len(reg.Uses()) != 0 || len(reg.IfUses()) != 0 {
			continue
		}
		for _, d := range reg.Defs() {
			nir.RemoveInstr(d.Parent())
		}
		reg.Remove()
		progress = true
	}
	return progress
}

func isDeadSSA(instr nir.Instr) bool {
	if in, ok := instr.(*nir.IntrinsicInstr); ok && in.Op != nir.IntrinsicLoadInput {
		return false
	}
	def := nir.InstrSSADef(instr)
	return def != nil && !def.HasUses()
}
