package lower

import "github.com/gogpu/shaderlower/nir"

// LowerVecToMovs replaces every vecN instruction with single-register moves
// that write its destination channel by channel. Vector destinations must be
// registers: run ConvertFromSSA first.
//
// When a channel reads a register computed by a single ALU instruction that
// is not used anywhere else, that instruction is re-emitted to write the
// vector's destination directly and the temporary register is dropped.
func LowerVecToMovs(s *nir.Shader) bool {
	progress := false
	nir.ForeachImpl(s, func(impl *nir.Impl) {
		impl.ForeachBlock(func(block *nir.Block) {
			block.ForeachInstrSafe(func(instr nir.Instr) {
				vec, ok := instr.(*nir.ALUInstr)
				if !ok || !vec.Op.IsVec() {
					return
				}
				lowerVec(vec)
				progress = true
			})
		})
	})
	return progress
}

func lowerVec(vec *nir.ALUInstr) {
	if vec.Dest.Dest.IsSSA() {
		panic("lower_vec_to_movs: vector destination must be a register")
	}

	finished, dead := coalesceSources(vec)

	// Channels that read the destination register go first, before the
	// other moves can overwrite them.
	for i := range vec.Srcs {
		if !channelActive(vec, i) || finished&(1<<i) != 0 {
			continue
		}
		if srcMatchesDestReg(&vec.Dest.Dest, &vec.Srcs[i].Src) {
			finished |= insertMov(vec, i, finished)
			break
		}
	}

	for i := range vec.Srcs {
		if !channelActive(vec, i) || finished&(1<<i) != 0 {
			continue
		}
		finished |= insertMov(vec, i, finished)
	}

	nir.RemoveInstr(vec)

	for _, reg := range dead {
		if len(reg.Defs()) == 0 && len(reg.Uses()) == 0 && len(reg.IfUses()) == 0 {
			reg.Remove()
		}
	}
}

func channelActive(vec *nir.ALUInstr, i int) bool {
	return vec.Dest.WriteMask&(1<<i) != 0
}

func srcMatchesDestReg(dest *nir.Dest, src *nir.Src) bool {
	if dest.IsSSA() || src.IsSSA() {
		return false
	}
	return dest.Reg.Reg == src.Reg.Reg &&
		dest.Reg.BaseOffset == src.Reg.BaseOffset &&
		dest.Reg.Indirect == nil &&
		src.Reg.Indirect == nil
}

// insertMov emits a move into the vector's destination for channel start and
// every later unfinished channel reading the same source. It returns the
// channels the move writes.
func insertMov(vec *nir.ALUInstr, start int, finished uint8) uint8 {
	mov := nir.NewALU(nir.OpIMov)
	mov.Srcs[0] = vec.Srcs[start].Copy()
	mov.Dest = vec.Dest.Copy()

	mov.Dest.WriteMask = 1 << start
	mov.Srcs[0].Swizzle[start] = vec.Srcs[start].Swizzle[0]

	for i := start + 1; i < len(vec.Srcs); i++ {
		if !channelActive(vec, i) || finished&(1<<i) != 0 {
			continue
		}
		if nir.SrcsEqual(vec.Srcs[i].Src, vec.Srcs[start].Src) {
			mov.Dest.WriteMask |= 1 << i
			mov.Srcs[0].Swizzle[i] = vec.Srcs[i].Swizzle[0]
		}
	}

	nir.InsertInstr(nir.BeforeInstr(vec), mov)
	return mov.Dest.WriteMask
}

// coalesceSources re-emits the computations feeding vec straight into its
// destination where that is safe. It returns the channels it wrote and the
// temporary registers that may now be dead.
func coalesceSources(vec *nir.ALUInstr) (uint8, []*nir.Register) {
	var finished uint8
	var dead []*nir.Register

	// A clone would clobber channels the vector still reads from its own
	// destination.
	for i := range vec.Srcs {
		if channelActive(vec, i) && srcMatchesDestRegOrAliases(&vec.Dest.Dest, &vec.Srcs[i].Src) {
			return 0, nil
		}
	}

	for i := range vec.Srcs {
		if !channelActive(vec, i) || finished&(1<<i) != 0 {
			continue
		}

		// Constants are not propagated.
		src := &vec.Srcs[i].Src
		if src.IsSSA() || src.Reg.Indirect != nil {
			continue
		}
		reg := src.Reg.Reg
		if reg.Global {
			continue
		}

		defs := reg.Defs()
		if len(defs) != 1 {
			continue
		}
		parent, ok := defs[0].Parent().(*nir.ALUInstr)
		if !ok {
			continue
		}
		if parent.Op.IsMov() {
			continue
		}

		channels, ok := coalescableChannels(vec, parent, reg, src)
		if !ok {
			continue
		}

		clone := cloneWithDest(parent, vec, channels)
		nir.InsertInstr(nir.BeforeInstr(vec), clone)
		nir.RemoveInstr(parent)

		finished |= channels
		dead = append(dead, reg)
	}
	return finished, dead
}

// srcMatchesDestRegOrAliases reports whether src may read storage written
// by dest.
func srcMatchesDestRegOrAliases(dest *nir.Dest, src *nir.Src) bool {
	return !src.IsSSA() && src.Reg.Reg == dest.Reg.Reg
}

// coalescableChannels checks that every read of reg happens in vec through
// the same storage parent writes, and returns the channels of vec reading it.
func coalescableChannels(vec, parent *nir.ALUInstr, reg *nir.Register, src *nir.Src) (uint8, bool) {
	if len(reg.IfUses()) != 0 {
		return 0, false
	}
	for _, use := range reg.Uses() {
		if use.ParentInstr() != nir.Instr(vec) {
			return 0, false
		}
	}

	pd := &parent.Dest.Dest
	if pd.Reg.Indirect != nil || pd.Reg.BaseOffset != src.Reg.BaseOffset {
		return 0, false
	}
	if pd.BitSize() != vec.Dest.Dest.BitSize() {
		return 0, false
	}
	if n := parent.Op.Info().OutputSize; n > 1 {
		return 0, false
	}

	var channels uint8
	for j := range vec.Srcs {
		if !channelActive(vec, j) {
			continue
		}
		sj := &vec.Srcs[j].Src
		if sj.IsSSA() || sj.Reg.Reg != reg {
			continue
		}
		if !nir.SrcsEqual(*sj, *src) {
			return 0, false
		}
		lane := vec.Srcs[j].Swizzle[0]
		if parent.Dest.WriteMask&(1<<lane) == 0 {
			return 0, false
		}
		channels |= 1 << j
	}

	if !canSink(parent, vec) {
		return 0, false
	}
	return channels, true
}

// canSink reports whether parent computes the same values when moved down
// to just before vec.
func canSink(parent, vec *nir.ALUInstr) bool {
	block := vec.Block()
	if parent.Block() != block {
		return false
	}
	dest := vec.Dest.Dest.Reg.Reg

	read := make(map[*nir.Register]bool)
	for i := range parent.Srcs {
		s := &parent.Srcs[i].Src
		for s != nil && !s.IsSSA() {
			if s.Reg.Reg == dest {
				return false
			}
			read[s.Reg.Reg] = true
			s = s.Reg.Indirect
		}
	}

	instrs := block.Instrs()
	between := false
	for _, instr := range instrs {
		if instr == nir.Instr(vec) {
			return between
		}
		if instr == nir.Instr(parent) {
			between = true
			continue
		}
		if !between {
			continue
		}
		if d := nir.InstrDest(instr); d != nil && !d.IsSSA() && read[d.Reg.Reg] {
			return false
		}
	}
	return false
}

// cloneWithDest copies parent so that it writes the given channels of vec's
// destination, rerouting each source swizzle to the lane vec reads.
func cloneWithDest(parent, vec *nir.ALUInstr, channels uint8) *nir.ALUInstr {
	clone := nir.NewALU(parent.Op)
	info := parent.Op.Info()

	for k := range parent.Srcs {
		clone.Srcs[k] = parent.Srcs[k].Copy()
		// Dot products broadcast one scalar; their swizzles stay put.
		if info.InputSizes[k] != 0 {
			continue
		}
		for j := range vec.Srcs {
			if channels&(1<<j) == 0 {
				continue
			}
			lane := vec.Srcs[j].Swizzle[0]
			clone.Srcs[k].Swizzle[j] = parent.Srcs[k].Swizzle[lane]
		}
	}

	clone.Dest = vec.Dest.Copy()
	clone.Dest.WriteMask = channels
	return clone
}
