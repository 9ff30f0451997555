package nir

import (
	"fmt"
	"io"
	"strings"
)

const swizzleChars = "xyzw"

type printer struct {
	w      io.Writer
	indent int
	err    error
}

func (p *printer) line(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, "%s%s\n", strings.Repeat("\t", p.indent), fmt.Sprintf(format, args...))
}

// Print writes a textual dump of s. Blocks and SSA values are renumbered in
// program order first so dumps of equivalent shaders compare equal.
func Print(w io.Writer, s *Shader) error {
	p := &printer{w: w}
	p.line("shader: %s", s.Name)
	for _, reg := range s.Registers {
		p.line("%s", regDecl(reg))
	}
	for _, f := range s.Functions {
		if f.Impl == nil {
			p.line("decl_function %s", f.Name)
			continue
		}
		p.impl(f.Impl)
	}
	return p.err
}

// String returns the dump produced by Print.
func (s *Shader) String() string {
	var sb strings.Builder
	_ = Print(&sb, s)
	return sb.String()
}

func regDecl(reg *Register) string {
	arr := ""
	if reg.NumArrayElems > 0 {
		arr = fmt.Sprintf("[%d]", reg.NumArrayElems)
	}
	return fmt.Sprintf("decl_reg vec%d %d %s%s", reg.NumComponents, reg.BitSize, reg, arr)
}

func (p *printer) impl(impl *Impl) {
	impl.IndexBlocks()
	impl.IndexSSA()
	p.line("")
	p.line("impl %s {", impl.Function.Name)
	p.indent++
	for _, reg := range impl.Registers {
		p.line("%s", regDecl(reg))
	}
	p.cfList(impl.Body)
	p.indent--
	p.line("}")
}

func (p *printer) cfList(l *CFList) {
	for _, node := range l.nodes {
		switch n := node.(type) {
		case *Block:
			p.block(n)
		case *If:
			p.line("if %s {", srcString(&n.Condition))
			p.indent++
			p.cfList(n.Then)
			p.indent--
			p.line("} else {")
			p.indent++
			p.cfList(n.Else)
			p.indent--
			p.line("}")
		}
	}
}

func blockNames(blocks []*Block) string {
	var sb strings.Builder
	for _, b := range blocks {
		fmt.Fprintf(&sb, "block_%d ", b.Index)
	}
	return sb.String()
}

func (p *printer) block(b *Block) {
	p.line("block block_%d:", b.Index)
	p.line("/* preds: %s*/", blockNames(b.Predecessors()))
	for _, instr := range b.instrs {
		p.line("%s", InstrString(instr))
	}
	p.line("/* succs: %s*/", blockNames(b.Successors()))
}

// InstrString formats a single instruction.
func InstrString(instr Instr) string {
	switch in := instr.(type) {
	case *ALUInstr:
		return aluString(in)
	case *PhiInstr:
		parts := make([]string, len(in.Srcs))
		for i, ps := range in.Srcs {
			pred := "?"
			if ps.Pred != nil {
				pred = fmt.Sprintf("block_%d", ps.Pred.Index)
			}
			parts[i] = fmt.Sprintf("%s: %s", pred, srcString(&ps.Src))
		}
		return fmt.Sprintf("%s = phi %s", destString(&in.Dest, 0xf), strings.Join(parts, ", "))
	case *LoadConstInstr:
		n := in.Dest.NumComponents()
		vals := make([]string, n)
		for i := range vals {
			if in.Dest.BitSize() == 64 {
				vals[i] = fmt.Sprintf("0x%016x", in.Value[i])
			} else {
				vals[i] = fmt.Sprintf("0x%08x", in.Value[i])
			}
		}
		return fmt.Sprintf("%s = load_const (%s)", destString(&in.Dest, 0xf), strings.Join(vals, ", "))
	case *IntrinsicInstr:
		var sb strings.Builder
		if IntrinsicInfos[in.Op].HasDest {
			sb.WriteString(destString(&in.Dest, 0xf))
			sb.WriteString(" = ")
		}
		sb.WriteString(in.Op.String())
		srcs := make([]string, len(in.Srcs))
		for i := range in.Srcs {
			srcs[i] = srcString(&in.Srcs[i])
		}
		fmt.Fprintf(&sb, " (%s) (base=%d)", strings.Join(srcs, ", "), in.Base)
		return sb.String()
	}
	panic(fmt.Sprintf("nir: unknown instruction %T", instr))
}

func aluString(a *ALUInstr) string {
	srcs := make([]string, len(a.Srcs))
	for i := range a.Srcs {
		var sb strings.Builder
		sb.WriteString(srcString(&a.Srcs[i].Src))
		sb.WriteByte('.')
		for c := uint8(0); c < 4; c++ {
			if !a.ChannelUsed(i, c) || (a.Dest.Dest.IsSSA() && OpInfos[a.Op].InputSizes[i] == 0 && c >= a.Dest.Dest.SSA.NumComponents) {
				continue
			}
			sb.WriteByte(swizzleChars[a.Srcs[i].Swizzle[c]])
		}
		srcs[i] = sb.String()
	}
	return fmt.Sprintf("%s = %s %s", destString(&a.Dest.Dest, a.Dest.WriteMask), a.Op, strings.Join(srcs, ", "))
}

func destString(d *Dest, writeMask uint8) string {
	if d.SSA != nil {
		return fmt.Sprintf("vec%d %d %s", d.SSA.NumComponents, d.SSA.BitSize, d.SSA)
	}
	var sb strings.Builder
	sb.WriteString(regRefString(&d.Reg))
	if writeMask != 0xf {
		sb.WriteByte('.')
		for c := 0; c < 4; c++ {
			if writeMask&(1<<c) != 0 {
				sb.WriteByte(swizzleChars[c])
			}
		}
	}
	return sb.String()
}

func regRefString(r *RegRef) string {
	s := r.Reg.String()
	switch {
	case r.Indirect != nil:
		s += fmt.Sprintf("[%d + %s]", r.BaseOffset, srcString(r.Indirect))
	case r.Reg.NumArrayElems > 0:
		s += fmt.Sprintf("[%d]", r.BaseOffset)
	}
	return s
}

func srcString(s *Src) string {
	if s.SSA != nil {
		return s.SSA.String()
	}
	return regRefString(&s.Reg)
}
