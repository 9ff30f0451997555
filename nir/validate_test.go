package nir

import (
	"strings"
	"testing"
)

func TestValidate_ValidShader(t *testing.T) {
	impl, _, _ := buildDiamond(t)
	if errs := Validate(impl.Shader()); errs != nil {
		t.Errorf("Valid shader has validation errors:")
		for _, e := range errs {
			t.Errorf("  - %s", e.Error())
		}
	}
}

func TestValidate_RegisterForm(t *testing.T) {
	s, impl, b := newTestImpl("regs")
	r := impl.NewRegister(4, 32)
	g := s.NewGlobalRegister(2, 32)

	mov := NewALU(OpIMov)
	mov.Srcs[0].Src = SrcForSSA(b.ImmFloat(1))
	mov.Srcs[0].Swizzle = [4]uint8{0, 0, 0, 0}
	mov.Dest = ALUDest{Dest: DestForReg(r), WriteMask: 0x5}
	b.Insert(mov)

	add := NewALU(OpFAdd)
	add.Srcs[0].Src = SrcForReg(r)
	add.Srcs[1].Src = SrcForReg(r)
	add.Dest = ALUDest{Dest: DestForReg(g), WriteMask: 0x3}
	b.Insert(add)

	if errs := Validate(s); errs != nil {
		t.Fatalf("Unexpected validation errors: %v", errs)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(impl *Impl, b *Builder)
		want   string
	}{
		{
			name: "partial SSA write mask",
			mutate: func(impl *Impl, b *Builder) {
				v := b.FNeg(b.LoadInput(0, 4, 32))
				v.Parent().(*ALUInstr).Dest.WriteMask = 0x3
			},
			want: "must write every channel",
		},
		{
			name: "swizzle out of range",
			mutate: func(impl *Impl, b *Builder) {
				v := b.FNeg(b.LoadInput(0, 2, 32))
				v.Parent().(*ALUInstr).Srcs[0].Swizzle[1] = 3
			},
			want: "swizzles channel 3",
		},
		{
			name: "source bit size",
			mutate: func(impl *Impl, b *Builder) {
				add := NewALU(OpFAdd)
				add.Srcs[0].Src = SrcForSSA(b.ImmFloat(1))
				add.Srcs[1].Src = SrcForSSA(b.ImmDouble(1))
				impl.NewSSADest(&add.Dest.Dest, 1, 32)
				add.Dest.WriteMask = 1
				b.Insert(add)
			},
			want: "is 64-bit, expected 32-bit",
		},
		{
			name: "register write mask",
			mutate: func(impl *Impl, b *Builder) {
				r := impl.NewRegister(2, 32)
				mov := NewALU(OpIMov)
				mov.Srcs[0].Src = SrcForSSA(b.ImmFloat(1))
				mov.Dest = ALUDest{Dest: DestForReg(r), WriteMask: 0x4}
				b.Insert(mov)
			},
			want: "does not fit",
		},
		{
			name: "array offset",
			mutate: func(impl *Impl, b *Builder) {
				r := impl.NewRegister(1, 32)
				r.NumArrayElems = 2
				mov := NewALU(OpIMov)
				mov.Srcs[0].Src = SrcForSSA(b.ImmFloat(1))
				mov.Dest = ALUDest{Dest: Dest{Reg: RegRef{Reg: r, BaseOffset: 2}}, WriteMask: 1}
				b.Insert(mov)
			},
			want: "out of bounds",
		},
		{
			name: "stale use",
			mutate: func(impl *Impl, b *Builder) {
				x := b.ImmFloat(1)
				neg := b.FNeg(x)
				// Detach the instruction without unlinking it.
				block := neg.Parent().Block()
				block.instrs = block.instrs[:len(block.instrs)-1]
			},
			want: "not a live source",
		},
		{
			name: "phi without predecessor source",
			mutate: func(impl *Impl, b *Builder) {
				x := b.ImmFloat(1)
				n := b.PushIf(b.FLt(x, x))
				b.PopIf(n)
				phi := NewPhi()
				phi.AddSrc(n.Then.LastBlock(), SrcForSSA(x))
				impl.NewSSADest(&phi.Dest, 1, 32)
				b.Insert(phi)
			},
			want: "phi has 1 sources for 2 predecessors",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, impl, b := newTestImpl(tt.name)
			tt.mutate(impl, b)
			errs := Validate(s)
			if len(errs) == 0 {
				t.Fatal("Expected validation errors, got none")
			}
			found := false
			for _, e := range errs {
				if strings.Contains(e.Error(), tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected an error containing %q, got %v", tt.want, errs)
			}
		})
	}
}

func TestValidationError_Format(t *testing.T) {
	e := ValidationError{Message: "bad", Function: "main", Block: 2, Instr: "x"}
	if got := e.Error(); got != `in function main, block 2, instruction "x": bad` {
		t.Errorf("Unexpected message %q", got)
	}
	e = ValidationError{Message: "bad", Function: "main", Block: -1}
	if got := e.Error(); got != "in function main: bad" {
		t.Errorf("Unexpected message %q", got)
	}
}
