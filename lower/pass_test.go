package lower

import (
	"errors"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/gogpu/shaderlower/nir"
	"github.com/gogpu/shaderlower/samples"
)

func fullPipeline() *Pipeline {
	return &Pipeline{
		Passes: []Pass{
			DoublesPass(AllDoubleOps),
			DeadCodePass(),
			FromSSAPass(),
			VecToMovsPass(),
		},
		Validate: true,
	}
}

// Emulated rcp, sqrt and rsq are only accurate to an ulp.
var approximate = map[string]bool{
	"double_frcp":  true,
	"double_fsqrt": true,
	"double_frsq":  true,
}

func TestPipeline_Samples(t *testing.T) {
	inputs := map[int][4]uint64{
		0: {f64(2.5), f64(-1.75)},
		1: {f32(1), f32(2), f32(3), f32(4)},
		2: {f32(-1), f32(-2), f32(-3), f32(-4)},
	}
	for _, sample := range samples.All() {
		t.Run(sample.Name, func(t *testing.T) {
			before := sample.Build()
			s := sample.Build()

			progress, err := fullPipeline().Run(s)
			assert.NilError(t, err)
			assert.Check(t, progress)
			assert.Check(t, is.Equal(countOps(s, nir.OpVec2, nir.OpVec3, nir.OpVec4), 0))
			for _, block := range mainImpl(s).Blocks() {
				assert.Check(t, is.Len(block.Phis(), 0))
			}

			if !approximate[sample.Name] {
				assert.DeepEqual(t, run(s, inputs), run(before, inputs))
			}
		})
	}
}

func TestPipeline_StopsOnInvalidIR(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	var ran []string
	breakIt := NewPass("break_it", func(s *nir.Shader) bool {
		ran = append(ran, "break_it")
		alu := mainImpl(s).StartBlock().Instrs()[1].(*nir.ALUInstr)
		alu.Dest.WriteMask = 0x1
		return true
	})
	never := NewPass("never", func(s *nir.Shader) bool {
		ran = append(ran, "never")
		return false
	})

	s := nir.NewShader("broken")
	b := nir.NewBuilder(s.AddFunction("main").CreateImpl())
	b.StoreOutput(0, nir.SrcForSSA(b.FNeg(b.LoadInput(0, 4, 32))))

	p := &Pipeline{Passes: []Pass{breakIt, never}, Validate: true}
	progress, err := p.Run(s)
	assert.Check(t, progress)

	var perr *PassError
	assert.Assert(t, errors.As(err, &perr))
	assert.Check(t, is.Equal(perr.Pass, "break_it"))
	assert.Check(t, is.ErrorContains(err, "pass break_it produced invalid IR"))
	assert.DeepEqual(t, ran, []string{"break_it"})

	last := hook.LastEntry()
	assert.Assert(t, last != nil)
	assert.Check(t, is.Equal(last.Level, log.ErrorLevel))
	assert.Check(t, is.Equal(last.Data["pass"], "break_it"))
}

func TestPipeline_RejectsInvalidInput(t *testing.T) {
	s := nir.NewShader("bad")
	b := nir.NewBuilder(s.AddFunction("main").CreateImpl())
	neg := b.FNeg(b.LoadInput(0, 2, 32))
	neg.Parent().(*nir.ALUInstr).Dest.WriteMask = 0x1

	_, err := fullPipeline().Run(s)
	var perr *PassError
	assert.Assert(t, errors.As(err, &perr))
	assert.Check(t, is.Equal(perr.Pass, "input"))
}

func TestPipeline_LogsEachPass(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()
	level := log.GetLevel()
	log.SetLevel(log.DebugLevel)
	defer log.SetLevel(level)

	_, err := fullPipeline().Run(samples.Blend())
	assert.NilError(t, err)

	var names []string
	for _, e := range hook.AllEntries() {
		if e.Message == "pass finished" {
			names = append(names, e.Data["pass"].(string))
		}
	}
	assert.DeepEqual(t, names, []string{"lower_doubles", "opt_dce", "convert_from_ssa", "lower_vec_to_movs"})
}

func TestPipeline_WithoutValidation(t *testing.T) {
	p := &Pipeline{Passes: []Pass{DeadCodePass()}}
	s := nir.NewShader("empty")
	s.AddFunction("main").CreateImpl()

	progress, err := p.Run(s)
	assert.NilError(t, err)
	assert.Check(t, !progress)
}
