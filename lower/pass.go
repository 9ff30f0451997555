// Package lower implements IR-to-IR passes over nir shaders: build-vector
// lowering, double-precision emulation, conversion out of SSA and dead code
// elimination, plus a Pipeline that runs them in order.
package lower

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gogpu/shaderlower/nir"
)

// Pass rewrites a shader in place and reports whether it changed anything.
type Pass interface {
	Name() string
	Run(s *nir.Shader) bool
}

type funcPass struct {
	name string
	fn   func(*nir.Shader) bool
}

func (p funcPass) Name() string { return p.name }
func (p funcPass) Run(s *nir.Shader) bool { return p.fn(s) }

// NewPass wraps a function as a Pass.
func NewPass(name string, fn func(*nir.Shader) bool) Pass {
	return funcPass{name: name, fn: fn}
}

// VecToMovsPass lowers build-vector instructions to moves.
func VecToMovsPass() Pass {
	return NewPass("lower_vec_to_movs", LowerVecToMovs)
}

// DoublesPass emulates the double-precision operations in ops.
func DoublesPass(ops DoubleOps) Pass {
	return NewPass("lower_doubles", func(s *nir.Shader) bool {
		return LowerDoubles(s, ops)
	})
}

// FromSSAPass moves SSA values into registers.
func FromSSAPass() Pass {
	return NewPass("convert_from_ssa", ConvertFromSSA)
}

// DeadCodePass removes unused computations.
func DeadCodePass() Pass {
	return NewPass("opt_dce", EliminateDeadCode)
}

// PassError reports a shader left invalid by a pass.
type PassError struct {
	Pass   string
	Errors []nir.ValidationError
}

// Error implements the error interface.
func (e *PassError) Error() string {
	return fmt.Sprintf("pass %s produced invalid IR: %v (%d errors)", e.Pass, e.Errors[0], len(e.Errors))
}

// Pipeline runs passes in order, optionally validating after each one.
type Pipeline struct {
	Passes   []Pass
	Validate bool
}

// Run applies every pass to s. It stops at the first pass that leaves the
// shader invalid and reports whether any pass made progress.
func (p *Pipeline) Run(s *nir.Shader) (bool, error) {
	if p.Validate {
		if errs := nir.Validate(s); errs != nil {
			return false, &PassError{Pass: "input", Errors: errs}
		}
	}

	progress := false
	for _, pass := range p.Passes {
		start := time.Now()
		changed := pass.Run(s)
		progress = progress || changed

		log.WithFields(log.Fields{
			"pass":     pass.Name(),
			"shader":   s.Name,
			"progress": changed,
			"elapsed":  time.Since(start),
		}).Debug("pass finished")

		if !p.Validate {
			continue
		}
		if errs := nir.Validate(s); errs != nil {
			log.WithField("pass", pass.Name()).Errorf("validation failed: %v", errs[0])
			return progress, &PassError{Pass: pass.Name(), Errors: errs}
		}
	}
	return progress, nil
}
