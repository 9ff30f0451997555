// Package shaderlower lowers shader IR for hardware without native vector
// construction or 64-bit float transcendentals.
//
// The IR lives in the nir package, the individual passes in lower, and a
// reference interpreter for checking results in interp. This package wires
// the passes into the order a backend expects:
//
//  1. lower_doubles      emulate selected double-precision operations
//  2. opt_dce            drop values left unused by the expansion
//  3. convert_from_ssa   move values into registers
//  4. lower_vec_to_movs  split vector construction into per-channel moves
//
// Example usage:
//
//	shader := samples.Blend()
//	if _, err := shaderlower.Optimize(shader, shaderlower.DefaultOptions()); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(shader)
package shaderlower

import (
	"fmt"

	"github.com/gogpu/shaderlower/lower"
	"github.com/gogpu/shaderlower/nir"
)

// Options configures the lowering pipeline.
type Options struct {
	// Doubles selects the double-precision operations to emulate.
	Doubles lower.DoubleOps

	// DeadCode removes unused values after double lowering.
	DeadCode bool

	// FromSSA converts SSA values to registers. VecToMovs requires it.
	FromSSA bool

	// VecToMovs lowers vecN instructions to per-channel moves.
	VecToMovs bool

	// Validate checks the IR before the first pass and after every pass.
	Validate bool
}

// DefaultOptions lowers everything and validates after each pass.
func DefaultOptions() Options {
	return Options{
		Doubles:   lower.AllDoubleOps,
		DeadCode:  true,
		FromSSA:   true,
		VecToMovs: true,
		Validate:  true,
	}
}

// NewPipeline returns the passes selected by opts in pipeline order.
func NewPipeline(opts Options) (*lower.Pipeline, error) {
	if opts.VecToMovs && !opts.FromSSA {
		return nil, fmt.Errorf("lower_vec_to_movs needs register destinations: enable FromSSA")
	}

	p := &lower.Pipeline{Validate: opts.Validate}
	if opts.Doubles != 0 {
		p.Passes = append(p.Passes, lower.DoublesPass(opts.Doubles))
	}
	if opts.DeadCode {
		p.Passes = append(p.Passes, lower.DeadCodePass())
	}
	if opts.FromSSA {
		p.Passes = append(p.Passes, lower.FromSSAPass())
	}
	if opts.VecToMovs {
		p.Passes = append(p.Passes, lower.VecToMovsPass())
	}
	return p, nil
}

// Optimize runs the pipeline selected by opts over s in place and reports
// whether any pass changed it.
func Optimize(s *nir.Shader, opts Options) (bool, error) {
	p, err := NewPipeline(opts)
	if err != nil {
		return false, fmt.Errorf("invalid options: %w", err)
	}
	progress, err := p.Run(s)
	if err != nil {
		return progress, fmt.Errorf("lowering %s: %w", s.Name, err)
	}
	return progress, nil
}
