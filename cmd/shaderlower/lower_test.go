package main

import (
	"math"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/gogpu/shaderlower/lower"
)

func setFlags(t *testing.T, values map[string]string) {
	t.Helper()
	for name, v := range values {
		flag := lowerCmd.Flags().Lookup(name)
		assert.Assert(t, flag != nil, name)
		old := flag.Value.String()
		assert.NilError(t, lowerCmd.Flags().Set(name, v))
		t.Cleanup(func() { _ = lowerCmd.Flags().Set(name, old) })
	}
}

func TestOptionsFromFlags_Defaults(t *testing.T) {
	opts, err := optionsFromFlags(lowerCmd)
	assert.NilError(t, err)
	assert.Check(t, is.Equal(opts.Doubles, lower.AllDoubleOps))
	assert.Check(t, opts.DeadCode && opts.FromSSA && opts.VecToMovs && opts.Validate)
}

func TestOptionsFromFlags_NoFromSSADisablesVecToMovs(t *testing.T) {
	setFlags(t, map[string]string{"no-from-ssa": "true", "doubles": "floor,rcp"})

	opts, err := optionsFromFlags(lowerCmd)
	assert.NilError(t, err)
	assert.Check(t, is.Equal(opts.Doubles, lower.DFloor|lower.DRcp))
	assert.Check(t, !opts.FromSSA)
	assert.Check(t, !opts.VecToMovs)
}

func TestOptionsFromFlags_BadDoubles(t *testing.T) {
	setFlags(t, map[string]string{"doubles": "exp"})

	_, err := optionsFromFlags(lowerCmd)
	assert.Error(t, err, `unknown double operation "exp"`)
}

func TestUlpDistance(t *testing.T) {
	next := math.Nextafter(1, 2)
	assert.Check(t, is.Equal(ulpDistance(1, 1), uint64(0)))
	assert.Check(t, is.Equal(ulpDistance(1, next), uint64(1)))
	assert.Check(t, is.Equal(ulpDistance(next, 1), uint64(1)))
	assert.Check(t, is.Equal(ulpDistance(0, math.Copysign(0, -1)), uint64(0)))
	assert.Check(t, is.Equal(ulpDistance(math.SmallestNonzeroFloat64, -math.SmallestNonzeroFloat64), uint64(2)))
	assert.Check(t, is.Equal(ulpDistance(math.NaN(), math.NaN()), uint64(0)))
	assert.Check(t, is.Equal(ulpDistance(math.NaN(), 1), uint64(math.MaxUint64)))
}
