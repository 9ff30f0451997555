package main

import (
	"fmt"
	"math"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gogpu/shaderlower/interp"
	"github.com/gogpu/shaderlower/lower"
	"github.com/gogpu/shaderlower/nir"
	"github.com/gogpu/shaderlower/samples"
)

var references = map[nir.Op]func(float64) float64{
	nir.OpFRcp:       func(x float64) float64 { return 1 / x },
	nir.OpFSqrt:      math.Sqrt,
	nir.OpFRsq:       func(x float64) float64 { return 1 / math.Sqrt(x) },
	nir.OpFTrunc:     math.Trunc,
	nir.OpFFloor:     math.Floor,
	nir.OpFCeil:      math.Ceil,
	nir.OpFFract:     func(x float64) float64 { return x - math.Floor(x) },
	nir.OpFRoundEven: math.RoundToEven,
}

var evalCmd = &cobra.Command{
	Use:   "eval [flags] op value...",
	Short: "evaluate a lowered double operation on concrete values.",
	Long: `Lower a single 64-bit operation (frcp, fsqrt, frsq, ftrunc, ffloor,
	fceil, ffract or fround_even), run it in the interpreter on each value and
	compare the result with the Go math package.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) < 2 {
			fmt.Println(cmd.UsageString())
			os.Exit(1)
		}
		op, ok := nir.LookupOp(args[0])
		if !ok || references[op] == nil {
			fmt.Printf("cannot evaluate %q\n", args[0])
			os.Exit(1)
		}

		shader := samples.DoubleOp(op, 1)
		p := &lower.Pipeline{
			Passes:   []lower.Pass{lower.DoublesPass(lower.AllDoubleOps), lower.DeadCodePass()},
			Validate: true,
		}
		if _, err := p.Run(shader); err != nil {
			log.Error(err)
			os.Exit(3)
		}
		impl := shader.Functions[0].Impl

		failed := false
		for _, arg := range args[1:] {
			x, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				fmt.Println(err)
				os.Exit(2)
			}
			st := interp.NewState()
			st.Inputs[0] = [4]uint64{math.Float64bits(x)}
			interp.Run(impl, st)

			got := math.Float64frombits(st.Outputs[0][0])
			want := references[op](x)
			ulps := ulpDistance(got, want)
			status := "ok"
			if ulps > 1 {
				status = "MISMATCH"
				failed = true
			}
			fmt.Printf("%s(%v) = %v (math: %v, %d ulp) %s\n", op, x, got, want, ulps, status)
		}
		if failed {
			os.Exit(4)
		}
	},
}

// ulpDistance counts representable doubles between a and b. NaNs compare
// equal to each other.
func ulpDistance(a, b float64) uint64 {
	if math.IsNaN(a) && math.IsNaN(b) {
		return 0
	}
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.MaxUint64
	}
	ia, ib := orderedBits(a), orderedBits(b)
	if ia > ib {
		return uint64(ia - ib)
	}
	return uint64(ib - ia)
}

func orderedBits(f float64) int64 {
	b := int64(math.Float64bits(f))
	if b < 0 {
		return math.MinInt64 - b
	}
	return b
}

func init() {
	rootCmd.AddCommand(evalCmd)
}
