package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gogpu/shaderlower"
	"github.com/gogpu/shaderlower/lower"
	"github.com/gogpu/shaderlower/nir"
	"github.com/gogpu/shaderlower/samples"
)

var lowerCmd = &cobra.Command{
	Use:   "lower [flags] sample",
	Short: "lower a sample shader and print the result.",
	Long: `Build the named sample shader, run the lowering pipeline over it and
	print the IR. Use "shaderlower samples" to list the available names.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			fmt.Println(cmd.UsageString())
			os.Exit(1)
		}
		sample, ok := samples.Lookup(args[0])
		if !ok {
			fmt.Printf("unknown sample %q\n", args[0])
			os.Exit(1)
		}
		opts, err := optionsFromFlags(cmd)
		if err != nil {
			fmt.Println(err)
			os.Exit(2)
		}

		shader := sample.Build()
		if getFlag(cmd, "input") {
			fmt.Print(shader)
			fmt.Println()
		}

		progress, err := shaderlower.Optimize(shader, opts)
		if err != nil {
			log.Error(err)
			os.Exit(3)
		}
		log.WithField("progress", progress).Debugf("lowered %s", sample.Name)

		if err := nir.Print(os.Stdout, shader); err != nil {
			fmt.Println(err)
			os.Exit(4)
		}
	},
}

func optionsFromFlags(cmd *cobra.Command) (shaderlower.Options, error) {
	opts := shaderlower.DefaultOptions()

	doubles, err := lower.ParseDoubleOps(getString(cmd, "doubles"))
	if err != nil {
		return opts, err
	}
	opts.Doubles = doubles
	opts.DeadCode = !getFlag(cmd, "no-dce")
	opts.FromSSA = !getFlag(cmd, "no-from-ssa")
	opts.VecToMovs = opts.FromSSA && !getFlag(cmd, "no-vec-to-movs")
	opts.Validate = !getFlag(cmd, "no-validate")
	return opts, nil
}

func init() {
	rootCmd.AddCommand(lowerCmd)
	lowerCmd.Flags().String("doubles", "all", "double operations to emulate (e.g. rcp,sqrt,floor; all; none)")
	lowerCmd.Flags().Bool("no-dce", false, "skip dead code elimination")
	lowerCmd.Flags().Bool("no-from-ssa", false, "keep SSA form (also disables vec-to-movs)")
	lowerCmd.Flags().Bool("no-vec-to-movs", false, "keep vecN instructions")
	lowerCmd.Flags().Bool("no-validate", false, "skip IR validation between passes")
	lowerCmd.Flags().BoolP("input", "i", false, "print the shader before lowering")
}
