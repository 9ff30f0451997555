package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gogpu/shaderlower/samples"
)

var samplesCmd = &cobra.Command{
	Use:   "samples",
	Short: "list the built-in sample shaders.",
	Run: func(cmd *cobra.Command, args []string) {
		for _, s := range samples.All() {
			fmt.Printf("%-22s %s\n", s.Name, s.Description)
		}
	},
}

func init() {
	rootCmd.AddCommand(samplesCmd)
}
