// Command shaderlower runs the shader lowering pipeline on sample shaders.
//
// Usage:
//
//	shaderlower samples                       # List the sample shaders
//	shaderlower lower blend                   # Lower a sample and print it
//	shaderlower lower --doubles rcp,floor blend
//	shaderlower eval frcp -- 3 0.5 -0         # Compare lowered doubles with math
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
