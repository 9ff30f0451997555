// Package snapshot_test provides golden snapshot tests for lowered samples.
//
// Each sample listed in goldenSamples is lowered with the default pipeline
// and its IR dump compared to testdata/golden/<name>.nir.
//
// To regenerate golden files after intentional changes:
//
//	UPDATE_GOLDEN=1 go test ./snapshot/...
package snapshot_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gogpu/shaderlower"
	"github.com/gogpu/shaderlower/samples"
)

// goldenSamples are the samples whose lowered form is pinned. The double
// samples are covered numerically in the lower package instead.
var goldenSamples = []string{
	"vec_coalesce",
	"vec_self_overwrite",
}

func TestSnapshots(t *testing.T) {
	for _, name := range goldenSamples {
		t.Run(name, func(t *testing.T) {
			sample, ok := samples.Lookup(name)
			if !ok {
				t.Fatalf("unknown sample %q", name)
			}
			shader := sample.Build()
			if _, err := shaderlower.Optimize(shader, shaderlower.DefaultOptions()); err != nil {
				t.Fatalf("lower %s: %v", name, err)
			}
			compareGolden(t, filepath.Join("testdata", "golden", name+".nir"), shader.String())
		})
	}
}

// compareGolden compares actual output with a golden file.
// If UPDATE_GOLDEN env var is set, writes actual output as the new golden.
func compareGolden(t *testing.T, path, actual string) {
	t.Helper()

	if os.Getenv("UPDATE_GOLDEN") != "" {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			t.Fatalf("create golden dir: %v", mkErr)
		}
		if wErr := os.WriteFile(path, []byte(actual), 0o644); wErr != nil {
			t.Fatalf("write golden file: %v", wErr)
		}
		t.Logf("updated golden file: %s", path)
		return
	}

	expected, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		t.Fatalf("golden file missing: %s\nRun with UPDATE_GOLDEN=1 to create.\n\nActual output:\n%s", path, actual)
	}
	if err != nil {
		t.Fatalf("read golden file %s: %v", path, err)
	}

	// Git may convert \n to \r\n on Windows checkout.
	expectedStr := strings.ReplaceAll(string(expected), "\r\n", "\n")
	if diff := cmp.Diff(expectedStr, actual); diff != "" {
		t.Errorf("output differs from golden %s (-want +got):\n%s", path, diff)
	}
}
