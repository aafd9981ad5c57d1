package platform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCpuFeatureFlags(t *testing.T) {
	for _, tc := range []struct {
		name       string
		goarch     string
		goos       string
		hasAtomics bool
		exp        bool
	}{
		{name: "amd64", goarch: "amd64", goos: "linux", hasAtomics: true, exp: false},
		{name: "darwin", goarch: "arm64", goos: "darwin", exp: true},
		{name: "windows", goarch: "arm64", goos: "windows", exp: true},
		{name: "linux with lse", goarch: "arm64", goos: "linux", hasAtomics: true, exp: true},
		{name: "linux without lse", goarch: "arm64", goos: "linux", exp: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := loadCpuFeatureFlags(tc.goarch, tc.goos, tc.hasAtomics)
			require.Equal(t, tc.exp, f.Has(CpuFeatureArm64Atomic))
			if tc.exp {
				require.Equal(t, uint64(1), f.Raw())
			} else {
				require.Zero(t, f.Raw())
			}
		})
	}
}
