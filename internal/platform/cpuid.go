// Package platform reports capabilities of the host CPU.
package platform

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// CpuFeature is a bit of the ARM64 ID_AA64ISAR0_EL1 register.
type CpuFeature uint64

// CpuFeatureArm64Atomic is the LSE atomic instruction set (ARMv8.1).
const CpuFeatureArm64Atomic CpuFeature = 1 << 21

// CpuFeatureFlags exposes the capabilities of a CPU.
type CpuFeatureFlags interface {
	// Has returns true if the feature is present.
	Has(cpuFeature CpuFeature) bool
	// Raw returns the feature bits known to this package.
	Raw() uint64
}

// CpuFeatures exposes the capabilities of the host CPU.
var CpuFeatures CpuFeatureFlags = loadCpuFeatureFlags(runtime.GOARCH, runtime.GOOS, cpu.ARM64.HasATOMICS)

type cpuFeatureFlags struct {
	isar0 uint64
}

func loadCpuFeatureFlags(goarch, goos string, hasAtomics bool) CpuFeatureFlags {
	if goarch != "arm64" {
		return &cpuFeatureFlags{}
	}
	switch goos {
	case "darwin", "windows":
		// These OSes require ARMv8.1, which includes atomic instructions.
		return &cpuFeatureFlags{isar0: uint64(CpuFeatureArm64Atomic)}
	default:
		if hasAtomics {
			return &cpuFeatureFlags{isar0: uint64(CpuFeatureArm64Atomic)}
		}
		return &cpuFeatureFlags{}
	}
}

// Has implements the same method on the CpuFeatureFlags interface.
func (f *cpuFeatureFlags) Has(cpuFeature CpuFeature) bool {
	return (f.isar0 & uint64(cpuFeature)) != 0
}

// Raw implements the same method on the CpuFeatureFlags interface.
func (f *cpuFeatureFlags) Raw() uint64 {
	var ret uint64
	if f.Has(CpuFeatureArm64Atomic) {
		ret = 1 << 0
	}
	return ret
}
