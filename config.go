package a64

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"

	"github.com/tetratelabs/a64/internal/platform"
)

// TargetConfig controls the capabilities of the target CPU and how a Backend compiles, with
// the default implementation as NewTargetConfig.
//
// TargetConfig is immutable: every With method returns a modified copy.
type TargetConfig struct {
	lse         bool
	parallelism int
	logger      *slog.Logger
}

// defaultTargetConfig helps avoid copy/pasting the wrong defaults.
var defaultTargetConfig = &TargetConfig{
	parallelism: runtime.GOMAXPROCS(0),
	logger:      slog.New(slog.DiscardHandler),
}

// clone ensures all fields are copied even if nil.
func (c *TargetConfig) clone() *TargetConfig {
	return &TargetConfig{
		lse:         c.lse,
		parallelism: c.parallelism,
		logger:      c.logger,
	}
}

// NewTargetConfig returns a config for a baseline ARMv8.0 target: atomics use exclusive
// load/store loops, functions compile in parallel on all CPUs, and nothing is logged.
func NewTargetConfig() *TargetConfig {
	return defaultTargetConfig.clone()
}

// WithLSE enables the ARMv8.1 Large System Extension atomic instructions (cas, ldadd, swp...).
// Code compiled with it raises an undefined instruction fault on CPUs without LSE.
func (c *TargetConfig) WithLSE(lse bool) *TargetConfig {
	ret := c.clone()
	ret.lse = lse
	return ret
}

// WithParallelism bounds the number of functions Backend.CompileModule compiles at once.
// Values below one mean one.
func (c *TargetConfig) WithParallelism(n int) *TargetConfig {
	if n < 1 {
		n = 1
	}
	ret := c.clone()
	ret.parallelism = n
	return ret
}

// WithLogger sets the logger of compilation events. Defaults to discarding if nil.
func (c *TargetConfig) WithLogger(logger *slog.Logger) *TargetConfig {
	if logger == nil {
		logger = defaultTargetConfig.logger
	}
	ret := c.clone()
	ret.logger = logger
	return ret
}

// WithHostFeatures enables the features of the CPU this process runs on. Use it when the
// compiled code runs on the compiling host.
func (c *TargetConfig) WithHostFeatures() *TargetConfig {
	return c.withFeatures(platform.CpuFeatures)
}

func (c *TargetConfig) withFeatures(flags platform.CpuFeatureFlags) *TargetConfig {
	return c.WithLSE(flags.Has(platform.CpuFeatureArm64Atomic))
}

const (
	// EnvLSE overrides WithLSE when set, e.g. A64_LSE=1.
	EnvLSE = "A64_LSE"
	// EnvParallelism overrides WithParallelism when set to an integer.
	EnvParallelism = "A64_PARALLELISM"
)

// WithEnv returns a copy overridden by the EnvLSE and EnvParallelism environment variables.
// Unset variables keep the current values.
func (c *TargetConfig) WithEnv() *TargetConfig {
	ret := c.clone()
	if env.Has(EnvLSE) {
		ret.lse = env.Bool(EnvLSE)
	}
	if env.Has(EnvParallelism) {
		if n := env.Int(EnvParallelism, ret.parallelism); n > 0 {
			ret.parallelism = n
		}
	}
	return ret
}

// LSE returns true if atomics use the ARMv8.1 instructions.
func (c *TargetConfig) LSE() bool { return c.lse }

// Parallelism returns the maximum number of functions compiled at once.
func (c *TargetConfig) Parallelism() int { return c.parallelism }

// targetConfigFile is the YAML form of a TargetConfig.
type targetConfigFile struct {
	LSE         *bool `yaml:"lse"`
	Parallelism *int  `yaml:"parallelism"`
}

// LoadTargetConfig reads a YAML document such as
//
//	lse: true
//	parallelism: 4
//
// on top of NewTargetConfig. Unknown fields are rejected.
func LoadTargetConfig(r io.Reader) (*TargetConfig, error) {
	var f targetConfigFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("loading target config: %w", err)
	}

	ret := NewTargetConfig()
	if f.LSE != nil {
		ret = ret.WithLSE(*f.LSE)
	}
	if f.Parallelism != nil {
		if *f.Parallelism < 1 {
			return nil, fmt.Errorf("loading target config: parallelism %d must be positive", *f.Parallelism)
		}
		ret = ret.WithParallelism(*f.Parallelism)
	}
	return ret, nil
}
