// Package config loads jitkit.toml and the JITKIT_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"jitkit/internal/trace"
)

// FileName is the configuration file searched for by Find.
const FileName = "jitkit.toml"

// Environment overrides.
const (
	EnvTrace    = "JITKIT_TRACE"
	EnvOptLevel = "JITKIT_OPT_LEVEL"
)

var (
	// ErrOptLevel reports a negative [jit].opt_level.
	ErrOptLevel = errors.New("opt_level must be >= 0")
	// ErrJobs reports a negative [gen].jobs.
	ErrJobs = errors.New("jobs must be >= 0")
)

// JIT holds the [jit] section.
type JIT struct {
	OptLevel int `toml:"opt_level"`
}

// Trace holds the [trace] section.
type Trace struct {
	Level  string `toml:"level"`
	Output string `toml:"output"`
	Format string `toml:"format"`
}

// Gen holds the [gen] section.
type Gen struct {
	Output string `toml:"output"`
	Cache  string `toml:"cache"`
	Jobs   int    `toml:"jobs"`
}

// Config is the merged view of defaults, jitkit.toml and the environment.
type Config struct {
	Path  string `toml:"-"`
	JIT   JIT    `toml:"jit"`
	Trace Trace  `toml:"trace"`
	Gen   Gen    `toml:"gen"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		JIT:   JIT{OptLevel: 1},
		Trace: Trace{Level: "off", Output: "-", Format: "auto"},
		Gen:   Gen{Output: "jit_derive.go", Cache: filepath.Join(".jitkit", "cache"), Jobs: runtime.GOMAXPROCS(0)},
	}
}

// Load parses path on top of Default. Keys missing from the file keep
// their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	var file Config
	meta, err := toml.DecodeFile(path, &file)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("jit", "opt_level") {
		if file.JIT.OptLevel < 0 {
			return Config{}, fmt.Errorf("%s: [jit] %w", path, ErrOptLevel)
		}
		cfg.JIT.OptLevel = file.JIT.OptLevel
	}
	if meta.IsDefined("trace", "level") {
		cfg.Trace.Level = strings.TrimSpace(file.Trace.Level)
	}
	if meta.IsDefined("trace", "output") {
		cfg.Trace.Output = strings.TrimSpace(file.Trace.Output)
	}
	if meta.IsDefined("trace", "format") {
		cfg.Trace.Format = strings.TrimSpace(file.Trace.Format)
	}
	if meta.IsDefined("gen", "output") {
		cfg.Gen.Output = strings.TrimSpace(file.Gen.Output)
	}
	if meta.IsDefined("gen", "cache") {
		cfg.Gen.Cache = strings.TrimSpace(file.Gen.Cache)
	}
	if meta.IsDefined("gen", "jobs") {
		if file.Gen.Jobs < 0 {
			return Config{}, fmt.Errorf("%s: [gen] %w", path, ErrJobs)
		}
		if file.Gen.Jobs > 0 {
			cfg.Gen.Jobs = file.Gen.Jobs
		}
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Find walks up from startDir looking for jitkit.toml.
func Find(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Discover loads the nearest jitkit.toml above startDir (or the defaults
// when there is none) and applies the environment.
func Discover(startDir string) (Config, error) {
	cfg := Default()
	path, ok, err := Find(startDir)
	if err != nil {
		return Config{}, err
	}
	if ok {
		if cfg, err = Load(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides the trace level and optimization level from the
// environment. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvTrace); ok && strings.TrimSpace(v) != "" {
		level := strings.TrimSpace(v)
		if _, err := trace.ParseLevel(level); err != nil {
			return fmt.Errorf("%s: %w", EnvTrace, err)
		}
		c.Trace.Level = level
	}
	if v, ok := lookup(EnvOptLevel); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvOptLevel, err)
		}
		if n < 0 {
			return fmt.Errorf("%s: %w", EnvOptLevel, ErrOptLevel)
		}
		c.JIT.OptLevel = n
	}
	return nil
}

func (c *Config) validate() error {
	if _, err := trace.ParseLevel(c.Trace.Level); err != nil {
		return err
	}
	if _, err := trace.ParseFormat(c.Trace.Format); err != nil {
		return err
	}
	return nil
}

// TraceConfig converts the [trace] section into a tracer configuration.
func (c *Config) TraceConfig() (trace.Config, error) {
	level, err := trace.ParseLevel(c.Trace.Level)
	if err != nil {
		return trace.Config{}, err
	}
	format, err := trace.ParseFormat(c.Trace.Format)
	if err != nil {
		return trace.Config{}, err
	}
	return trace.Config{
		Level:      level,
		Format:     format,
		OutputPath: c.Trace.Output,
	}, nil
}

// Tracer builds the tracer described by the [trace] section.
func (c *Config) Tracer() (trace.Tracer, error) {
	tc, err := c.TraceConfig()
	if err != nil {
		return nil, err
	}
	return trace.New(tc)
}
