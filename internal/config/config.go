// Package config holds the engine configuration: the ordered backend list, CPU
// parallelism, graph rewrites and arena layout. Values come from defaults, an
// optional YAML file and environment variables, applied in that order.
package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/born-ml/composite/internal/backend"
	"github.com/born-ml/composite/internal/parallel"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	// EnvBackends is a comma separated backend list, most specialized first,
	// e.g. "cpu,generic".
	EnvBackends = "BORN_BACKENDS"
	// EnvWorkers overrides Workers; 1 disables parallel kernels.
	EnvWorkers = "BORN_WORKERS"
	// EnvFuse enables or disables activation fusion ("true", "0", ...).
	EnvFuse = "BORN_FUSE"
)

// Config is the engine configuration.
type Config struct {
	Backends        []string `yaml:"backends"`
	Workers         int      `yaml:"workers"`
	MinChunkSize    int      `yaml:"min_chunk_size"`
	FuseActivations bool     `yaml:"fuse_activations"`
	ArenaAlignment  int      `yaml:"arena_alignment"`
}

// Default returns the configuration used when nothing is set: the CPU backend
// backed by the generic one, one worker per CPU.
func Default() Config {
	return Config{
		Backends:        []string{"cpu", "generic"},
		Workers:         runtime.NumCPU(),
		MinChunkSize:    64,
		FuseActivations: true,
		ArenaAlignment:  64,
	}
}

// Load reads a YAML file over the defaults. Keys absent from the file keep their
// default value; unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrap(err, "open config")
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvBackends); ok {
		c.Backends = ParseBackends(v)
	}
	if v, ok := os.LookupEnv(EnvWorkers); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return errors.Wrapf(err, "%s=%q", EnvWorkers, v)
		}
		c.Workers = n
	}
	if v, ok := os.LookupEnv(EnvFuse); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return errors.Wrapf(err, "%s=%q", EnvFuse, v)
		}
		c.FuseActivations = b
	}
	return nil
}

// ParseBackends splits a comma separated list, dropping blanks.
func ParseBackends(list string) []string {
	var names []string
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Validate reports configuration mistakes as *backend.ConfigurationError.
func (c *Config) Validate() error {
	if len(c.Backends) == 0 {
		return backend.Configurationf("no backends configured")
	}
	seen := make(map[string]bool, len(c.Backends))
	for _, name := range c.Backends {
		if seen[name] {
			return backend.Configurationf("backend %q listed twice", name)
		}
		seen[name] = true
	}
	if c.Workers < 1 {
		return backend.Configurationf("workers must be positive, got %d", c.Workers)
	}
	if c.MinChunkSize < 1 {
		return backend.Configurationf("min_chunk_size must be positive, got %d", c.MinChunkSize)
	}
	if c.ArenaAlignment <= 0 || c.ArenaAlignment&(c.ArenaAlignment-1) != 0 {
		return backend.Configurationf("arena_alignment must be a positive power of two, got %d", c.ArenaAlignment)
	}
	return nil
}

// Parallel returns the kernel parallelism settings.
func (c *Config) Parallel() parallel.Config {
	return parallel.Config{
		Enabled:      c.Workers > 1,
		NumWorkers:   c.Workers,
		MinChunkSize: c.MinChunkSize,
	}
}
