// Package config collects wdlrun's ambient settings: host resource limits,
// cache/run directory locations, and the download policy, resolved with
// flag-over-env-over-default precedence.
package config

import (
	"os"
	"runtime"
	"strconv"
)

// Config is the fully resolved set of settings a wdlrun invocation runs
// with. cmd/wdlrun populates one from cobra flags plus the environment
// before constructing the rest of the engine.
type Config struct {
	RunDir   string // where per-call sandboxes are created
	CacheDir string // call cache + download cache root

	HostCPU    int
	HostMemory int64 // bytes; 0 means "auto-detect via the container backend"

	DisregardDownloadQuery bool
	AllowDownloadPrefixes  []string
	DenyDownloadPrefixes   []string

	NoCache bool // bypass the call cache entirely
}

// EnvOrDefault returns the environment variable key's value, or fallback
// if unset/empty.
func EnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// EnvIntOrDefault parses key's value as an int, falling back on absence or
// parse failure.
func EnvIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// Default returns a Config with reasonable defaults: the current directory's
// .wdlrun/{runs,cache} subtrees, and runtime.NumCPU() detected CPUs (memory
// is left at 0 so the container backend's own DetectResourceLimits governs
// unless the caller overrides it).
func Default() Config {
	return Config{
		RunDir:   EnvOrDefault("WDLRUN_DIR", ".wdlrun/runs"),
		CacheDir: EnvOrDefault("WDLRUN_CACHE_DIR", ".wdlrun/cache"),
		HostCPU:  EnvIntOrDefault("WDLRUN_CPU", runtime.NumCPU()),
	}
}
