// Package config loads the gateway's runtime configuration from a
// ".env" file plus environment variable overrides.
//
// Grounded on the teacher's cmd/main.go, which calls godotenv.Load() in
// its cobra PersistentPreRunE before any subcommand runs.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every gateway knob sourced from the environment.
type Config struct {
	// CertDir is the directory certstore.Open watches for
	// server.crt/server.key/ca.crt.
	CertDir string
	// DefaultChannel is the Meshtastic channel index new transfers are
	// sent on when the caller doesn't specify one.
	DefaultChannel int
	// HopLimit bounds how many times the mesh will relay a packet.
	HopLimit int
	// Verbose raises the logger's minimum level to debug.
	Verbose bool
	// ExportOutputPath is where `gatewayctl export` writes onboarding
	// bundles by default.
	ExportOutputPath string
}

const (
	defaultCertDir          = "./certs"
	defaultChannel          = 0
	defaultHopLimit         = 3
	defaultExportOutputPath = "./export"
)

// Load reads envFile (if it exists) into the process environment via
// godotenv, then builds a Config from the resulting environment,
// falling back to defaults for anything unset. A missing envFile is not
// an error — the teacher's own PersistentPreRunE treats ".env" as
// optional local-development convenience, not a hard requirement.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	hopLimit, err := intEnv("GATEWAY_HOP_LIMIT", defaultHopLimit)
	if err != nil {
		return nil, err
	}
	channel, err := intEnv("GATEWAY_DEFAULT_CHANNEL", defaultChannel)
	if err != nil {
		return nil, err
	}

	return &Config{
		CertDir:          stringEnv("GATEWAY_CERT_DIR", defaultCertDir),
		DefaultChannel:   channel,
		HopLimit:         hopLimit,
		Verbose:          boolEnv("GATEWAY_VERBOSE", false),
		ExportOutputPath: stringEnv("GATEWAY_EXPORT_PATH", defaultExportOutputPath),
	}, nil
}

func stringEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer: %w", key, v, err)
	}
	return n, nil
}

func boolEnv(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
