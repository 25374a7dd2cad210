// Package config loads the server's environment-variable configuration.
package config

import (
	"os"

	"github.com/mstoykov/envconfig"
)

// Config holds the four environment variables that configure the server.
type Config struct {
	ListenURL       string `envconfig:"LISTEN_URL"`
	HealthListenURL string `envconfig:"HEALTH_LISTEN_URL"`
	KeyPath         string `envconfig:"KEY_PATH"`
	CertPath        string `envconfig:"CERT_PATH"`
}

// defaults mirrors the reference server's defaults: a public QUIC listener,
// a loopback-friendly health sidecar, and a local certs/ directory.
func defaults() Config {
	return Config{
		ListenURL:       "0.0.0.0:4433",
		HealthListenURL: "0.0.0.0:8080",
		KeyPath:         "./certs/localhost.key",
		CertPath:        "./certs/localhost.der",
	}
}

// Load reads LISTEN_URL, HEALTH_LISTEN_URL, KEY_PATH and CERT_PATH from the
// environment, falling back to their defaults when unset or empty.
func Load() (Config, error) {
	cfg := Config{}
	if err := envconfig.Process("", &cfg, func(key string) (string, bool) {
		return os.LookupEnv(key)
	}); err != nil {
		return Config{}, err
	}

	def := defaults()
	if cfg.ListenURL == "" {
		cfg.ListenURL = def.ListenURL
	}
	if cfg.HealthListenURL == "" {
		cfg.HealthListenURL = def.HealthListenURL
	}
	if cfg.KeyPath == "" {
		cfg.KeyPath = def.KeyPath
	}
	if cfg.CertPath == "" {
		cfg.CertPath = def.CertPath
	}
	return cfg, nil
}
