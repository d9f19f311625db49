// Package config loads the switchboard's optional on-disk configuration,
// following the teacher's yaml.v3 struct-tag style, with environment
// variables layered on top for the handful of values spec §6 expects to be
// overridable without a config file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the switchboard process's full configuration.
type Config struct {
	// Product names the XDG data subdirectory ($XDG_DATA_HOME/<Product>)
	// holding the control socket. Defaults to "switchboard".
	Product string `yaml:"product,omitempty"`

	// ProxyAddr is the shared host:port the ProxyServer binds.
	ProxyAddr string `yaml:"proxy_addr,omitempty"`

	// AdminAddr is the loopback-only host:port the diagnostics admin
	// surface binds. Empty disables it.
	AdminAddr string `yaml:"admin_addr,omitempty"`

	TLS struct {
		CertFile string `yaml:"cert_file,omitempty"`
		KeyFile  string `yaml:"key_file,omitempty"`
	} `yaml:"tls,omitempty"`
}

// Default returns the configuration used when no file is present and no
// environment overrides apply.
func Default() Config {
	return Config{
		Product:   "switchboard",
		ProxyAddr: ":8080",
		AdminAddr: "127.0.0.1:8081",
	}
}

// Load reads path if it exists, falling back to Default when it does not,
// then applies environment overrides. A present-but-malformed file is an
// error; a missing file is not.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SWITCHBOARD_PRODUCT"); v != "" {
		cfg.Product = v
	}
	if v := os.Getenv("SWITCHBOARD_PROXY_ADDR"); v != "" {
		cfg.ProxyAddr = v
	}
	if v := os.Getenv("SWITCHBOARD_ADMIN_ADDR"); v != "" {
		cfg.AdminAddr = v
	}
	if v := os.Getenv("SWITCHBOARD_TLS_CERT_FILE"); v != "" {
		cfg.TLS.CertFile = v
	}
	if v := os.Getenv("SWITCHBOARD_TLS_KEY_FILE"); v != "" {
		cfg.TLS.KeyFile = v
	}
}
