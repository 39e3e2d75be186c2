package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the gangway CLI. Every field is a
// default for a flag: flags set on the command line beat config values,
// and config values beat the built-in defaults below.
type Config struct {
	Docker  DockerConfig  `mapstructure:"docker"`
	Build   BuildConfig   `mapstructure:"build"`
	Publish PublishConfig `mapstructure:"publish"`
	Verify  VerifyConfig  `mapstructure:"verify"`

	// ManifestFile overrides the first file name probed when locating
	// the bootstrap manifest. Empty keeps the standard candidate order.
	ManifestFile string `mapstructure:"manifest_file"`
}

// DockerConfig selects how the Docker daemon is reached.
type DockerConfig struct {
	// Host is the daemon address (e.g. "unix:///var/run/docker.sock").
	// Empty falls back to DOCKER_HOST and then platform socket detection.
	Host string `mapstructure:"host"`
}

// BuildConfig carries the build flag defaults.
type BuildConfig struct {
	// Pull forces pulling the base image even when it exists locally.
	Pull bool `mapstructure:"pull"`

	// NoCache disables build layer cache reuse.
	NoCache bool `mapstructure:"no_cache"`
}

// PublishConfig bounds the host port range `run` may fall back to when
// the container's bind port is occupied on the host.
type PublishConfig struct {
	PortMin int `mapstructure:"port_min"`
	PortMax int `mapstructure:"port_max"`
}

// VerifyConfig carries the verify flag defaults.
type VerifyConfig struct {
	// Timeout bounds the listening wait and the HTTP probe.
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load reads configuration for the tool: built-in defaults, then the YAML
// file, then environment variables with the GANGWAY_ prefix (nested keys
// joined with underscores, e.g. GANGWAY_DOCKER_HOST, GANGWAY_BUILD_PULL).
//
// With a non-empty path the file must exist and parse. With an empty path
// the default location ($XDG_CONFIG_HOME/gangway/config.yaml, falling back
// to ~/.config) is read when present and silently skipped when absent —
// most installations never create one.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("GANGWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	switch {
	case path != "":
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	default:
		if defaultPath := DefaultPath(); defaultPath != "" {
			if _, err := os.Stat(defaultPath); err == nil {
				v.SetConfigFile(defaultPath)
				if err := v.ReadInConfig(); err != nil {
					return nil, fmt.Errorf("reading config file %s: %w", defaultPath, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

// DefaultPath returns the standard config file location:
// $XDG_CONFIG_HOME/gangway/config.yaml, with ~/.config as the XDG
// fallback. Returns "" when no home directory can be determined.
func DefaultPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "gangway", "config.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("docker.host", "")

	v.SetDefault("build.pull", false)
	v.SetDefault("build.no_cache", false)

	// The fallback range sits above the registered-port floor so scans
	// never collide with well-known service ports.
	v.SetDefault("publish.port_min", 1024)
	v.SetDefault("publish.port_max", 65535)

	v.SetDefault("verify.timeout", 10*time.Second)

	v.SetDefault("manifest_file", "")
}
