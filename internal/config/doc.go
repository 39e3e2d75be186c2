// Package config loads the gangway CLI's own configuration: the layer of
// flag defaults beneath the command line.
//
// Precedence, highest first: command-line flags, GANGWAY_-prefixed
// environment variables, an optional YAML file
// ($XDG_CONFIG_HOME/gangway/config.yaml or an explicit --config path),
// built-in defaults.
//
// This is tool configuration only — which daemon to talk to, build flag
// defaults, the publish port range, verify timeouts. Everything about the
// application being bootstrapped lives in its bootstrap.json manifest,
// handled by the manifest package.
package config
