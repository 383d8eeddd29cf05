// Package config handles configuration loading for coven-fleet.
//
// # Overview
//
// Configuration is read from a YAML or TOML file (chosen by the .toml
// extension) on top of built-in defaults, so a file only needs the keys it
// changes. Every startup prompt offers the loaded value as its default.
//
// # Configuration File
//
// Locations (in order):
//
//  1. --config flag
//  2. Path from COVEN_FLEET_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/coven/fleet.yaml (or ~/.config/coven/fleet.yaml)
//
// A missing file at the default location means the built-in defaults; an
// explicitly named file must exist.
//
// # Environment Variable Expansion
//
// Values can reference environment variables:
//
//	bridge:
//	  secret: "${COVEN_BRIDGE_SECRET}"
//
// # Example
//
//	server:
//	  host: "localhost"
//	  port: 25565
//	  version: "1.21"
//
//	fleet:
//	  count: 5
//	  spawn_delay: "2s"
//	  drain_timeout: "10s"
//	  username_prefix: "TestBot_"
//	  auth_commands:
//	    - "/register {name}"
//	    - "/login {name}"
//
//	bridge:
//	  url: "ws://localhost:8765"
//	  request_timeout: "10s"
//	  chat_rate: 2
//	  chat_burst: 3
//
//	journal:
//	  path: "${HOME}/.local/share/coven/fleet.db"
//
//	logging:
//	  level: "warn"     # debug, info, warn, error
//	  format: "text"    # text, json
//	  output: "stderr"  # stderr, stdout, or a file path
package config
