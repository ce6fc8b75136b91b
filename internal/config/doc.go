// Package config handles configuration loading for quip-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML file, or a TOML file when the path ends
// in .toml, with environment variable expansion. Unset fields get defaults and
// the result is validated before use.
//
// # Configuration File
//
// The CLI looks for the file in this order:
//
//  1. Path from the QUIP_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/quip/gateway.yaml (~/.config/quip/gateway.yaml)
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${QUIP_JWT_SECRET}"
//
// Unset variables expand to an empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	transport:
//	  keepalive_interval: "30s"
//	  session_idle_timeout: "30m"   # "0s" disables the idle timeout
//	tools:
//	  request_timeout: "10s"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "localhost:8080"
//	  name: "quip-gateway"
//	  version: "1.0.0"
//
//	transport:
//	  mode: "both"            # single, streaming or both
//	  batch_concurrency: 8
//
//	tools:
//	  retry_max: 2
//	  user_agent: "quip-gateway"
//	  disabled: ["facts"]     # pack IDs to skip
//	  endpoints:
//	    dad_jokes: "https://icanhazdadjoke.com"
//
//	database:
//	  path: "/var/lib/quip/calls.db"   # empty disables call recording
//
//	auth:
//	  jwt_secret: ""          # empty disables bearer auth
//
//	tailscale:
//	  enabled: false
//	  hostname: "quip"
//	  funnel: false
//
//	logging:
//	  level: "info"           # debug, info, warn, error
//	  format: "text"          # text or json
package config
