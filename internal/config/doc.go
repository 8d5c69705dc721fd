// Package config handles configuration loading for propdesk-gateway.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from PROPDESK_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. $XDG_CONFIG_HOME/propdesk/gateway.yaml (~/.config when unset)
//
// # Environment Variable Expansion
//
// Values can reference environment variables with ${VAR_NAME}:
//
//	gemini:
//	  api_key: "${GEMINI_API_KEY}"
//
// Unset variables expand to the empty string.
//
// # Example
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
//	store:
//	  backend: "redis"            # memory, bolt, sqlite, redis
//	  url: "${REDIS_URL}"         # redis
//	  path: "./data/propdesk.db"  # bolt, sqlite
//
//	gemini:
//	  api_key: "${GEMINI_API_KEY}"
//	  model: "gemini-2.0-flash"
//	  timeout: "60s"
//
//	generation:
//	  temperature: 0.7
//	  max_output_tokens: 2048
//	  condense_chars: 0
//
//	chat:
//	  dedupe_ttl: "10m"
//
//	logging:
//	  level: "info"    # debug, info, warn, error
//	  format: "text"   # text, json
//	  file: ""         # optional rotating JSON log file
//
//	telemetry:
//	  enabled: false
//	  dir: ""          # traces.jsonl / metrics.jsonl; stdout when empty
//
// Only gemini.api_key is required. Everything else has a default.
package config
