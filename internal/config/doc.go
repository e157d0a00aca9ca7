// Package config handles configuration loading for the insight client.
//
// # Configuration File
//
// Location (first match):
//
//  1. Path from the INSIGHT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/insight/config.yaml (~/.config when unset)
//
// A missing file is not an error: LoadOrDefault falls back to Default().
// Files ending in .toml are parsed as TOML, everything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	service:
//	  jwt_secret: "${INSIGHT_JWT_SECRET}"
//
// # Configuration Sections
//
//	service:
//	  url: "http://localhost:8000/api/chat"
//	  encoding: "multipart"   # multipart, json
//	  token: ""               # static bearer token
//	  jwt_secret: ""          # mint a short-lived HS256 token per request
//	  timeout: "60s"          # "0" waits indefinitely
//
//	storage:
//	  backend: "sqlite"       # memory, sqlite, redis
//	  path: "~/.local/share/insight/insight.db"
//	  driver: "sqlite"        # sqlite (pure Go), sqlite3 (cgo)
//	  redis:
//	    addr: "localhost:6379"
//	    prefix: "insight:"
//
//	logging:
//	  level: "info"           # debug, info, warn, error
//	  format: "text"          # text, json
//	  file: ""                # rotate logs into this file
//
//	ui:
//	  theme: "auto"           # glamour style
//	  page_size: 10           # chart table rows per page
//	  width: 80
//	  default_title: "OFM Sales Analysis"
package config
