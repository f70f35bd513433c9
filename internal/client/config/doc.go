// Package config loads runtime configuration for the Quill CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the sync service
//	-i int      background sync interval (seconds)
//	-t int      per-request timeout (seconds)
//	-d string   path to the local database file
//	-o string   path to the log file
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be
// either strings like "30s" or integer nanoseconds:
//
//	{
//	  "endpoint": "https://sync.example.com",
//	  "sync_interval": "30s",
//	  "request_timeout": "15s",
//	  "database_path": "quill.db",
//	  "log_file": "quill.log"
//	}
//
// Note: This package does not read environment variables; use the JSON
// file or flags to configure values.
package config
