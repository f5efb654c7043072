// Package config loads and validates the engine configuration.
//
// Precedence: defaults, then the YAML file, then environment variables.
// The agent catalog and routing strategy live here too; SyncStore pushes
// them into SQLite so running workflows read a stable snapshot.
package config
