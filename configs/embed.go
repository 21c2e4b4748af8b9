// Package configs embeds the files written by `ha-backup-source init`.
package configs

import _ "embed"

// ConfigYAML is the starter config.yaml with example backup entities.
//
//go:embed config.example.yaml
var ConfigYAML []byte

// EnvExample is the starter .env holding the connection settings.
//
//go:embed .env.example
var EnvExample []byte
