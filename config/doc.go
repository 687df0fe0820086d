// Package config loads bridge configuration from WASMBRIDGE_* environment
// variables and an optional YAML file, and converts it into runtime,
// transport and logger settings.
package config
