// Package config loads, normalizes, and validates afterlive configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads an optional .env file, and honours
// environment fallbacks for credentials. The Config type centralizes every knob
// the daemon and CLI need, including the per-room rules and their conditions.
//
// Condition items are checked against the session attribute table while the
// file is loaded, so a typo in a room rule stops the daemon at startup instead
// of silently never matching.
package config
