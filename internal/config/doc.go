// Package config loads, normalizes, and validates reelscout configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// REELSCOUT_DATA_DIR. The Config type centralizes every knob the daemon and
// CLI need: source endpoints and pacing, sync worker counts, cache TTLs, and
// the list of platforms to reconcile.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
