// Package config loads, normalizes, and validates shelfscan configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ZOTERO_API_KEY. The Config type centralizes every knob the CLI and the
// dispatch pipeline need so credentials and directories are discovered in one
// pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
