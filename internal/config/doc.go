// Package config loads, normalizes, and validates avatarforge configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, applies .env files, and honours the
// environment variable names used by the backoffice deployment
// (DATABASE_URL, RESULTS_DIR, PIPER_VOICE_*, SADTALKER_*_DEFAULT).
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
