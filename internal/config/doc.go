// Package config loads server configuration from an optional file and
// ISSUEMATCH_* environment variables.
//
// Keys are nested with dots in files and underscores in the environment:
// cache.ttl in YAML is ISSUEMATCH_CACHE_TTL in the environment. Every key has
// a default, so an empty environment yields a working local setup.
package config
