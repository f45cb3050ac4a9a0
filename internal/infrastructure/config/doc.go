// Package config handles loading and validating service configuration.
//
// Configuration resolves in layers: hardcoded defaults, an optional YAML
// file, then LABCLINICO_* environment variables. A .env file is honoured
// for local development via godotenv.
//
// Sensitive values (the JWT signing secret above all) should come from the
// environment, never from a committed config file.
package config
