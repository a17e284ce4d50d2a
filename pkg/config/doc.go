// Package config loads typed configuration from environment variables.
//
// Structs are described with `env` tags understood by caarlos0/env. Load reads
// the default .env file once through godotenv, parses the struct and caches the
// result per type, so every component asking for the same configuration type
// sees the same values. LoadEnv pulls additional env files into the process
// environment before parsing.
//
//	var cfg queue.Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
//
// Reload and ResetCache drop cached values after the environment changes.
package config
