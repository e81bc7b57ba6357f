// Package config loads the server pool configuration from config.yaml and
// environment variables through viper, validates it with ozzo-validation and
// reports valid edits of the file through Loader.Watch.
//
// Environment variables override file values with dots replaced by
// underscores, e.g. SELECTOR_TYPE=least-conn or SERVER_ADDRESS=:9000.
package config
