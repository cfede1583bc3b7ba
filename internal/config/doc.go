// Package config defines the application's configuration structure and
// loads it from environment variables (QUARRY_ prefix) with optional
// yaml file support. Loaded values are validated before use.
package config
