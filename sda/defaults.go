// Package sda holds application-wide defaults for the sports data agent.
package sda

import (
	"os"
	"path/filepath"
)

const (
	DefaultAppName        = "sda"
	DefaultEnvPrefix      = "SDA"
	DefaultDataFolder     = "1_data"
	DefaultDatabaseDSN    = "file:sports_data.db"
	DefaultDatabaseDriver = "libsql"
	DefaultModelProvider  = "openai"
	DefaultModelName      = "gpt-4o-mini"
	DefaultThreadID       = "thread-demo"
	DefaultCredentials    = "credentials.yaml"
)

// DefaultConfigPath is the per-user config directory, e.g. ~/.config/sda.
var DefaultConfigPath = func() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "."+DefaultAppName)
	}
	return filepath.Join(dir, DefaultAppName)
}()
