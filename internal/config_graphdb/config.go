// Package config_graphdb resolves environment-open options (max mapped size,
// read-only flag, open timeout, enable-version flag; max sub-dbs and the
// reader-slot ceiling are not configurable here) from a TOML
// config file, environment variables (GRAPHDB_ prefix), and defaults, the way
// the teacher's internal/config resolves settings via spf13/viper with
// env-var binding layered on top of viper's own TOML codec (see
// internal/config/decision.go's RegisterDecisionDefaults/GetDecisionSettings
// pattern, which this package follows for its own, much smaller, key set).
package config_graphdb

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Viper keys for environment-open options.
const (
	KeyMaxMapSize        = "environment.max-map-size"
	KeyReadOnly          = "environment.read-only"
	KeyOpenTimeout       = "environment.open-timeout"
	KeyVersioningEnabled = "environment.versioning-enabled"
)

// EnvOptions mirrors the root package's Options, decoupling the config
// loader from the public API package so internal/config_graphdb never
// imports the root module (which would be a cycle).
type EnvOptions struct {
	MaxMapSize        int64
	ReadOnly          bool
	OpenTimeout       time.Duration
	VersioningEnabled bool
}

func registerDefaults(v *viper.Viper) {
	v.SetDefault(KeyMaxMapSize, int64(0)) // 0 == bbolt's own default mmap growth
	v.SetDefault(KeyReadOnly, false)
	v.SetDefault(KeyOpenTimeout, "2s")
	v.SetDefault(KeyVersioningEnabled, true)
}

// Load resolves environment-open options from (in ascending precedence) a
// built-in default, an optional TOML config file at configPath (skipped if
// empty or absent), and GRAPHDB_-prefixed environment variables.
func Load(configPath string) (EnvOptions, error) {
	v := viper.New()
	registerDefaults(v)

	v.SetEnvPrefix("GRAPHDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return EnvOptions{}, err
			}
		}
	}

	return EnvOptions{
		MaxMapSize:        v.GetInt64(KeyMaxMapSize),
		ReadOnly:          v.GetBool(KeyReadOnly),
		OpenTimeout:       v.GetDuration(KeyOpenTimeout),
		VersioningEnabled: v.GetBool(KeyVersioningEnabled),
	}, nil
}
