package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the runtime settings of the inspector.
type Config struct {
	Port          int    `mapstructure:"port"`
	FlightPort    int    `mapstructure:"flight_port"`
	DisableFlight bool   `mapstructure:"disable_flight"`
	DataDir       string `mapstructure:"data_dir"`
	SearchLimit   int    `mapstructure:"search_limit"`
	LogLevel      string `mapstructure:"log_level"`
}

const envPrefix = "MEDS_INSPECT"

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8050)
	v.SetDefault("flight_port", 8082)
	v.SetDefault("disable_flight", false)
	v.SetDefault("data_dir", "")
	v.SetDefault("search_limit", 1000)
	v.SetDefault("log_level", "info")
}

// Load reads the configuration from defaults, the optional file and
// MEDS_INSPECT_* environment variables, in increasing priority.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.SearchLimit <= 0 {
		return nil, fmt.Errorf("search_limit must be positive, got %d", cfg.SearchLimit)
	}
	return &cfg, nil
}

// RootDir returns the dataset root to use when none was given explicitly.
func (c *Config) RootDir(arg string) string {
	if arg != "" {
		return arg
	}
	return c.DataDir
}
