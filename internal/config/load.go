package config

import (
	"errors"
	"io/fs"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

// Load builds a Config layered flags > environment > optional YAML file >
// defaults (highest precedence first), following the viper wiring pattern
// used across the example pack. configPath may be empty, in which case
// only a "config.yaml" in the working directory (if present) is read.
func Load(configPath string, flagOverrides map[string]any) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COMPARE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	setDefaults(v, def)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
		// No config file is fine: defaults + env + flags still apply.
	}

	for key, val := range flagOverrides {
		v.Set(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, def Config) {
	// One default per leaf key ("threaded.port", ...), so env/file/flag
	// values for a single field overlay the defaults instead of replacing a
	// whole section, and so Unmarshal knows every key AutomaticEnv may serve.
	for section, val := range map[string]any{"threaded": def.Threaded, "hybrid": def.Hybrid, "eventloop": def.EventLoop, "benchmark": def.Benchmark} {
		rv := reflect.ValueOf(val)
		for i := 0; i < rv.NumField(); i++ {
			v.SetDefault(section+"."+rv.Type().Field(i).Tag.Get("mapstructure"), rv.Field(i).Interface())
		}
	}
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)
}
