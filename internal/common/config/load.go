package config

import (
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	log "github.com/armadaproject/cyclebench/internal/common/logging"
)

// NewViper returns a viper instance that reads environment overrides named envPrefix_KEY, with nested keys
// joined by underscores.
func NewViper(envPrefix string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads config.yaml from defaultPath if it exists, merges each override file in order, and decodes
// the result into config. Extra hooks run after DefaultHooks.
func LoadConfig(v *viper.Viper, config any, defaultPath string, overrideConfigs []string, hooks ...mapstructure.DecodeHookFunc) error {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if defaultPath != "" {
		v.AddConfigPath(defaultPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return errors.Wrapf(err, "reading default config from %s", defaultPath)
			}
			log.Debugf("No default config found in %s", defaultPath)
		}
	}

	for _, overrideConfig := range overrideConfigs {
		v.SetConfigFile(overrideConfig)
		if err := v.MergeInConfig(); err != nil {
			return errors.Wrapf(err, "reading config from %s", overrideConfig)
		}
		log.Infof("Read config from %s", v.ConfigFileUsed())
	}

	hooks = append(DefaultHooks(), hooks...)
	err := v.Unmarshal(config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(hooks...)))
	return errors.WithStack(err)
}
