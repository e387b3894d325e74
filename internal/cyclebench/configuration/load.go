package configuration

import (
	"time"

	"github.com/spf13/viper"

	"github.com/armadaproject/cyclebench/internal/common/config"
	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
)

const EnvPrefix = "CYCLEBENCH"

// NewViper returns a viper instance with the environment prefix and every default set.
func NewViper() *viper.Viper {
	v := config.NewViper(EnvPrefix)
	SetDefaults(v)
	return v
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("threads", 1)
	v.SetDefault("cycles", "1")
	v.SetDefault("cycleRate", 0)
	v.SetDefault("burstRatio", 1.1)
	v.SetDefault("maxTries", 10)
	v.SetDefault("retryDelay", 10*time.Millisecond)
	v.SetDefault("maxRetryDelay", time.Second)
	v.SetDefault("errors", errorhandling.DefaultErrorSpec)
	v.SetDefault("driver.name", "diag")
	v.SetDefault("maxExtents", 3)
	v.SetDefault("pollInterval", 100*time.Millisecond)
	v.SetDefault("progressInterval", 10*time.Second)
	v.SetDefault("cycleLog.batchSize", 10000)
	v.SetDefault("cycleLog.batchInterval", time.Second)
}

// Load merges configFiles in order over the defaults held by v, then decodes and validates the result.
func Load(v *viper.Viper, configFiles []string) (CyclebenchConfig, error) {
	var c CyclebenchConfig
	if err := config.LoadConfig(v, &c, "", configFiles, Hooks()...); err != nil {
		return CyclebenchConfig{}, err
	}
	if err := c.Validate(); err != nil {
		return CyclebenchConfig{}, err
	}
	return c, nil
}
