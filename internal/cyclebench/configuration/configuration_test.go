package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
	"github.com/armadaproject/cyclebench/internal/cyclebench/input"
)

const testConfig = `
threads: 16
cycles: 1000..1M
cycleRate: 5000
maxTries: 5
retryDelay: 5ms
errors: "retryable:warn,retry;stop"
driver:
  name: sqlite
  settings:
    path: ":memory:"
    busyTimeout: 2s
workload: keyvalue.yaml
cycleLog:
  path: cycles.db
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	c, err := Load(NewViper(), []string{writeConfig(t, testConfig)})
	require.NoError(t, err)

	assert.Equal(t, 16, c.Threads)
	assert.Equal(t, input.CycleRange{Min: 1000, Max: 1_000_000}, c.Cycles)
	assert.Equal(t, 5000.0, c.CycleRate)
	assert.Equal(t, 1.1, c.BurstRatio)
	assert.Equal(t, 5, c.MaxTries)
	assert.Equal(t, 5*time.Millisecond, c.RetryDelay)
	assert.Equal(t, time.Second, c.MaxRetryDelay)
	assert.Equal(t, "retryable:warn,retry;stop", c.Errors.String())
	assert.Equal(t, "sqlite", c.Driver.Name)
	assert.Equal(t, ":memory:", c.Driver.Settings["path"])
	assert.Equal(t, "keyvalue.yaml", c.Workload)
	assert.True(t, c.CycleLog.Enabled())
	assert.Equal(t, 10000, c.CycleLog.BatchSize)
	assert.Equal(t, 3, c.MaxExtents)
}

func TestLoad_LaterFilesOverride(t *testing.T) {
	override := writeConfig(t, "threads: 4\ncycles: 50\n")
	c, err := Load(NewViper(), []string{writeConfig(t, testConfig), override})
	require.NoError(t, err)
	assert.Equal(t, 4, c.Threads)
	assert.Equal(t, input.CycleRange{Max: 50}, c.Cycles)
	assert.Equal(t, "sqlite", c.Driver.Name)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CYCLEBENCH_THREADS", "3")
	t.Setenv("CYCLEBENCH_CYCLES", "10..20")
	c, err := Load(NewViper(), []string{writeConfig(t, testConfig)})
	require.NoError(t, err)
	assert.Equal(t, 3, c.Threads)
	assert.Equal(t, input.CycleRange{Min: 10, Max: 20}, c.Cycles)
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(NewViper(), []string{writeConfig(t, "op:\n  result: x\n")})
	require.NoError(t, err)
	assert.Equal(t, "diag", c.Driver.Name)
	assert.Equal(t, errorhandling.DefaultErrorSpec, c.Errors.String())
	assert.False(t, c.CycleLog.Enabled())
}

func TestLoad_BadErrorSpec(t *testing.T) {
	_, err := Load(NewViper(), []string{writeConfig(t, testConfig+"\nerrors: \"retryable:explode\"\n")})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	spec, err := errorhandling.ParseErrorSpec(errorhandling.DefaultErrorSpec)
	require.NoError(t, err)
	valid := CyclebenchConfig{
		Threads:       2,
		Cycles:        input.CycleRange{Max: 10},
		BurstRatio:    1,
		MaxTries:      1,
		MaxRetryDelay: time.Second,
		Errors:        *spec,
		Driver:        DriverConfig{Name: "diag"},
		Op:            map[string]string{"result": "x"},
		MaxExtents:    3,
		PollInterval:  time.Second,
		CycleLog:      CycleLogConfig{BatchSize: 1, BatchInterval: time.Second},
	}
	tests := map[string]struct {
		modify  func(*CyclebenchConfig)
		wantErr bool
	}{
		"valid":                   {modify: func(c *CyclebenchConfig) {}},
		"no threads":              {modify: func(c *CyclebenchConfig) { c.Threads = 0 }, wantErr: true},
		"empty range":             {modify: func(c *CyclebenchConfig) { c.Cycles = input.CycleRange{Min: 5, Max: 5} }, wantErr: true},
		"no driver":               {modify: func(c *CyclebenchConfig) { c.Driver.Name = "" }, wantErr: true},
		"workload and op":         {modify: func(c *CyclebenchConfig) { c.Workload = "w.yaml" }, wantErr: true},
		"neither workload nor op": {modify: func(c *CyclebenchConfig) { c.Op = nil }, wantErr: true},
		"retry delays inverted":   {modify: func(c *CyclebenchConfig) { c.RetryDelay = 2 * time.Second }, wantErr: true},
		"no error policies":       {modify: func(c *CyclebenchConfig) { c.Errors = errorhandling.ErrorSpec{} }, wantErr: true},
		"zero max tries":          {modify: func(c *CyclebenchConfig) { c.MaxTries = 0 }, wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid
			tc.modify(&c)
			err := c.Validate()
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, benchmarkerrors.IsConfigurationDefect(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	c, err := Load(NewViper(), []string{"../../../config/cyclebench/config.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "redis", c.Driver.Name)
	assert.Equal(t, input.CycleRange{Max: 1_000_000}, c.Cycles)
	assert.Equal(t, "workloads/kv.yaml", c.Workload)
	assert.EqualValues(t, 9090, c.MetricsPort)
	assert.False(t, c.CycleLog.Enabled())
}
