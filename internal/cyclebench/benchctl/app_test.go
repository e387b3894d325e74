package benchctl

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
	"github.com/armadaproject/cyclebench/internal/cyclebench/configuration"
	"github.com/armadaproject/cyclebench/internal/cyclebench/input"
	"github.com/armadaproject/cyclebench/internal/cyclebench/report"
)

func testApp(t *testing.T, configYaml string) (*App, *bytes.Buffer) {
	t.Helper()
	buf := new(bytes.Buffer)
	app := &App{
		Params: &Params{Viper: configuration.NewViper()},
		Out:    buf,
	}
	if configYaml != "" {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(configYaml), 0o644))
		app.Params.ConfigFiles = []string{path}
	}
	return app, buf
}

func TestVersion(t *testing.T) {
	app, buf := testApp(t, "")
	require.NoError(t, app.Version())
	assert.Contains(t, buf.String(), "Version:")
	assert.Contains(t, buf.String(), "Commit:")
}

func TestRun_Finished(t *testing.T) {
	app, buf := testApp(t, `
threads: 4
cycles: 1000
pollInterval: 10ms
op:
  result: "{cycle}"
`)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := app.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.Finished, result.Outcome)
	assert.Equal(t, int64(1000), result.Resolved)
	assert.Contains(t, buf.String(), result.RunID)
	assert.Contains(t, buf.String(), "finished")
}

func TestRun_StoppedIsAnError(t *testing.T) {
	app, buf := testApp(t, `
threads: 2
cycles: 1000
pollInterval: 10ms
op:
  reject_every: "10"
`)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := app.Run(ctx)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.NotEqual(t, report.Finished, result.Outcome)
	assert.Contains(t, buf.String(), "diag.Rejected")
}

func TestRun_FlagsOverrideConfig(t *testing.T) {
	app, _ := testApp(t, `
threads: 4
cycles: 1000
pollInterval: 10ms
op:
  result: "{cycle}"
`)
	app.Params.Viper.Set("cycles", "10..20")

	result, err := app.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, input.CycleRange{Min: 10, Max: 20}, result.Cycles)
	assert.Equal(t, int64(10), result.Resolved)
}

func TestRun_InvalidConfig(t *testing.T) {
	app, buf := testApp(t, `
threads: 0
op:
  result: "{cycle}"
`)
	result, err := app.Run(context.Background())
	assert.Error(t, err)
	assert.Nil(t, result)
	assert.Empty(t, buf.String())
}

func TestPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workload.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ops:
  - name: write
    ratio: 2
    op:
      result: "{cycle}"
  - name: read
    op:
      result: "{cycle}"
`), 0o644))
	app, buf := testApp(t, "")

	require.NoError(t, app.Plan(path, input.CycleRange{}))
	out := buf.String()
	assert.Contains(t, out, "2/3")
	assert.Contains(t, out, "1/3")
	assert.Regexp(t, `(?m)^2\s+(write|read)$`, out)
	assert.NotRegexp(t, `(?m)^3\s+(write|read)$`, out)

	buf.Reset()
	require.NoError(t, app.Plan(path, input.CycleRange{Min: 100, Max: 103}))
	assert.Regexp(t, `(?m)^102\s+(write|read)$`, buf.String())
}

func TestPlan_MissingWorkload(t *testing.T) {
	app, _ := testApp(t, "")
	assert.Error(t, app.Plan(filepath.Join(t.TempDir(), "missing.yaml"), input.CycleRange{}))
}

func TestKinds(t *testing.T) {
	app, buf := testApp(t, "")
	require.NoError(t, app.Kinds("diag", `diag\.Rejected:count;stop`))
	out := buf.String()
	assert.Regexp(t, `(?m)^diag\.Timeout\s+timeout\s+30\s+retryable$`, out)
	assert.Regexp(t, `(?m)^diag\.Rejected\s+error\s+31\s+diag\\\.Rejected$`, out)
	assert.Regexp(t, `(?m)^unclassified\s+stop\s+\*$`, out)
}

func TestKinds_UnknownDriver(t *testing.T) {
	app, _ := testApp(t, "")
	err := app.Kinds("cassandra", "stop")
	var notFound *benchmarkerrors.ErrNotFound
	assert.True(t, errors.As(err, &notFound))
}
