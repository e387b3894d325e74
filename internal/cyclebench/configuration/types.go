package configuration

import (
	"time"

	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
	"github.com/armadaproject/cyclebench/internal/cyclebench/input"
)

type CyclebenchConfig struct {
	// Number of motors executing cycles concurrently
	Threads int `validate:"gt=0"`
	// Cycles to run, e.g. "1M" or "1000..2000"
	Cycles input.CycleRange
	// Cycles per second across all motors. Zero means unlimited
	CycleRate float64 `validate:"gte=0"`
	// How far the rate may run ahead after a stall, as a multiple of the rate
	BurstRatio float64 `validate:"gte=1"`
	// Maximum attempts per cycle, including the first
	MaxTries int `validate:"gte=1"`
	// Delay before the first retry; doubles on every further retry
	RetryDelay time.Duration
	// Upper bound on the delay between retries
	MaxRetryDelay time.Duration
	// Error groups and policies
	Errors errorhandling.ErrorSpec
	Driver DriverConfig
	// Path of a workload file. Exactly one of Workload and Op must be set
	Workload string
	// Fields of a single op, run with ratio 1
	Op map[string]string
	// Number of completion extents that may be open at once
	MaxExtents int `validate:"gt=0"`
	// Interval at which resolved segments are collected and the watermark published
	PollInterval time.Duration `validate:"gt=0"`
	// Interval between progress log lines. Zero disables progress logging
	ProgressInterval time.Duration
	// If set, a JSON report is written here at the end of the run
	ReportDir string
	CycleLog  CycleLogConfig
	// If non-zero, prometheus metrics are served on this port
	MetricsPort uint16
}

type DriverConfig struct {
	Name string `validate:"required"`
	// Decoded by the driver into its own configuration type
	Settings map[string]any
}

// CycleLogConfig configures persisting the result code of every cycle to SQLite.
type CycleLogConfig struct {
	// Database file. Empty disables the cycle log
	Path string
	// Maximum number of results written per transaction
	BatchSize int `validate:"gt=0"`
	// Maximum time a result waits before its batch is written
	BatchInterval time.Duration `validate:"gt=0"`
}

func (c CycleLogConfig) Enabled() bool {
	return c.Path != ""
}
