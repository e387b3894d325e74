/*
Package configuration defines the input configuration of a cyclebench run.

A run drives a range of cycles through the ops of a workload, using one driver, with a fixed number
of motors. The configuration names the driver and its settings, the workload, the cycle range and
rate, and how failures are retried and handled.

# Example YAML Configuration

	threads: 16
	cycles: 0..1M
	cycleRate: 5000
	maxTries: 5
	retryDelay: 10ms
	maxRetryDelay: 1s
	errors: "retryable:warn,retry;unverified:stop;redis\\..*:count;stop"
	driver:
	  name: redis
	  settings:
	    addrs: ["localhost:6379"]
	    poolSize: 64
	workload: workloads/kv.yaml
	reportDir: reports
	cycleLog:
	  path: reports/cycles.db
	  batchSize: 10000
	  batchInterval: 1s
	metricsPort: 9090

Every key can be overridden from the environment as CYCLEBENCH_<KEY>, with nested keys joined by
underscores, e.g. CYCLEBENCH_DRIVER_NAME=sqlite.

# Validation

Load decodes and validates in one pass. Struct tags catch single field problems; Validate then
checks fields against each other and reports every problem found.
*/
package configuration
