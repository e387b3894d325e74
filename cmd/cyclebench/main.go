package main

import (
	"os"

	"github.com/armadaproject/cyclebench/cmd/cyclebench/cmd"
	"github.com/armadaproject/cyclebench/internal/common/logging"
)

// Config is handled by cmd/run.go
func main() {
	logging.ConfigureCliLogging()
	err := cmd.RootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}
