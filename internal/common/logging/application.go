package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultLogConfigPath = "config/logging.yaml"
	logConfigPathEnvVar  = "CYCLEBENCH_LOG_CONFIG"
	RFC3339Milli         = "2006-01-02T15:04:05.000Z07:00"
)

// MustConfigureApplicationLogging sets up logging suitable for an application. Logging configuration is loaded from
// a filepath given by the CYCLEBENCH_LOG_CONFIG environmental variable or from config/logging.yaml if this var is
// unset. If neither exists, console logging at info level is used.
// Note that this function will immediately shut down the application if it fails.
func MustConfigureApplicationLogging() {
	err := ConfigureApplicationLogging()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error initializing logging: "+err.Error())
		os.Exit(1)
	}
}

// ConfigureApplicationLogging sets up logging suitable for an application.
func ConfigureApplicationLogging() error {
	configPath, explicit := os.LookupEnv(logConfigPathEnvVar)
	if !explicit {
		configPath = defaultLogConfigPath
	}

	logConfig := DefaultConfig()
	if _, statErr := os.Stat(configPath); statErr == nil || explicit {
		var err error
		logConfig, err = readConfig(configPath)
		if err != nil {
			return err
		}
	}

	logger, err := NewLogrusLogger(logConfig, os.Stdout)
	if err != nil {
		return err
	}
	logger.AddHook(NewPrometheusHook())
	ReplaceStdLogger(FromLogrus(logger))
	return nil
}

// NewLogrusLogger builds a logrus logger writing to console, and to a rotated file if enabled.
// Console and file may use different levels and formats.
func NewLogrusLogger(logConfig Config, console io.Writer) (*logrus.Logger, error) {
	if err := validate(logConfig); err != nil {
		return nil, err
	}
	consoleLevel, _ := logrus.ParseLevel(logConfig.Console.Level)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.AddHook(&writerHook{
		writer:    console,
		formatter: createFormatter(logConfig.Console.Format),
		levels:    levelsAtOrAbove(consoleLevel),
	})
	maxLevel := consoleLevel

	if logConfig.File.Enabled {
		fileLevel, _ := logrus.ParseLevel(logConfig.File.Level)
		logger.AddHook(&writerHook{
			writer:    createFileWriter(logConfig),
			formatter: createFormatter(logConfig.File.Format),
			levels:    levelsAtOrAbove(fileLevel),
		})
		if fileLevel > maxLevel {
			maxLevel = fileLevel
		}
	}
	logger.SetLevel(maxLevel)
	return logger, nil
}

func createFileWriter(logConfig Config) io.Writer {
	if !logConfig.File.Rotation.Enabled {
		return &lumberjack.Logger{Filename: logConfig.File.LogFile}
	}
	return &lumberjack.Logger{
		Filename:   logConfig.File.LogFile,
		MaxSize:    logConfig.File.Rotation.MaxSizeMb,
		MaxBackups: logConfig.File.Rotation.MaxBackups,
		MaxAge:     logConfig.File.Rotation.MaxAgeDays,
		Compress:   logConfig.File.Rotation.Compress,
	}
}

func createFormatter(format string) logrus.Formatter {
	if format == FormatJson {
		return &logrus.JSONFormatter{TimestampFormat: RFC3339Milli}
	}
	return &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: RFC3339Milli, DisableColors: true}
}

func levelsAtOrAbove(level logrus.Level) []logrus.Level {
	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= level {
			levels = append(levels, l)
		}
	}
	return levels
}

// writerHook sends entries at the given levels to a writer with its own formatter.
type writerHook struct {
	writer    io.Writer
	formatter logrus.Formatter
	levels    []logrus.Level
}

func (h *writerHook) Levels() []logrus.Level {
	return h.levels
}

func (h *writerHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(line)
	return err
}
