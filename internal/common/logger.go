package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

const (
	defaultLogTimeFormat = "15:04:05"
	logFileName          = "uiflow.log"
)

// logOutputs reports which writers [logging] output selects. Console is the fallback
// when nothing usable is configured.
func logOutputs(cfg LoggingConfig) (file, console bool) {
	for _, output := range cfg.Output {
		switch output {
		case "file":
			file = true
		case "stdout", "console":
			console = true
		}
	}
	return file, console || !file
}

// InitLogger builds the process logger from [logging]
func InitLogger(config *Config) arbor.ILogger {
	cfg := config.Logging
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = defaultLogTimeFormat
	}
	textOutput := cfg.Format != "json"
	toFile, toConsole := logOutputs(cfg)

	logger := arbor.NewLogger()

	if toFile {
		dir := cfg.Dir
		if dir == "" {
			dir = "./logs"
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to create logs directory: %v\n", err)
			toConsole = true
		} else {
			logger = logger.WithFileWriter(models.WriterConfiguration{
				Type:       models.LogWriterTypeFile,
				FileName:   filepath.Join(dir, logFileName),
				TimeFormat: timeFormat,
				MaxSize:    100 * 1024 * 1024,
				MaxBackups: 3,
				TextOutput: textOutput,
			})
		}
	}

	if toConsole {
		logger = logger.WithConsoleWriter(models.WriterConfiguration{
			Type:       models.LogWriterTypeConsole,
			TimeFormat: timeFormat,
			TextOutput: textOutput,
		})
	}

	return logger.WithLevelFromString(cfg.Level)
}

// RunLogger returns a logger whose entries carry the run ID as correlation id
func RunLogger(logger arbor.ILogger, runID string) arbor.ILogger {
	return logger.WithCorrelationId(runID)
}
