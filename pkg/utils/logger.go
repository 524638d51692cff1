package utils

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Millisecond timestamps: log lines must be correlatable with ledger event
// timestamps, which are millisecond-resolution.
const logTimestampFormat = "2006-01-02T15:04:05.000Z07:00"

var Logger *logrus.Logger

// InitLogger configures the process-wide logger. format is "json" or "text";
// output is "stdout", "stderr" or "file" (file names the path).
func InitLogger(level, format, output, file string) error {
	logger := logrus.New()

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return NewAppError(ErrCodeConfiguration, "Unknown log level", level)
	}
	logger.SetLevel(parsed)
	logger.SetFormatter(buildFormatter(format))

	sink, err := buildSink(output, file)
	if err != nil {
		return err
	}
	logger.SetOutput(sink)

	Logger = logger
	return nil
}

func buildFormatter(format string) logrus.Formatter {
	if format == "text" {
		return &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: logTimestampFormat,
		}
	}
	return &logrus.JSONFormatter{TimestampFormat: logTimestampFormat}
}

func buildSink(output, file string) (io.Writer, error) {
	switch output {
	case "stderr":
		return os.Stderr, nil
	case "file":
		if file == "" {
			return nil, NewAppError(ErrCodeConfiguration, "Log output is file but no path is set")
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, NewAppError(ErrCodeConfiguration, "Cannot open log file", err.Error())
		}
		return f, nil
	default:
		return os.Stdout, nil
	}
}

// GetLogger returns the process-wide logger, initializing engine defaults on
// first use.
func GetLogger() *logrus.Logger {
	if Logger == nil {
		InitLogger("info", "json", "stdout", "")
	}
	return Logger
}

// Component returns a logger entry tagged with an engine component name, the
// field every subsystem logs under.
func Component(name string) *logrus.Entry {
	return GetLogger().WithField("component", name)
}
