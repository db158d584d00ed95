package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the process logger from the logging config. Output "both"
// writes to stdout and the rotated file at once.
func NewLogger(cfg *config.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(level)
	logger.SetFormatter(formatterFor(cfg.Format))

	switch cfg.Output {
	case "file":
		w, err := fileWriter(cfg)
		if err != nil {
			return nil, err
		}
		logger.SetOutput(w)
	case "both":
		w, err := fileWriter(cfg)
		if err != nil {
			return nil, err
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, w))
	default:
		logger.SetOutput(os.Stdout)
	}

	return logger, nil
}

func formatterFor(format string) logrus.Formatter {
	if format == "json" {
		return &logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		}
	}
	return &logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
	}
}

func fileWriter(cfg *config.LoggingConfig) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   cfg.File.Path,
		MaxSize:    cfg.File.MaxSize, // megabytes
		MaxBackups: cfg.File.MaxBackups,
		MaxAge:     cfg.File.MaxAge, // days
		Compress:   true,
	}, nil
}

// WithUser adds the per-turn identity fields.
func WithUser(logger *logrus.Logger, externalID int64, userID string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"external_id": externalID,
		"user_id":     userID,
	})
}
