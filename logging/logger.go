// Package logging provides structured logging for the generation pipeline.
// It wraps zap with a console/file tee, automatic file rotation, and field
// helpers for tagging log entries with generation run metadata.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a zap logger configured for the given environment.
//
// When development is true, output is colored console text at debug level;
// otherwise JSON at info level. When filePath is non-empty, entries are
// additionally written to that file with rotation (see NewFileWriter).
//
// Returns an error only when the log directory cannot be created.
func NewLogger(development bool, filePath string) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if development {
		level = zapcore.DebugLevel
	}
	return NewLoggerWithLevel(development, filePath, level)
}

// NewLoggerWithLevel is NewLogger with an explicit minimum level.
func NewLoggerWithLevel(development bool, filePath string, level zapcore.Level) (*zap.Logger, error) {
	var consoleEncoder zapcore.Encoder
	if development {
		consoleEncoder = zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(NewEncoderConfig())
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), level),
	}

	if filePath != "" {
		writer, err := NewFileWriter(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file writer: %w", err)
		}
		fileEncoder := zapcore.NewJSONEncoder(NewEncoderConfig())
		cores = append(cores, zapcore.NewCore(fileEncoder, writer, level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return logger, nil
}
