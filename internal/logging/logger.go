package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kingrea/proteoflow/internal/layout"
)

// Logger writes human-readable lines to the console and JSON lines to
// <out>/logs/proteoflow.log so a failed run can be inspected afterwards.
type Logger struct {
	*zap.Logger
	file *os.File
}

// Options control where the logger writes.
type Options struct {
	// LogDir receives proteoflow.log. Empty disables the file sink.
	LogDir string
	// Verbose lowers the console level to debug.
	Verbose bool
	// Console defaults to stderr.
	Console io.Writer
}

// New creates (or reuses) the log file and builds the tee logger.
func New(opts Options) (*Logger, error) {
	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.AddSync(console), level),
	}

	var file *os.File
	if opts.LogDir != "" {
		if err := os.MkdirAll(opts.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("logging: ensure log dir: %w", err)
		}
		path := filepath.Join(opts.LogDir, layout.FileLog)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: open log file: %w", err)
		}
		file = f
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(f), zapcore.DebugLevel))
	}

	return &Logger{Logger: zap.New(zapcore.NewTee(cores...)), file: file}, nil
}

// Close flushes buffered entries and releases the file handle.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	if l.Logger != nil {
		_ = l.Logger.Sync()
	}
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Path returns the log file location, or "" when no file sink is open.
func (l *Logger) Path() string {
	if l == nil || l.file == nil {
		return ""
	}
	return l.file.Name()
}

// OrNop returns z, or a no-op logger when z is nil.
func OrNop(z *zap.Logger) *zap.Logger {
	if z == nil {
		return zap.NewNop()
	}
	return z
}
