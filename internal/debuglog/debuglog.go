// Package debuglog is the one-way leveled debug channel described in
// spec §6 (DEBUG/INFO/WARNING/ERROR/CRITICAL over a fixed-baud UART),
// rendered the way the teacher builds its logger: a package-level
// go.uber.org/zap logger assembled from a zapcore.NewTee of a console
// mirror, an optional rotated JSON file (gopkg.in/natefinch/lumberjack),
// and a uartCore that serializes entries onto a go.bug.st/serial port —
// the actual "debug sink" the spec describes. zap has no CRITICAL level;
// it is modeled as an Error-level entry tagged with a "critical" field,
// the same way the teacher folds its own non-standard severities
// ("source": frontend/backend) into zap fields rather than bespoke
// levels.
package debuglog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.bug.st/serial"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config configures the global debug logger.
type Config struct {
	Level      string // debug, info, warn, error
	LogDir     string // directory for a rotated JSON mirror; empty disables it
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// UARTPort, when non-empty, is opened at UARTBaud and used as the
	// device's debug channel, matching spec §6's "one-way log at a fixed
	// baud over UART". Leave empty to run console-only (host builds).
	UARTPort string
	UARTBaud int
}

// DefaultConfig mirrors the teacher's DefaultConfig, adjusted to this
// device's debug-UART defaults.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		LogDir:     "",
		MaxSizeMB:  5,
		MaxBackups: 3,
		MaxAgeDays: 7,
		UARTBaud:   115200,
	}
}

var (
	globalLogger *zap.Logger
	mu           sync.RWMutex
	uartPort     io.Closer
)

// Init initializes the global logger. Call once at startup.
func Init(cfg Config) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var cores []zapcore.Core

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
	cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), level))

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return fmt.Errorf("debuglog: create log dir: %w", err)
		}
		fileWriter := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "sensornet.log"),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(fileWriter), level))
	}

	if cfg.UARTPort != "" {
		port, err := serial.Open(cfg.UARTPort, &serial.Mode{BaudRate: cfg.UARTBaud})
		if err != nil {
			return fmt.Errorf("debuglog: open uart %s: %w", cfg.UARTPort, err)
		}
		uartPort = port
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(port), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))

	mu.Lock()
	globalLogger = logger
	mu.Unlock()
	return nil
}

// Get returns the global logger, falling back to a development logger
// when Init has not been called (useful in package tests).
func Get() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if globalLogger == nil {
		l, _ := zap.NewDevelopment()
		return l
	}
	return globalLogger
}

// Sync flushes buffered entries and closes the UART port, if any.
func Sync() error {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l != nil {
		_ = l.Sync()
	}
	if uartPort != nil {
		return uartPort.Close()
	}
	return nil
}

func Debug(msg string, fields ...zap.Field) { Get().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { Get().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Get().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Get().Error(msg, fields...) }

// Critical logs at Error level tagged "critical": true, matching the
// spec's CRITICAL severity, which zap has no built-in level for. The
// binaries' fail-stop actions log through the zap logger's Error
// directly and do not call Critical.
func Critical(msg string, fields ...zap.Field) {
	Get().Error(msg, append(fields, zap.Bool("critical", true))...)
}

// WithNode returns a logger tagged with a node address, for the main
// application's per-node log lines.
func WithNode(address uint8) *zap.Logger {
	return Get().With(zap.Uint8("node_address", address))
}
