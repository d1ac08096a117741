// Package observability owns the process logger and the prometheus collectors.
package observability

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/applypilot/internal/config"
)

var (
	global   atomic.Pointer[zap.Logger]
	initOnce sync.Once
)

const ansiReset = "\x1b[0m"

var ansiColors = map[string]string{
	"red":     "\x1b[31m",
	"green":   "\x1b[32m",
	"yellow":  "\x1b[33m",
	"blue":    "\x1b[34m",
	"magenta": "\x1b[35m",
	"cyan":    "\x1b[36m",
	"white":   "\x1b[37m",
}

// Initialize builds the process logger the first time it is called. Console output goes to
// console; a rotating JSON file is added when cfg.LogFile is set. With cfg.Color "auto" the
// caller has already decided the console is a terminal.
func Initialize(cfg config.LoggerConfig, console zapcore.WriteSyncer) {
	initOnce.Do(func() {
		level, levelErr := zapcore.ParseLevel(cfg.Level)
		if levelErr != nil {
			level = zapcore.InfoLevel
		}
		enabled := zap.NewAtomicLevelAt(level)

		cores := []zapcore.Core{zapcore.NewCore(consoleEncoder(cfg), console, enabled)}
		if cfg.LogFile != "" {
			cores = append(cores, fileCore(cfg, enabled))
		}

		opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
		if cfg.AddSource {
			opts = append(opts, zap.AddCaller())
		}
		logger := zap.New(zapcore.NewTee(cores...), opts...)
		if cfg.ServiceName != "" {
			logger = logger.Named(cfg.ServiceName)
		}
		if levelErr != nil && cfg.Level != "" {
			logger.Warn("Unknown log level, using info.", zap.String("level", cfg.Level))
		}

		global.Store(logger)
		zap.ReplaceGlobals(logger)
	})
}

// InitializeLogger logs to stdout. "auto" colour is resolved against stdout here, before the
// writer is wrapped and its descriptor is lost.
func InitializeLogger(cfg config.LoggerConfig) {
	if cfg.Color == "" || cfg.Color == config.ColorAuto {
		cfg.Color = config.ColorNever
		if term.IsTerminal(int(os.Stdout.Fd())) {
			cfg.Color = config.ColorAlways
		}
	}
	Initialize(cfg, zapcore.Lock(os.Stdout))
}

// ResetForTest forgets the process logger.
func ResetForTest() {
	global.Store(nil)
	initOnce = sync.Once{}
}

func fileCore(cfg config.LoggerConfig, enabled zapcore.LevelEnabler) zapcore.Core {
	rotating := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	return zapcore.NewCore(zapcore.NewJSONEncoder(baseEncoderConfig()), zapcore.AddSync(rotating), enabled)
}

func baseEncoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	ec.EncodeLevel = zapcore.LowercaseLevelEncoder
	return ec
}

// consoleEncoder is JSON unless cfg.Format is "console". Console lines name the component
// with a trailing dot ("applypilot.navigator.") and colour the level when enabled.
func consoleEncoder(cfg config.LoggerConfig) zapcore.Encoder {
	ec := baseEncoderConfig()
	if cfg.Format != "console" {
		return zapcore.NewJSONEncoder(ec)
	}

	ec.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(name + ".")
	}
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	if cfg.Color != config.ColorNever {
		ec.EncodeLevel = paletteEncoder(palette(cfg.Colors))
	}
	return zapcore.NewConsoleEncoder(ec)
}

// palette resolves the configured colour names once. Unknown names leave a level plain.
func palette(c config.ColorConfig) map[zapcore.Level]string {
	names := map[zapcore.Level]string{
		zapcore.DebugLevel:  c.Debug,
		zapcore.InfoLevel:   c.Info,
		zapcore.WarnLevel:   c.Warn,
		zapcore.ErrorLevel:  c.Error,
		zapcore.DPanicLevel: c.DPanic,
		zapcore.PanicLevel:  c.Panic,
		zapcore.FatalLevel:  c.Fatal,
	}
	out := make(map[zapcore.Level]string, len(names))
	for lvl, name := range names {
		if code, ok := ansiColors[strings.ToLower(name)]; ok {
			out[lvl] = code
		}
	}
	return out
}

func paletteEncoder(colors map[zapcore.Level]string) zapcore.LevelEncoder {
	return func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		text := l.CapitalString()
		if code, ok := colors[l]; ok {
			text = code + text + ansiReset
		}
		enc.AppendString(text)
	}
}

// GetLogger returns the process logger. Before Initialize it hands out an unstored
// development logger so early callers still see output.
func GetLogger() *zap.Logger {
	if logger := global.Load(); logger != nil {
		return logger
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	l.Warn("Logger requested before initialization, using a development logger.")
	return l.Named("early")
}

// Sync flushes the process logger. Terminals and pipes reject fsync; those errors are dropped.
func Sync() {
	logger := global.Load()
	if logger == nil {
		return
	}
	if err := logger.Sync(); err != nil && !unsyncable(err) {
		fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
	}
}

func unsyncable(err error) bool {
	return errors.Is(err, syscall.EINVAL) ||
		errors.Is(err, syscall.ENOTTY) ||
		errors.Is(err, syscall.ENOTSUP) ||
		errors.Is(err, syscall.EBADF)
}
