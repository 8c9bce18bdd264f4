package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logMu   sync.RWMutex
	logger  *zap.Logger
	logOnce sync.Once
)

// InitLogger builds the process logger. In debug mode it writes a console format to stdout,
// otherwise JSON lines to a lumberjack-rotated file.
func InitLogger(mode string, cfg LogConfig) *zap.Logger {
	l := NewLogger(mode, cfg)
	logMu.Lock()
	logger = l
	logMu.Unlock()
	zap.ReplaceGlobals(l)
	return l
}

func NewLogger(mode string, cfg LogConfig) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	if strings.EqualFold(strings.TrimSpace(mode), "debug") {
		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(os.Stdout),
			zap.NewAtomicLevelAt(zap.DebugLevel),
		)
		return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	writer, err := rotatingWriter(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: falling back to stdout: %v\n", err)
		writer = zapcore.AddSync(os.Stdout)
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), writer, level)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

func rotatingWriter(cfg LogConfig) (zapcore.WriteSyncer, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve workdir: %w", err)
		}
		dir = filepath.Join(wd, "logs")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	filename := strings.TrimSpace(cfg.Filename)
	if filename == "" {
		filename = "scrollpress.log"
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(dir, filename),
		MaxSize:    positiveOr(cfg.MaxSizeMB, 100),
		MaxBackups: positiveOr(cfg.MaxBackups, 7),
		MaxAge:     positiveOr(cfg.MaxAgeDays, 30),
		Compress:   cfg.Compress,
	}), nil
}

// Log returns the process logger, or a stdout logger when InitLogger was never called (tests).
func Log() *zap.Logger {
	logMu.RLock()
	l := logger
	logMu.RUnlock()
	if l != nil {
		return l
	}
	logOnce.Do(func() {
		fallback := NewLogger("debug", LogConfig{})
		logMu.Lock()
		if logger == nil {
			logger = fallback
		}
		logMu.Unlock()
	})
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

func Infow(message string, kv ...interface{}) {
	Log().Sugar().Infow(message, kv...)
}

func Warnw(message string, kv ...interface{}) {
	Log().Sugar().Warnw(message, kv...)
}

func Errorw(message string, kv ...interface{}) {
	Log().Sugar().Errorw(message, kv...)
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
