package utils

import (
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel enumerates severity tiers.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (l LogLevel) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "UNKNOWN"
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger is a concurrency-safe, levelled logger used across the relay.
// Both loops log through it from their own goroutines.
type Logger struct {
	mu    sync.Mutex
	sugar atomic.Pointer[zap.SugaredLogger]
	file  *os.File
}

var (
	globalLogger *Logger
	logOnce      sync.Once
)

// InitLogger creates the singleton logger. Call once at startup.
// stdout is always a sink; logFilePath adds a second one when set.
func InitLogger(minLevel LogLevel, logFilePath string) *Logger {
	logOnce.Do(func() {
		level := zap.NewAtomicLevelAt(minLevel.zapLevel())

		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encCfg.CallerKey = ""
		enc := zapcore.NewConsoleEncoder(encCfg)

		cores := []zapcore.Core{
			zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level),
		}

		var f *os.File
		if logFilePath != "" {
			var err error
			f, err = os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err == nil {
				cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(f), level))
			} else {
				os.Stderr.WriteString("[WARN] could not open log file " + logFilePath + ": " + err.Error() + "\n")
			}
		}

		globalLogger = &Logger{file: f}
		globalLogger.sugar.Store(zap.New(zapcore.NewTee(cores...)).Sugar())
	})
	return globalLogger
}

// L returns the global logger. Before InitLogger has run it initialises a
// stdout-only DEBUG logger, so packages and tests can log without setup.
func L() *Logger {
	return InitLogger(DEBUG, "")
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.sugar.Load().Sync()
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}

// Swap routes all further output to z and returns a func restoring the
// previous destination. Tests use it to observe log lines.
func (l *Logger) Swap(z *zap.Logger) (restore func()) {
	prev := l.sugar.Swap(z.Sugar())
	return func() { l.sugar.Store(prev) }
}

func (l *Logger) Debug(f string, a ...any) { l.sugar.Load().Debugf(f, a...) }
func (l *Logger) Info(f string, a ...any)  { l.sugar.Load().Infof(f, a...) }
func (l *Logger) Warn(f string, a ...any)  { l.sugar.Load().Warnf(f, a...) }
func (l *Logger) Error(f string, a ...any) { l.sugar.Load().Errorf(f, a...) }

// Fatal logs and exits the process with status 1.
func (l *Logger) Fatal(f string, a ...any) { l.sugar.Load().Fatalf(f, a...) }
