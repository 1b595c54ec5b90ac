package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	charmlog "github.com/charmbracelet/log"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = map[LogLevel]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelFatal: "FATAL",
}

var charmLevels = map[LogLevel]charmlog.Level{
	LevelDebug: charmlog.DebugLevel,
	LevelInfo:  charmlog.InfoLevel,
	LevelWarn:  charmlog.WarnLevel,
	LevelError: charmlog.ErrorLevel,
	LevelFatal: charmlog.FatalLevel,
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel maps a case-insensitive level name to a LogLevel.
// Unknown or empty names fall back to LevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

type Logger struct {
	level  LogLevel
	logger *charmlog.Logger
}

func NewLogger(level LogLevel) *Logger {
	return newLogger(os.Stdout, level)
}

func newLogger(w io.Writer, level LogLevel) *Logger {
	inner := charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02 15:04:05",
		Level:           charmLevels[level],
	})
	return &Logger{
		level:  level,
		logger: inner,
	}
}

// SetLevel sets the minimum level that is written.
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
	l.logger.SetLevel(charmLevels[level])
}

func (l *Logger) Level() LogLevel {
	return l.level
}

// SetOutput redirects the logger, mostly for tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.logger.SetOutput(w)
}

// With returns a child logger carrying the given key/value pairs on every line.
func (l *Logger) With(keyvals ...any) *Logger {
	return &Logger{
		level:  l.level,
		logger: l.logger.With(keyvals...),
	}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// Fatal logs and exits the process.
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.log(LevelFatal, format, args...)
	os.Exit(1)
}

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	message := fmt.Sprintf(format, args...)
	switch level {
	case LevelDebug:
		l.logger.Debug(message)
	case LevelInfo:
		l.logger.Info(message)
	case LevelWarn:
		l.logger.Warn(message)
	default:
		// Fatal is written at error level; the caller decides whether to exit.
		l.logger.Error(message)
	}
}

// FileLogger writes to a log file instead of stdout.
type FileLogger struct {
	*Logger
	file *os.File
}

func NewFileLogger(logFile string, level LogLevel) (*FileLogger, error) {
	logDir := filepath.Dir(logFile)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &FileLogger{
		Logger: newLogger(file, level),
		file:   file,
	}, nil
}

func (l *FileLogger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// InitLogger replaces the global logger.
func InitLogger(level LogLevel) {
	SetLogger(NewLogger(level))
}

func SetLogger(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

func GetLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewLogger(LevelInfo)
	}
	return globalLogger
}

// Convenience functions
func Debug(format string, args ...interface{}) {
	GetLogger().Debug(format, args...)
}

func Info(format string, args ...interface{}) {
	GetLogger().Info(format, args...)
}

func Warn(format string, args ...interface{}) {
	GetLogger().Warn(format, args...)
}

func Error(format string, args ...interface{}) {
	GetLogger().Error(format, args...)
}

func Fatal(format string, args ...interface{}) {
	GetLogger().Fatal(format, args...)
}
