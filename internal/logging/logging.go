// Package logging provides leveled, printf-style logging shared by every
// package. Output is produced by a zap core so that text and JSON formats
// share one code path.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the upper-case level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel parses a level name. Matching is case-insensitive and "warning"
// is accepted as an alias of "warn". Surrounding whitespace is not trimmed.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", s)
}

var (
	mu      sync.Mutex
	output  io.Writer = os.Stderr
	format            = "text"
	current atomic.Int32
	atom              = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar   atomic.Pointer[zap.SugaredLogger]
)

func init() {
	current.Store(int32(LevelInfo))
	rebuild()
}

// rebuild swaps the logger for one writing to the current output and format.
// Callers must hold mu, except init.
func rebuild() {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var enc zapcore.Encoder
	if format == "json" {
		encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = func(l zapcore.Level, pae zapcore.PrimitiveArrayEncoder) {
			pae.AppendString("[" + l.CapitalString() + "]")
		}
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(output)), atom)
	sugar.Store(zap.New(core).Sugar())
}

// SetOutput redirects log output. A nil writer restores stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	output = w
	rebuild()
}

// SetFormat selects "json" or "text" output. Unknown values select text.
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()
	if strings.EqualFold(f, "json") {
		format = "json"
	} else {
		format = "text"
	}
	rebuild()
}

// SetLevel sets the minimum level that is written.
func SetLevel(l Level) {
	current.Store(int32(l))
	atom.SetLevel(l.zapLevel())
}

// GetLevel returns the minimum level that is written.
func GetLevel() Level {
	return Level(current.Load())
}

// Enabled reports whether messages at l are written.
func Enabled(l Level) bool {
	return l >= GetLevel()
}

// Sync flushes buffered output.
func Sync() {
	_ = sugar.Load().Sync()
}

func Debug(format string, args ...interface{}) {
	sugar.Load().Debugf(format, args...)
}

func Info(format string, args ...interface{}) {
	sugar.Load().Infof(format, args...)
}

func Warn(format string, args ...interface{}) {
	sugar.Load().Warnf(format, args...)
}

func Error(format string, args ...interface{}) {
	sugar.Load().Errorf(format, args...)
}
