// Package logger provides the process-wide leveled logger used by every
// DittoServe component.
//
// Messages are printf-style. The sink is chosen once at startup via Configure
// (or SetLevel/SetOutput in tests) and is safe for concurrent use. Write
// failures on the sink are dropped so logging never stalls request handling.
package logger

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

var (
	currentLevel atomic.Int32

	mu         sync.RWMutex
	textLogger = stdlog.New(os.Stdout, "", 0)
	jsonLogger *slog.Logger
	closer     io.Closer
)

func init() {
	currentLevel.Store(int32(LevelInfo))
}

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

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a case-insensitive level name into a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// SetLevel sets the minimum level. Unknown names are ignored.
func SetLevel(level string) {
	if l, err := ParseLevel(level); err == nil {
		currentLevel.Store(int32(l))
	}
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	return Level(currentLevel.Load())
}

// IsEnabled reports whether messages at level would be emitted.
func IsEnabled(level Level) bool {
	return level >= GetLevel()
}

// SetOutput redirects log output to w using the given format.
//
// Any file previously opened by Configure is closed.
func SetOutput(w io.Writer, format string) {
	mu.Lock()
	defer mu.Unlock()

	if closer != nil {
		_ = closer.Close()
		closer = nil
	}
	setWriterLocked(w, format)
}

func setWriterLocked(w io.Writer, format string) {
	textLogger = stdlog.New(w, "", 0)
	if strings.EqualFold(format, FormatJSON) {
		jsonLogger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	} else {
		jsonLogger = nil
	}
}

// Configure sets level, format and destination in one step.
//
// Parameters:
//   - level: DEBUG, INFO, WARN or ERROR (case-insensitive)
//   - format: "text" or "json"
//   - output: "stdout", "stderr", or a file path. Parent directories of a
//     file path are created and the file is opened in append mode.
//
// Returns an error if the level is unknown or the output file cannot be opened.
func Configure(level, format, output string) error {
	l, err := ParseLevel(level)
	if err != nil {
		return err
	}

	var w io.Writer
	var c io.Closer
	switch strings.ToLower(output) {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		if dir := filepath.Dir(output); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create log directory %s: %w", dir, err)
			}
		}
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", output, err)
		}
		w, c = f, f
	}

	mu.Lock()
	if closer != nil {
		_ = closer.Close()
	}
	closer = c
	setWriterLocked(w, format)
	mu.Unlock()

	currentLevel.Store(int32(l))
	return nil
}

// Close releases a log file opened by Configure and reverts to stdout.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	var err error
	if closer != nil {
		err = closer.Close()
		closer = nil
	}
	setWriterLocked(os.Stdout, FormatText)
	return err
}

func log(level Level, format string, v ...any) {
	if !IsEnabled(level) {
		return
	}

	message := fmt.Sprintf(format, v...)

	mu.RLock()
	defer mu.RUnlock()

	if jsonLogger != nil {
		jsonLogger.Log(context.Background(), level.slogLevel(), message)
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	textLogger.Printf("[%s] [%s] %s", timestamp, level.String(), message)
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
