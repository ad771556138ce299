// Package logger wraps zerolog behind the package-level call shape used
// throughout this codebase: logger.Infof/Warnf/Errorf/Debugf.
package logger

import (
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu  sync.RWMutex
	log = newDefault()
)

func newDefault() zerolog.Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"}
	return zerolog.New(writer).With().Timestamp().Logger()
}

// Configure switches between human-readable console output (development)
// and structured JSON (production), and sets the minimum level.
func Configure(jsonOutput bool, level zerolog.Level) {
	mu.Lock()
	defer mu.Unlock()
	if jsonOutput {
		log = zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
		return
	}
	log = newDefault().Level(level)
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func Debugf(format string, args ...interface{}) { current().Debug().Msgf(format, args...) }
func Infof(format string, args ...interface{})  { current().Info().Msgf(format, args...) }
func Warnf(format string, args ...interface{})  { current().Warn().Msgf(format, args...) }
func Errorf(format string, args ...interface{}) { current().Error().Msgf(format, args...) }

func Info(args ...interface{})  { current().Info().Msg(fmt.Sprint(args...)) }
func Error(args ...interface{}) { current().Error().Msg(fmt.Sprint(args...)) }
func Warn(args ...interface{})  { current().Warn().Msg(fmt.Sprint(args...)) }
