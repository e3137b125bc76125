// Package log provides a global logger with configurable logging level. Scanner components log
// through it so that a single -debug flag controls verbosity across the process.

package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Level int

const (
	LevelNone    Level = iota // Disables logging.
	LevelError                // Logs anomalies that are not expected to occur during normal use.
	LevelWarning              // Logs anomalies that are expected to occur occasionally, such as malformed frames.
	LevelInfo                 // Logs major events (scan started, closest beacon changed).
	LevelDebug                // Logs every decoded frame.
)

var globalLogLevel = LevelWarning
var logMutex sync.Mutex
var output io.Writer = os.Stderr

var labels = map[Level]string{
	LevelDebug:   "[debug]",
	LevelInfo:    "[info ]",
	LevelWarning: "[warn ]",
	LevelError:   "[error]",
}

var levelNames = map[string]Level{
	"none":    LevelNone,
	"error":   LevelError,
	"warning": LevelWarning,
	"warn":    LevelWarning,
	"info":    LevelInfo,
	"debug":   LevelDebug,
}

func SetLevel(level Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	globalLogLevel = level
}

// ParseLevel converts a level name ("debug", "info", ...) into a Level.
func ParseLevel(name string) (Level, error) {
	if level, ok := levelNames[name]; ok {
		return level, nil
	}
	return LevelNone, fmt.Errorf("unknown log level '%s'", name)
}

// SetOutput redirects log output. Tests use it to capture messages.
func SetOutput(w io.Writer) {
	logMutex.Lock()
	defer logMutex.Unlock()
	output = w
}

func logLevel() Level {
	logMutex.Lock()
	defer logMutex.Unlock()
	return globalLogLevel
}

func log(level Level, format string, a ...interface{}) {
	if level <= logLevel() {
		msg := fmt.Sprintf("%s %s ", time.Now().Format(time.RFC3339), labels[level])
		msg += fmt.Sprintf(format, a...)
		logMutex.Lock()
		fmt.Fprintln(output, msg)
		logMutex.Unlock()
	}
}

func Debug(format string, a ...interface{}) {
	log(LevelDebug, format, a...)
}
func Info(format string, a ...interface{}) {
	log(LevelInfo, format, a...)
}
func Warning(format string, a ...interface{}) {
	log(LevelWarning, format, a...)
}
func Error(format string, a ...interface{}) {
	log(LevelError, format, a...)
}

// Throttle rate-limits repetitive messages per key. A misbehaving beacon can broadcast the same
// malformed frame many times per second; only the first message and then at most one per
// interval are written for each key.
type Throttle struct {
	interval time.Duration
	lock     sync.Mutex
	keys     map[string]*rate.Sometimes
}

func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{
		interval: interval,
		keys:     make(map[string]*rate.Sometimes),
	}
}

func (t *Throttle) sometimes(key string) *rate.Sometimes {
	t.lock.Lock()
	defer t.lock.Unlock()
	s, ok := t.keys[key]
	if !ok {
		s = &rate.Sometimes{First: 1, Interval: t.interval}
		t.keys[key] = s
	}
	return s
}

// Warning logs at LevelWarning unless key has logged within the throttle interval.
func (t *Throttle) Warning(key string, format string, a ...interface{}) {
	t.sometimes(key).Do(func() {
		log(LevelWarning, format, a...)
	})
}

// Forget drops the throttle state for key, e.g. after the device behind it has been evicted.
func (t *Throttle) Forget(key string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	delete(t.keys, key)
}
