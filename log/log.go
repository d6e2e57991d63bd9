package log

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Level is the log verbosity level
type Level uint8

const (
	LevelFatal = Level(logrus.FatalLevel)
	LevelError = Level(logrus.ErrorLevel)
	LevelWarn  = Level(logrus.WarnLevel)
	LevelInfo  = Level(logrus.InfoLevel)
	LevelDebug = Level(logrus.DebugLevel)
	LevelTrace = Level(logrus.TraceLevel)
)

var (
	defaultLogger = logrus.New()
	currentLevel  = LevelInfo
)

// SetLevel sets the global log level
func SetLevel(l Level) {
	currentLevel = l
	defaultLogger.SetLevel(logrus.Level(l))
}

// SetLevelString parses a level name ("error", "warn", "info", "debug", "trace")
// and sets it as the global log level. Unknown names fall back to info.
func SetLevelString(l string) {
	level, err := logrus.ParseLevel(strings.ToLower(l))
	if err != nil {
		level = logrus.InfoLevel
	}
	SetLevel(Level(level))
}

// SetOutput redirects all log output to the given writer
func SetOutput(w io.Writer) {
	defaultLogger.SetOutput(w)
}

// CurrentLevel returns the current global log level
func CurrentLevel() Level {
	return currentLevel
}

func Fatal(args ...interface{}) {
	entry, msg := parseArgs(args)
	entry.Fatal(msg)
}

func Error(args ...interface{}) {
	log(LevelError, args...)
}

func Warn(args ...interface{}) {
	log(LevelWarn, args...)
}

func Info(args ...interface{}) {
	log(LevelInfo, args...)
}

func Debug(args ...interface{}) {
	log(LevelDebug, args...)
}

func Trace(args ...interface{}) {
	log(LevelTrace, args...)
}

func log(level Level, args ...interface{}) {
	if level > currentLevel {
		return
	}
	entry, msg := parseArgs(args)
	entry.Log(logrus.Level(level), msg)
}

// parseArgs accepts an optional context as first argument, then the message,
// then alternating key/value pairs. A trailing error (or an error in value
// position) is logged under the "error" field.
func parseArgs(args []interface{}) (*logrus.Entry, string) {
	entry := logrus.NewEntry(defaultLogger)
	if len(args) == 0 {
		return entry, ""
	}
	if _, ok := args[0].(context.Context); ok {
		args = args[1:]
	}
	if len(args) == 0 {
		return entry, ""
	}
	msg := fmt.Sprint(args[0])
	kvPairs := args[1:]

	fields := logrus.Fields{}
	for i := 0; i < len(kvPairs); i += 2 {
		if err, ok := kvPairs[i].(error); ok {
			fields["error"] = err.Error()
			i--
			continue
		}
		if i+1 >= len(kvPairs) {
			fields[fmt.Sprint(kvPairs[i])] = "!MISSING"
			break
		}
		fields[fmt.Sprint(kvPairs[i])] = kvPairs[i+1]
	}
	return entry.WithFields(fields), msg
}
