package logger

import (
	"io"
	"os"
	"syscall"
	"time"

	"codeberg.org/mutker/socpowerd/internal/errors"
	"github.com/rs/zerolog"
)

var log = zerolog.New(os.Stdout).With().Timestamp().Logger()

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Init initializes the logger for the given level name
func Init(level string, isService bool) error {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	if isService {
		output.NoColor = true
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	log = zerolog.New(output).With().Timestamp().Logger()

	return SetLevelName(level)
}

// InitWriter points the package logger at w without console formatting.
func InitWriter(w io.Writer) {
	log = zerolog.New(w).With().Timestamp().Logger()
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// SetLevelName sets the global log level from its configuration name.
func SetLevelName(name string) error {
	switch name {
	case "debug":
		SetLogLevel(DebugLevel)
	case "info", "":
		SetLogLevel(InfoLevel)
	case "warning", "warn":
		SetLogLevel(WarnLevel)
	case "error":
		SetLogLevel(ErrorLevel)
	default:
		return errors.New().WithData(errors.ErrInvalidLogLevel, name)
	}

	return nil
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(log.Error(), err)
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

// FatalWithCode logs a fatal message with a specific error code and exits the program
func FatalWithCode(err errors.Error) *LogEvent {
	return withCode(log.Fatal(), err)
}

func withCode(ev *zerolog.Event, err errors.Error) *LogEvent {
	return &LogEvent{ev.
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}

// component is a Logger bound to a component name. It resolves the package
// logger on every call so that Init after construction still takes effect.
type component struct {
	name string
	nop  bool
}

// New returns the package logger as a Logger tagged with the component name.
func New(name string) Logger {
	return &component{name: name}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &component{nop: true}
}

func (c *component) base() *zerolog.Logger {
	if c.nop {
		l := zerolog.Nop()
		return &l
	}

	l := log.With().Str("component", c.name).Logger()

	return &l
}

func (c *component) Debug() *LogEvent {
	return &LogEvent{c.base().Debug()}
}

func (c *component) Info() *LogEvent {
	return &LogEvent{c.base().Info()}
}

func (c *component) Warn() *LogEvent {
	return &LogEvent{c.base().Warn()}
}

func (c *component) Error() *LogEvent {
	return &LogEvent{c.base().Error()}
}

func (c *component) ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(c.base().Error(), err)
}

func (c *component) With(name string) Logger {
	if c.nop {
		return c
	}

	return &component{name: c.name + "." + name}
}
