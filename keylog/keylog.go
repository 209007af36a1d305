// Package keylog is the logging port keylayer's engine packages use to
// surface the error taxonomy of spec.md §7 (bounded queue overflow,
// active-state overflow, switch opcode violations, macro recursion
// refusal) as structured log records rather than panics or return errors:
// event/tick never fail.
package keylog

import (
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the minimal structured-logging capability keylayer's internal
// packages depend on. NewStumpy returns an adapter that implements it on
// top of a *logiface.Logger[*stumpy.Event]; a caller may supply any other
// implementation.
type Logger interface {
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field is a lazily-applied structured log field.
type Field func(add func(key string, val any))

// Str builds a string-valued Field.
func Str(key, val string) Field {
	return func(add func(key string, val any)) { add(key, val) }
}

// Int builds an int-valued Field.
func Int(key string, val int) Field {
	return func(add func(key string, val any)) { add(key, val) }
}

// NoOp is a Logger that discards everything. It is the default used by
// packages that are not given an explicit Logger (e.g. in unit tests).
var NoOp Logger = noOpLogger{}

type noOpLogger struct{}

func (noOpLogger) Warn(string, ...Field)  {}
func (noOpLogger) Error(string, ...Field) {}

// stumpyLogger adapts a *logiface.Logger[*stumpy.Event] to Logger, the way
// logiface-stumpy's own examples wire stumpy.L.New(...) into application
// code.
type stumpyLogger struct {
	l *logiface.Logger[*stumpy.Event]
}

// NewStumpy returns a Logger backed by logiface + the stumpy JSON event
// backend, keylayer's default production logging stack.
func NewStumpy(opts ...stumpy.Option) Logger {
	return &stumpyLogger{l: stumpy.L.New(stumpy.L.WithStumpy(opts...))}
}

func (s *stumpyLogger) Warn(msg string, fields ...Field) {
	b := s.l.Warning()
	for _, f := range fields {
		f(func(key string, val any) { b = b.Any(key, val) })
	}
	b.Log(msg)
}

func (s *stumpyLogger) Error(msg string, fields ...Field) {
	b := s.l.Err()
	for _, f := range fields {
		f(func(key string, val any) { b = b.Any(key, val) })
	}
	b.Log(msg)
}
