/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package logger provides the reactor's structured logging surface: a thin
// wrapper around logrus keyed by the shared level.Level enum, with a bridge
// to the standard log.Logger for collaborators (like net/http.Server) that
// only accept one.
package logger

import (
	"fmt"
	"io"
	"log"

	"github.com/sirupsen/logrus"

	loglvl "github.com/nabbar/reactor/logger/level"
)

// std is the process-wide logrus instance every LevelLogger writes through.
// Replace its Out/Formatter/Hooks to change where/how the reactor logs.
var std = logrus.StandardLogger()

// SetOutput redirects every subsequent log call to w.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

// SetLevel sets the minimum level std will emit.
func SetLevel(lvl loglvl.Level) {
	std.SetLevel(lvl.Logrus())
}

// FuncLog returns a Logger instance; used by collaborators that accept a
// factory instead of a value so the logger can be swapped at call time.
type FuncLog func() *logrus.Logger

// LevelLogger binds a severity level to the shared logrus instance. The
// package exposes one instance per level below.
type LevelLogger loglvl.Level

const (
	DebugLevel LevelLogger = LevelLogger(loglvl.DebugLevel)
	InfoLevel  LevelLogger = LevelLogger(loglvl.InfoLevel)
	WarnLevel  LevelLogger = LevelLogger(loglvl.WarnLevel)
	ErrorLevel LevelLogger = LevelLogger(loglvl.ErrorLevel)
	FatalLevel LevelLogger = LevelLogger(loglvl.FatalLevel)
	PanicLevel LevelLogger = LevelLogger(loglvl.PanicLevel)
	NilLevel   LevelLogger = LevelLogger(loglvl.NilLevel)
)

func (l LevelLogger) entry() *logrus.Entry {
	return std.WithField("level", loglvl.Level(l).String())
}

// Logf formats and logs a message at this level. FatalLevel and PanicLevel
// are logged at error severity (neither exits nor panics); any other level
// not listed below is logged at info severity.
func (l LevelLogger) Logf(pattern string, args ...interface{}) {
	e := l.entry()
	msg := fmt.Sprintf(pattern, args...)

	switch loglvl.Level(l) {
	case loglvl.DebugLevel:
		e.Debug(msg)
	case loglvl.InfoLevel:
		e.Info(msg)
	case loglvl.WarnLevel:
		e.Warn(msg)
	case loglvl.ErrorLevel:
		e.Error(msg)
	case loglvl.FatalLevel:
		e.Error(msg)
	case loglvl.PanicLevel:
		e.Error(msg)
	default:
		e.Info(msg)
	}
}

// LogErrorCtxf logs err with the message formatted from pattern/args, at
// error severity, tagged with this LevelLogger's level name. sub is accepted
// but not used.
func (l LevelLogger) LogErrorCtxf(sub LevelLogger, pattern string, err error, args ...interface{}) {
	msg := fmt.Sprintf(pattern, args...)
	l.entry().WithError(err).Error(msg)
}

// writer adapts a LevelLogger to io.Writer so it can back a *log.Logger.
type writer LevelLogger

func (w writer) Write(p []byte) (int, error) {
	LevelLogger(w).Logf("%s", string(p))
	return len(p), nil
}

// GetLogger returns a standard library logger whose output lines are routed
// through this package's logrus instance at lvl, prefixed by the formatted
// pattern/args (e.g. a per-server name).
func GetLogger(lvl LevelLogger, flags int, pattern string, args ...interface{}) *log.Logger {
	prefix := fmt.Sprintf(pattern, args...)
	return log.New(writer(lvl), prefix+" ", flags)
}
