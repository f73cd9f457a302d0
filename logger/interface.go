/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

package logger

// Logger is the leveled surface injected into the reactor and socket cores.
// Constructors accept nil and substitute Discard, so core code never
// nil-checks before logging.
type Logger interface {
	Debugf(pattern string, args ...interface{})
	Infof(pattern string, args ...interface{})
	Warningf(pattern string, args ...interface{})
	Errorf(pattern string, args ...interface{})
}

type stdLogger struct{}

func (stdLogger) Debugf(pattern string, args ...interface{})   { DebugLevel.Logf(pattern, args...) }
func (stdLogger) Infof(pattern string, args ...interface{})    { InfoLevel.Logf(pattern, args...) }
func (stdLogger) Warningf(pattern string, args ...interface{}) { WarnLevel.Logf(pattern, args...) }
func (stdLogger) Errorf(pattern string, args ...interface{})   { ErrorLevel.Logf(pattern, args...) }

// Std returns a Logger writing through the package's shared logrus instance.
func Std() Logger {
	return stdLogger{}
}

type discard struct{}

func (discard) Debugf(string, ...interface{})   {}
func (discard) Infof(string, ...interface{})    {}
func (discard) Warningf(string, ...interface{}) {}
func (discard) Errorf(string, ...interface{})   {}

// Discard returns a Logger that drops everything.
func Discard() Logger {
	return discard{}
}

// OrDiscard normalizes an optional logger: nil becomes Discard.
func OrDiscard(l Logger) Logger {
	if l == nil {
		return Discard()
	}

	return l
}
