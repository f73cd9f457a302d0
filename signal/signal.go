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

// Package signal provides the small observer primitive used throughout the
// socket stack in place of an in-house signal/slot object model: a subject
// exposes named Signal[T] fields, observers Connect a callable and get back
// a token whose Disconnect removes it. Dispatch is synchronous, on whatever
// goroutine calls Emit — for this codebase, always the owning reactor's
// goroutine.
package signal

// Token identifies one subscription so it can be removed individually.
type Token uint64

// Signal is a single named event carrying a payload of type T.
type Signal[T any] struct {
	next        Token
	subscribers map[Token]func(T)
}

// Connect subscribes fn and returns a token that Disconnect accepts.
func (s *Signal[T]) Connect(fn func(T)) Token {
	if s.subscribers == nil {
		s.subscribers = make(map[Token]func(T))
	}

	s.next++
	tok := s.next
	s.subscribers[tok] = fn

	return tok
}

// Disconnect removes a previously connected callable. It is a no-op if tok
// is unknown (already disconnected, or zero value).
func (s *Signal[T]) Disconnect(tok Token) {
	delete(s.subscribers, tok)
}

// Emit invokes every connected callable, in unspecified order, with value.
func (s *Signal[T]) Emit(value T) {
	for _, fn := range s.subscribers {
		fn(value)
	}
}

// HasSubscribers reports whether at least one observer is connected.
func (s *Signal[T]) HasSubscribers() bool {
	return len(s.subscribers) > 0
}
