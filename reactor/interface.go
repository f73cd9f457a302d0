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

//go:build linux

package reactor

import (
	liberr "github.com/nabbar/reactor/errors"
	liblog "github.com/nabbar/reactor/logger"
)

// EventMask is a bitmask of readiness conditions understood by the notifier
// and by the kernel epoll facility it wraps.
type EventMask uint32

const (
	// Readable reports that a descriptor has data available to read.
	Readable EventMask = 1 << iota
	// Writable reports that a descriptor can accept a write without blocking.
	Writable
	// PeerHangup reports that the peer closed its write side (EPOLLRDHUP).
	PeerHangup
	// Priority reports out-of-band/urgent data (EPOLLPRI).
	Priority
	// Error reports an error condition on the descriptor (EPOLLERR).
	Error
	// Hangup reports that the descriptor itself hung up (EPOLLHUP).
	Hangup
	// EdgeTriggered requests edge-triggered delivery instead of the default
	// level-triggered semantics.
	EdgeTriggered
)

// EventSource is one registration in the notifier's multiplexer: a file
// descriptor, an interest mask, and a callback invoked when that interest is
// satisfied.
//
// Destroying an EventSource while Enabled is true is a programming error.
// Implementations that must destroy themselves from inside OnEvent should
// route through the notifier's DeferredDeleter instead.
type EventSource interface {
	// Fd returns the file descriptor to register with the multiplexer.
	Fd() int

	// Enabled reports whether the source is currently registered.
	Enabled() bool

	// SetEnabled registers (true) or deregisters (false) the source with the
	// owning notifier. It is a no-op if the source is already in that state.
	SetEnabled(enabled bool) liberr.Error

	// Interest returns the current readiness mask the source is registered
	// with.
	Interest() EventMask

	// SetInterest changes the registered readiness mask. If the source is
	// enabled, it is re-registered with the new mask.
	SetInterest(mask EventMask) liberr.Error

	// OnEvent is invoked by the notifier with the readiness bits that fired.
	OnEvent(mask EventMask)
}

// Notifier owns the per-goroutine readiness multiplexer, dispatches
// readiness to registered EventSource instances, and hosts the timer wheel,
// deferred deleter, and ready queue used by the rest of the reactor stack.
type Notifier interface {
	// Register adds src to the multiplexer with its current interest mask.
	Register(src EventSource) liberr.Error

	// Modify re-registers src after its interest mask changed. While a turn
	// is in progress and src has not yet been dispatched this turn, any
	// pending readiness for src recorded in the scratch array is invalidated.
	Modify(src EventSource) liberr.Error

	// Remove deregisters src. Subject to the same in-turn invalidation rule
	// as Modify.
	Remove(src EventSource) liberr.Error

	// PostEvent enqueues a software-generated readiness event for src,
	// delivered on the next Turn via the ready queue.
	PostEvent(src EventSource, mask EventMask)

	// RemovePostedEvents cancels any pending software event for src.
	RemovePostedEvents(src EventSource)

	// Schedule queues obj for destruction at the start of the next Turn,
	// via the deferred deleter.
	Schedule(obj func())

	// Timers returns the notifier's timer wheel.
	Timers() *TimerWheel

	// Logger returns the logger this notifier (and, by default, every
	// socket built on it) logs through. Never nil.
	Logger() liblog.Logger

	// Turn performs one non-blocking dispatch pass: it polls the
	// multiplexer, then invokes OnEvent for every source that became ready.
	// A re-entrant call (from inside an OnEvent callback) dispatches nothing
	// and returns ErrorTurnReentrant.
	Turn() liberr.Error

	// Shutdown tears down the internal sources, in order timer wheel,
	// deferred deleter, ready queue, then closes the multiplexer. Called
	// while a turn is in progress, it logs the misuse and returns
	// ErrorShutdownInTurn.
	Shutdown() liberr.Error
}
