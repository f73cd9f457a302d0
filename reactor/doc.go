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

// Package reactor implements a single-threaded, edge-triggered event reactor
// on top of the Linux epoll readiness multiplexer.
//
// # Overview
//
// One Notifier lives per worker goroutine/thread. It owns the epoll instance,
// dispatches readiness events to registered EventSource instances, and hosts
// three internal sources used by the rest of the stack: a hashed timing wheel
// (Timer / TimerWheel), a deferred-destruction queue (DeferredDeleter), and a
// coalesced software-event queue (ReadyQueue).
//
// A Notifier is not safe for concurrent use from more than one goroutine. All
// registration, dispatch, and internal-source activity is expected to happen
// on the goroutine that calls Turn.
package reactor
