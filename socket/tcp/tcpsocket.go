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

package tcp

import (
	"os/signal"
	"sync"
	"syscall"

	liberr "github.com/nabbar/reactor/errors"
	liblog "github.com/nabbar/reactor/logger"
	"github.com/nabbar/reactor/reactor"
	"github.com/nabbar/reactor/reactor/ringbuffer"
	sig "github.com/nabbar/reactor/signal"
	"github.com/nabbar/reactor/socket/config"
)

const (
	connectTimeoutMS    = 60_000
	disconnectTimeoutMS = 10_000
	defaultBufferSize   = 64 * 1024
)

var sigpipeOnce sync.Once

func ignoreSigpipe() {
	sigpipeOnce.Do(func() {
		signal.Ignore(syscall.SIGPIPE)
	})
}

// TcpSocket is a non-blocking, reactor-driven TCP socket implementing the
// connect/bind/disconnect/abort state machine described for the reactor
// core's socket layer.
type TcpSocket struct {
	notifier reactor.Notifier
	resolver config.Resolver
	log      liblog.Logger

	fd       int
	state    State
	enabled  bool
	interest reactor.EventMask

	bind       *config.Endpoint
	local      config.Candidate
	peer       config.Candidate
	peerHost   string
	peerPort   uint16
	candidates []config.Candidate
	candIdx    int

	errMsg string

	readBuf  *ringbuffer.RingBuffer
	writeBuf *ringbuffer.RingBuffer

	connectTimer    *reactor.Timer
	disconnectTimer *reactor.Timer

	contextID uint64

	readPostedAfterDrain bool
	writeEventScheduled  bool
	dnsInProgress        bool

	Connected    sig.Signal[struct{}]
	Disconnected sig.Signal[struct{}]
	Error        sig.Signal[error]
	ReceivedData sig.Signal[struct{}]
	SentData     sig.Signal[int]
}

// New creates an unconnected TcpSocket registered against notifier. resolver
// may be nil if only IP-literal connects are expected; log may be nil, in
// which case the notifier's logger is used.
func New(notifier reactor.Notifier, resolver config.Resolver, log liblog.Logger) *TcpSocket {
	ignoreSigpipe()

	if log == nil {
		log = notifier.Logger()
	}

	s := &TcpSocket{
		notifier: notifier,
		resolver: resolver,
		log:      log,
		fd:       -1,
		state:    Unconnected,
		readBuf:  ringbuffer.New(defaultBufferSize),
		writeBuf: ringbuffer.New(defaultBufferSize),
	}

	s.connectTimer = notifier.Timers().NewTimer(s.onConnectTimeout)
	s.connectTimer.SetSingleShot(true)

	s.disconnectTimer = notifier.Timers().NewTimer(s.onDisconnectTimeout)
	s.disconnectTimer.SetSingleShot(true)

	return s
}

func (s *TcpSocket) State() State { return s.state }

func (s *TcpSocket) ContextID() uint64 { return s.contextID }

func (s *TcpSocket) DataAvailable() int { return s.readBuf.Size() }

func (s *TcpSocket) DataToWrite() int { return s.writeBuf.Size() }

func (s *TcpSocket) LastError() string { return s.errMsg }

// Fd implements reactor.EventSource.
func (s *TcpSocket) Fd() int { return s.fd }

// Enabled implements reactor.EventSource.
func (s *TcpSocket) Enabled() bool { return s.enabled }

// Interest implements reactor.EventSource.
func (s *TcpSocket) Interest() reactor.EventMask { return s.interest }

// SetInterest implements reactor.EventSource.
func (s *TcpSocket) SetInterest(mask reactor.EventMask) liberr.Error {
	s.interest = mask

	if s.enabled {
		return s.notifier.Modify(s)
	}

	return nil
}

// SetEnabled implements reactor.EventSource.
func (s *TcpSocket) SetEnabled(enabled bool) liberr.Error {
	if enabled == s.enabled {
		return nil
	}

	s.enabled = enabled

	if enabled {
		return s.notifier.Register(s)
	}

	return s.notifier.Remove(s)
}

// Close releases the socket for destruction. The event source must be
// disabled first (via Abort or a completed disconnect): destroying a socket
// whose source is still registered is a programming error, reported through
// the returned error without touching the registration. Callers tearing a
// socket down from inside its own callback should route the final Close
// through the notifier's deferred deleter.
func (s *TcpSocket) Close() liberr.Error {
	if s.enabled {
		err := reactor.ErrorSourceDestroyEnabled.Error(nil)
		s.log.Errorf("closing tcp socket %s: %v", s.peer.String(), err)
		return err
	}

	s.Abort()
	return nil
}

// Bind records the preferred local endpoint, applied at the next Connect.
func (s *TcpSocket) Bind(host string, port uint16) {
	s.bind = &config.Endpoint{Host: host, Port: port}
}

// Read copies up to len(buf) bytes out of the read buffer, re-arming a
// posted read if it had previously stalled on a full buffer.
func (s *TcpSocket) Read(buf []byte) int {
	n := s.readBuf.Read(buf)
	s.maybeRearmRead()
	return n
}

// Peek copies without consuming.
func (s *TcpSocket) Peek(buf []byte) int {
	return s.readBuf.Peek(buf)
}

// PopFront discards n bytes from the read buffer.
func (s *TcpSocket) PopFront(n int) int {
	d := s.readBuf.PopFront(n)
	s.maybeRearmRead()
	return d
}

// ReadAll drains and returns every buffered byte.
func (s *TcpSocket) ReadAll() []byte {
	out := s.readBuf.ReadAll()
	s.maybeRearmRead()
	return out
}

func (s *TcpSocket) maybeRearmRead() {
	if s.readPostedAfterDrain && !s.readBuf.IsFull() {
		s.readPostedAfterDrain = false
		s.notifier.PostEvent(s, reactor.Readable)
	}
}

// Write appends to the write buffer, permitted only while Connected.
// Returns the number of bytes accepted, 0 if not connected.
func (s *TcpSocket) Write(data []byte) int {
	if s.state != Connected {
		return 0
	}

	n := s.writeBuf.Write(data)

	if n > 0 && !s.writeEventScheduled {
		s.writeEventScheduled = true
		s.notifier.PostEvent(s, reactor.Writable)
	}

	return n
}
