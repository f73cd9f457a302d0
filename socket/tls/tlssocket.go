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

package tls

import (
	gotls "crypto/tls"

	"github.com/nabbar/reactor/certificates"
	liberr "github.com/nabbar/reactor/errors"
	liblog "github.com/nabbar/reactor/logger"
	"github.com/nabbar/reactor/reactor"
	"github.com/nabbar/reactor/reactor/ringbuffer"
	sig "github.com/nabbar/reactor/signal"
	"github.com/nabbar/reactor/socket/config"
	"github.com/nabbar/reactor/socket/tcp"
)

const (
	connectTimeoutMS    = 60_000
	handshakeTimeoutMS  = 60_000
	disconnectTimeoutMS = 10_000
	defaultBufferSize   = 64 * 1024
)

// TlsSocket is a TcpSocket plus an in-process TLS engine: same connect,
// disconnect, abort and candidate-walk semantics, with plaintext Read/Write
// passing through a handshake and record layer before reaching the kernel.
type TlsSocket struct {
	notifier reactor.Notifier
	resolver config.Resolver
	log      liblog.Logger

	role   Role
	tlsCfg certificates.TLSConfig

	fd       int
	state    tcp.State
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

	plainIn  *ringbuffer.RingBuffer
	plainOut *ringbuffer.RingBuffer

	eng                *engine
	engineSrc          *engineSource
	handshakeComplete  bool
	closeNotifySent    bool
	wrShutdownDone     bool
	pendingCipherWrite []byte
	pendingPlainRead   []byte

	connectTimer    *reactor.Timer
	handshakeTimer  *reactor.Timer
	disconnectTimer *reactor.Timer

	contextID uint64

	readPostedAfterDrain bool
	writeEventScheduled  bool
	dnsInProgress        bool

	Connected    sig.Signal[struct{}]
	Encrypted    sig.Signal[struct{}]
	Disconnected sig.Signal[struct{}]
	Error        sig.Signal[error]
	ReceivedData sig.Signal[struct{}]
	SentData     sig.Signal[int]
}

// New creates an unconnected TlsSocket for the given role. tlsCfg supplies
// certificates, trust anchors, cipher/curve/version policy; resolver may be
// nil if only IP-literal connects are expected (irrelevant for RoleServer);
// log may be nil, in which case the notifier's logger is used.
func New(notifier reactor.Notifier, resolver config.Resolver, role Role, tlsCfg certificates.TLSConfig, log liblog.Logger) *TlsSocket {
	if log == nil {
		log = notifier.Logger()
	}

	s := &TlsSocket{
		notifier: notifier,
		resolver: resolver,
		log:      log,
		role:     role,
		tlsCfg:   tlsCfg,
		fd:       -1,
		state:    tcp.Unconnected,
		plainIn:  ringbuffer.New(defaultBufferSize),
		plainOut: ringbuffer.New(defaultBufferSize),
	}

	s.connectTimer = notifier.Timers().NewTimer(s.onConnectTimeout)
	s.connectTimer.SetSingleShot(true)

	s.handshakeTimer = notifier.Timers().NewTimer(s.onHandshakeTimeout)
	s.handshakeTimer.SetSingleShot(true)

	s.disconnectTimer = notifier.Timers().NewTimer(s.onDisconnectTimeout)
	s.disconnectTimer.SetSingleShot(true)

	return s
}

func (s *TlsSocket) State() tcp.State { return s.state }

func (s *TlsSocket) ContextID() uint64 { return s.contextID }

func (s *TlsSocket) HandshakeComplete() bool { return s.handshakeComplete }

func (s *TlsSocket) DataAvailable() int { return s.plainIn.Size() }

func (s *TlsSocket) DataToWrite() int { return s.plainOut.Size() }

func (s *TlsSocket) LastError() string { return s.errMsg }

// Fd implements reactor.EventSource.
func (s *TlsSocket) Fd() int { return s.fd }

// Enabled implements reactor.EventSource.
func (s *TlsSocket) Enabled() bool { return s.enabled }

// Interest implements reactor.EventSource.
func (s *TlsSocket) Interest() reactor.EventMask { return s.interest }

// SetInterest implements reactor.EventSource.
func (s *TlsSocket) SetInterest(mask reactor.EventMask) liberr.Error {
	s.interest = mask

	if s.enabled {
		return s.notifier.Modify(s)
	}

	return nil
}

// SetEnabled implements reactor.EventSource.
func (s *TlsSocket) SetEnabled(enabled bool) liberr.Error {
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
// the returned error without touching the registration.
func (s *TlsSocket) Close() liberr.Error {
	if s.enabled {
		err := reactor.ErrorSourceDestroyEnabled.Error(nil)
		s.log.Errorf("closing tls socket %s: %v", s.peer.String(), err)
		return err
	}

	s.Abort()
	return nil
}

// Bind records the preferred local endpoint, applied at the next Connect.
func (s *TlsSocket) Bind(host string, port uint16) {
	s.bind = &config.Endpoint{Host: host, Port: port}
}

func (s *TlsSocket) Read(buf []byte) int {
	n := s.plainIn.Read(buf)
	s.maybeRearmRead()
	return n
}

func (s *TlsSocket) Peek(buf []byte) int {
	return s.plainIn.Peek(buf)
}

func (s *TlsSocket) PopFront(n int) int {
	d := s.plainIn.PopFront(n)
	s.maybeRearmRead()
	return d
}

func (s *TlsSocket) ReadAll() []byte {
	out := s.plainIn.ReadAll()
	s.maybeRearmRead()
	return out
}

func (s *TlsSocket) maybeRearmRead() {
	if s.readPostedAfterDrain && !s.plainIn.IsFull() {
		s.readPostedAfterDrain = false
		s.notifier.PostEvent(s, reactor.Readable)
	}
}

// Write appends to the plaintext write buffer, permitted only while
// Connected. Returns the number of bytes accepted.
func (s *TlsSocket) Write(data []byte) int {
	if s.state != tcp.Connected {
		return 0
	}

	n := s.plainOut.Write(data)

	if n > 0 && !s.writeEventScheduled {
		s.writeEventScheduled = true
		s.notifier.PostEvent(s, reactor.Writable)
	}

	return n
}

func (s *TlsSocket) buildTlsConfig() (*gotls.Config, liberr.Error) {
	if s.tlsCfg == nil {
		return nil, ErrorNoTlsConfig.Error(nil)
	}

	role := certificates.RoleClient
	if s.role == RoleServer {
		role = certificates.RoleServer
	}

	return s.tlsCfg.TlsConfigForRole(role, s.peerHost), nil
}
