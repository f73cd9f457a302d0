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
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nabbar/reactor/reactor"
	"github.com/nabbar/reactor/socket/config"
	"github.com/nabbar/reactor/socket/internal/dial"
	"github.com/nabbar/reactor/socket/tcp"
)

// Connect aborts any prior attempt, then initiates a new connection to
// host:port, following the same candidate-walk semantics as TcpSocket.
// Only meaningful for RoleClient sockets.
func (s *TlsSocket) Connect(host string, port uint16) {
	s.Abort()

	s.peerHost = host
	s.peerPort = port
	s.state = tcp.Connecting
	s.log.Debugf("tls socket connecting to %s:%d", host, port)

	ep := config.Endpoint{Host: host, Port: port}

	if ep.IsLiteral() {
		s.candidates = config.CandidatesFromEndpoint(ep)
		s.candIdx = 0
		s.dialNextCandidate()
		return
	}

	if s.resolver == nil {
		s.failConnect(tcp.ErrorDnsResolve.ErrorParent(fmt.Errorf("no resolver configured for host %q", host)))
		return
	}

	s.dnsInProgress = true
	myContext := s.contextID

	s.resolver.LookupCandidates(host, port, func(candidates []config.Candidate, err error) {
		if myContext != s.contextID {
			return
		}

		s.dnsInProgress = false

		if err != nil || len(candidates) == 0 {
			s.failConnect(tcp.ErrorDnsResolve.ErrorParent(fmt.Errorf("dns lookup for %q: %w", host, err)))
			return
		}

		s.candidates = candidates
		s.candIdx = 0
		s.dialNextCandidate()
	})
}

func (s *TlsSocket) failConnect(err error) {
	s.state = tcp.Unconnected
	s.errMsg = err.Error()
	s.log.Errorf("tls socket connect to %s:%d failed: %v", s.peerHost, s.peerPort, err)
	s.Error.Emit(err)
}

func (s *TlsSocket) dialNextCandidate() {
	for s.candIdx < len(s.candidates) {
		c := s.candidates[s.candIdx]
		s.candIdx++

		if s.fd >= 0 {
			_ = s.SetEnabled(false)
			_ = unix.Close(s.fd)
			s.fd = -1
		}

		fd, err, fatal := dial.NewCandidateSocket(c, s.bind)
		if fatal {
			bindErr := tcp.ErrorSocketBind.ErrorParent(err)
			s.errMsg = bindErr.Error()
			s.log.Errorf("tls socket bind for candidate %s: %v", c.String(), err)
			s.Error.Emit(bindErr)
			return
		}
		if err != nil {
			s.log.Debugf("skipping candidate %s: %v", c.String(), tcp.ErrorSocketCreate.ErrorParent(err))
			continue
		}

		s.fd = fd
		s.connectTimer.StartMs(connectTimeoutMS)

		if connectErr := dial.Connect(fd, c); connectErr != nil {
			s.log.Debugf("skipping candidate %s: %v", c.String(), tcp.ErrorSocketConnect.ErrorParent(connectErr))
			_ = unix.Close(fd)
			s.fd = -1
			continue
		}

		s.peer = c
		s.interest = reactor.Writable | reactor.EdgeTriggered

		if e := s.SetEnabled(true); e != nil {
			s.connectTimer.Stop()
			_ = unix.Close(fd)
			s.fd = -1
			s.failConnect(tcp.ErrorRegisterSource.Error(e))
			return
		}

		return
	}

	s.connectTimer.Stop()
	s.failConnect(tcp.ErrorCandidatesExhausted.ErrorParent(fmt.Errorf("peer %s", s.peerHost)))
}

func (s *TlsSocket) onConnectTimeout() {
	if s.state != tcp.Connecting {
		return
	}

	s.log.Warningf("tls socket connect attempt to %s timed out, trying next candidate", s.peer.String())
	s.dialNextCandidate()
}

// startHandshake builds the TLS engine, registers its wake descriptor with
// the notifier, and arms the handshake timeout. Called once the TCP leg has
// completed.
func (s *TlsSocket) startHandshake() {
	cfg, err := s.buildTlsConfig()
	if err != nil {
		s.raiseError(err)
		return
	}

	eng, eerr := newEngine(s.role, cfg)
	if eerr != nil {
		s.raiseError(eerr)
		return
	}

	s.eng = eng
	s.engineSrc = &engineSource{owner: s, fd: eng.wakeFd(), interest: reactor.Readable}
	_ = s.engineSrc.SetEnabled(true)

	s.log.Debugf("tls handshake started with %s as %s", s.peer.String(), s.role.String())
	s.handshakeTimer.StartMs(handshakeTimeoutMS)
}

func (s *TlsSocket) onHandshakeTimeout() {
	if s.handshakeComplete {
		return
	}

	s.raiseError(ErrorHandshakeTimeout.ErrorParent(fmt.Errorf("peer %s", s.peer.String())))
}

// Abort closes the descriptor and TLS engine (if any), cancels DNS, stops
// timers, clears buffers and error state, increments the context id, and
// resets to Unconnected. Idempotent.
func (s *TlsSocket) Abort() {
	s.contextID++

	s.teardownEngine()

	if s.fd >= 0 {
		_ = s.SetEnabled(false)
		_ = unix.Close(s.fd)
		s.fd = -1
	}

	s.notifier.RemovePostedEvents(s)

	s.connectTimer.Stop()
	s.handshakeTimer.Stop()
	s.disconnectTimer.Stop()

	s.dnsInProgress = false
	s.plainIn.Clear()
	s.plainOut.Clear()
	s.readPostedAfterDrain = false
	s.writeEventScheduled = false
	s.handshakeComplete = false
	s.closeNotifySent = false
	s.wrShutdownDone = false
	s.pendingCipherWrite = nil
	s.pendingPlainRead = nil
	s.errMsg = ""
	s.candidates = nil

	s.state = tcp.Unconnected
}

// teardownEngine deregisters the engine wake source before shutting the
// engine down, so a pulse from an exiting engine goroutine can never be
// dispatched to a dead socket.
func (s *TlsSocket) teardownEngine() {
	if s.engineSrc != nil {
		_ = s.engineSrc.SetEnabled(false)
		s.engineSrc = nil
	}

	if s.eng != nil {
		s.eng.shutdown()
		s.eng = nil
	}
}

// DisconnectFromPeer initiates a graceful shutdown, draining the plaintext
// write buffer through the engine before sending a close-notify.
func (s *TlsSocket) DisconnectFromPeer() {
	switch s.state {
	case tcp.Unconnected, tcp.Disconnecting:
		return
	case tcp.Connecting:
		s.Abort()
		return
	}

	s.state = tcp.Disconnecting
	s.interest &^= reactor.Readable
	_ = s.SetInterest(s.interest)

	s.log.Debugf("tls socket disconnecting from %s", s.peer.String())
	s.disconnectTimer.StartMs(disconnectTimeoutMS)

	s.maybeSendCloseNotify()
}

func (s *TlsSocket) maybeSendCloseNotify() {
	if !s.handshakeComplete || s.eng == nil || s.closeNotifySent {
		return
	}

	if s.plainOut.IsEmpty() {
		close(s.eng.toEngine)
		s.closeNotifySent = true
	}
}

func (s *TlsSocket) finishWriteSideShutdown() {
	s.wrShutdownDone = true

	if err := unix.Shutdown(s.fd, unix.SHUT_WR); err != nil {
		s.closeAndNotifyDisconnected()
	}
}

func (s *TlsSocket) closeAndNotifyDisconnected() {
	wasLive := s.state == tcp.Connected || s.state == tcp.Disconnecting

	s.teardownEngine()

	if s.fd >= 0 {
		_ = s.SetEnabled(false)
		_ = unix.Close(s.fd)
		s.fd = -1
	}

	s.connectTimer.Stop()
	s.handshakeTimer.Stop()
	s.disconnectTimer.Stop()
	s.plainOut.Clear()
	s.pendingPlainRead = nil
	s.handshakeComplete = false
	s.closeNotifySent = false
	s.wrShutdownDone = false
	s.state = tcp.Unconnected

	if wasLive {
		s.log.Debugf("tls socket disconnected from %s", s.peer.String())
		s.Disconnected.Emit(struct{}{})
	}
}

// onDisconnectTimeout mirrors tcp's drainResidualThenClose: before closing,
// pull any plaintext the engine has already decrypted but the turn loop
// hasn't delivered yet, so a peer's last message isn't lost to a race
// between its close-notify and the disconnect deadline.
func (s *TlsSocket) onDisconnectTimeout() {
	s.drainResidualThenClose()
}

func (s *TlsSocket) drainResidualThenClose() {
	if s.eng != nil {
		myContext := s.contextID

		if n := s.flushPendingPlaintext(); n > 0 {
			s.ReceivedData.Emit(struct{}{})

			if myContext != s.contextID {
				return
			}
		}

		// Ciphertext fed this same turn may still be in flight through the
		// engine; wait briefly for each decrypted chunk before giving up.
		for !s.plainIn.IsFull() {
			chunk, eof, ok := s.eng.readPlaintextWait(50 * time.Millisecond)
			if !ok || eof {
				break
			}

			n := s.plainIn.Write(chunk)

			if n > 0 {
				s.ReceivedData.Emit(struct{}{})

				if myContext != s.contextID {
					return
				}
			}

			if n < len(chunk) {
				break
			}
		}
	}

	s.closeAndNotifyDisconnected()
}

// SetSocketOption applies one of the closed set of kernel socket options to
// the underlying descriptor.
func (s *TlsSocket) SetSocketOption(opt config.SocketOption, value int) {
	dial.SetSocketOption(s.fd, opt, value)
}
