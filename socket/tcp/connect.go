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
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/nabbar/reactor/reactor"
	"github.com/nabbar/reactor/socket/config"
	"github.com/nabbar/reactor/socket/internal/dial"
)

// Connect clears any prior bind-derived locals, aborts the socket, then
// initiates a new connection to host:port, preserving the configured bind
// address. If host is an IP literal the candidate list is [host] and the
// connect attempt starts immediately; otherwise a resolver lookup is
// kicked off first.
func (s *TcpSocket) Connect(host string, port uint16) {
	s.Abort()

	s.peerHost = host
	s.peerPort = port
	s.state = Connecting
	s.log.Debugf("tcp socket connecting to %s:%d", host, port)

	ep := config.Endpoint{Host: host, Port: port}

	if ep.IsLiteral() {
		s.candidates = config.CandidatesFromEndpoint(ep)
		s.candIdx = 0
		s.dialNextCandidate()
		return
	}

	if s.resolver == nil {
		s.failConnect(ErrorDnsResolve.ErrorParent(fmt.Errorf("no resolver configured for host %q", host)))
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
			s.failConnect(ErrorDnsResolve.ErrorParent(fmt.Errorf("dns lookup for %q: %w", host, err)))
			return
		}

		s.candidates = candidates
		s.candIdx = 0
		s.dialNextCandidate()
	})
}

func (s *TcpSocket) failConnect(err error) {
	s.state = Unconnected
	s.errMsg = err.Error()
	s.log.Errorf("tcp socket connect to %s:%d failed: %v", s.peerHost, s.peerPort, err)
	s.Error.Emit(err)
}

// dialNextCandidate runs the connect candidate walk (spec step 4.7.3),
// advancing through s.candidates until one succeeds or the list is
// exhausted.
func (s *TcpSocket) dialNextCandidate() {
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
			bindErr := ErrorSocketBind.ErrorParent(err)
			s.errMsg = bindErr.Error()
			s.log.Errorf("tcp socket bind for candidate %s: %v", c.String(), err)
			s.Error.Emit(bindErr)
			return
		}
		if err != nil {
			s.log.Debugf("skipping candidate %s: %v", c.String(), ErrorSocketCreate.ErrorParent(err))
			continue
		}

		s.fd = fd
		s.connectTimer.StartMs(connectTimeoutMS)

		if connectErr := dial.Connect(fd, c); connectErr != nil {
			s.log.Debugf("skipping candidate %s: %v", c.String(), ErrorSocketConnect.ErrorParent(connectErr))
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
			s.failConnect(ErrorRegisterSource.Error(e))
			return
		}

		return
	}

	s.connectTimer.Stop()
	s.failConnect(ErrorCandidatesExhausted.ErrorParent(fmt.Errorf("peer %s", s.peerHost)))
}

// onConnectTimeout fires when the 60s connect timer expires while still
// Connecting: advance to the next candidate.
func (s *TcpSocket) onConnectTimeout() {
	if s.state != Connecting {
		return
	}

	s.log.Warningf("tcp socket connect attempt to %s timed out, trying next candidate", s.peer.String())
	s.dialNextCandidate()
}

// Abort closes the descriptor (if any), cancels DNS, stops timers, clears
// buffers and error state, increments the context id, and resets to
// Unconnected. Idempotent.
func (s *TcpSocket) Abort() {
	s.contextID++

	if s.fd >= 0 {
		_ = s.SetEnabled(false)
		_ = unix.Close(s.fd)
		s.fd = -1
	}

	s.notifier.RemovePostedEvents(s)

	s.connectTimer.Stop()
	s.disconnectTimer.Stop()

	s.dnsInProgress = false
	s.readBuf.Clear()
	s.writeBuf.Clear()
	s.readPostedAfterDrain = false
	s.writeEventScheduled = false
	s.errMsg = ""
	s.candidates = nil

	s.state = Unconnected
}

// DisconnectFromPeer initiates a graceful shutdown. It is idempotent in
// Unconnected and Disconnecting, and equivalent to Abort while Connecting.
func (s *TcpSocket) DisconnectFromPeer() {
	switch s.state {
	case Unconnected, Disconnecting:
		return
	case Connecting:
		s.Abort()
		return
	}

	s.state = Disconnecting
	s.interest &^= reactor.Readable
	_ = s.SetInterest(s.interest)

	s.log.Debugf("tcp socket disconnecting from %s", s.peer.String())
	s.disconnectTimer.StartMs(disconnectTimeoutMS)

	if s.writeBuf.IsEmpty() {
		s.finishWriteSideShutdown()
	}
}

func (s *TcpSocket) finishWriteSideShutdown() {
	if err := unix.Shutdown(s.fd, unix.SHUT_WR); err != nil {
		if s.readBuf2Available() > 0 {
			s.closeAndNotifyDisconnected()
			return
		}

		s.Abort()
	}
}

// readBuf2Available reports bytes still readable directly on the
// descriptor (as opposed to already buffered), used by the disconnect path
// to decide whether a failed shutdown(WR) should still drain first.
func (s *TcpSocket) readBuf2Available() int {
	n, _, _ := unix.Recvfrom(s.fd, make([]byte, 1), unix.MSG_PEEK|unix.MSG_DONTWAIT)
	if n < 0 {
		return 0
	}

	return n
}

func (s *TcpSocket) closeAndNotifyDisconnected() {
	wasLive := s.state == Connected || s.state == Disconnecting

	if s.fd >= 0 {
		_ = s.SetEnabled(false)
		_ = unix.Close(s.fd)
		s.fd = -1
	}

	s.connectTimer.Stop()
	s.disconnectTimer.Stop()
	s.writeBuf.Clear()
	s.state = Unconnected

	if wasLive {
		s.log.Debugf("tcp socket disconnected from %s", s.peer.String())
		s.Disconnected.Emit(struct{}{})
	}
}

func (s *TcpSocket) onDisconnectTimeout() {
	s.drainResidualThenClose()
}

// drainResidualThenClose drains any data still readable on the descriptor
// into the read buffer (emitting ReceivedData per iteration), then closes
// and transitions to Unconnected, emitting Disconnected iff the prior state
// warrants it.
func (s *TcpSocket) drainResidualThenClose() {
	if s.fd >= 0 {
		myContext := s.contextID
		src := dial.Source{Fd: s.fd}

		for !s.readBuf.IsFull() {
			n, err := s.readBuf.WriteFrom(src)
			if n <= 0 {
				break
			}

			s.ReceivedData.Emit(struct{}{})

			if myContext != s.contextID {
				return
			}

			if err != nil {
				break
			}
		}
	}

	s.closeAndNotifyDisconnected()
}

// SetSocketOption applies one of the closed set of kernel socket options.
// Values outside the allowed domain are ignored.
func (s *TcpSocket) SetSocketOption(opt config.SocketOption, value int) {
	dial.SetSocketOption(s.fd, opt, value)
}

