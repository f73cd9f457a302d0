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
	"github.com/nabbar/reactor/socket/internal/dial"
)

// OnEvent implements reactor.EventSource: the heart of the TCP state
// machine's reaction to kernel readiness.
func (s *TcpSocket) OnEvent(mask reactor.EventMask) {
	myContext := s.contextID

	switch s.state {
	case Connecting:
		s.onConnectingEvent(mask)
	case Connected, Disconnecting:
		s.onConnectedEvent(mask)
	}

	if myContext != s.contextID {
		return
	}

	if mask&(reactor.PeerHangup|reactor.Hangup|reactor.Error|reactor.Priority) != 0 {
		if s.state == Connected || s.state == Disconnecting {
			s.drainResidualThenClose()
		}
	}
}

func (s *TcpSocket) onConnectingEvent(mask reactor.EventMask) {
	if mask&reactor.Writable == 0 {
		return
	}

	errno, gerr := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if gerr != nil || errno != 0 {
		s.dialNextCandidate()
		return
	}

	s.connectTimer.Stop()

	if local, err := unix.Getsockname(s.fd); err == nil {
		if c, ok := dial.Sockaddr(local); ok {
			s.local = c
		}
	}

	s.state = Connected
	s.interest = reactor.Readable | reactor.PeerHangup | reactor.EdgeTriggered
	_ = s.SetInterest(s.interest)

	s.log.Infof("tcp socket connected to %s", s.peer.String())
	s.Connected.Emit(struct{}{})
}

func (s *TcpSocket) onConnectedEvent(mask reactor.EventMask) {
	myContext := s.contextID

	if mask&reactor.Readable != 0 {
		s.readPath()

		if myContext != s.contextID {
			return
		}
	}

	if mask&reactor.Writable != 0 {
		s.writePath()
	}
}

// readPath implements spec section 4.7.5.
func (s *TcpSocket) readPath() {
	src := dial.Source{Fd: s.fd}

	n, err := s.readBuf.WriteFrom(src)
	if err != nil && err != unix.EAGAIN {
		s.raiseError(err)
		return
	}

	if n > 0 {
		s.ReceivedData.Emit(struct{}{})
	}

	if src.Available() > 0 {
		if !s.readBuf.IsFull() {
			s.notifier.PostEvent(s, reactor.Readable)
		} else {
			s.readPostedAfterDrain = true
		}
	}
}

func (s *TcpSocket) writePath() {
	s.writeEventScheduled = false

	myContext := s.contextID
	sink := dial.Source{Fd: s.fd}

	n, err := s.writeBuf.ReadInto(sink)
	if err != nil && err != unix.EAGAIN {
		s.raiseError(err)
		return
	}

	if n > 0 {
		s.SentData.Emit(n)

		if myContext != s.contextID {
			return
		}
	}

	if !s.writeBuf.IsEmpty() {
		// short write: the kernel buffer is full, so wait for the next
		// EPOLLOUT edge instead of re-posting.
		if s.interest&reactor.Writable == 0 {
			_ = s.SetInterest(s.interest | reactor.Writable)
		}
		return
	}

	if s.interest&reactor.Writable != 0 {
		_ = s.SetInterest(s.interest &^ reactor.Writable)
	}

	if s.state == Disconnecting {
		s.finishWriteSideShutdown()
	}
}

func (s *TcpSocket) raiseError(err error) {
	ioErr := ErrorSocketIO.ErrorParent(err)
	msg := fmt.Sprintf("tcp socket error on %s: %v", s.peer.String(), err)
	s.errMsg = msg
	s.log.Errorf("%s", msg)
	s.Error.Emit(ioErr)
	s.Abort()

	// Abort wipes the error state; observers still expect to read the
	// message that caused it.
	s.errMsg = msg
}
