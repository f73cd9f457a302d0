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

	"golang.org/x/sys/unix"

	liberr "github.com/nabbar/reactor/errors"
	"github.com/nabbar/reactor/reactor"
	"github.com/nabbar/reactor/socket/internal/dial"
	"github.com/nabbar/reactor/socket/tcp"
)

// engineSource surfaces the TLS engine's wake eventfd as a reactor event
// source, so progress made on the engine goroutines (handshake completion,
// freshly decrypted plaintext, queued ciphertext) re-enters the turn loop
// like any other readiness event instead of requiring the loop to poll.
type engineSource struct {
	owner    *TlsSocket
	fd       int
	enabled  bool
	interest reactor.EventMask
}

func (es *engineSource) Fd() int                     { return es.fd }
func (es *engineSource) Enabled() bool               { return es.enabled }
func (es *engineSource) Interest() reactor.EventMask { return es.interest }

func (es *engineSource) SetInterest(mask reactor.EventMask) liberr.Error {
	es.interest = mask

	if es.enabled {
		return es.owner.notifier.Modify(es)
	}

	return nil
}

func (es *engineSource) SetEnabled(enabled bool) liberr.Error {
	if enabled == es.enabled {
		return nil
	}

	es.enabled = enabled

	if enabled {
		return es.owner.notifier.Register(es)
	}

	return es.owner.notifier.Remove(es)
}

func (es *engineSource) OnEvent(mask reactor.EventMask) {
	if mask&reactor.Readable == 0 {
		return
	}

	var buf [8]byte
	_, _ = unix.Read(es.fd, buf[:])

	es.owner.onEngineWake()
}

// OnEvent implements reactor.EventSource.
func (s *TlsSocket) OnEvent(mask reactor.EventMask) {
	myContext := s.contextID

	switch s.state {
	case tcp.Connecting:
		s.onConnectingEvent(mask)
	case tcp.Connected, tcp.Disconnecting:
		s.onConnectedEvent(mask)
	}

	if myContext != s.contextID {
		return
	}

	if mask&(reactor.PeerHangup|reactor.Hangup|reactor.Error|reactor.Priority) != 0 {
		if s.state == tcp.Connected || s.state == tcp.Disconnecting {
			s.drainResidualThenClose()
		}
	}
}

// onEngineWake reacts to the engine's wake eventfd: flush any ciphertext it
// produced, then poll handshake state and deliver decrypted plaintext.
func (s *TlsSocket) onEngineWake() {
	if s.state != tcp.Connected && s.state != tcp.Disconnecting {
		return
	}

	myContext := s.contextID

	s.pumpWritable()

	if myContext != s.contextID {
		return
	}

	s.pumpEngine()
}

func (s *TlsSocket) onConnectingEvent(mask reactor.EventMask) {
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

	s.state = tcp.Connected
	s.interest = reactor.Readable | reactor.PeerHangup | reactor.EdgeTriggered
	_ = s.SetInterest(s.interest)

	s.Connected.Emit(struct{}{})
	s.startHandshake()
}

func (s *TlsSocket) onConnectedEvent(mask reactor.EventMask) {
	myContext := s.contextID

	if mask&reactor.Readable != 0 {
		s.pumpReadable()

		if myContext != s.contextID {
			return
		}
	}

	if mask&reactor.Writable != 0 {
		s.pumpWritable()

		if myContext != s.contextID {
			return
		}
	}

	s.pumpEngine()
}

// pumpReadable implements the ciphertext half of spec section 4.8.3: pull
// ciphertext off the descriptor and feed the engine.
func (s *TlsSocket) pumpReadable() {
	if s.eng == nil {
		return
	}

	if s.plainIn.IsFull() {
		s.readPostedAfterDrain = true
		return
	}

	src := dial.Source{Fd: s.fd}
	buf := make([]byte, 16*1024)

	n, err := src.Read(buf)
	if err != nil && err != unix.EAGAIN {
		s.raiseError(tcp.ErrorSocketIO.ErrorParent(err))
		return
	}

	if n > 0 {
		s.eng.feedCiphertext(buf[:n])
		s.scheduleCipherFlush()
	}

	if src.Available() > 0 {
		s.notifier.PostEvent(s, reactor.Readable)
	}
}

// pumpWritable implements the ciphertext half of spec section 4.8.4: drain
// the engine's outbound ciphertext to the descriptor, and feed queued
// plaintext into the engine.
func (s *TlsSocket) pumpWritable() {
	s.writeEventScheduled = false

	if s.eng == nil {
		return
	}

	sink := dial.Source{Fd: s.fd}

	out := append(s.pendingCipherWrite, s.eng.drainCiphertext()...)
	s.pendingCipherWrite = nil

	if len(out) > 0 {
		n, err := sink.Write(out)
		if err != nil && err != unix.EAGAIN {
			s.raiseError(tcp.ErrorSocketIO.ErrorParent(err))
			return
		}

		if n < len(out) {
			// kernel buffer full: wait for the next EPOLLOUT edge rather
			// than re-posting.
			s.pendingCipherWrite = append(s.pendingCipherWrite, out[n:]...)

			if s.interest&reactor.Writable == 0 {
				_ = s.SetInterest(s.interest | reactor.Writable)
			}
		}
	}

	if len(s.pendingCipherWrite) == 0 && s.interest&reactor.Writable != 0 {
		_ = s.SetInterest(s.interest &^ reactor.Writable)
	}

	if s.handshakeComplete && !s.closeNotifySent {
		peek := make([]byte, 16*1024)

		for !s.plainOut.IsEmpty() {
			n := s.plainOut.Peek(peek)
			if n == 0 {
				break
			}

			chunk := append([]byte(nil), peek[:n]...)
			if !s.eng.tryWritePlaintext(chunk) {
				s.scheduleCipherFlush()
				break
			}

			s.plainOut.PopFront(n)
		}
	}

	if s.state == tcp.Disconnecting {
		s.maybeSendCloseNotify()

		if s.closeNotifySent && !s.wrShutdownDone && s.eng != nil &&
			s.eng.closeNotifyFlushed() && len(s.pendingCipherWrite) == 0 {
			if rest := s.eng.drainCiphertext(); len(rest) > 0 {
				s.pendingCipherWrite = rest
				s.scheduleCipherFlush()
			} else {
				s.finishWriteSideShutdown()
			}
		}
	}
}

// pumpEngine drives handshake completion and plaintext delivery; it runs
// unconditionally on every turn a Connected/Disconnecting socket wakes for,
// since engine progress is not necessarily correlated with a fresh kernel
// readiness bit.
func (s *TlsSocket) pumpEngine() {
	if s.eng == nil {
		return
	}

	if !s.handshakeComplete {
		if done, err := s.eng.pollHandshake(); done {
			if err != nil {
				s.raiseError(ErrorHandshakeFailed.ErrorParent(fmt.Errorf("peer %s: %w", s.peer.String(), err)))
				return
			}

			s.handshakeComplete = true
			s.handshakeTimer.Stop()
			s.log.Infof("tls handshake complete with %s", s.peer.String())
			s.Encrypted.Emit(struct{}{})
			s.scheduleCipherFlush()
		} else {
			return
		}
	}

	delivered := s.flushPendingPlaintext()

	if len(s.pendingPlainRead) == 0 {
		for i := 0; i < 16 && !s.plainIn.IsFull(); i++ {
			chunk, eof, ok := s.eng.tryReadPlaintext()
			if !ok {
				break
			}

			if eof {
				s.onPeerCloseNotify()
				break
			}

			n := s.plainIn.Write(chunk)
			delivered += n

			if n < len(chunk) {
				// chunk tail survives until the user drains plain_in.
				s.pendingPlainRead = append([]byte(nil), chunk[n:]...)
				s.readPostedAfterDrain = true
				break
			}
		}
	}

	if delivered > 0 {
		s.ReceivedData.Emit(struct{}{})
	}
}

// flushPendingPlaintext moves any decrypted bytes that did not fit into
// plain_in on an earlier pass, returning how many were delivered now.
func (s *TlsSocket) flushPendingPlaintext() int {
	if len(s.pendingPlainRead) == 0 {
		return 0
	}

	n := s.plainIn.Write(s.pendingPlainRead)
	s.pendingPlainRead = s.pendingPlainRead[n:]

	if len(s.pendingPlainRead) > 0 {
		s.readPostedAfterDrain = true
	} else {
		s.pendingPlainRead = nil
	}

	return n
}

func (s *TlsSocket) onPeerCloseNotify() {
	if s.state == tcp.Connected {
		s.DisconnectFromPeer()
	}
}

func (s *TlsSocket) scheduleCipherFlush() {
	if !s.writeEventScheduled {
		s.writeEventScheduled = true
		s.notifier.PostEvent(s, reactor.Writable)
	}
}

func (s *TlsSocket) raiseError(err error) {
	msg := fmt.Sprintf("tls socket error on %s: %v", s.peer.String(), err)
	s.errMsg = msg
	s.log.Errorf("%s", msg)
	s.Error.Emit(err)
	s.Abort()

	// Abort wipes the error state; observers still expect to read the
	// message that caused it.
	s.errMsg = msg
}
