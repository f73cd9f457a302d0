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
	"golang.org/x/sys/unix"

	"github.com/nabbar/reactor/certificates"
	"github.com/nabbar/reactor/reactor"
	"github.com/nabbar/reactor/socket/config"
	"github.com/nabbar/reactor/socket/internal/dial"
	"github.com/nabbar/reactor/socket/tcp"
)

// Accept builds a RoleServer TlsSocket around an already-accepted,
// connected descriptor (the same boundary tcp.Accept crosses for plain
// sockets) and immediately starts the TLS handshake, since a server-role
// socket never calls Connect.
func Accept(notifier reactor.Notifier, fd int, peer config.Candidate, tlsCfg certificates.TLSConfig) *TlsSocket {
	s := New(notifier, nil, RoleServer, tlsCfg, nil)

	if !s.adopt(fd, peer) {
		return nil
	}

	return s
}

// adopt validates and takes ownership of an externally-accepted descriptor,
// transitioning directly to Connected and starting the handshake, mirroring
// TcpSocket.adopt.
func (s *TlsSocket) adopt(fd int, peer config.Candidate) bool {
	errno, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if gerr != nil || errno != 0 {
		s.log.Warningf("refusing adopted descriptor %d from %s: %v", fd, peer.String(), tcp.ErrorNotConnected.Error(nil))
		_ = unix.Close(fd)
		return false
	}

	if _, perr := unix.Getpeername(fd); perr != nil {
		s.log.Warningf("refusing adopted descriptor %d from %s: %v", fd, peer.String(), tcp.ErrorNotConnected.ErrorParent(perr))
		_ = unix.Close(fd)
		return false
	}

	s.fd = fd
	s.peer = peer

	if local, err := unix.Getsockname(fd); err == nil {
		if c, ok := dial.Sockaddr(local); ok {
			s.local = c
		}
	}

	s.state = tcp.Connected
	s.interest = reactor.Readable | reactor.PeerHangup | reactor.EdgeTriggered
	_ = s.SetEnabled(true)

	s.Connected.Emit(struct{}{})
	s.startHandshake()

	return true
}
