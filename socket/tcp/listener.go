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
	"net"

	"golang.org/x/sys/unix"

	liberr "github.com/nabbar/reactor/errors"
	liblog "github.com/nabbar/reactor/logger"
	"github.com/nabbar/reactor/reactor"
	"github.com/nabbar/reactor/socket/config"
	"github.com/nabbar/reactor/socket/internal/dial"
)

// Listener is a non-blocking, reactor-driven accept source. It is the
// server-side counterpart to Connect's client-side candidate walk: an
// accepted fd crosses into an ordinary TcpSocket the moment it passes
// validation in adopt, below.
type Listener struct {
	notifier reactor.Notifier
	log      liblog.Logger

	fd       int
	enabled  bool
	interest reactor.EventMask

	backlog int

	OnAccept func(fd int, peer config.Candidate)
	OnError  func(error)
}

// NewListener creates a non-blocking listening socket bound to host:port
// (an IPv4/IPv6 literal) with the given backlog, and registers it for
// readable events on notifier.
func NewListener(notifier reactor.Notifier, host string, port uint16, backlog int) (*Listener, liberr.Error) {
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, ErrorListenAddress.ErrorParent(fmt.Errorf("not an ip literal: %q", host))
	}

	family := unix.AF_INET
	if ip.To4() == nil {
		family = unix.AF_INET6
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, ErrorListenSocket.ErrorParent(err)
	}

	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)

	if berr := dial.Bind(fd, ip, port, family); berr != nil {
		_ = unix.Close(fd)
		return nil, ErrorListenBind.ErrorParent(berr)
	}

	if backlog <= 0 {
		backlog = 128
	}

	if lerr := unix.Listen(fd, backlog); lerr != nil {
		_ = unix.Close(fd)
		return nil, ErrorListenListen.ErrorParent(lerr)
	}

	l := &Listener{
		notifier: notifier,
		log:      notifier.Logger(),
		fd:       fd,
		interest: reactor.Readable | reactor.EdgeTriggered,
		backlog:  backlog,
	}

	if e := l.SetEnabled(true); e != nil {
		_ = unix.Close(fd)
		return nil, e
	}

	l.log.Infof("tcp listener accepting on %s:%d (backlog %d)", host, port, backlog)
	return l, nil
}

func (l *Listener) Fd() int                     { return l.fd }
func (l *Listener) Enabled() bool               { return l.enabled }
func (l *Listener) Interest() reactor.EventMask { return l.interest }

func (l *Listener) SetInterest(mask reactor.EventMask) liberr.Error {
	l.interest = mask
	if l.enabled {
		return l.notifier.Modify(l)
	}
	return nil
}

func (l *Listener) SetEnabled(enabled bool) liberr.Error {
	if enabled == l.enabled {
		return nil
	}

	l.enabled = enabled

	if enabled {
		return l.notifier.Register(l)
	}

	return l.notifier.Remove(l)
}

// Addr returns the bound local address.
func (l *Listener) Addr() (config.Candidate, bool) {
	sa, err := unix.Getsockname(l.fd)
	if err != nil {
		return config.Candidate{}, false
	}

	return dial.Sockaddr(sa)
}

// Close stops accepting and releases the listening descriptor.
func (l *Listener) Close() {
	if l.fd < 0 {
		return
	}

	_ = l.SetEnabled(false)
	_ = unix.Close(l.fd)
	l.fd = -1
}

// OnEvent drains every connection the kernel has queued (edge-triggered:
// a single readiness notification can hide more than one pending accept),
// handing each off to OnAccept.
func (l *Listener) OnEvent(mask reactor.EventMask) {
	if mask&reactor.Readable == 0 {
		return
	}

	for {
		fd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err != unix.EAGAIN {
				l.log.Errorf("tcp listener accept: %v", err)
				if l.OnError != nil {
					l.OnError(err)
				}
			}
			return
		}

		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

		peer, _ := dial.Sockaddr(sa)

		if l.OnAccept != nil {
			l.OnAccept(fd, peer)
		} else {
			_ = unix.Close(fd)
		}
	}
}

// Accept builds a fresh TcpSocket bound to notifier/resolver, adopting fd as
// an already-connected descriptor: SO_ERROR must read 0, otherwise the
// descriptor is closed and nil is returned rather than adopting a
// non-connected descriptor.
func Accept(notifier reactor.Notifier, resolver config.Resolver, fd int, peer config.Candidate) *TcpSocket {
	s := New(notifier, resolver, nil)

	if !s.adopt(fd, peer) {
		return nil
	}

	return s
}

// adopt validates and takes ownership of an externally-accepted descriptor,
// transitioning directly to Connected. Returns false (and closes fd) if the
// descriptor is not a connected, errorless socket.
func (s *TcpSocket) adopt(fd int, peer config.Candidate) bool {
	errno, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if gerr != nil || errno != 0 {
		s.log.Warningf("refusing adopted descriptor %d from %s: %v", fd, peer.String(), ErrorNotConnected.Error(nil))
		_ = unix.Close(fd)
		return false
	}

	if _, perr := unix.Getpeername(fd); perr != nil {
		s.log.Warningf("refusing adopted descriptor %d from %s: %v", fd, peer.String(), ErrorNotConnected.ErrorParent(perr))
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

	s.state = Connected
	s.interest = reactor.Readable | reactor.PeerHangup | reactor.EdgeTriggered
	_ = s.SetEnabled(true)

	s.Connected.Emit(struct{}{})

	return true
}
