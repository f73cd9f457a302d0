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

package dial

import (
	"net"

	"golang.org/x/sys/unix"

	"github.com/nabbar/reactor/socket/config"
)

// FamilyMismatch reports whether a literal bind address is incompatible
// with a candidate's address family.
func FamilyMismatch(bindIP net.IP, family int) bool {
	isV4 := bindIP.To4() != nil
	return (isV4 && family == unix.AF_INET6) || (!isV4 && family == unix.AF_INET)
}

// Bind binds fd to ip:port for the given address family.
func Bind(fd int, ip net.IP, port uint16, family int) error {
	if family == unix.AF_INET {
		var sa unix.SockaddrInet4
		copy(sa.Addr[:], ip.To4())
		sa.Port = int(port)
		return unix.Bind(fd, &sa)
	}

	var sa unix.SockaddrInet6
	copy(sa.Addr[:], ip.To16())
	sa.Port = int(port)
	return unix.Bind(fd, &sa)
}

// Connect issues a non-blocking connect toward c, retrying across EINTR and
// treating EINPROGRESS as success.
func Connect(fd int, c config.Candidate) error {
	connectOnce := func() error {
		if c.Family == unix.AF_INET {
			sa := &unix.SockaddrInet4{Port: int(c.Port)}
			copy(sa.Addr[:], c.IP.To4())
			return unix.Connect(fd, sa)
		}

		sa := &unix.SockaddrInet6{Port: int(c.Port)}
		copy(sa.Addr[:], c.IP.To16())
		return unix.Connect(fd, sa)
	}

	err := connectOnce()
	for err == unix.EINTR {
		err = connectOnce()
	}

	if err == nil || err == unix.EINPROGRESS {
		return nil
	}

	return err
}

// NewCandidateSocket creates a non-blocking stream socket for candidate c,
// optionally bound to bind, with TCP_NODELAY set. fatal reports a bind()
// failure that must abort the whole candidate walk rather than advance to
// the next candidate; a family mismatch or socket() failure is non-fatal
// and only skips this candidate.
func NewCandidateSocket(c config.Candidate, bind *config.Endpoint) (fd int, err error, fatal bool) {
	fd, err = unix.Socket(c.Family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, err, false
	}

	if bind != nil {
		bindIP := net.ParseIP(bind.Host)
		if bindIP == nil || FamilyMismatch(bindIP, c.Family) {
			_ = unix.Close(fd)
			return -1, unix.EAFNOSUPPORT, false
		}

		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)

		if err = Bind(fd, bindIP, bind.Port, c.Family); err != nil {
			_ = unix.Close(fd)
			return -1, err, true
		}
	}

	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

	return fd, nil, false
}

// Sockaddr converts a resolved local address back into a config.Candidate.
func Sockaddr(sa unix.Sockaddr) (config.Candidate, bool) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return config.Candidate{IP: net.IP(a.Addr[:]), Port: uint16(a.Port), Family: unix.AF_INET}, true
	case *unix.SockaddrInet6:
		return config.Candidate{IP: net.IP(a.Addr[:]), Port: uint16(a.Port), Family: unix.AF_INET6}, true
	default:
		return config.Candidate{}, false
	}
}

// SetSocketOption applies one of the closed set of kernel socket options to
// fd. A negative fd (unconnected) is a no-op.
func SetSocketOption(fd int, opt config.SocketOption, value int) {
	if fd < 0 {
		return
	}

	switch opt {
	case config.LowDelay:
		v := 0
		if value != 0 {
			v = 1
		}
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v)
	case config.KeepAlive:
		v := 0
		if value != 0 {
			v = 1
		}
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, v)
	case config.SendBufferSize:
		if value >= 0 {
			_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, value)
		}
	case config.ReceiveBufferSize:
		if value >= 0 {
			_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, value)
		}
	}
}

// Source adapts a raw descriptor as a ringbuffer.DataSource/DataSink pair.
type Source struct{ Fd int }

func (r Source) Available() int {
	n, err := unix.IoctlGetInt(r.Fd, unix.TIOCINQ)
	if err != nil {
		return 0
	}
	return n
}

func (r Source) Read(buf []byte) (int, error) {
	n, err := unix.Read(r.Fd, buf)
	for err == unix.EINTR {
		n, err = unix.Read(r.Fd, buf)
	}

	if err == unix.EAGAIN {
		return 0, nil
	}

	return n, err
}

func (r Source) Write(buf []byte) (int, error) {
	n, err := unix.Write(r.Fd, buf)
	for err == unix.EINTR {
		n, err = unix.Write(r.Fd, buf)
	}

	if err == unix.EAGAIN {
		return 0, nil
	}

	return n, err
}
