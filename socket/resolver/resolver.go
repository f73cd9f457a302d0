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

package resolver

import (
	"context"
	"encoding/binary"
	"net"
	"sync"

	"golang.org/x/sys/unix"

	liberr "github.com/nabbar/reactor/errors"
	"github.com/nabbar/reactor/reactor"
	"github.com/nabbar/reactor/socket/config"
)

const (
	ErrorWakeFd liberr.CodeError = iota + liberr.MinPkgSocketConfig
	ErrorClosed
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = liberr.ExistInMapMessage(ErrorWakeFd)
	liberr.RegisterIdFctMessage(ErrorWakeFd, getMessage)
}

func getMessage(code liberr.CodeError) (message string) {
	switch code {
	case liberr.UNK_ERROR:
		return ""
	case ErrorWakeFd:
		return "cannot create resolver wakeup descriptor"
	case ErrorClosed:
		return "resolver is closed"
	}

	return ""
}

// NetResolver runs name lookups on a goroutine per outstanding query and
// delivers each completion back onto the reactor goroutine through an
// eventfd-backed event source, so sockets observe resolution results from
// the turn loop and never from an arbitrary goroutine. It implements
// config.Resolver.
type NetResolver struct {
	notifier reactor.Notifier

	fd       int
	enabled  bool
	interest reactor.EventMask

	mu      sync.Mutex
	closed  bool
	pending []func()
}

// New creates a NetResolver registered with notifier, resolving through
// net.DefaultResolver.
func New(notifier reactor.Notifier) (*NetResolver, liberr.Error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, ErrorWakeFd.ErrorParent(err)
	}

	r := &NetResolver{
		notifier: notifier,
		fd:       fd,
		interest: reactor.Readable,
	}

	if e := r.SetEnabled(true); e != nil {
		_ = unix.Close(fd)
		return nil, e
	}

	return r, nil
}

func (r *NetResolver) Fd() int                     { return r.fd }
func (r *NetResolver) Enabled() bool               { return r.enabled }
func (r *NetResolver) Interest() reactor.EventMask { return r.interest }

func (r *NetResolver) SetInterest(mask reactor.EventMask) liberr.Error {
	r.interest = mask

	if r.enabled {
		return r.notifier.Modify(r)
	}

	return nil
}

func (r *NetResolver) SetEnabled(enabled bool) liberr.Error {
	if enabled == r.enabled {
		return nil
	}

	r.enabled = enabled

	if enabled {
		return r.notifier.Register(r)
	}

	return r.notifier.Remove(r)
}

// LookupCandidates implements config.Resolver.
func (r *NetResolver) LookupCandidates(host string, port uint16, done func([]config.Candidate, error)) {
	go func() {
		addrs, err := net.DefaultResolver.LookupIPAddr(context.Background(), host)

		cands := make([]config.Candidate, 0, len(addrs))
		for _, a := range addrs {
			cands = append(cands, config.CandidateFromIP(a.IP, port))
		}

		r.post(func() { done(cands, err) })
	}()
}

func (r *NetResolver) post(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.pending = append(r.pending, fn)

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(r.fd, buf[:])
}

// OnEvent implements reactor.EventSource, delivering completed lookups in
// FIFO order on the reactor goroutine.
func (r *NetResolver) OnEvent(mask reactor.EventMask) {
	if mask&reactor.Readable == 0 {
		return
	}

	var buf [8]byte
	_, _ = unix.Read(r.fd, buf[:])

	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

// Close deregisters the wake source and drops any pending completions.
// Lookups already in flight finish their goroutine but deliver nothing.
func (r *NetResolver) Close() {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return
	}

	r.closed = true
	r.pending = nil
	r.mu.Unlock()

	_ = r.SetEnabled(false)
	_ = unix.Close(r.fd)
}
