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

package reactor

import (
	"golang.org/x/sys/unix"

	liberr "github.com/nabbar/reactor/errors"
	liblog "github.com/nabbar/reactor/logger"
)

// scratchCapacity bounds the number of readiness events drained in a single
// Turn, matching the notifier's fixed-size scratch array.
const scratchCapacity = 65536

type notifier struct {
	epfd      int
	closed    bool
	inTurn    bool
	scratch   []unix.EpollEvent
	triggered int
	cursor    int
	regs      map[int]EventSource
	log       liblog.Logger

	wheel   *TimerWheel
	deleter *DeferredDeleter
	ready   *ReadyQueue
}

// New creates a Notifier: an epoll instance plus its three internal
// sources (timer wheel, deferred deleter, ready queue). log may be nil; a
// discard logger is substituted.
func New(log liblog.Logger) (Notifier, liberr.Error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, ErrorEpollCreate.ErrorParent(err)
	}

	n := &notifier{
		epfd:    epfd,
		scratch: make([]unix.EpollEvent, scratchCapacity),
		regs:    make(map[int]EventSource),
		log:     liblog.OrDiscard(log),
	}

	wheel, werr := newTimerWheel(n)
	if werr != nil {
		_ = unix.Close(epfd)
		return nil, werr
	}
	n.wheel = wheel

	del, derr := newDeferredDeleter(n)
	if derr != nil {
		_ = unix.Close(epfd)
		return nil, derr
	}
	n.deleter = del

	rdy, rerr := newReadyQueue(n)
	if rerr != nil {
		_ = unix.Close(epfd)
		return nil, rerr
	}
	n.ready = rdy

	return n, nil
}

func maskToEpoll(m EventMask) uint32 {
	var e uint32

	if m&Readable != 0 {
		e |= unix.EPOLLIN
	}
	if m&Writable != 0 {
		e |= unix.EPOLLOUT
	}
	if m&PeerHangup != 0 {
		e |= unix.EPOLLRDHUP
	}
	if m&Priority != 0 {
		e |= unix.EPOLLPRI
	}
	if m&Error != 0 {
		e |= unix.EPOLLERR
	}
	if m&Hangup != 0 {
		e |= unix.EPOLLHUP
	}
	if m&EdgeTriggered != 0 {
		e |= unix.EPOLLET
	}

	return e
}

func maskFromEpoll(e uint32) EventMask {
	var m EventMask

	if e&unix.EPOLLIN != 0 {
		m |= Readable
	}
	if e&unix.EPOLLOUT != 0 {
		m |= Writable
	}
	if e&unix.EPOLLRDHUP != 0 {
		m |= PeerHangup
	}
	if e&unix.EPOLLPRI != 0 {
		m |= Priority
	}
	if e&unix.EPOLLERR != 0 {
		m |= Error
	}
	if e&unix.EPOLLHUP != 0 {
		m |= Hangup
	}

	return m
}

func (n *notifier) Register(src EventSource) liberr.Error {
	ev := unix.EpollEvent{Events: maskToEpoll(src.Interest()), Fd: int32(src.Fd())}

	if err := unix.EpollCtl(n.epfd, unix.EPOLL_CTL_ADD, src.Fd(), &ev); err != nil {
		n.log.Errorf("epoll add fd %d: %v", src.Fd(), err)
		return ErrorEpollRegister.ErrorParent(err)
	}

	n.regs[src.Fd()] = src
	return nil
}

func (n *notifier) Modify(src EventSource) liberr.Error {
	ev := unix.EpollEvent{Events: maskToEpoll(src.Interest()), Fd: int32(src.Fd())}

	if err := unix.EpollCtl(n.epfd, unix.EPOLL_CTL_MOD, src.Fd(), &ev); err != nil {
		n.log.Errorf("epoll modify fd %d: %v", src.Fd(), err)
		return ErrorEpollModify.ErrorParent(err)
	}

	n.invalidate(src.Fd())
	return nil
}

func (n *notifier) Remove(src EventSource) liberr.Error {
	if err := unix.EpollCtl(n.epfd, unix.EPOLL_CTL_DEL, src.Fd(), nil); err != nil {
		n.log.Errorf("epoll remove fd %d: %v", src.Fd(), err)
		return ErrorEpollRemove.ErrorParent(err)
	}

	delete(n.regs, src.Fd())
	n.invalidate(src.Fd())
	return nil
}

// invalidate nulls any scratch slot beyond the current dispatch cursor that
// refers to fd, so a source whose interest or existence just changed mid
// turn is not dispatched to using stale readiness.
func (n *notifier) invalidate(fd int) {
	if !n.inTurn {
		return
	}

	for i := n.cursor + 1; i < n.triggered; i++ {
		if int(n.scratch[i].Fd) == fd {
			n.scratch[i].Fd = -1
		}
	}
}

func (n *notifier) PostEvent(src EventSource, mask EventMask) {
	n.ready.Add(src, mask)
}

func (n *notifier) RemovePostedEvents(src EventSource) {
	n.ready.Remove(src)
}

func (n *notifier) Schedule(obj func()) {
	n.deleter.Schedule(obj)
}

func (n *notifier) Timers() *TimerWheel {
	return n.wheel
}

func (n *notifier) Logger() liblog.Logger {
	return n.log
}

func (n *notifier) Turn() liberr.Error {
	if n.inTurn {
		return ErrorTurnReentrant.Error(nil)
	}

	n.inTurn = true
	defer func() { n.inTurn = false }()

	count, err := unix.EpollWait(n.epfd, n.scratch, 0)
	for err == unix.EINTR {
		count, err = unix.EpollWait(n.epfd, n.scratch, 0)
	}

	if err != nil {
		return ErrorEpollWait.ErrorParent(err)
	}

	n.triggered = count

	for n.cursor = 0; n.cursor < count; n.cursor++ {
		ev := n.scratch[n.cursor]
		if ev.Fd < 0 {
			continue
		}

		src, ok := n.regs[int(ev.Fd)]
		if !ok || !src.Enabled() {
			continue
		}

		src.OnEvent(maskFromEpoll(ev.Events))
	}

	return nil
}

func (n *notifier) Shutdown() liberr.Error {
	if n.inTurn {
		n.log.Errorf("notifier shutdown requested from inside a turn")
		return ErrorShutdownInTurn.Error(nil)
	}

	if n.closed {
		return nil
	}

	n.log.Debugf("shutting down notifier")
	n.wheel.shutdown()
	n.deleter.shutdown()
	n.ready.shutdown()

	n.closed = true
	return ErrorEpollRemove.IfError(unix.Close(n.epfd))
}
