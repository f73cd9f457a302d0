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
	"encoding/binary"

	"golang.org/x/sys/unix"

	liberr "github.com/nabbar/reactor/errors"
)

// readyEntry is the wrapper record used to track a software-posted source
// without requiring foreign EventSource implementations to expose their own
// linked-list pointers.
type readyEntry struct {
	src        EventSource
	mask       EventMask
	prev, next *readyEntry
}

// ReadyQueue coalesces readiness events posted from user code (as opposed to
// the kernel) and fires them once per reactor turn through an eventfd
// wakeup descriptor.
type ReadyQueue struct {
	notifier *notifier
	fd       int
	enabled  bool
	interest EventMask

	index map[EventSource]*readyEntry
	head  *readyEntry
	tail  *readyEntry
}

func newReadyQueue(n *notifier) (*ReadyQueue, liberr.Error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, ErrorEventfdCreate.ErrorParent(err)
	}

	return &ReadyQueue{
		notifier: n,
		fd:       fd,
		interest: Readable | EdgeTriggered,
		index:    make(map[EventSource]*readyEntry),
	}, nil
}

func (q *ReadyQueue) Fd() int             { return q.fd }
func (q *ReadyQueue) Enabled() bool       { return q.enabled }
func (q *ReadyQueue) Interest() EventMask { return q.interest }

func (q *ReadyQueue) SetInterest(mask EventMask) liberr.Error {
	q.interest = mask

	if q.enabled {
		return q.notifier.Modify(q)
	}

	return nil
}

func (q *ReadyQueue) SetEnabled(enabled bool) liberr.Error {
	if enabled == q.enabled {
		return nil
	}

	q.enabled = enabled

	if enabled {
		return q.notifier.Register(q)
	}

	return q.notifier.Remove(q)
}

// Add links src at the head of the ready list with mask, or unions mask
// into its existing entry if src is already posted. The wakeup descriptor
// is armed so the next Turn observes it.
func (q *ReadyQueue) Add(src EventSource, mask EventMask) {
	if e, ok := q.index[src]; ok {
		e.mask |= mask
		return
	}

	e := &readyEntry{src: src, mask: mask, next: q.head}

	if q.head != nil {
		q.head.prev = e
	} else {
		q.tail = e
	}

	q.head = e
	q.index[src] = e

	if !q.enabled {
		_ = q.SetEnabled(true)
	}

	q.wake()
}

// Remove unlinks src from the ready list, if present, clearing its posted
// mask.
func (q *ReadyQueue) Remove(src EventSource) {
	e, ok := q.index[src]
	if !ok {
		return
	}

	q.unlink(e)
	delete(q.index, src)
}

func (q *ReadyQueue) unlink(e *readyEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		q.head = e.next
	}

	if e.next != nil {
		e.next.prev = e.prev
	} else {
		q.tail = e.prev
	}

	e.prev, e.next = nil, nil
}

func (q *ReadyQueue) wake() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(q.fd, buf[:])
}

// OnEvent snapshots the current list, publishes a fresh empty list, then
// dispatches the snapshot. Posts made from inside those callbacks land on
// the fresh list and are delivered on the next turn.
func (q *ReadyQueue) OnEvent(mask EventMask) {
	if mask&Readable == 0 {
		return
	}

	var buf [8]byte
	_, _ = unix.Read(q.fd, buf[:])

	snapshot := q.head
	q.head, q.tail = nil, nil
	q.index = make(map[EventSource]*readyEntry)

	for e := snapshot; e != nil; {
		nx := e.next
		e.prev, e.next = nil, nil

		m := e.mask
		src := e.src

		e = nx

		src.OnEvent(m)
	}

	if q.head == nil {
		_ = q.SetEnabled(false)
	}
}

func (q *ReadyQueue) shutdown() {
	q.head, q.tail = nil, nil
	q.index = make(map[EventSource]*readyEntry)

	if q.enabled {
		_ = q.SetEnabled(false)
	}

	_ = unix.Close(q.fd)
}
