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

// DeferredDeleter queues destructor callbacks for execution at the start of
// the next reactor turn. It lets a source destroy itself (or another
// object) from inside its own OnEvent without violating the "never destroy
// an enabled source from its own callback" rule.
type DeferredDeleter struct {
	notifier *notifier
	fd       int
	enabled  bool
	closed   bool
	interest EventMask
	queue    []func()
}

func newDeferredDeleter(n *notifier) (*DeferredDeleter, liberr.Error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, ErrorEventfdCreate.ErrorParent(err)
	}

	return &DeferredDeleter{notifier: n, fd: fd, interest: Readable}, nil
}

func (d *DeferredDeleter) Fd() int             { return d.fd }
func (d *DeferredDeleter) Enabled() bool       { return d.enabled }
func (d *DeferredDeleter) Interest() EventMask { return d.interest }

func (d *DeferredDeleter) SetInterest(mask EventMask) liberr.Error {
	d.interest = mask

	if d.enabled {
		return d.notifier.Modify(d)
	}

	return nil
}

func (d *DeferredDeleter) SetEnabled(enabled bool) liberr.Error {
	if enabled == d.enabled {
		return nil
	}

	d.enabled = enabled

	if enabled {
		return d.notifier.Register(d)
	}

	return d.notifier.Remove(d)
}

// Schedule appends obj for destruction on the next turn. If the notifier is
// already shutting down, obj runs immediately inline.
func (d *DeferredDeleter) Schedule(obj func()) {
	if obj == nil {
		return
	}

	if d.closed {
		obj()
		return
	}

	d.queue = append(d.queue, obj)

	if !d.enabled {
		_ = d.SetEnabled(true)
	}

	d.wake()
}

func (d *DeferredDeleter) wake() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(d.fd, buf[:])
}

// OnEvent drains the pending queue in FIFO order, destroying each entry.
func (d *DeferredDeleter) OnEvent(mask EventMask) {
	if mask&Readable == 0 {
		return
	}

	var buf [8]byte
	_, _ = unix.Read(d.fd, buf[:])

	pending := d.queue
	d.queue = nil

	for _, fn := range pending {
		fn()
	}

	if len(d.queue) == 0 {
		_ = d.SetEnabled(false)
	}
}

func (d *DeferredDeleter) shutdown() {
	d.closed = true

	pending := d.queue
	d.queue = nil

	for _, fn := range pending {
		fn()
	}

	if d.enabled {
		_ = d.SetEnabled(false)
	}

	_ = unix.Close(d.fd)
}
