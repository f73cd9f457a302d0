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

package reactor_test

import (
	"encoding/binary"
	"time"

	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	liberr "github.com/nabbar/reactor/errors"
	"github.com/nabbar/reactor/reactor"
)

// countingSource is a minimal reactor.EventSource wrapping a counting
// (eventfd) descriptor, used to drive turn-algorithm scenarios without
// needing a real socket.
type countingSource struct {
	fd       int
	enabled  bool
	interest reactor.EventMask
	notifier reactor.Notifier

	fired       int
	lastMask    reactor.EventMask
	onEventHook func()
}

func newCountingSource(n reactor.Notifier, interest reactor.EventMask) *countingSource {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	Expect(err).NotTo(HaveOccurred())

	return &countingSource{fd: fd, interest: interest, notifier: n}
}

func (c *countingSource) Fd() int                     { return c.fd }
func (c *countingSource) Enabled() bool               { return c.enabled }
func (c *countingSource) Interest() reactor.EventMask { return c.interest }

func (c *countingSource) SetInterest(mask reactor.EventMask) liberr.Error {
	c.interest = mask
	if c.enabled {
		return c.notifier.Modify(c)
	}
	return nil
}

func (c *countingSource) SetEnabled(enabled bool) liberr.Error {
	if enabled == c.enabled {
		return nil
	}
	c.enabled = enabled
	if enabled {
		return c.notifier.Register(c)
	}
	return c.notifier.Remove(c)
}

func (c *countingSource) OnEvent(mask reactor.EventMask) {
	c.fired++
	c.lastMask = mask
	if c.onEventHook != nil {
		c.onEventHook()
	}
}

func (c *countingSource) bump(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = unix.Write(c.fd, buf[:])
}

func (c *countingSource) close() {
	_ = unix.Close(c.fd)
}

var _ = Describe("EventNotifier turn algorithm", func() {
	var n reactor.Notifier

	BeforeEach(func() {
		var err error
		n, err = reactor.New(nil)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(n.Shutdown()).To(BeNil())
	})

	It("delivers exactly one readable event after a single post", func() {
		src := newCountingSource(n, reactor.Readable)
		defer src.close()

		Expect(src.SetEnabled(true)).To(Succeed())
		src.bump(1)

		Expect(n.Turn()).To(BeNil())

		Expect(src.fired).To(Equal(1))
		Expect(src.lastMask & reactor.Readable).NotTo(BeZero())
	})

	It("fires an edge-triggered source once even though the descriptor stays readable", func() {
		src := newCountingSource(n, reactor.Readable|reactor.EdgeTriggered)
		defer src.close()

		src.bump(1)
		Expect(src.SetEnabled(true)).To(Succeed())

		Expect(n.Turn()).To(BeNil())
		Expect(src.fired).To(Equal(1))

		// second turn, no further writes: edge-triggered means no re-delivery.
		Expect(n.Turn()).To(BeNil())
		Expect(src.fired).To(Equal(1))
	})

	It("never dispatches to a source removed by another source's callback in the same turn", func() {
		a := newCountingSource(n, reactor.Readable)
		b := newCountingSource(n, reactor.Readable)
		defer a.close()
		defer b.close()

		Expect(a.SetEnabled(true)).To(Succeed())
		Expect(b.SetEnabled(true)).To(Succeed())

		a.bump(1)
		b.bump(1)

		a.onEventHook = func() {
			_ = b.SetEnabled(false)
		}

		Expect(n.Turn()).To(BeNil())

		Expect(a.fired).To(Equal(1))
		Expect(b.fired).To(Equal(0))
	})

	It("routes self-deletion through the deferred deleter without dispatching to the deleted source", func() {
		a := newCountingSource(n, reactor.Readable)
		b := newCountingSource(n, reactor.Readable)
		defer a.close()

		Expect(a.SetEnabled(true)).To(Succeed())
		Expect(b.SetEnabled(true)).To(Succeed())

		a.bump(1)
		b.bump(1)

		a.onEventHook = func() {
			_ = b.SetEnabled(false)
			n.Schedule(func() { b.close() })
		}

		Expect(n.Turn()).To(BeNil())
		Expect(a.fired).To(Equal(1))
		Expect(b.fired).To(Equal(0))

		// next turn drains the deferred deleter; b's fd is now closed.
		Expect(n.Turn()).To(BeNil())
	})

	It("rejects re-entrant Turn calls", func() {
		src := newCountingSource(n, reactor.Readable)
		defer src.close()

		src.onEventHook = func() {
			err := n.Turn()
			Expect(err).NotTo(BeNil())
		}

		Expect(src.SetEnabled(true)).To(Succeed())
		src.bump(1)

		Expect(n.Turn()).To(BeNil())
		Expect(src.fired).To(Equal(1))
	})
})

var _ = Describe("Timer", func() {
	var n reactor.Notifier

	BeforeEach(func() {
		var err error
		n, err = reactor.New(nil)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(n.Shutdown()).To(BeNil())
	})

	It("fires a single-shot timer within [I, I+1024]ms", func() {
		const interval = 600 * time.Millisecond

		fired := make(chan time.Time, 1)
		start := time.Now()

		timer := n.Timers().NewTimer(func() {
			fired <- time.Now()
		})
		timer.SetSingleShot(true)
		timer.StartMs(uint64(interval.Milliseconds()))

		deadline := start.Add(interval + 1200*time.Millisecond)

		for time.Now().Before(deadline) {
			Expect(n.Turn()).To(BeNil())

			select {
			case when := <-fired:
				elapsed := when.Sub(start)
				Expect(elapsed).To(BeNumerically(">=", interval))
				Expect(elapsed).To(BeNumerically("<=", interval+1024*time.Millisecond+200*time.Millisecond))
				return
			default:
				time.Sleep(20 * time.Millisecond)
			}
		}

		Fail("timer never fired within the expected window")
	})

	It("re-fires a periodic timer and stops cleanly", func() {
		const interval = 520 * time.Millisecond

		count := 0
		timer := n.Timers().NewTimer(func() {
			count++
		})
		timer.StartMs(uint64(interval.Milliseconds()))

		deadline := time.Now().Add(2*interval + 1500*time.Millisecond)

		for time.Now().Before(deadline) && count < 2 {
			Expect(n.Turn()).To(BeNil())
			time.Sleep(20 * time.Millisecond)
		}

		Expect(count).To(BeNumerically(">=", 2))

		timer.Stop()
		Expect(timer.IsActive()).To(BeFalse())
	})
})
