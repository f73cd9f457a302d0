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

const (
	wheelSlots    = 128
	wheelSlotMask = wheelSlots - 1
	tickMillis    = 512
)

// Timer is a one-shot or periodic callback driven by a TimerWheel. Zero
// value is not usable; obtain one through TimerWheel.NewTimer.
type Timer struct {
	wheel      *TimerWheel
	callback   func()
	intervalMS uint64
	singleShot bool
	active     bool
	deadline   uint64
	slot       int
	prev, next *Timer
}

// NewTimer creates an inactive timer bound to this wheel. Call Start (or
// StartMs) to arm it.
func (w *TimerWheel) NewTimer(callback func()) *Timer {
	return &Timer{wheel: w, callback: callback}
}

// SetInterval changes the timer's interval. If the timer is active it is
// atomically rescheduled (removed and re-inserted) with the new interval;
// otherwise the new interval is only stored for the next Start.
func (t *Timer) SetInterval(ms uint64) {
	t.intervalMS = ms

	if t.active {
		t.wheel.remove(t)
		t.wheel.insert(t)
	}
}

// SetSingleShot controls whether the timer is re-armed after it fires.
func (t *Timer) SetSingleShot(oneShot bool) {
	t.singleShot = oneShot
}

// IsActive reports whether the timer currently occupies a wheel slot.
func (t *Timer) IsActive() bool {
	return t.active
}

// Start (re)activates the timer using its stored interval.
func (t *Timer) Start() {
	t.StartMs(t.intervalMS)
}

// StartMs (re)activates the timer with the given interval, overriding any
// previously stored interval.
func (t *Timer) StartMs(ms uint64) {
	if t.active {
		t.wheel.remove(t)
	}

	t.intervalMS = ms
	t.wheel.insert(t)
}

// Stop deactivates the timer. It is a no-op if already inactive.
func (t *Timer) Stop() {
	if !t.active {
		return
	}

	t.wheel.remove(t)
}

// TimerWheel is a 128-slot hashed timing wheel with a fixed 512ms tick,
// driven by a timerfd registered with the owning Notifier.
type TimerWheel struct {
	notifier *notifier
	fd       int
	enabled  bool
	interest EventMask

	buckets    [wheelSlots]*Timer
	active     int
	nowTick    uint64
	lastArmed  bool
	inFlight   *Timer
	inFlightNx *Timer
}

func newTimerWheel(n *notifier) (*TimerWheel, liberr.Error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return nil, ErrorTimerfdCreate.ErrorParent(err)
	}

	w := &TimerWheel{
		notifier: n,
		fd:       fd,
		interest: Readable | EdgeTriggered,
	}

	return w, nil
}

func (w *TimerWheel) Fd() int             { return w.fd }
func (w *TimerWheel) Enabled() bool       { return w.enabled }
func (w *TimerWheel) Interest() EventMask { return w.interest }

func (w *TimerWheel) SetInterest(mask EventMask) liberr.Error {
	w.interest = mask

	if w.enabled {
		return w.notifier.Modify(w)
	}

	return nil
}

func (w *TimerWheel) SetEnabled(enabled bool) liberr.Error {
	if enabled == w.enabled {
		return nil
	}

	w.enabled = enabled

	if enabled {
		return w.notifier.Register(w)
	}

	return w.notifier.Remove(w)
}

// insert links t into its deadline bucket and arms the wheel if it was idle.
func (w *TimerWheel) insert(t *Timer) {
	if w.active == 0 {
		w.arm()
	}

	ticks := (t.intervalMS >> 9) + 1
	t.deadline = w.nowTick + ticks
	t.slot = int(t.deadline & wheelSlotMask)

	head := w.buckets[t.slot]
	t.next = head
	t.prev = nil

	if head != nil {
		head.prev = t
	}

	w.buckets[t.slot] = t
	t.active = true
	w.active++
}

// remove unlinks t from its bucket. If t is the timer currently firing, the
// walker's cached next pointer is left untouched so iteration can continue.
// If t is instead the walker's cached *next* timer (a sibling in the same
// bucket removed by the firing timer's own callback), the cache is advanced
// to t's real successor so the walk doesn't resume on an already-detached
// timer and re-fire it.
func (w *TimerWheel) remove(t *Timer) {
	if !t.active {
		return
	}

	if t.prev != nil {
		t.prev.next = t.next
	} else {
		w.buckets[t.slot] = t.next
	}

	if t.next != nil {
		t.next.prev = t.prev
	}

	realNext := t.next

	t.prev, t.next = nil, nil
	t.active = false
	w.active--

	if t == w.inFlight {
		w.inFlight = nil
	}

	if t == w.inFlightNx {
		w.inFlightNx = realNext
	}

	if w.active == 0 {
		w.disarm()
	}
}

func (w *TimerWheel) arm() {
	spec := unix.ItimerSpec{
		Interval: unix.NsecToTimespec(int64(tickMillis) * int64(1e6)),
		Value:    unix.NsecToTimespec(int64(tickMillis) * int64(1e6)),
	}

	_ = unix.TimerfdSettime(w.fd, 0, &spec, nil)
	w.nowTick = 0
	w.lastArmed = true

	_ = w.SetEnabled(true)
}

func (w *TimerWheel) disarm() {
	spec := unix.ItimerSpec{}
	_ = unix.TimerfdSettime(w.fd, 0, &spec, nil)
	w.lastArmed = false

	_ = w.SetEnabled(false)
}

func (w *TimerWheel) shutdown() {
	for _, head := range w.buckets {
		for t := head; t != nil; {
			nx := t.next
			t.active = false
			t.prev, t.next = nil, nil
			t = nx
		}
	}

	w.buckets = [wheelSlots]*Timer{}
	w.active = 0

	if w.enabled {
		_ = w.SetEnabled(false)
	}

	_ = unix.Close(w.fd)
}

// OnEvent reads the elapsed-tick counter from the timerfd and walks every
// tick from the last processed one up to the current one, firing and
// (unless single-shot) rescheduling every timer whose deadline has passed.
func (w *TimerWheel) OnEvent(mask EventMask) {
	if mask&Readable == 0 {
		return
	}

	var buf [8]byte

	n, err := unix.Read(w.fd, buf[:])
	if err != nil || n != 8 {
		return
	}

	elapsed := binary.LittleEndian.Uint64(buf[:])

	for i := uint64(0); i < elapsed; i++ {
		w.nowTick++
		w.processTick(w.nowTick)

		if w.active == 0 {
			break
		}
	}
}

func (w *TimerWheel) processTick(tick uint64) {
	slot := int(tick & wheelSlotMask)
	t := w.buckets[slot]

	for t != nil {
		nx := t.next

		if t.deadline > tick {
			t = nx
			continue
		}

		w.inFlight = t
		w.inFlightNx = nx

		w.remove(t)

		if !t.singleShot {
			t.Start()
		}

		if t.callback != nil {
			t.callback()
		}

		nx = w.inFlightNx
		w.inFlight = nil
		t = nx
	}
}
