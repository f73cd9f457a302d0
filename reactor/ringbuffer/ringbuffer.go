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

package ringbuffer

// RingBuffer is a fixed-capacity byte ring buffer with contiguous-view bulk
// transfer against a DataSource/DataSink.
type RingBuffer struct {
	buf        []byte
	head, tail int
	length     int
}

// New allocates a ring buffer with the given capacity in bytes.
func New(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 4096
	}

	return &RingBuffer{buf: make([]byte, capacity)}
}

func (r *RingBuffer) Capacity() int { return len(r.buf) }
func (r *RingBuffer) Size() int     { return r.length }
func (r *RingBuffer) IsEmpty() bool { return r.length == 0 }
func (r *RingBuffer) IsFull() bool  { return r.length == len(r.buf) }

func (r *RingBuffer) Clear() {
	r.head, r.tail, r.length = 0, 0, 0
}

// freeSpace returns the number of bytes that can still be written.
func (r *RingBuffer) freeSpace() int {
	return len(r.buf) - r.length
}

// WriteFrom pulls bytes from src into the buffer's free space, possibly
// issuing two reads to cover a wrap around the end of the underlying array.
// It returns the number of bytes moved.
func (r *RingBuffer) WriteFrom(src DataSource) (int, error) {
	total := 0

	for r.freeSpace() > 0 {
		n, space := r.contiguousFreeRun()
		if n == 0 {
			break
		}

		read, err := src.Read(r.buf[space : space+n])
		if read > 0 {
			r.tail = (r.tail + read) % len(r.buf)
			r.length += read
			total += read
		}

		if err != nil {
			return total, err
		}

		if read < n {
			break
		}

		if src.Available() <= 0 {
			break
		}
	}

	return total, nil
}

// contiguousFreeRun returns the length and starting offset of the largest
// contiguous free run starting at tail, capped at the physical end of the
// underlying array (a second call after the wrap covers the remainder).
func (r *RingBuffer) contiguousFreeRun() (int, int) {
	free := r.freeSpace()
	if free == 0 {
		return 0, r.tail
	}

	run := len(r.buf) - r.tail
	if run > free {
		run = free
	}

	return run, r.tail
}

// ReadInto pushes buffered bytes to sink, possibly issuing two writes to
// cover a wrap. It returns the number of bytes moved.
func (r *RingBuffer) ReadInto(sink DataSink) (int, error) {
	total := 0

	for r.length > 0 {
		n, offset := r.contiguousUsedRun()
		if n == 0 {
			break
		}

		written, err := sink.Write(r.buf[offset : offset+n])
		if written > 0 {
			r.head = (r.head + written) % len(r.buf)
			r.length -= written
			total += written
		}

		if err != nil {
			return total, err
		}

		if written < n {
			break
		}
	}

	return total, nil
}

func (r *RingBuffer) contiguousUsedRun() (int, int) {
	if r.length == 0 {
		return 0, r.head
	}

	run := len(r.buf) - r.head
	if run > r.length {
		run = r.length
	}

	return run, r.head
}

// Read copies up to len(buf) bytes out of the ring buffer and consumes them.
func (r *RingBuffer) Read(buf []byte) int {
	n := r.Peek(buf)
	r.PopFront(n)
	return n
}

// Peek copies up to len(buf) bytes without consuming them.
func (r *RingBuffer) Peek(buf []byte) int {
	n := len(buf)
	if n > r.length {
		n = r.length
	}

	first := len(r.buf) - r.head
	if first > n {
		first = n
	}

	copy(buf[:first], r.buf[r.head:r.head+first])

	if n > first {
		copy(buf[first:n], r.buf[:n-first])
	}

	return n
}

// PopFront discards up to n bytes from the front of the buffer.
func (r *RingBuffer) PopFront(n int) int {
	if n > r.length {
		n = r.length
	}

	r.head = (r.head + n) % len(r.buf)
	r.length -= n

	return n
}

// ReadAll returns (and consumes) every byte currently buffered.
func (r *RingBuffer) ReadAll() []byte {
	out := make([]byte, r.length)
	r.Read(out)
	return out
}

// Write appends up to len(buf) bytes, as space allows, without an external
// DataSource.
func (r *RingBuffer) Write(buf []byte) int {
	n := len(buf)
	if n > r.freeSpace() {
		n = r.freeSpace()
	}

	first := len(r.buf) - r.tail
	if first > n {
		first = n
	}

	copy(r.buf[r.tail:r.tail+first], buf[:first])

	if n > first {
		copy(r.buf[:n-first], buf[first:n])
	}

	r.tail = (r.tail + n) % len(r.buf)
	r.length += n

	return n
}
