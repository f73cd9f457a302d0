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

// DataSource is a short-read-tolerant byte source: a single Read call may
// return fewer bytes than requested to signal backpressure, without that
// being an error.
type DataSource interface {
	// Available reports how many bytes are currently known to be readable,
	// best-effort (e.g. a socket's receive queue depth).
	Available() int

	// Read copies up to len(buf) bytes into buf, returning the number
	// copied. A short read is not an error.
	Read(buf []byte) (int, error)
}

// DataSink is a short-write-tolerant byte sink.
type DataSink interface {
	// Write copies up to len(buf) bytes out of buf, returning the number
	// consumed. A short write is not an error.
	Write(buf []byte) (int, error)
}
