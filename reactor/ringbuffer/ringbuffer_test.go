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

package ringbuffer_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/nabbar/reactor/reactor/ringbuffer"
)

func TestWriteReadRoundTrip(t *testing.T) {
	r := ringbuffer.New(16)

	if n := r.Write([]byte("hello")); n != 5 {
		t.Fatalf("Write: got %d, want 5", n)
	}

	if r.Size() != 5 {
		t.Fatalf("Size: got %d, want 5", r.Size())
	}

	buf := make([]byte, 5)
	if n := r.Read(buf); n != 5 || string(buf) != "hello" {
		t.Fatalf("Read: got %q/%d, want hello/5", buf[:n], n)
	}

	if !r.IsEmpty() {
		t.Fatal("expected empty after full drain")
	}
}

func TestWrapAroundPreservesOrder(t *testing.T) {
	r := ringbuffer.New(8)

	r.Write([]byte("ABCDEF"))
	r.PopFront(4) // head now at 4, length 2 ("EF")
	r.Write([]byte("GHIJ"))

	// buffer now holds "EFGHIJ" logically, wrapped physically.
	out := r.ReadAll()
	if string(out) != "EFGHIJ" {
		t.Fatalf("got %q, want EFGHIJ", out)
	}
}

func TestIsFullBlocksFurtherWrites(t *testing.T) {
	r := ringbuffer.New(4)

	if n := r.Write([]byte("ABCDE")); n != 4 {
		t.Fatalf("short write: got %d, want 4", n)
	}

	if !r.IsFull() {
		t.Fatal("expected full")
	}

	if n := r.Write([]byte("Z")); n != 0 {
		t.Fatalf("write on full buffer: got %d, want 0", n)
	}

	r.PopFront(1)

	if r.IsFull() {
		t.Fatal("expected not full after consuming one byte")
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	r := ringbuffer.New(8)
	r.Write([]byte("abcd"))

	buf := make([]byte, 4)
	r.Peek(buf)

	if r.Size() != 4 {
		t.Fatalf("Peek must not consume, size=%d want 4", r.Size())
	}

	if string(buf) != "abcd" {
		t.Fatalf("Peek: got %q", buf)
	}
}

// fakeSource hands out bytes in two chunks to exercise the two-phase wrap
// read path in WriteFrom.
type fakeSource struct {
	chunks [][]byte
	idx    int
}

func (f *fakeSource) Available() int {
	total := 0
	for i := f.idx; i < len(f.chunks); i++ {
		total += len(f.chunks[i])
	}
	return total
}

func (f *fakeSource) Read(buf []byte) (int, error) {
	if f.idx >= len(f.chunks) {
		return 0, io.EOF
	}
	n := copy(buf, f.chunks[f.idx])
	f.idx++
	return n, nil
}

func TestWriteFromTwoPhaseWrap(t *testing.T) {
	r := ringbuffer.New(8)
	r.Write([]byte("XXXXXX"))
	r.PopFront(6) // head/tail both at 6, empty, free run wraps at index 6

	src := &fakeSource{chunks: [][]byte{[]byte("AB"), []byte("CD")}}

	n, err := r.WriteFrom(src)
	if err != nil && err != io.EOF {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Fatalf("WriteFrom: got %d, want 4", n)
	}

	out := r.ReadAll()
	if string(out) != "ABCD" {
		t.Fatalf("got %q, want ABCD", out)
	}
}

// fakeSink records every Write call it receives and, when fail is set,
// returns that error, to check that ReadInto reports the sink's failure.
type fakeSink struct {
	writes [][]byte
	fail   error
}

func (f *fakeSink) Write(buf []byte) (int, error) {
	if f.fail != nil {
		return 0, f.fail
	}
	cp := append([]byte(nil), buf...)
	f.writes = append(f.writes, cp)
	return len(buf), nil
}

func TestReadIntoPropagatesSinkError(t *testing.T) {
	r := ringbuffer.New(8)
	r.Write([]byte("payload"))

	sink := &fakeSink{fail: errors.New("boom")}

	n, err := r.ReadInto(sink)
	if n != 0 {
		t.Fatalf("expected 0 bytes moved on immediate failure, got %d", n)
	}
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected sink error to propagate, got %v", err)
	}

	// the failed write must not have consumed the buffered bytes.
	if r.Size() != len("payload") {
		t.Fatalf("size changed after failed ReadInto: %d", r.Size())
	}
}

func TestClearResetsState(t *testing.T) {
	r := ringbuffer.New(8)
	r.Write([]byte("abcd"))
	r.Clear()

	if r.Size() != 0 || !r.IsEmpty() {
		t.Fatal("Clear did not reset size/empty")
	}

	if n := r.Write(bytes.Repeat([]byte{'x'}, 8)); n != 8 {
		t.Fatalf("buffer should be fully writable after Clear, got %d", n)
	}
}
