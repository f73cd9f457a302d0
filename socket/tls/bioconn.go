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

package tls

import (
	"io"
	"net"
	"sync"
	"time"
)

// bioConn is the in-memory net.Conn that backs a crypto/tls.Conn: the
// engine goroutine reads/writes plaintext-adjacent record bytes against it,
// while the reactor goroutine feeds inbound ciphertext and drains outbound
// ciphertext through feed/drain. It plays the role an enc_in/enc_out BIO
// pair would play against an OpenSSL-style TLS engine.
type bioConn struct {
	mu     sync.Mutex
	cond   *sync.Cond
	inBuf  []byte
	outBuf []byte
	closed bool

	// onWrite, if set, is invoked after outBuf grows, outside the lock.
	onWrite func()
}

func newBioConn() *bioConn {
	c := &bioConn{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *bioConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.inBuf) == 0 && !c.closed {
		c.cond.Wait()
	}

	if len(c.inBuf) == 0 {
		return 0, io.EOF
	}

	n := copy(p, c.inBuf)
	c.inBuf = c.inBuf[n:]
	return n, nil
}

func (c *bioConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	c.outBuf = append(c.outBuf, p...)
	c.mu.Unlock()

	if c.onWrite != nil {
		c.onWrite()
	}

	return len(p), nil
}

// feed appends ciphertext pulled off the socket, waking any blocked Read.
func (c *bioConn) feed(p []byte) {
	if len(p) == 0 {
		return
	}
	c.mu.Lock()
	c.inBuf = append(c.inBuf, p...)
	c.mu.Unlock()
	c.cond.Broadcast()
}

// drain removes and returns ciphertext queued for the socket.
func (c *bioConn) drain() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.outBuf) == 0 {
		return nil
	}

	out := c.outBuf
	c.outBuf = nil
	return out
}

func (c *bioConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cond.Broadcast()
	return nil
}

func (c *bioConn) LocalAddr() net.Addr                { return bioAddr{} }
func (c *bioConn) RemoteAddr() net.Addr               { return bioAddr{} }
func (c *bioConn) SetDeadline(t time.Time) error      { return nil }
func (c *bioConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *bioConn) SetWriteDeadline(t time.Time) error { return nil }

type bioAddr struct{}

func (bioAddr) Network() string { return "reactor-tls" }
func (bioAddr) String() string  { return "reactor-tls" }
