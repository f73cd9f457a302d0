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
	"crypto/tls"
	"encoding/binary"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	liberr "github.com/nabbar/reactor/errors"
)

// engineWake is the eventfd the engine goroutines pulse whenever they make
// progress (handshake finished, plaintext decrypted, ciphertext produced,
// close-notify written). The owning TlsSocket registers it with the
// notifier, so engine progress surfaces as an ordinary reactor event
// instead of requiring the turn loop to poll.
type engineWake struct {
	mu     sync.Mutex
	fd     int
	closed bool
}

func newEngineWake() (*engineWake, liberr.Error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, ErrorEngineWakeFd.ErrorParent(err)
	}

	return &engineWake{fd: fd}, nil
}

func (w *engineWake) signal() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(w.fd, buf[:])
}

// close is deferred behind the mutex so a late signal from an exiting
// engine goroutine can never hit a reused descriptor number.
func (w *engineWake) close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	w.closed = true
	_ = unix.Close(w.fd)
}

// engine drives one crypto/tls.Conn against a bioConn on a dedicated
// goroutine. The reactor goroutine only ever touches the channels and
// bio.feed/bio.drain, never the tls.Conn itself, so nothing here blocks the
// turn loop.
type engine struct {
	bio  *bioConn
	conn *tls.Conn
	role Role
	wake *engineWake

	handshakeDone   chan error
	toEngine        chan []byte
	fromEngine      chan []byte
	closeNotifyDone chan struct{}
	closed          chan struct{}
}

func newEngine(role Role, cfg *tls.Config) (*engine, liberr.Error) {
	wake, werr := newEngineWake()
	if werr != nil {
		return nil, werr
	}

	bio := newBioConn()
	bio.onWrite = wake.signal

	var conn *tls.Conn
	if role == RoleServer {
		conn = tls.Server(bio, cfg)
	} else {
		conn = tls.Client(bio, cfg)
	}

	e := &engine{
		bio:             bio,
		conn:            conn,
		role:            role,
		wake:            wake,
		handshakeDone:   make(chan error, 1),
		toEngine:        make(chan []byte, 64),
		fromEngine:      make(chan []byte, 64),
		closeNotifyDone: make(chan struct{}),
		closed:          make(chan struct{}),
	}

	go e.run()

	return e, nil
}

func (e *engine) wakeFd() int {
	return e.wake.fd
}

func (e *engine) run() {
	err := e.conn.Handshake()
	e.handshakeDone <- err
	e.wake.signal()

	if err != nil {
		return
	}

	go e.writeLoop()
	e.readLoop()
}

func (e *engine) readLoop() {
	buf := make([]byte, 16*1024)

	for {
		n, err := e.conn.Read(buf)

		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case e.fromEngine <- chunk:
				e.wake.signal()
			case <-e.closed:
				return
			}
		}

		if err != nil {
			close(e.fromEngine)
			e.wake.signal()
			return
		}
	}
}

func (e *engine) writeLoop() {
	for {
		select {
		case p, ok := <-e.toEngine:
			if !ok {
				_ = e.conn.CloseWrite()
				close(e.closeNotifyDone)
				e.wake.signal()
				return
			}

			if _, err := e.conn.Write(p); err != nil {
				return
			}
		case <-e.closed:
			return
		}
	}
}

// feedCiphertext hands ciphertext pulled off the socket to the handshake
// or record-layer reader.
func (e *engine) feedCiphertext(p []byte) {
	e.bio.feed(p)
}

// drainCiphertext removes ciphertext the engine queued for the socket.
func (e *engine) drainCiphertext() []byte {
	return e.bio.drain()
}

// tryWritePlaintext offers p to the engine's writer without blocking,
// reporting whether it was accepted.
func (e *engine) tryWritePlaintext(p []byte) bool {
	select {
	case e.toEngine <- p:
		return true
	default:
		return false
	}
}

// tryReadPlaintext returns the next decrypted chunk and whether the
// engine's read side has reached EOF (peer close-notify or error).
func (e *engine) tryReadPlaintext() (chunk []byte, eof bool, ok bool) {
	select {
	case c, open := <-e.fromEngine:
		if !open {
			return nil, true, true
		}
		return c, false, true
	default:
		return nil, false, false
	}
}

// readPlaintextWait blocks up to d for the next decrypted chunk. Used only
// on the final-drain path before close, where the reactor is tearing the
// connection down anyway.
func (e *engine) readPlaintextWait(d time.Duration) (chunk []byte, eof bool, ok bool) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case c, open := <-e.fromEngine:
		if !open {
			return nil, true, true
		}
		return c, false, true
	case <-t.C:
		return nil, false, false
	}
}

// pollHandshake returns the handshake result without blocking.
func (e *engine) pollHandshake() (done bool, err error) {
	select {
	case err = <-e.handshakeDone:
		return true, err
	default:
		return false, nil
	}
}

// closeNotifyFlushed reports whether the writer has finished encoding the
// close-notify alert into the outbound buffer.
func (e *engine) closeNotifyFlushed() bool {
	select {
	case <-e.closeNotifyDone:
		return true
	default:
		return false
	}
}

func (e *engine) shutdown() {
	close(e.closed)
	_ = e.bio.Close()
	e.wake.close()
}
