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

// Package tls implements TlsSocket, a TcpSocket that layers a TLS session
// on top of the same connect/disconnect/abort state machine: ciphertext
// moves between the kernel and a background handshake/record-layer engine,
// plaintext moves between that engine and the caller.
//
// crypto/tls exposes a blocking net.Conn-shaped API with no non-blocking or
// BIO-style mode, so the engine runs on its own goroutine wrapped around an
// in-memory net.Conn (bioConn) fed and drained by the reactor goroutine.
// Only channel sends/receives and mutex-protected buffer operations happen
// on the reactor goroutine; all blocking Read/Write/Handshake calls happen
// on the engine goroutine.
package tls
