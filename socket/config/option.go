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

package config

// SocketOption is a closed enumeration of the kernel socket options a
// TcpSocket exposes. Values outside the allowed domain (negative buffer
// sizes) are ignored by the setter rather than surfaced as an error.
type SocketOption uint8

const (
	// LowDelay toggles TCP_NODELAY.
	LowDelay SocketOption = iota
	// KeepAlive toggles SO_KEEPALIVE.
	KeepAlive
	// SendBufferSize sets SO_SNDBUF.
	SendBufferSize
	// ReceiveBufferSize sets SO_RCVBUF.
	ReceiveBufferSize
)

func (o SocketOption) String() string {
	switch o {
	case LowDelay:
		return "low-delay"
	case KeepAlive:
		return "keep-alive"
	case SendBufferSize:
		return "send-buffer-size"
	case ReceiveBufferSize:
		return "receive-buffer-size"
	default:
		return "unknown"
	}
}
