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

package tcp_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/reactor/reactor"
	"github.com/nabbar/reactor/socket/config"
	"github.com/nabbar/reactor/socket/tcp"
)

// pumpUntil runs reactor turns on both notifiers until cond reports true or
// the deadline passes, sleeping briefly between turns so the kernel has a
// chance to deliver the events the previous turn triggered.
func pumpUntil(deadline time.Time, cond func() bool, notifiers ...reactor.Notifier) bool {
	for time.Now().Before(deadline) {
		for _, n := range notifiers {
			_ = n.Turn()
		}

		if cond() {
			return true
		}

		time.Sleep(5 * time.Millisecond)
	}

	return cond()
}

var _ = Describe("TCP echo", func() {
	It("round-trips data and both sides observe disconnected after a graceful close", func() {
		serverNotifier, err := reactor.New(nil)
		Expect(err).NotTo(HaveOccurred())
		defer serverNotifier.Shutdown()

		clientNotifier, err := reactor.New(nil)
		Expect(err).NotTo(HaveOccurred())
		defer clientNotifier.Shutdown()

		listener, lerr := tcp.NewListener(serverNotifier, "127.0.0.1", 0, 16)
		Expect(lerr).To(BeNil())
		defer listener.Close()

		addr, ok := listener.Addr()
		Expect(ok).To(BeTrue())

		var serverConn *tcp.TcpSocket

		listener.OnAccept = func(fd int, peer config.Candidate) {
			serverConn = tcp.Accept(serverNotifier, nil, fd, peer)
		}

		client := tcp.New(clientNotifier, nil, nil)

		var serverReceived, clientReceived []byte
		var serverDisconnected, clientDisconnected bool

		client.Connected.Connect(func(struct{}) {
			client.Write([]byte("Hello"))
		})
		client.ReceivedData.Connect(func(struct{}) {
			clientReceived = append(clientReceived, client.ReadAll()...)
		})
		client.Disconnected.Connect(func(struct{}) {
			clientDisconnected = true
		})

		client.Connect("127.0.0.1", addr.Port)

		deadline := time.Now().Add(5 * time.Second)

		Expect(pumpUntil(deadline, func() bool {
			return serverConn != nil
		}, serverNotifier, clientNotifier)).To(BeTrue(), "server never accepted the connection")

		serverConn.ReceivedData.Connect(func(struct{}) {
			chunk := serverConn.ReadAll()
			serverReceived = append(serverReceived, chunk...)
			serverConn.Write(chunk)
		})
		serverConn.Disconnected.Connect(func(struct{}) {
			serverDisconnected = true
		})

		Expect(pumpUntil(deadline, func() bool {
			return string(serverReceived) == "Hello"
		}, serverNotifier, clientNotifier)).To(BeTrue(), "server never received the client's bytes")

		Expect(pumpUntil(deadline, func() bool {
			return string(clientReceived) == "Hello"
		}, serverNotifier, clientNotifier)).To(BeTrue(), "client never received the echoed bytes")

		// destroying a socket whose event source is still registered is
		// refused and leaves the connection untouched.
		Expect(client.Close()).NotTo(BeNil())
		Expect(client.State()).To(Equal(tcp.Connected))

		serverConn.DisconnectFromPeer()

		Expect(pumpUntil(deadline, func() bool {
			return serverDisconnected && clientDisconnected
		}, serverNotifier, clientNotifier)).To(BeTrue(), "both sides should observe disconnected")

		Expect(serverConn.State()).To(Equal(tcp.Unconnected))
		Expect(client.State()).To(Equal(tcp.Unconnected))

		Expect(client.Close()).To(BeNil())
		Expect(serverConn.Close()).To(BeNil())
	})
})

var _ = Describe("TcpSocket idempotence laws", func() {
	It("Abort is idempotent and increments context id monotonically", func() {
		n, err := reactor.New(nil)
		Expect(err).NotTo(HaveOccurred())
		defer n.Shutdown()

		s := tcp.New(n, nil, nil)
		first := s.ContextID()

		s.Abort()
		second := s.ContextID()
		Expect(second).To(BeNumerically(">", first))

		s.Abort()
		third := s.ContextID()
		Expect(third).To(BeNumerically(">", second))

		Expect(s.State()).To(Equal(tcp.Unconnected))
	})

	It("DisconnectFromPeer on an Unconnected socket is a no-op", func() {
		n, err := reactor.New(nil)
		Expect(err).NotTo(HaveOccurred())
		defer n.Shutdown()

		s := tcp.New(n, nil, nil)
		Expect(s.State()).To(Equal(tcp.Unconnected))

		s.DisconnectFromPeer()
		Expect(s.State()).To(Equal(tcp.Unconnected))
	})

	It("rejects Write while not Connected", func() {
		n, err := reactor.New(nil)
		Expect(err).NotTo(HaveOccurred())
		defer n.Shutdown()

		s := tcp.New(n, nil, nil)
		Expect(s.Write([]byte("x"))).To(Equal(0))
	})
})
