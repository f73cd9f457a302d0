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

package tls_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/reactor/certificates"
	"github.com/nabbar/reactor/certificates/tlsversion"
	liberr "github.com/nabbar/reactor/errors"
	"github.com/nabbar/reactor/reactor"
	"github.com/nabbar/reactor/socket/config"
	"github.com/nabbar/reactor/socket/tcp"
	ttls "github.com/nabbar/reactor/socket/tls"
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

// selfSignedPair generates an ECDSA P-256 certificate/key pair valid for
// 127.0.0.1, used to exercise the handshake without touching the network
// for a CA.
func selfSignedPair() (keyPEM, certPEM string) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	Expect(err).NotTo(HaveOccurred())

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		IsCA:                  true,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	Expect(err).NotTo(HaveOccurred())

	keyDER, err := x509.MarshalECPrivateKey(key)
	Expect(err).NotTo(HaveOccurred())

	certPEM = string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
	keyPEM = string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}))

	return keyPEM, certPEM
}

func newServerConfig(keyPEM, certPEM string, min, max tlsversion.Version) certificates.TLSConfig {
	cfg := certificates.New()
	Expect(cfg.AddCertificatePairString(keyPEM, certPEM)).NotTo(HaveOccurred())
	cfg.SetVersionMin(min)
	cfg.SetVersionMax(max)
	return cfg
}

func newClientConfig(certPEM string, min, max tlsversion.Version) certificates.TLSConfig {
	cfg := certificates.New()
	Expect(cfg.AddRootCAString(certPEM)).To(BeTrue())
	cfg.SetVersionMin(min)
	cfg.SetVersionMax(max)
	return cfg
}

var _ = Describe("TLS handshake", func() {
	var (
		serverNotifier, clientNotifier reactor.Notifier
		listener                       *tcp.Listener
		keyPEM, certPEM                string
	)

	BeforeEach(func() {
		var err error
		serverNotifier, err = reactor.New(nil)
		Expect(err).NotTo(HaveOccurred())

		clientNotifier, err = reactor.New(nil)
		Expect(err).NotTo(HaveOccurred())

		keyPEM, certPEM = selfSignedPair()

		var lerr liberr.Error
		listener, lerr = tcp.NewListener(serverNotifier, "127.0.0.1", 0, 16)
		Expect(lerr).To(BeNil())
	})

	AfterEach(func() {
		listener.Close()
		Expect(serverNotifier.Shutdown()).To(BeNil())
		Expect(clientNotifier.Shutdown()).To(BeNil())
	})

	It("fails to negotiate a common version and both sides observe an error, never Encrypted", func() {
		serverCfg := newServerConfig(keyPEM, certPEM, tlsversion.VersionTLS13, tlsversion.VersionTLS13)
		clientCfg := newClientConfig(certPEM, tlsversion.VersionTLS12, tlsversion.VersionTLS12)

		var server *ttls.TlsSocket

		listener.OnAccept = func(fd int, peer config.Candidate) {
			server = ttls.Accept(serverNotifier, fd, peer, serverCfg)
		}

		addr, ok := listener.Addr()
		Expect(ok).To(BeTrue())

		client := ttls.New(clientNotifier, nil, ttls.RoleClient, clientCfg, nil)

		var clientErrored, serverErrored bool
		client.Error.Connect(func(error) { clientErrored = true })
		client.Encrypted.Connect(func(struct{}) { Fail("client should never complete the handshake") })

		client.Connect("127.0.0.1", addr.Port)

		deadline := time.Now().Add(5 * time.Second)

		Expect(pumpUntil(deadline, func() bool {
			return server != nil
		}, serverNotifier, clientNotifier)).To(BeTrue(), "server never accepted the TCP leg")

		server.Error.Connect(func(error) { serverErrored = true })
		server.Encrypted.Connect(func(struct{}) { Fail("server should never complete the handshake") })

		Expect(pumpUntil(deadline, func() bool {
			return clientErrored
		}, serverNotifier, clientNotifier)).To(BeTrue(), "client never observed a handshake error")

		Expect(pumpUntil(time.Now().Add(2*time.Second), func() bool {
			return serverErrored
		}, serverNotifier, clientNotifier)).To(BeTrue(), "server never observed a handshake error")
	})

	It("completes the handshake, round-trips data, and closes gracefully", func() {
		serverCfg := newServerConfig(keyPEM, certPEM, tlsversion.VersionTLS12, tlsversion.VersionTLS13)
		clientCfg := newClientConfig(certPEM, tlsversion.VersionTLS12, tlsversion.VersionTLS13)

		var server *ttls.TlsSocket

		listener.OnAccept = func(fd int, peer config.Candidate) {
			server = ttls.Accept(serverNotifier, fd, peer, serverCfg)
		}

		addr, ok := listener.Addr()
		Expect(ok).To(BeTrue())

		client := ttls.New(clientNotifier, nil, ttls.RoleClient, clientCfg, nil)

		var serverReceived, clientReceived []byte
		var serverDisconnected, clientDisconnected bool

		client.Encrypted.Connect(func(struct{}) {
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
			return server != nil
		}, serverNotifier, clientNotifier)).To(BeTrue(), "server never accepted the connection")

		server.ReceivedData.Connect(func(struct{}) {
			chunk := server.ReadAll()
			serverReceived = append(serverReceived, chunk...)
			server.Write(chunk)
		})
		server.Disconnected.Connect(func(struct{}) {
			serverDisconnected = true
		})

		Expect(pumpUntil(deadline, func() bool {
			return string(serverReceived) == "Hello"
		}, serverNotifier, clientNotifier)).To(BeTrue(), "server never received the client's plaintext")

		Expect(pumpUntil(deadline, func() bool {
			return string(clientReceived) == "Hello"
		}, serverNotifier, clientNotifier)).To(BeTrue(), "client never received the echoed plaintext")

		server.DisconnectFromPeer()

		Expect(pumpUntil(deadline, func() bool {
			return serverDisconnected && clientDisconnected
		}, serverNotifier, clientNotifier)).To(BeTrue(), "both sides should observe disconnected")

		Expect(server.State()).To(Equal(tcp.Unconnected))
		Expect(client.State()).To(Equal(tcp.Unconnected))
	})
})
