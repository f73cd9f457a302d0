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

package certificates_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/reactor/certificates"
	"github.com/nabbar/reactor/certificates/auth"
)

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

var _ = Describe("TLSConfig role-aware construction", func() {
	var keyPEM, certPEM string

	BeforeEach(func() {
		keyPEM, certPEM = selfSignedPair()
	})

	It("honors client auth only for a server-role config", func() {
		cfg := certificates.New()
		Expect(cfg.AddCertificatePairString(keyPEM, certPEM)).NotTo(HaveOccurred())
		Expect(cfg.AddClientCAString(certPEM)).To(BeTrue())
		cfg.SetClientAuth(auth.RequireAndVerifyClientCert)

		serverCnf := cfg.TlsConfig("127.0.0.1")
		Expect(serverCnf.ClientAuth).To(Equal(auth.RequireAndVerifyClientCert.TLS()))
		Expect(serverCnf.ClientCAs).NotTo(BeNil())

		clientCnf := cfg.TlsConfigForRole(certificates.RoleClient, "127.0.0.1")
		Expect(clientCnf.ClientAuth).To(Equal(tls.NoClientCert))
		Expect(clientCnf.ClientCAs).To(BeNil())
	})

	It("reuses a cached *tls.Config for the same role and material", func() {
		cfg := certificates.New()
		Expect(cfg.AddCertificatePairString(keyPEM, certPEM)).NotTo(HaveOccurred())

		first := cfg.TlsConfig("127.0.0.1")
		second := cfg.TlsConfig("127.0.0.1")
		Expect(first).To(BeIdenticalTo(second))
	})

	It("invalidates the cached config once the certificate material changes", func() {
		cfg := certificates.New()
		Expect(cfg.AddCertificatePairString(keyPEM, certPEM)).NotTo(HaveOccurred())

		first := cfg.TlsConfig("127.0.0.1")

		otherKey, otherCert := selfSignedPair()
		Expect(cfg.AddCertificatePairString(otherKey, otherCert)).NotTo(HaveOccurred())

		second := cfg.TlsConfig("127.0.0.1")
		Expect(second).NotTo(BeIdenticalTo(first))
		Expect(second.Certificates).To(HaveLen(2))
	})
})
