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

package certificates

import (
	"crypto/tls"
	"crypto/x509"
	"hash/fnv"
	"io"
	"sync"

	tlsaut "github.com/nabbar/reactor/certificates/auth"
	tlscas "github.com/nabbar/reactor/certificates/ca"
	tlscrt "github.com/nabbar/reactor/certificates/certs"
	tlscpr "github.com/nabbar/reactor/certificates/cipher"
	tlscrv "github.com/nabbar/reactor/certificates/curves"
	tlsvrs "github.com/nabbar/reactor/certificates/tlsversion"
)

// Role distinguishes the side of a handshake a *tls.Config will be used for.
// A config that requests client certificates makes sense for RoleServer but
// is meaningless for RoleClient, and the two sides warm independent cache
// entries even when built from the same material.
type Role uint8

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// config is the concrete TLSConfig: certificate/CA material plus version,
// cipher and curve preferences, all stored as the typed wrappers the
// sibling auth/ca/certs/cipher/curves/tlsversion packages define.
type config struct {
	mu sync.RWMutex

	rand io.Reader

	cert     []tlscrt.Cert
	caRoot   []tlscas.Cert
	clientCA []tlscas.Cert

	clientAuth tlsaut.ClientAuth

	cipherList []tlscpr.Cipher
	curveList  []tlscrv.Curves

	tlsMinVersion tlsvrs.Version
	tlsMaxVersion tlsvrs.Version

	dynSizingDisabled     bool
	ticketSessionDisabled bool

	cache sync.Map // cacheKey -> *tls.Config
}

type cacheKey struct {
	role Role
	hash uint64
}

// resetCache drops every cached *tls.Config. Called by every mutator so a
// stale context never outlives the material it was built from.
func (c *config) resetCache() {
	c.cache.Range(func(k, _ interface{}) bool {
		c.cache.Delete(k)
		return true
	})
}

func (c *config) RegisterRand(rand io.Reader) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rand = rand
	c.resetCache()
}

func (c *config) GetVersionMin() tlsvrs.Version {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.tlsMinVersion
}

func (c *config) SetVersionMin(v tlsvrs.Version) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tlsMinVersion = v
	c.resetCache()
}

func (c *config) GetVersionMax() tlsvrs.Version {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.tlsMaxVersion
}

func (c *config) SetVersionMax(v tlsvrs.Version) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tlsMaxVersion = v
	c.resetCache()
}

func (c *config) SetCipherList(l []tlscpr.Cipher) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cipherList = append(make([]tlscpr.Cipher, 0, len(l)), l...)
	c.resetCache()
}

func (c *config) AddCiphers(l ...tlscpr.Cipher) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cipherList = append(c.cipherList, l...)
	c.resetCache()
}

func (c *config) GetCiphers() []tlscpr.Cipher {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append(make([]tlscpr.Cipher, 0, len(c.cipherList)), c.cipherList...)
}

func (c *config) SetDynamicSizingDisabled(flag bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dynSizingDisabled = flag
	c.resetCache()
}

func (c *config) SetSessionTicketDisabled(flag bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ticketSessionDisabled = flag
	c.resetCache()
}

func (c *config) Clone() TLSConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &config{
		rand:                  c.rand,
		cert:                  append(make([]tlscrt.Cert, 0, len(c.cert)), c.cert...),
		caRoot:                append(make([]tlscas.Cert, 0, len(c.caRoot)), c.caRoot...),
		clientCA:              append(make([]tlscas.Cert, 0, len(c.clientCA)), c.clientCA...),
		clientAuth:            c.clientAuth,
		cipherList:            append(make([]tlscpr.Cipher, 0, len(c.cipherList)), c.cipherList...),
		curveList:             append(make([]tlscrv.Curves, 0, len(c.curveList)), c.curveList...),
		tlsMinVersion:         c.tlsMinVersion,
		tlsMaxVersion:         c.tlsMaxVersion,
		dynSizingDisabled:     c.dynSizingDisabled,
		ticketSessionDisabled: c.ticketSessionDisabled,
	}
}

func (c *config) Config() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	certs := make([]tlscrt.Certif, 0, len(c.cert))
	for _, s := range c.cert {
		certs = append(certs, s.Model())
	}

	return &Config{
		CurveList:            append(make([]tlscrv.Curves, 0, len(c.curveList)), c.curveList...),
		CipherList:           append(make([]tlscpr.Cipher, 0, len(c.cipherList)), c.cipherList...),
		RootCA:               append(make([]tlscas.Cert, 0, len(c.caRoot)), c.caRoot...),
		ClientCA:             append(make([]tlscas.Cert, 0, len(c.clientCA)), c.clientCA...),
		Certs:                certs,
		VersionMin:           c.tlsMinVersion,
		VersionMax:           c.tlsMaxVersion,
		AuthClient:           c.clientAuth,
		DynamicSizingDisable: c.dynSizingDisabled,
		SessionTicketDisable: c.ticketSessionDisabled,
	}
}

// TLS is an alias of TlsConfig kept for interface symmetry with the
// teacher's naming; both build a RoleServer configuration.
func (c *config) TLS(serverName string) *tls.Config {
	return c.TlsConfigForRole(RoleServer, serverName)
}

// TlsConfig builds a RoleServer *tls.Config, the role httpserver always
// terminates under. socket/tls, which plays either role, goes through
// TlsConfigForRole instead.
func (c *config) TlsConfig(serverName string) *tls.Config {
	return c.TlsConfigForRole(RoleServer, serverName)
}

// TlsConfigForRole builds a *tls.Config for serverName under role, reusing a
// cached instance when the underlying certificate/cipher/curve/version
// material hasn't changed since it was last built for that (role,
// serverName) pair. Every mutator above resets the cache, so a stale entry
// never outlives the material it was built from.
func (c *config) TlsConfigForRole(role Role, serverName string) *tls.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	key := cacheKey{role: role, hash: c.fingerprint(serverName)}

	if v, ok := c.cache.Load(key); ok {
		return v.(*tls.Config)
	}

	cnf := c.build(role, serverName)
	c.cache.Store(key, cnf)

	return cnf
}

func (c *config) fingerprint(serverName string) uint64 {
	h := fnv.New64a()

	_, _ = io.WriteString(h, serverName)
	_, _ = io.WriteString(h, "|")

	for _, s := range c.cert {
		_, _ = io.WriteString(h, s.String())
	}

	_, _ = io.WriteString(h, "|")

	for _, s := range c.caRoot {
		_, _ = io.WriteString(h, s.String())
	}

	_, _ = io.WriteString(h, "|")

	for _, s := range c.clientCA {
		_, _ = io.WriteString(h, s.String())
	}

	var b [2]byte

	b[0], b[1] = byte(c.clientAuth.TLS()), byte(c.clientAuth.TLS()>>8)
	_, _ = h.Write(b[:])

	for _, s := range c.cipherList {
		b[0], b[1] = byte(s.Uint16()), byte(s.Uint16()>>8)
		_, _ = h.Write(b[:])
	}

	for _, s := range c.curveList {
		v := uint16(s.CurveID())
		b[0], b[1] = byte(v), byte(v>>8)
		_, _ = h.Write(b[:])
	}

	b[0], b[1] = byte(c.tlsMinVersion.TLS()), byte(c.tlsMinVersion.TLS()>>8)
	_, _ = h.Write(b[:])

	b[0], b[1] = byte(c.tlsMaxVersion.TLS()), byte(c.tlsMaxVersion.TLS()>>8)
	_, _ = h.Write(b[:])

	if c.dynSizingDisabled {
		_, _ = h.Write([]byte{1})
	}

	if c.ticketSessionDisabled {
		_, _ = h.Write([]byte{1})
	}

	return h.Sum64()
}

func (c *config) build(role Role, serverName string) *tls.Config {
	/* #nosec */
	cnf := &tls.Config{
		InsecureSkipVerify: false,
		Rand:               c.rand,
	}

	if serverName != "" {
		cnf.ServerName = serverName
	}

	if c.ticketSessionDisabled {
		cnf.SessionTicketsDisabled = true
	}

	if c.dynSizingDisabled {
		cnf.DynamicRecordSizingDisabled = true
	}

	if c.tlsMinVersion != tlsvrs.VersionUnknown {
		cnf.MinVersion = c.tlsMinVersion.TLS()
	}

	if c.tlsMaxVersion != tlsvrs.VersionUnknown {
		cnf.MaxVersion = c.tlsMaxVersion.TLS()
	}

	if len(c.cipherList) > 0 {
		cnf.PreferServerCipherSuites = true
		for _, s := range c.cipherList {
			cnf.CipherSuites = append(cnf.CipherSuites, s.TLS())
		}
	}

	if len(c.curveList) > 0 {
		for _, s := range c.curveList {
			cnf.CurvePreferences = append(cnf.CurvePreferences, s.TLS())
		}
	}

	if len(c.caRoot) > 0 {
		pool := x509.NewCertPool()
		for _, s := range c.caRoot {
			s.AppendPool(pool)
		}
		cnf.RootCAs = pool
	}

	if len(c.cert) > 0 {
		for _, s := range c.cert {
			cnf.Certificates = append(cnf.Certificates, s.TLS())
		}
	}

	// RoleServer alone may request client certificates: a RoleClient config
	// never presents ClientCAs to a peer.
	if role == RoleServer && c.clientAuth != tlsaut.NoClientCert {
		cnf.ClientAuth = c.clientAuth.TLS()

		if len(c.clientCA) > 0 {
			pool := x509.NewCertPool()
			for _, s := range c.clientCA {
				s.AppendPool(pool)
			}
			cnf.ClientCAs = pool
		}
	}

	return cnf
}
