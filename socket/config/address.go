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

import (
	"net"
	"strconv"
)

// Endpoint is a host/port pair as given by the caller, before resolution.
// Host may be an IPv4/IPv6 literal or a name requiring DNS resolution.
type Endpoint struct {
	Host string
	Port uint16
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}

// IsLiteral reports whether Host parses as an IP literal, meaning no DNS
// lookup is required and CandidatesFromEndpoint returns a single-entry list
// immediately.
func (e Endpoint) IsLiteral() bool {
	return net.ParseIP(e.Host) != nil
}

// Candidate is one resolved address a TcpSocket attempts to connect to, in
// the order the connect walk should try them.
type Candidate struct {
	IP     net.IP
	Port   uint16
	Family int // unix.AF_INET or unix.AF_INET6
}

func (c Candidate) String() string {
	return net.JoinHostPort(c.IP.String(), strconv.Itoa(int(c.Port)))
}

// CandidatesFromEndpoint builds the connect candidate list for endpoint. If
// Host is already an IP literal, the list contains exactly that address; no
// resolver is consulted.
func CandidatesFromEndpoint(e Endpoint) []Candidate {
	ip := net.ParseIP(e.Host)
	if ip == nil {
		return nil
	}

	return []Candidate{CandidateFromIP(ip, e.Port)}
}

// CandidateFromIP builds a connect candidate for an already-resolved
// address, detecting the socket family from the IP form.
func CandidateFromIP(ip net.IP, port uint16) Candidate {
	return Candidate{IP: ip, Port: port, Family: familyOf(ip)}
}

// Resolver resolves a hostname to a list of connect candidates, abstracting
// DNS lookup so socket/tcp stays decoupled from any particular resolver
// implementation or the network package's blocking lookup calls.
type Resolver interface {
	// LookupCandidates resolves host asynchronously, invoking done with the
	// resolved candidates (port attached) once available, or with an empty
	// slice and a non-nil error on failure. done is called at most once,
	// from the reactor thread that owns the socket issuing the lookup,
	// never from an arbitrary goroutine; a lookup still pending when the
	// resolver is closed may never be delivered.
	LookupCandidates(host string, port uint16, done func([]Candidate, error))
}
