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

package resolver_test

import (
	"testing"
	"time"

	"github.com/nabbar/reactor/reactor"
	"github.com/nabbar/reactor/socket/config"
	"github.com/nabbar/reactor/socket/resolver"
)

func TestLookupDeliversOnReactorTurn(t *testing.T) {
	n, err := reactor.New(nil)
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	defer n.Shutdown()

	r, rerr := resolver.New(n)
	if rerr != nil {
		t.Fatalf("resolver.New: %v", rerr)
	}
	defer r.Close()

	var (
		delivered  int
		candidates []config.Candidate
		lookupErr  error
	)

	r.LookupCandidates("localhost", 8080, func(c []config.Candidate, e error) {
		delivered++
		candidates = c
		lookupErr = e
	})

	// The completion must only ever arrive through a turn, never directly
	// from the lookup goroutine.
	deadline := time.Now().Add(5 * time.Second)
	for delivered == 0 && time.Now().Before(deadline) {
		if terr := n.Turn(); terr != nil {
			t.Fatalf("Turn: %v", terr)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}

	if lookupErr != nil {
		t.Fatalf("lookup error: %v", lookupErr)
	}

	if len(candidates) == 0 {
		t.Fatal("expected at least one candidate for localhost")
	}

	for _, c := range candidates {
		if c.Port != 8080 {
			t.Fatalf("candidate port = %d, want 8080", c.Port)
		}
	}
}
