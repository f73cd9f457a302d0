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

package httpserver_test

import (
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/reactor/httpserver"
)

var _ = Describe("RequestID", func() {
	It("mints an id and exposes it through the request context", func() {
		var seen string

		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := httpserver.RequestIDFromContext(r.Context())
			Expect(ok).To(BeTrue())
			seen = id
		})

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		httpserver.RequestID(inner).ServeHTTP(rec, req)

		Expect(seen).NotTo(BeEmpty())
		Expect(rec.Header().Get(httpserver.HeaderRequestID)).To(Equal(seen))
	})

	It("reuses an inbound request id instead of minting a new one", func() {
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(httpserver.HeaderRequestID, "caller-supplied-id")

		httpserver.RequestID(inner).ServeHTTP(rec, req)

		Expect(rec.Header().Get(httpserver.HeaderRequestID)).To(Equal("caller-supplied-id"))
	})
})
