/*
 * MIT License
 *
 * Copyright (c) 2019 Nicolas JUHEL
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
 */

package httpserver_test

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/reactor/httpserver"
)

// freePort grabs an ephemeral port from the kernel and releases it
// immediately, so Listen below can bind the same number.
func freePort() int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

var _ = Describe("Server", func() {
	It("serves a handler over plain HTTP and reports running until shutdown", func() {
		port := freePort()
		addr := fmt.Sprintf("127.0.0.1:%d", port)

		cfg := httpserver.ServerConfig{
			Name:   "test-server",
			Listen: addr,
			Expose: fmt.Sprintf("http://%s", addr),
		}
		Expect(cfg.Validate()).To(BeNil())

		srv := httpserver.NewServer(&cfg)
		defer srv.Shutdown()

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("pong"))
		})

		Expect(srv.Listen(handler)).To(BeNil())

		var resp *http.Response
		var getErr error

		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			resp, getErr = http.Get(fmt.Sprintf("http://%s/", addr))
			if getErr == nil {
				break
			}
			time.Sleep(20 * time.Millisecond)
		}
		Expect(getErr).NotTo(HaveOccurred())
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(Equal("pong"))
		Expect(resp.Header.Get(httpserver.HeaderRequestID)).NotTo(BeEmpty())
		Expect(srv.IsRunning()).To(BeTrue())
		Expect(srv.IsTLS()).To(BeFalse())

		srv.Shutdown()

		Eventually(srv.IsRunning, 5*time.Second, 20*time.Millisecond).Should(BeFalse())
	})
})
