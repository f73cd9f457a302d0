/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
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

// Package httpserver runs HTTP/1.1 servers on top of the standard library's
// net/http.Server, adding validated configuration, optional TLS from the
// certificates package, a request-id middleware, connection tracking with
// Prometheus metrics, and a pool of workers sharing one configuration.
//
// # Basic Usage
//
//	cfg := httpserver.ServerConfig{
//	    Name:   "api-server",
//	    Listen: "127.0.0.1:8080",
//	    Expose: "http://localhost:8080",
//	}
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
//	    w.WriteHeader(http.StatusOK)
//	})
//
//	srv := httpserver.NewServer(&cfg)
//	if err := srv.Listen(mux); err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Shutdown()
//
// # Configuration
//
// ServerConfig carries Name, Listen and Expose (all required by Validate;
// Listen must be host:port and Expose a URL), the net/http options
// ReadTimeout, ReadHeaderTimeout (30 seconds when zero), WriteTimeout,
// MaxHeaderBytes, IdleTimeout and DisableKeepAlive, the worker options
// WorkerCount and MaxConnections, and a TLS block of type certificates.Config.
// The field comments name the fields that Listen does not read.
//
// Its methods are Validate, Clone, SetDefaultTLS (a provider of the default
// TLS config that GetTLS merges under TLS), SetParentContext (the parent of
// the serving context, context.Background when unset), GetTLS, IsTLS,
// GetListen, GetExpose, GetHandlerKey and Server (NewServer on a copy).
//
// PoolServerConfig is a slice of ServerConfig with Validate, MapUpdate and
// MapRun; LoadViper decodes one from a key of a viper instance.
//
// # Server
//
// NewServer returns a Server wrapping one net/http.Server:
//   - Listen(handler) builds the http.Server, wraps handler with RequestID and
//     serves it in a goroutine, with ListenAndServeTLS when GetTLS holds a
//     certificate pair and ListenAndServe otherwise. It returns before the
//     socket is bound: a bind or serve failure is logged, not returned. A nil
//     handler reuses the handler of the previous Listen call.
//   - Before serving, Listen dials the listen address up to 5 times and calls
//     Shutdown each time the dial succeeds; it then starts serving whatever
//     the outcome.
//   - Restart calls Listen(nil).
//   - Shutdown cancels the serving context, calls http.Server.Shutdown with a
//     10 second timeout, then closes the http.Server.
//   - WaitNotify blocks until SIGINT, SIGTERM or SIGQUIT arrives or the parent
//     context is done, then calls Shutdown.
//   - GetName falls back to the bind address when Name is empty; Merge takes
//     the configuration of another Server of this package.
//   - OpenConnections counts the connections seen by the ConnState hook that
//     are not yet closed or hijacked. When MaxConnections is above zero, a new
//     connection that takes the count above it is closed at once.
//
// Only HTTP/1.1 is served: TLSNextProto is emptied so ALPN never selects h2.
//
// # Pool
//
// NewPool(cfg, handler) creates WorkerCount servers (at least 1) from clones
// of cfg, validates each clone, then calls Listen(handler) on each. Validation
// errors are returned under ErrorPoolAdd and Listen errors under
// ErrorPoolListen. Pool has WaitNotify, Restart and Shutdown, which act on
// every worker, IsRunning (true if any worker runs) and OpenConnections (the
// sum over the workers).
//
// # Request IDs
//
// RequestID(handler) reuses an inbound X-Request-Id header (HeaderRequestID)
// or generates a UUID, sets it on the response header and stores it in the
// request context, where RequestIDFromContext reads it. A nil handler is
// replaced by types.NewBadHandler, which answers 500 to every request.
//
// # Metrics
//
// Registered with the default Prometheus registry and labelled by server
// name: reactor_httpserver_connections_accepted_total,
// reactor_httpserver_connections_active,
// reactor_httpserver_connections_closed_total and
// reactor_httpserver_handshake_duration_seconds (from accept to the first
// readable request byte).
//
// # Port Checks
//
// PortNotUse and PortInUse dial the given host:port and return ErrorPortUse
// when the connection succeeds (the port is in use) and nil when it fails.
// A host starting with "0" or "::" is checked on 127.0.0.1. Without a context
// deadline, the dial gives up after types.TimeoutWaitingPortFreeing.
//
// # Errors
//
// Error codes, numbered from errors.MinPkgHttpServer: ErrorParamsEmpty,
// ErrorPoolAdd, ErrorPoolValidate, ErrorPoolListen, ErrorServerValidate,
// ErrorPortUse and ErrorInvalidAddress.
//
// # Testing
//
// httpserver_test.go and requestid_test.go hold Ginkgo/Gomega specs, run by
// TestHttpServer:
//
//	go test ./httpserver/...
package httpserver
