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

package httpserver

import (
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reactor",
		Subsystem: "httpserver",
		Name:      "connections_accepted_total",
		Help:      "Connections accepted, by server name.",
	}, []string{"server"})

	metricConnActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "reactor",
		Subsystem: "httpserver",
		Name:      "connections_active",
		Help:      "Connections currently open, by server name.",
	}, []string{"server"})

	metricConnClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reactor",
		Subsystem: "httpserver",
		Name:      "connections_closed_total",
		Help:      "Connections closed, by server name.",
	}, []string{"server"})

	// metricHandshakeDuration approximates TLS handshake latency as the time
	// between accept (StateNew) and the first byte of the request being
	// readable (StateActive), since net/http.Server exposes no narrower hook
	// for crypto/tls's handshake completion.
	metricHandshakeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reactor",
		Subsystem: "httpserver",
		Name:      "handshake_duration_seconds",
		Help:      "Time from accept to first readable request byte, by server name.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"server"})
)

// trackConnStateMetrics feeds the prometheus series registered above from
// the server's ConnState hook.
func (s *server) trackConnStateMetrics(conn net.Conn, state http.ConnState) {
	name := s.GetName()
	key := conn.RemoteAddr().String()

	switch state {
	case http.StateNew:
		metricConnAccepted.WithLabelValues(name).Inc()
		metricConnActive.WithLabelValues(name).Inc()
		s.handshakeStart.Store(key, time.Now())
	case http.StateActive:
		if v, ok := s.handshakeStart.LoadAndDelete(key); ok {
			metricHandshakeDuration.WithLabelValues(name).Observe(time.Since(v.(time.Time)).Seconds())
		}
	case http.StateClosed, http.StateHijacked:
		metricConnActive.WithLabelValues(name).Dec()
		metricConnClosed.WithLabelValues(name).Inc()
		s.handshakeStart.Delete(key)
	}
}
