/*
MIT License

Copyright (c) 2025 Mikael Schultz <mikael@conf-t.se>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

// Package metrics exposes the bouncer's Prometheus collectors and the
// optional /metrics HTTP listener.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ircbounce_sessions",
		Help: "Live proxy sessions.",
	})

	Attaches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ircbounce_attaches_total",
		Help: "Client attach events.",
	})

	Detaches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ircbounce_detaches_total",
		Help: "Client detach events.",
	})

	Lines = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ircbounce_lines_total",
		Help: "IRC lines forwarded, by direction.",
	}, []string{"direction"})

	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ircbounce_server_reconnects_total",
		Help: "Upstream reconnection attempts.",
	})

	DCCTransfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ircbounce_dcc_transfers_total",
		Help: "DCC proxies started, by type.",
	}, []string{"type"})

	DCCBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ircbounce_dcc_bytes_total",
		Help: "Bytes relayed or captured by DCC proxies.",
	})
)

// Directions for the Lines counter.
const (
	DirClientToServer = "client_to_server"
	DirServerToClient = "server_to_client"
)

// Serve runs the /metrics endpoint on addr. Blocks; run in a goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.WithField("addr", addr).Info("metrics listener started")
	return http.ListenAndServe(addr, mux)
}
