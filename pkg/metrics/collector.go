// Package metrics exports live transfer statistics as Prometheus
// gauges, grounded on the exporter pattern of wiring a
// prometheus.Collector up to a map of live sources guarded by a mutex,
// each scrape walking the map and emitting one metric per source.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/davidwed/TsunamiUDP/pkg/stats"
)

const namespace = "tsunami"

// Collector implements prometheus.Collector, exposing the latest
// stats.Snapshot pushed for each live transfer (keyed by its xid
// string) as a set of gauges labelled by transfer id.
type Collector struct {
	mu        sync.Mutex
	snapshots map[string]stats.Snapshot

	transmitRate   *prometheus.Desc
	retransmitRate *prometheus.Desc
	totalBlocks    *prometheus.Desc
	udpErrors      *prometheus.Desc
}

// NewCollector creates an empty collector; transfers register
// themselves with Update and deregister with Remove.
func NewCollector() *Collector {
	return &Collector{
		snapshots: make(map[string]stats.Snapshot),
		transmitRate: prometheus.NewDesc(
			namespace+"_transmit_rate_bps", "Smoothed transmit rate in bits/sec.",
			[]string{"xfer"}, nil),
		retransmitRate: prometheus.NewDesc(
			namespace+"_retransmit_rate", "Smoothed retransmit/error-rate indicator (0..100000).",
			[]string{"xfer"}, nil),
		totalBlocks: prometheus.NewDesc(
			namespace+"_total_blocks", "Blocks accounted for so far.",
			[]string{"xfer"}, nil),
		udpErrors: prometheus.NewDesc(
			namespace+"_udp_in_errors_total", "OS-reported UDP receive errors observed during the transfer.",
			[]string{"xfer"}, nil),
	}
}

// Update replaces the latest snapshot recorded for a transfer.
func (c *Collector) Update(xferID string, snap stats.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[xferID] = snap
}

// Remove stops exporting metrics for a transfer, e.g. once it completes.
func (c *Collector) Remove(xferID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, xferID)
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.transmitRate
	descs <- c.retransmitRate
	descs <- c.totalBlocks
	descs <- c.udpErrors
}

func (c *Collector) Collect(out chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for xferID, snap := range c.snapshots {
		out <- prometheus.MustNewConstMetric(c.transmitRate, prometheus.GaugeValue, snap.TransmitRate, xferID)
		out <- prometheus.MustNewConstMetric(c.retransmitRate, prometheus.GaugeValue, snap.RetransmitRate, xferID)
		out <- prometheus.MustNewConstMetric(c.totalBlocks, prometheus.GaugeValue, float64(snap.TotalBlocks), xferID)
		out <- prometheus.MustNewConstMetric(c.udpErrors, prometheus.GaugeValue, float64(snap.UDPErrors), xferID)
	}
}
