// Package metrics exports analysis reports as Prometheus metrics in
// the text file format read by the node_exporter textfile collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartdiet/netanalyzer/internal/analyzer"
)

const namespace = "netanalyzer"

// collectors contains the gauges we export.
type collectors struct {
	methods     *prometheus.GaugeVec
	packets     *prometheus.GaugeVec
	attributed  *prometheus.GaugeVec
	flows       *prometheus.GaugeVec
	bytes       *prometheus.GaugeVec
	layerBytes  *prometheus.GaugeVec
	methodBytes *prometheus.GaugeVec
	runtime     *prometheus.GaugeVec
}

func newCollectors() *collectors {
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, append([]string{"trace"}, labels...))
	}
	return &collectors{
		methods:    gauge("methods", "Number of methods in the method table of the trace"),
		packets:    gauge("packets", "Number of captured packets"),
		attributed: gauge("attributed_packets", "Number of packets attributed to a running method"),
		flows:      gauge("flows", "Number of flows"),
		bytes: gauge("bytes", "Bytes sent and received by the device",
			"direction"),
		layerBytes: gauge("layer_bytes", "Captured bytes on Layer 2, Layer 3 and Layer 4",
			"layer"),
		methodBytes: gauge("method_bytes", "Bytes of the packets attributed to a method",
			"method", "signature"),
		runtime: gauge("analysis_seconds", "Time spent analyzing the trace"),
	}
}

func (c *collectors) register(reg prometheus.Registerer) {
	reg.MustRegister(c.methods, c.packets, c.attributed, c.flows,
		c.bytes, c.layerBytes, c.methodBytes, c.runtime)
}

func (c *collectors) observe(r *analyzer.ArchivalReport) {
	c.methods.WithLabelValues(r.Path).Set(float64(r.Methods))
	c.packets.WithLabelValues(r.Path).Set(float64(r.Packets))
	c.attributed.WithLabelValues(r.Path).Set(float64(r.AttributedPackets))
	c.flows.WithLabelValues(r.Path).Set(float64(len(r.Flows)))
	c.bytes.WithLabelValues(r.Path, "sent").Set(float64(r.SentBytes))
	c.bytes.WithLabelValues(r.Path, "received").Set(float64(r.ReceivedBytes))
	c.layerBytes.WithLabelValues(r.Path, "l2").Set(float64(r.LinkBytes))
	c.layerBytes.WithLabelValues(r.Path, "l3").Set(float64(r.NetworkBytes))
	c.layerBytes.WithLabelValues(r.Path, "l4").Set(float64(r.TransportBytes))
	for _, m := range r.TopMethods {
		c.methodBytes.WithLabelValues(r.Path, m.Method, m.Signature).Set(float64(m.Bytes))
	}
	c.runtime.WithLabelValues(r.Path).Set(r.Runtime)
}

// Gather returns the registry containing the metrics of the given
// reports. Reports with the same path overwrite each other.
func Gather(reports ...*analyzer.ArchivalReport) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	c := newCollectors()
	c.register(reg)
	for _, r := range reports {
		c.observe(r)
	}
	return reg
}

// Export writes the metrics of the given reports into filename.
func Export(filename string, reports ...*analyzer.ArchivalReport) error {
	return prometheus.WriteToTextfile(filename, Gather(reports...))
}
