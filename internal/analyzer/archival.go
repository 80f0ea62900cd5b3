package analyzer

//
// Archival
//
// Converting an analysis to the report format.
//

import (
	"time"

	"github.com/google/uuid"
	"github.com/smartdiet/netanalyzer/internal/flows"
)

// ReportSchema is the version of the ArchivalReport format.
const ReportSchema = 2

// ArchivalFlow is the archival format of flows.Flow.
type ArchivalFlow struct {
	ID              int     `json:"id"`
	Transport       string  `json:"transport"`
	Local           string  `json:"local"`
	Remote          string  `json:"remote"`
	Hostname        string  `json:"hostname,omitempty"`
	Domain          string  `json:"domain,omitempty"`
	T               float64 `json:"t"`
	Duration        float64 `json:"duration"`
	SentPackets     int     `json:"sent_packets"`
	SentBytes       int64   `json:"sent_bytes"`
	ReceivedPackets int     `json:"received_packets"`
	ReceivedBytes   int64   `json:"received_bytes"`
	TLSH            string  `json:"tlsh,omitempty"`
	ASN             uint    `json:"asn,omitempty"`
	Org             string  `json:"org,omitempty"`
	Country         string  `json:"country,omitempty"`
}

// newArchivalFlow returns the archival representation of a flow
// using begin as the zero time.
func newArchivalFlow(f *flows.Flow, begin time.Time) *ArchivalFlow {
	return &ArchivalFlow{
		ID:              f.ID,
		Transport:       f.Transport,
		Local:           f.Local(),
		Remote:          f.Remote(),
		Hostname:        f.Hostname,
		Domain:          f.Domain,
		T:               f.First.Sub(begin).Seconds(),
		Duration:        f.Duration().Seconds(),
		SentPackets:     f.Sent.Packets,
		SentBytes:       f.Sent.Bytes,
		ReceivedPackets: f.Received.Packets,
		ReceivedBytes:   f.Received.Bytes,
		TLSH:            f.TLSH,
		ASN:             f.ASN,
		Org:             f.Org,
		Country:         f.Country,
	}
}

// ArchivalMethodNetwork is the archival format of MethodNetwork.
type ArchivalMethodNetwork struct {
	Method      string `json:"method"`
	Signature   string `json:"signature,omitempty"`
	Packets     int    `json:"packets"`
	Bytes       int64  `json:"bytes"`
	SentPackets int    `json:"sent_packets"`
	SelfPackets int    `json:"self_packets"`
	SelfBytes   int64  `json:"self_bytes"`
}

// ToArchival returns the archival representation.
func (mn *MethodNetwork) ToArchival() *ArchivalMethodNetwork {
	out := &ArchivalMethodNetwork{
		Method:      mn.Name(),
		Packets:     mn.Packets,
		Bytes:       mn.Bytes,
		SentPackets: mn.SentPackets,
		SelfPackets: mn.SelfPackets,
		SelfBytes:   mn.SelfBytes,
	}
	if mn.Method != nil {
		out.Signature = mn.Method.Signature
	}
	return out
}

// ArchivalReport is the archival format of an analysis.
type ArchivalReport struct {
	Schema            int                      `json:"schema"`
	RunID             string                   `json:"run_id"`
	Path              string                   `json:"path"`
	MethodTrace       string                   `json:"method_trace"`
	PacketCapture     string                   `json:"packet_capture"`
	StartTime         time.Time                `json:"start_time"`
	Clock             string                   `json:"clock"`
	Elapsed           float64                  `json:"elapsed"`
	Truncated         bool                     `json:"truncated"`
	Threads           int                      `json:"threads"`
	Methods           int                      `json:"methods"`
	Records           int                      `json:"records"`
	Invocations       int                      `json:"invocations"`
	Packets           int                      `json:"packets"`
	AttributedPackets int                      `json:"attributed_packets"`
	SentBytes         int64                    `json:"sent_bytes"`
	ReceivedBytes     int64                    `json:"received_bytes"`
	LinkBytes         int64                    `json:"link_bytes"`
	NetworkBytes      int64                    `json:"network_bytes"`
	TransportBytes    int64                    `json:"transport_bytes"`
	Flows             []*ArchivalFlow          `json:"flows"`
	TopMethods        []*ArchivalMethodNetwork `json:"top_methods"`
	Runtime           float64                  `json:"runtime"`
}

// ToArchival returns the report of the analysis. We include at most
// topN methods in TopMethods; a non positive topN includes them all.
// Flow times are relative to the method trace start time.
func (a *Analyzer) ToArchival(topN int) *ArchivalReport {
	out := &ArchivalReport{
		Schema:            ReportSchema,
		RunID:             uuid.NewString(),
		Path:              a.path,
		MethodTrace:       a.members.MethodTrace,
		PacketCapture:     a.members.PacketCapture,
		StartTime:         a.trace.StartTime,
		Clock:             string(a.trace.Clock),
		Elapsed:           a.trace.Elapsed().Seconds(),
		Truncated:         a.trace.Truncated,
		Threads:           len(a.forest.Threads),
		Methods:           len(a.trace.Methods),
		Records:           len(a.trace.Records),
		Invocations:       len(a.forest.Invocations()),
		Packets:           len(a.packets),
		AttributedPackets: len(a.attributions),
		Flows:             []*ArchivalFlow{},
		TopMethods:        []*ArchivalMethodNetwork{},
		Runtime:           a.elapsed.Seconds(),
	}
	for _, p := range a.packets {
		out.LinkBytes += int64(p.Length)
		out.NetworkBytes += int64(p.Length - p.LinkHeader)
		if p.Network != "" {
			out.TransportBytes += int64(p.Length - p.LinkHeader - p.NetworkHeader)
		}
	}
	for _, f := range a.flows {
		out.SentBytes += f.Sent.Bytes
		out.ReceivedBytes += f.Received.Bytes
		out.Flows = append(out.Flows, newArchivalFlow(f, a.trace.StartTime))
	}
	for _, mn := range a.MethodNetworkStats() {
		if topN > 0 && len(out.TopMethods) >= topN {
			break
		}
		out.TopMethods = append(out.TopMethods, mn.ToArchival())
	}
	return out
}
