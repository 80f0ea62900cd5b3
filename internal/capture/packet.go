// Package capture reads packet captures.
//
// We read pcap and pcapng files with gopacket/pcapgo, decode each frame
// with gopacket/layers and keep a flat summary of it. DNS messages are
// decoded with miekg/dns so that the flows package can name the hosts
// the application talked to.
package capture

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// TCPFlags is the set of TCP flags of a segment.
type TCPFlags uint8

const (
	// TCPFlagFIN is the FIN flag.
	TCPFlagFIN = TCPFlags(1 << iota)

	// TCPFlagSYN is the SYN flag.
	TCPFlagSYN

	// TCPFlagRST is the RST flag.
	TCPFlagRST

	// TCPFlagPSH is the PSH flag.
	TCPFlagPSH

	// TCPFlagACK is the ACK flag.
	TCPFlagACK
)

var tcpFlagNames = []struct {
	flag TCPFlags
	name string
}{
	{TCPFlagSYN, "S"},
	{TCPFlagFIN, "F"},
	{TCPFlagRST, "R"},
	{TCPFlagPSH, "P"},
	{TCPFlagACK, "A"},
}

// Has returns whether all the given flags are set.
func (f TCPFlags) Has(flags TCPFlags) bool {
	return f&flags == flags
}

// String returns the flags in tcpdump notation (e.g., "SA").
func (f TCPFlags) String() string {
	var b strings.Builder
	for _, e := range tcpFlagNames {
		if f.Has(e.flag) {
			b.WriteString(e.name)
		}
	}
	return b.String()
}

// Packet is a decoded captured frame.
type Packet struct {
	// Index is the zero-based position of the frame in the capture.
	Index int

	// Timestamp is the capture time.
	Timestamp time.Time

	// Length is the original length of the frame on the wire.
	Length int

	// CaptureLength is the number of bytes actually captured.
	CaptureLength int

	// Network is "ipv4", "ipv6" or empty when we could not decode it.
	Network string

	// Transport is "tcp", "udp", "icmp" or empty.
	Transport string

	// SrcIP is the source IP address.
	SrcIP net.IP

	// DstIP is the destination IP address.
	DstIP net.IP

	// SrcPort is the source port for TCP and UDP.
	SrcPort uint16

	// DstPort is the destination port for TCP and UDP.
	DstPort uint16

	// TCPFlags contains the TCP flags of TCP segments.
	TCPFlags TCPFlags

	// LinkHeader is the size of the link layer header.
	LinkHeader int

	// NetworkHeader is the size of the network layer header.
	NetworkHeader int

	// TransportHeader is the size of the transport layer header.
	TransportHeader int

	// Payload is the transport payload (a copy of the captured bytes).
	Payload []byte

	// DNS is the decoded DNS message, if any.
	DNS *DNSMessage

	// HTTP is the decoded HTTP request head, if any.
	HTTP *HTTPRequest
}

// HasEndpoints returns whether the packet has IP addresses and ports.
func (p *Packet) HasEndpoints() bool {
	return p.SrcIP != nil && p.DstIP != nil && (p.Transport == "tcp" || p.Transport == "udp")
}

// Src returns the source endpoint (e.g., "10.0.0.2:40123").
func (p *Packet) Src() string {
	return net.JoinHostPort(p.SrcIP.String(), fmt.Sprintf("%d", p.SrcPort))
}

// Dst returns the destination endpoint.
func (p *Packet) Dst() string {
	return net.JoinHostPort(p.DstIP.String(), fmt.Sprintf("%d", p.DstPort))
}

// Describe returns a tcpdump-like one line description.
func (p *Packet) Describe() string {
	if !p.HasEndpoints() {
		return fmt.Sprintf("#%d %d bytes (not decoded)", p.Index, p.Length)
	}
	var extra string
	switch {
	case p.TCPFlags != 0:
		extra = " [" + p.TCPFlags.String() + "]"
	case p.DNS != nil:
		extra = " " + p.DNS.Describe()
	}
	return fmt.Sprintf("#%d %s %s > %s%s len %d", p.Index, p.Transport,
		p.Src(), p.Dst(), extra, len(p.Payload))
}
