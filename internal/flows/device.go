package flows

//
// Device
//
// Guessing which addresses belong to the device.
//

import (
	"net"

	"github.com/smartdiet/netanalyzer/internal/capture"
)

// InferDevice returns the addresses that most likely belong to the
// device: senders of TCP SYNs without ACK and of DNS queries. When the
// capture contains neither, we return the private addresses we saw.
func InferDevice(packets []*capture.Packet) []string {
	seen := map[string]bool{}
	var out []string
	add := func(ip net.IP) {
		s := ip.String()
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, p := range packets {
		if !p.HasEndpoints() {
			continue
		}
		switch {
		case p.TCPFlags.Has(capture.TCPFlagSYN) && !p.TCPFlags.Has(capture.TCPFlagACK):
			add(p.SrcIP)
		case p.DNS != nil && !p.DNS.Response && p.DstPort == capture.DNSPort:
			add(p.SrcIP)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, p := range packets {
		if !p.HasEndpoints() {
			continue
		}
		for _, ip := range []net.IP{p.SrcIP, p.DstIP} {
			if ip.IsPrivate() || ip.IsLinkLocalUnicast() {
				add(ip)
			}
		}
	}
	return out
}

func deviceSet(packets []*capture.Packet, opts *Options) map[string]bool {
	var addrs []string
	if opts != nil && len(opts.DeviceAddrs) > 0 {
		for _, a := range opts.DeviceAddrs {
			if ip := net.ParseIP(a); ip != nil {
				addrs = append(addrs, ip.String())
			}
		}
	} else {
		addrs = InferDevice(packets)
	}
	out := map[string]bool{}
	for _, a := range addrs {
		out[a] = true
	}
	return out
}
