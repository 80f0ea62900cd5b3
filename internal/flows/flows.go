// Package flows groups captured packets into flows and enriches
// them with what we know about the remote host.
//
// A flow is a bidirectional TCP connection or UDP exchange identified
// by its transport and endpoints. We orient each flow from the point
// of view of the device that recorded the trace, so Sent is what the
// application transmitted and Received is what it got back.
package flows

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/glaslos/tlsh"
	"github.com/smartdiet/netanalyzer/internal/capture"
	"github.com/smartdiet/netanalyzer/internal/logcat"
	"golang.org/x/net/publicsuffix"
)

// MinFingerprintBytes is the minimum number of payload bytes for
// which we compute a TLSH fingerprint.
const MinFingerprintBytes = 50

// DefaultFingerprintBytes is the default maximum number of payload
// bytes we feed to TLSH.
const DefaultFingerprintBytes = 1 << 16

// Options contains options for Group. Every field is optional and
// Group works as intended when *Options is nil.
type Options struct {
	// DeviceAddrs contains the IP addresses of the device. When
	// empty, we infer them using InferDevice.
	DeviceAddrs []string

	// FingerprintBytes is the maximum number of payload bytes
	// used to compute the TLSH fingerprint. Zero means the
	// default and a negative value disables fingerprinting.
	FingerprintBytes int

	// Geo is the optional geolocation database.
	Geo *GeoDB
}

func (opts *Options) fingerprintBytes() int {
	if opts == nil || opts.FingerprintBytes == 0 {
		return DefaultFingerprintBytes
	}
	return opts.FingerprintBytes
}

// DirectionStats contains per-direction counters.
type DirectionStats struct {
	// Packets is the number of packets.
	Packets int

	// Bytes is the sum of the on-the-wire frame lengths.
	Bytes int64

	// PayloadBytes is the sum of the transport payload lengths.
	PayloadBytes int64
}

func (ds *DirectionStats) add(p *capture.Packet) {
	ds.Packets++
	ds.Bytes += int64(p.Length)
	ds.PayloadBytes += int64(len(p.Payload))
}

// Flow is a bidirectional flow.
type Flow struct {
	// ID is the flow ID, starting from one, in order of first packet.
	ID int

	// Transport is "tcp" or "udp".
	Transport string

	// LocalIP is the device address.
	LocalIP net.IP

	// LocalPort is the device port.
	LocalPort uint16

	// RemoteIP is the peer address.
	RemoteIP net.IP

	// RemotePort is the peer port.
	RemotePort uint16

	// Hostname is the name the application resolved to reach RemoteIP
	// or the HTTP Host header, when known.
	Hostname string

	// Domain is the registrable domain of Hostname (e.g., "example.com").
	Domain string

	// First is the time of the first packet.
	First time.Time

	// Last is the time of the last packet.
	Last time.Time

	// Packets contains the packets of the flow in capture order.
	Packets []*capture.Packet

	// Sent contains the counters for packets sent by the device.
	Sent DirectionStats

	// Received contains the counters for packets received by the device.
	Received DirectionStats

	// TLSH is the TLSH fingerprint of the flow payload, empty
	// when the payload is too short or too uniform to hash.
	TLSH string

	// ASN is the autonomous system number of RemoteIP, zero if unknown.
	ASN uint

	// Org is the organization owning ASN.
	Org string

	// Country is the country code of RemoteIP, empty if unknown.
	Country string
}

// Local returns the local endpoint.
func (f *Flow) Local() string {
	return net.JoinHostPort(f.LocalIP.String(), strconv.Itoa(int(f.LocalPort)))
}

// Remote returns the remote endpoint.
func (f *Flow) Remote() string {
	return net.JoinHostPort(f.RemoteIP.String(), strconv.Itoa(int(f.RemotePort)))
}

// Duration returns the time between the first and the last packet.
func (f *Flow) Duration() time.Duration {
	return f.Last.Sub(f.First)
}

// Describe returns a one line description of the flow.
func (f *Flow) Describe() string {
	name := f.Hostname
	if name == "" {
		name = "?"
	}
	return fmt.Sprintf("#%d %s %s <-> %s (%s): %d/%d packets, %d/%d bytes", f.ID, f.Transport,
		f.Local(), f.Remote(), name, f.Sent.Packets, f.Received.Packets, f.Sent.Bytes, f.Received.Bytes)
}

// IsOutgoing returns whether the packet belongs to the flow and has
// been sent by the device.
func (f *Flow) IsOutgoing(p *capture.Packet) bool {
	return p.SrcIP.Equal(f.LocalIP) && p.SrcPort == f.LocalPort
}

// flowKey identifies a flow.
type flowKey struct {
	transport string
	local     string
	remote    string
}

// Group groups the packets with IP endpoints into flows. Packets
// without endpoints (e.g., ARP or ICMP) do not belong to any flow.
func Group(packets []*capture.Packet, opts *Options) []*Flow {
	device := deviceSet(packets, opts)
	resolver := NewResolver(packets)
	index := map[flowKey]*Flow{}
	var out []*Flow
	for _, p := range packets {
		if !p.HasEndpoints() {
			continue
		}
		outgoing := isFromDevice(p, device)
		key := flowKey{transport: p.Transport, local: p.Src(), remote: p.Dst()}
		if !outgoing {
			key.local, key.remote = key.remote, key.local
		}
		f := index[key]
		if f == nil {
			f = &Flow{ID: len(out) + 1, Transport: p.Transport, First: p.Timestamp}
			if outgoing {
				f.LocalIP, f.LocalPort, f.RemoteIP, f.RemotePort = p.SrcIP, p.SrcPort, p.DstIP, p.DstPort
			} else {
				f.LocalIP, f.LocalPort, f.RemoteIP, f.RemotePort = p.DstIP, p.DstPort, p.SrcIP, p.SrcPort
			}
			index[key] = f
			out = append(out, f)
		}
		f.Packets = append(f.Packets, p)
		if p.Timestamp.Before(f.First) {
			f.First = p.Timestamp
		}
		if p.Timestamp.After(f.Last) {
			f.Last = p.Timestamp
		}
		if outgoing {
			f.Sent.add(p)
		} else {
			f.Received.add(p)
		}
	}
	for _, f := range out {
		f.name(resolver)
		f.fingerprint(opts.fingerprintBytes())
		if opts != nil && opts.Geo != nil {
			f.ASN, f.Org, f.Country = opts.Geo.Lookup(f.RemoteIP)
		}
		logcat.Debugf("flows: %s", f.Describe())
	}
	return out
}

// isFromDevice tells whether the packet was sent by the device. When
// neither endpoint is a device address we fall back to the port
// heuristic: the endpoint with the ephemeral (larger) port is local.
func isFromDevice(p *capture.Packet, device map[string]bool) bool {
	src, dst := device[p.SrcIP.String()], device[p.DstIP.String()]
	switch {
	case src && !dst:
		return true
	case dst && !src:
		return false
	default:
		return p.SrcPort > p.DstPort
	}
}

func (f *Flow) name(resolver *Resolver) {
	f.Hostname = resolver.Lookup(f.RemoteIP)
	if f.Hostname == "" {
		for _, p := range f.Packets {
			if p.HTTP != nil && p.HTTP.Host != "" {
				host, _, err := net.SplitHostPort(p.HTTP.Host)
				if err != nil {
					host = p.HTTP.Host
				}
				f.Hostname = host
				break
			}
		}
	}
	f.Domain = RegistrableDomain(f.Hostname)
}

// RegistrableDomain returns the public suffix plus one label of
// the given hostname, or the hostname itself when that fails (e.g.,
// for IP addresses and single label names).
func RegistrableDomain(hostname string) string {
	if hostname == "" || net.ParseIP(hostname) != nil {
		return hostname
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(hostname)
	if err != nil {
		return hostname
	}
	return domain
}

func (f *Flow) fingerprint(limit int) {
	if limit < 0 {
		return
	}
	var data []byte
	for _, p := range f.Packets {
		if len(data) >= limit {
			break
		}
		data = append(data, p.Payload...)
	}
	if len(data) > limit {
		data = data[:limit]
	}
	if len(data) < MinFingerprintBytes {
		return
	}
	h, err := tlsh.HashBytes(data)
	if err != nil {
		logcat.Shrugf("flows: cannot fingerprint %s: %s", f.Describe(), err.Error())
		return
	}
	f.TLSH = h.String()
}

// Compare returns the TLSH distance between two flows payloads. The
// second return value is false when either flow has no fingerprint.
func Compare(a, b *Flow) (int, bool) {
	ah, err := tlsh.ParseStringToTlsh(a.TLSH)
	if err != nil {
		return 0, false
	}
	bh, err := tlsh.ParseStringToTlsh(b.TLSH)
	if err != nil {
		return 0, false
	}
	return ah.Diff(bh), true
}

// SortByBytes sorts flows by total bytes, largest first, with
// ties broken by ID.
func SortByBytes(flows []*Flow) {
	sort.SliceStable(flows, func(i, j int) bool {
		bi := flows[i].Sent.Bytes + flows[i].Received.Bytes
		bj := flows[j].Sent.Bytes + flows[j].Received.Bytes
		if bi != bj {
			return bi > bj
		}
		return flows[i].ID < flows[j].ID
	})
}
