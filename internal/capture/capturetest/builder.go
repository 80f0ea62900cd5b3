// Package capturetest builds synthetic packet captures for tests.
package capturetest

import (
	"bytes"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/miekg/dns"
)

// DeviceMAC and GatewayMAC are the link addresses we use.
var (
	DeviceMAC  = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	GatewayMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0xfe}
)

type frame struct {
	at   time.Time
	data []byte
}

// Builder accumulates Ethernet frames.
type Builder struct {
	frames []frame
	err    error
}

// New creates a new Builder.
func New() *Builder {
	return &Builder{}
}

// Err returns the first serialization error, if any.
func (b *Builder) Err() error {
	return b.err
}

func splitEndpoint(epnt string) (net.IP, int) {
	host, sport, err := net.SplitHostPort(epnt)
	if err != nil {
		panic(err)
	}
	port, err := strconv.Atoi(sport)
	if err != nil {
		panic(err)
	}
	return net.ParseIP(host), port
}

func (b *Builder) serialize(at time.Time, src, dst net.IP, transport gopacket.SerializableLayer,
	setnet func(gopacket.NetworkLayer), payload []byte) *Builder {
	eth := &layers.Ethernet{SrcMAC: DeviceMAC, DstMAC: GatewayMAC}
	var network gopacket.SerializableLayer
	if src.To4() != nil {
		eth.EthernetType = layers.EthernetTypeIPv4
		ip := &layers.IPv4{Version: 4, TTL: 64, SrcIP: src.To4(), DstIP: dst.To4()}
		switch transport.(type) {
		case *layers.TCP:
			ip.Protocol = layers.IPProtocolTCP
		default:
			ip.Protocol = layers.IPProtocolUDP
		}
		setnet(ip)
		network = ip
	} else {
		eth.EthernetType = layers.EthernetTypeIPv6
		ip := &layers.IPv6{Version: 6, HopLimit: 64, SrcIP: src, DstIP: dst}
		switch transport.(type) {
		case *layers.TCP:
			ip.NextHeader = layers.IPProtocolTCP
		default:
			ip.NextHeader = layers.IPProtocolUDP
		}
		setnet(ip)
		network = ip
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	err := gopacket.SerializeLayers(buf, opts, eth, network, transport, gopacket.Payload(payload))
	if err != nil && b.err == nil {
		b.err = err
	}
	b.frames = append(b.frames, frame{at: at, data: buf.Bytes()})
	return b
}

// TCP adds a TCP segment. Flags uses tcpdump notation ("S", "SA", "PA", "F", "R").
func (b *Builder) TCP(at time.Time, src, dst string, flags string, payload []byte) *Builder {
	sip, sport := splitEndpoint(src)
	dip, dport := splitEndpoint(dst)
	tcp := &layers.TCP{SrcPort: layers.TCPPort(sport), DstPort: layers.TCPPort(dport), Window: 65535}
	for _, c := range flags {
		switch c {
		case 'S':
			tcp.SYN = true
		case 'A':
			tcp.ACK = true
		case 'P':
			tcp.PSH = true
		case 'F':
			tcp.FIN = true
		case 'R':
			tcp.RST = true
		}
	}
	return b.serialize(at, sip, dip, tcp, func(nl gopacket.NetworkLayer) {
		_ = tcp.SetNetworkLayerForChecksum(nl)
	}, payload)
}

// UDP adds a UDP datagram.
func (b *Builder) UDP(at time.Time, src, dst string, payload []byte) *Builder {
	sip, sport := splitEndpoint(src)
	dip, dport := splitEndpoint(dst)
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	return b.serialize(at, sip, dip, udp, func(nl gopacket.NetworkLayer) {
		_ = udp.SetNetworkLayerForChecksum(nl)
	}, payload)
}

// DNSExchange adds an A query from client to resolver and its reply
// listing the given addresses, the reply being sent rtt later.
func (b *Builder) DNSExchange(at time.Time, client, resolver, domain string,
	rtt time.Duration, addrs ...string) *Builder {
	query := &dns.Msg{}
	query.SetQuestion(dns.Fqdn(domain), dns.TypeA)
	query.Id = uint16(len(b.frames) + 1)
	qdata, err := query.Pack()
	if err != nil && b.err == nil {
		b.err = err
	}
	b.UDP(at, client, resolver, qdata)
	reply := &dns.Msg{}
	reply.SetReply(query)
	for _, addr := range addrs {
		reply.Answer = append(reply.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: dns.Fqdn(domain), Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
			A:   net.ParseIP(addr),
		})
	}
	rdata, err := reply.Pack()
	if err != nil && b.err == nil {
		b.err = err
	}
	return b.UDP(at.Add(rtt), resolver, client, rdata)
}

// Raw adds a frame with arbitrary bytes.
func (b *Builder) Raw(at time.Time, data []byte) *Builder {
	b.frames = append(b.frames, frame{at: at, data: data})
	return b
}

// Len returns the number of frames.
func (b *Builder) Len() int {
	return len(b.frames)
}

func captureInfo(f frame) gopacket.CaptureInfo {
	return gopacket.CaptureInfo{
		Timestamp:     f.at,
		CaptureLength: len(f.data),
		Length:        len(f.data),
	}
}

// Pcap serializes the frames as a pcap file.
func (b *Builder) Pcap() []byte {
	out := &bytes.Buffer{}
	w := pcapgo.NewWriter(out)
	if err := w.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil && b.err == nil {
		b.err = err
	}
	for _, f := range b.frames {
		if err := w.WritePacket(captureInfo(f), f.data); err != nil && b.err == nil {
			b.err = err
		}
	}
	return out.Bytes()
}

// Pcapng serializes the frames as a pcapng file.
func (b *Builder) Pcapng() []byte {
	out := &bytes.Buffer{}
	w, err := pcapgo.NewNgWriter(out, layers.LinkTypeEthernet)
	if err != nil {
		b.err = err
		return nil
	}
	for _, f := range b.frames {
		if err := w.WritePacket(captureInfo(f), f.data); err != nil && b.err == nil {
			b.err = err
		}
	}
	if err := w.Flush(); err != nil && b.err == nil {
		b.err = err
	}
	return out.Bytes()
}

// WriteFile writes the frames as a pcap file.
func (b *Builder) WriteFile(filename string) error {
	data := b.Pcap()
	if b.err != nil {
		return b.err
	}
	return os.WriteFile(filename, data, 0600)
}
