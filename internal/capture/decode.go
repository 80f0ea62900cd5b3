package capture

//
// Decode
//
// Turning captured bytes into a Packet.
//

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/smartdiet/netanalyzer/internal/logcat"
)

// Decode decodes a single frame. Decode never fails: the fields of the
// layers we could not decode are left empty.
func Decode(index int, linkType layers.LinkType, data []byte, ci gopacket.CaptureInfo) *Packet {
	p := &Packet{
		Index:         index,
		Timestamp:     ci.Timestamp,
		Length:        ci.Length,
		CaptureLength: ci.CaptureLength,
	}
	if p.Length == 0 {
		p.Length = len(data)
	}
	pkt := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{NoCopy: true})
	if el := pkt.ErrorLayer(); el != nil {
		logcat.Shrugf("capture: #%d: %s", index, el.Error())
	}
	if ll := pkt.LinkLayer(); ll != nil {
		p.LinkHeader = len(ll.LayerContents())
	}
	switch nl := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		p.Network = "ipv4"
		p.SrcIP, p.DstIP = copyIP(nl.SrcIP), copyIP(nl.DstIP)
		p.NetworkHeader = len(nl.Contents)
	case *layers.IPv6:
		p.Network = "ipv6"
		p.SrcIP, p.DstIP = copyIP(nl.SrcIP), copyIP(nl.DstIP)
		p.NetworkHeader = len(nl.Contents)
	}
	switch tl := pkt.TransportLayer().(type) {
	case *layers.TCP:
		p.Transport = "tcp"
		p.SrcPort, p.DstPort = uint16(tl.SrcPort), uint16(tl.DstPort)
		p.TCPFlags = tcpFlags(tl)
		p.TransportHeader = len(tl.Contents)
		p.Payload = copyBytes(tl.Payload)
		p.HTTP = decodeHTTP(p.Payload)
	case *layers.UDP:
		p.Transport = "udp"
		p.SrcPort, p.DstPort = uint16(tl.SrcPort), uint16(tl.DstPort)
		p.TransportHeader = len(tl.Contents)
		p.Payload = copyBytes(tl.Payload)
		if p.SrcPort == DNSPort || p.DstPort == DNSPort {
			msg, err := decodeDNS(p.Payload)
			if err != nil {
				logcat.Debugf("capture: #%d: cannot decode DNS message: %s", index, err.Error())
			}
			p.DNS = msg
		}
	}
	if p.Transport == "" {
		if pkt.Layer(layers.LayerTypeICMPv4) != nil || pkt.Layer(layers.LayerTypeICMPv6) != nil {
			p.Transport = "icmp"
		}
	}
	return p
}

func tcpFlags(tcp *layers.TCP) (f TCPFlags) {
	if tcp.FIN {
		f |= TCPFlagFIN
	}
	if tcp.SYN {
		f |= TCPFlagSYN
	}
	if tcp.RST {
		f |= TCPFlagRST
	}
	if tcp.PSH {
		f |= TCPFlagPSH
	}
	if tcp.ACK {
		f |= TCPFlagACK
	}
	return
}

func copyIP(ip []byte) []byte {
	return copyBytes(ip)
}

func copyBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
