package capture

//
// Reader
//
// Reading pcap and pcapng files.
//

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/smartdiet/netanalyzer/internal/compressx"
	"github.com/smartdiet/netanalyzer/internal/logcat"
)

// ErrUnknownCaptureFormat indicates that the input is neither
// a pcap nor a pcapng file.
var ErrUnknownCaptureFormat = errors.New("capture: unknown capture file format")

// packetDataSource is what pcapgo.Reader and pcapgo.NgReader have in common.
type packetDataSource interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

const pcapngMagic = 0x0a0d0d0a

// pcapMagics are the pcap magic numbers in both byte orders, for
// microsecond and nanosecond resolution files.
var pcapMagics = map[uint32]bool{
	0xa1b2c3d4: true,
	0xd4c3b2a1: true,
	0xa1b23c4d: true,
	0x4d3cb2a1: true,
}

// newSource detects the capture format and returns a reader for it.
func newSource(r io.Reader) (packetDataSource, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCaptureFormat, err.Error())
	}
	magic := binary.LittleEndian.Uint32(head)
	switch {
	case magic == pcapngMagic:
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	case pcapMagics[magic]:
		return pcapgo.NewReader(br)
	default:
		return nil, ErrUnknownCaptureFormat
	}
}

// Read reads all the packets of a pcap or pcapng capture.
func Read(r io.Reader) ([]*Packet, error) {
	src, err := newSource(r)
	if err != nil {
		return nil, err
	}
	linkType := src.LinkType()
	var out []*Packet
	for {
		data, ci, err := src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A capture cut short while tcpdump was still writing
			// is common; we keep what we have read so far.
			if errors.Is(err, io.ErrUnexpectedEOF) {
				logcat.Warnf("capture: truncated capture after %d packets", len(out))
				break
			}
			return nil, err
		}
		out = append(out, Decode(len(out), linkType, data, ci))
	}
	logcat.Debugf("capture: link type %s: %d packets", linkType, len(out))
	return out, nil
}

// ReadFile opens the given file, decompressing it if its name ends
// with .gz or .zst, and reads all its packets.
func ReadFile(filename string) ([]*Packet, error) {
	rc, err := compressx.Open(filename)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	packets, err := Read(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return packets, nil
}
