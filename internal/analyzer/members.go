package analyzer

//
// Members
//
// Locating the files that make up a trace.
//

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/smartdiet/netanalyzer/internal/compressx"
)

var (
	// ErrNoMethodTrace indicates that we could not find the method trace.
	ErrNoMethodTrace = errors.New("analyzer: no method trace")

	// ErrNoPacketCapture indicates that we could not find the packet capture.
	ErrNoPacketCapture = errors.New("analyzer: no packet capture")
)

const (
	// MethodTraceName is the name of the method trace inside a trace directory.
	MethodTraceName = "methods.trace"

	// PacketCaptureName is the name of the packet capture inside a trace directory.
	PacketCaptureName = "packets.pcap"

	// PacketCaptureNgName is the alternative pcapng name of the packet capture.
	PacketCaptureNgName = "packets.pcapng"
)

// Members contains the paths of the files of a trace.
type Members struct {
	// MethodTrace is the method trace path.
	MethodTrace string

	// PacketCapture is the packet capture path.
	PacketCapture string
}

// FindMembers locates the members of the trace at path. The path is
// either a directory containing methods.trace and packets.pcap (or
// packets.pcapng) or a prefix P such that P.trace and P.pcap (or
// P.pcapng) exist. Each member may be gzip or zstd compressed.
func FindMembers(path string) (*Members, error) {
	var traceBase string
	var captureBases []string
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		traceBase = filepath.Join(path, MethodTraceName)
		captureBases = []string{
			filepath.Join(path, PacketCaptureName),
			filepath.Join(path, PacketCaptureNgName),
		}
	} else {
		traceBase = path + ".trace"
		captureBases = []string{path + ".pcap", path + ".pcapng"}
	}
	mt, err := compressx.Find(traceBase)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoMethodTrace, path)
	}
	for _, base := range captureBases {
		if pc, err := compressx.Find(base); err == nil {
			return &Members{MethodTrace: mt, PacketCapture: pc}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoPacketCapture, path)
}
