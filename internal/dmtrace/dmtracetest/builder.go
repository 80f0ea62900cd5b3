// Package dmtracetest builds synthetic method traces for tests.
package dmtracetest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/smartdiet/netanalyzer/internal/dmtrace"
)

// DefaultStart is the start time used by New.
var DefaultStart = time.Date(2011, 5, 2, 10, 0, 0, 0, time.UTC)

// Builder accumulates threads, methods and records and serializes
// them in the method trace format.
type Builder struct {
	// Version is the data section version (1, 2 or 3).
	Version int

	// Clock is the clock written in the key and used for records.
	Clock dmtrace.Clock

	// OmitClock removes the clock property from the key.
	OmitClock bool

	// Start is the tracing start time.
	Start time.Time

	// HeaderSize is the data header length. Zero means the minimum.
	HeaderSize int

	threads []dmtrace.Thread
	methods []dmtrace.Method
	records []dmtrace.Record
}

// New returns a version 3 dual clock Builder.
func New() *Builder {
	return &Builder{Version: 3, Clock: dmtrace.ClockDual, Start: DefaultStart}
}

// Thread adds an entry to the threads table.
func (b *Builder) Thread(id uint16, name string) *Builder {
	b.threads = append(b.threads, dmtrace.Thread{ID: id, Name: name})
	return b
}

// Method adds an entry to the method table.
func (b *Builder) Method(id uint32, class, name, signature string) *Builder {
	b.methods = append(b.methods, dmtrace.Method{
		ID: id, Class: class, Name: name, Signature: signature,
		Source: "Generated.java", Line: int64(id >> 2),
	})
	return b
}

// Enter adds a method entry record at the given wall time. The
// thread time is set to the wall time.
func (b *Builder) Enter(tid uint16, mid uint32, at time.Duration) *Builder {
	return b.Record(tid, mid, dmtrace.ActionEnter, at)
}

// Exit adds a method exit record at the given wall time.
func (b *Builder) Exit(tid uint16, mid uint32, at time.Duration) *Builder {
	return b.Record(tid, mid, dmtrace.ActionExit, at)
}

// Record adds a record with the given action.
func (b *Builder) Record(tid uint16, mid uint32, action dmtrace.Action, at time.Duration) *Builder {
	b.records = append(b.records, dmtrace.Record{
		ThreadID: tid, MethodID: mid, Action: action, ThreadTime: at, WallTime: at,
	})
	return b
}

// recordSize follows the clock also for versions that cannot carry
// dual clock records, so that we can encode headers the parser rejects.
func (b *Builder) recordSize() int {
	size := 2 + 4 + 4
	if b.Version == 1 {
		size = 1 + 4 + 4
	}
	if b.Clock == dmtrace.ClockDual {
		size += 4
	}
	return size
}

// Bytes serializes the trace.
func (b *Builder) Bytes() []byte {
	out := &bytes.Buffer{}
	fmt.Fprintf(out, "*version\n%d\n", b.Version)
	if !b.OmitClock {
		fmt.Fprintf(out, "clock=%s\n", b.Clock)
	}
	fmt.Fprintf(out, "num-method-calls=%d\n", len(b.records)/2)
	fmt.Fprint(out, "vm=dalvik\n*threads\n")
	for _, th := range b.threads {
		fmt.Fprintf(out, "%d\t%s\n", th.ID, th.Name)
	}
	fmt.Fprint(out, "*methods\n")
	for _, m := range b.methods {
		fmt.Fprintf(out, "0x%08x\t%s\t%s\t%s\t%s\t%d\n", m.ID, m.Class, m.Name, m.Signature, m.Source, m.Line)
	}
	fmt.Fprint(out, "*end\n")
	hdrlen := 16
	if b.Version == 3 {
		hdrlen = 18
	}
	if b.HeaderSize > hdrlen {
		hdrlen = b.HeaderSize
	}
	hdr := make([]byte, hdrlen)
	binary.LittleEndian.PutUint32(hdr[0:4], 0x574f4c53)
	binary.LittleEndian.PutUint16(hdr[4:6], uint16(b.Version))
	binary.LittleEndian.PutUint16(hdr[6:8], uint16(hdrlen))
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(b.Start.UnixMicro()))
	size := b.recordSize()
	if b.Version == 3 {
		binary.LittleEndian.PutUint16(hdr[16:18], uint16(size))
	}
	out.Write(hdr)
	for _, r := range b.records {
		rec := make([]byte, size)
		off := 2
		if b.Version == 1 {
			rec[0] = byte(r.ThreadID)
			off = 1
		} else {
			binary.LittleEndian.PutUint16(rec[0:2], r.ThreadID)
		}
		binary.LittleEndian.PutUint32(rec[off:off+4], r.MethodID|uint32(r.Action))
		off += 4
		switch b.Clock {
		case dmtrace.ClockDual:
			binary.LittleEndian.PutUint32(rec[off:off+4], uint32(r.ThreadTime/time.Microsecond))
			binary.LittleEndian.PutUint32(rec[off+4:off+8], uint32(r.WallTime/time.Microsecond))
		case dmtrace.ClockWall:
			binary.LittleEndian.PutUint32(rec[off:off+4], uint32(r.WallTime/time.Microsecond))
		default:
			binary.LittleEndian.PutUint32(rec[off:off+4], uint32(r.ThreadTime/time.Microsecond))
		}
		out.Write(rec)
	}
	return out.Bytes()
}

// WriteFile serializes the trace into the given file.
func (b *Builder) WriteFile(filename string) error {
	return os.WriteFile(filename, b.Bytes(), 0600)
}
