package dmtrace

//
// Data section
//
// The binary part of a method trace.
//

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrBadHeader indicates a data section header whose lengths are
// inconsistent with its version or clock.
var ErrBadHeader = errors.New("dmtrace: bad data section header")

// dataMagic is "SLOW" read as a little-endian uint32.
const dataMagic = 0x574f4c53

// baseHeaderSize is the size of the header fields shared by all versions.
const baseHeaderSize = 16

// parseData decodes the data section from r into tr.
func parseData(r io.Reader, tr *Trace) error {
	var hdr [baseHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return fmt.Errorf("%w: %s", ErrBadMagic, err.Error())
	}
	if binary.LittleEndian.Uint32(hdr[0:4]) != dataMagic {
		return ErrBadMagic
	}
	tr.DataVersion = int(binary.LittleEndian.Uint16(hdr[4:6]))
	offset := int(binary.LittleEndian.Uint16(hdr[6:8]))
	start := binary.LittleEndian.Uint64(hdr[8:16])
	tr.StartTime = time.UnixMicro(int64(start)).UTC()
	consumed := baseHeaderSize
	switch tr.DataVersion {
	case 1:
		tr.RecordSize = 9
	case 2:
		tr.RecordSize = 10
	case 3:
		var rs [2]byte
		if _, err := io.ReadFull(r, rs[:]); err != nil {
			return fmt.Errorf("%w: %s", ErrBadHeader, err.Error())
		}
		consumed += 2
		tr.RecordSize = int(binary.LittleEndian.Uint16(rs[:]))
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, tr.DataVersion)
	}
	if offset < consumed {
		return fmt.Errorf("%w: header length %d", ErrBadHeader, offset)
	}
	if _, err := io.CopyN(io.Discard, r, int64(offset-consumed)); err != nil {
		return fmt.Errorf("%w: %s", ErrBadHeader, err.Error())
	}
	if err := tr.settleClock(); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	tr.decodeRecords(data)
	return nil
}

// minRecordSize returns the smallest record size for the clock and version.
func (tr *Trace) minRecordSize() int {
	switch tr.DataVersion {
	case 1:
		return 9
	case 2:
		return 10
	}
	if tr.Clock == ClockDual {
		return 14
	}
	return 10
}

// settleClock chooses the clock when the key did not say and checks
// the record size is large enough for it.
func (tr *Trace) settleClock() error {
	if tr.Clock == "" {
		tr.Clock = ClockThreadCPU
		if tr.DataVersion == 3 && tr.RecordSize >= 14 {
			tr.Clock = ClockDual
		}
	}
	if tr.DataVersion < 3 && tr.Clock == ClockDual {
		return fmt.Errorf("%w: dual clock with version %d records", ErrBadHeader, tr.DataVersion)
	}
	if tr.RecordSize < tr.minRecordSize() {
		return fmt.Errorf("%w: record size %d", ErrBadHeader, tr.RecordSize)
	}
	return nil
}

func (tr *Trace) decodeRecords(data []byte) {
	size := tr.RecordSize
	count := len(data) / size
	tr.Records = make([]Record, 0, count)
	for off := 0; off+size <= len(data); off += size {
		tr.Records = append(tr.Records, tr.decodeRecord(data[off:off+size]))
	}
	tr.Truncated = len(data)%size != 0
}

func (tr *Trace) decodeRecord(b []byte) Record {
	var (
		rec Record
		off int
	)
	if tr.DataVersion == 1 {
		rec.ThreadID = uint16(b[0])
		off = 1
	} else {
		rec.ThreadID = binary.LittleEndian.Uint16(b[0:2])
		off = 2
	}
	mid := binary.LittleEndian.Uint32(b[off : off+4])
	rec.MethodID = mid &^ 3
	rec.Action = Action(mid & 3)
	off += 4
	first := usec(binary.LittleEndian.Uint32(b[off : off+4]))
	switch tr.Clock {
	case ClockDual:
		rec.ThreadTime = first
		rec.WallTime = usec(binary.LittleEndian.Uint32(b[off+4 : off+8]))
	case ClockWall:
		rec.WallTime = first
	default:
		rec.ThreadTime = first
	}
	return rec
}

func usec(v uint32) time.Duration {
	return time.Duration(v) * time.Microsecond
}
