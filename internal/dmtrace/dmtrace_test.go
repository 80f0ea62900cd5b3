package dmtrace_test

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/smartdiet/netanalyzer/internal/dmtrace"
	"github.com/smartdiet/netanalyzer/internal/dmtrace/dmtracetest"
	"github.com/stretchr/testify/require"
)

func sampleBuilder() *dmtracetest.Builder {
	return dmtracetest.New().
		Thread(1, "main").
		Thread(7, "AsyncTask #1").
		Method(0x1000, "com/example/Feed", "refresh", "()V").
		Method(0x1004, "java/net/Socket", "connect", "(Ljava/net/SocketAddress;I)V").
		Enter(1, 0x1000, 10*time.Microsecond).
		Enter(7, 0x1004, 25*time.Microsecond).
		Exit(7, 0x1004, 900*time.Microsecond).
		Exit(1, 0x1000, 1200*time.Microsecond)
}

func TestParseDualClock(t *testing.T) {
	tr, err := dmtrace.Parse(bytes.NewReader(sampleBuilder().Bytes()))
	require.NoError(t, err)
	require.Equal(t, 3, tr.Version)
	require.Equal(t, 3, tr.DataVersion)
	require.Equal(t, dmtrace.ClockDual, tr.Clock)
	require.Equal(t, 14, tr.RecordSize)
	require.Equal(t, "dalvik", tr.Props["vm"])
	require.Len(t, tr.Threads, 2)
	require.Equal(t, "AsyncTask #1", tr.Thread(7).Name)
	require.Len(t, tr.Methods, 2)
	require.Len(t, tr.Records, 4)
	require.False(t, tr.Truncated)
	require.True(t, dmtracetest.DefaultStart.Equal(tr.StartTime))

	rec := tr.Records[2]
	require.Equal(t, uint16(7), rec.ThreadID)
	require.Equal(t, uint32(0x1004), rec.MethodID)
	require.Equal(t, dmtrace.ActionExit, rec.Action)
	require.Equal(t, 900*time.Microsecond, rec.WallTime)
	require.Equal(t, 900*time.Microsecond, rec.ThreadTime)
	require.Equal(t, 1200*time.Microsecond, tr.Elapsed())

	m := tr.Method(rec.MethodID | uint32(dmtrace.ActionUnwind))
	require.NotNil(t, m)
	require.Equal(t, "java.net.Socket.connect", m.FullName())
	require.Equal(t, "java.net.Socket.connect(Ljava/net/SocketAddress;I)V", m.String())
	require.Equal(t, "Generated.java", m.Source)
	require.Nil(t, tr.Method(0x2000))
	require.Equal(t, "thread-99", tr.ThreadName(99))
}

func TestParseOlderVersions(t *testing.T) {
	for _, tc := range []struct {
		version int
		clock   dmtrace.Clock
		size    int
	}{
		{1, dmtrace.ClockThreadCPU, 9},
		{2, dmtrace.ClockWall, 10},
		{3, dmtrace.ClockWall, 10},
	} {
		b := sampleBuilder()
		b.Version = tc.version
		b.Clock = tc.clock
		tr, err := dmtrace.Parse(bytes.NewReader(b.Bytes()))
		require.NoError(t, err)
		require.Equal(t, tc.size, tr.RecordSize)
		require.Len(t, tr.Records, 4)
		last := tr.Records[3]
		require.Equal(t, uint16(1), last.ThreadID)
		if tc.clock == dmtrace.ClockWall {
			require.Equal(t, 1200*time.Microsecond, last.WallTime)
			require.Zero(t, last.ThreadTime)
		} else {
			require.Equal(t, 1200*time.Microsecond, last.ThreadTime)
			require.Zero(t, last.WallTime)
		}
	}
}

func TestParseInfersClock(t *testing.T) {
	b := sampleBuilder()
	b.OmitClock = true
	tr, err := dmtrace.Parse(bytes.NewReader(b.Bytes()))
	require.NoError(t, err)
	require.Equal(t, dmtrace.ClockDual, tr.Clock)

	b.Clock = dmtrace.ClockThreadCPU
	tr, err = dmtrace.Parse(bytes.NewReader(b.Bytes()))
	require.NoError(t, err)
	require.Equal(t, dmtrace.ClockThreadCPU, tr.Clock)
}

func TestParseSkipsLongHeader(t *testing.T) {
	b := sampleBuilder()
	b.HeaderSize = 32
	tr, err := dmtrace.Parse(bytes.NewReader(b.Bytes()))
	require.NoError(t, err)
	require.Len(t, tr.Records, 4)
	require.Equal(t, uint32(0x1000), tr.Records[0].MethodID)
}

func TestParseTruncated(t *testing.T) {
	data := sampleBuilder().Bytes()
	tr, err := dmtrace.Parse(bytes.NewReader(data[:len(data)-5]))
	require.NoError(t, err)
	require.True(t, tr.Truncated)
	require.Len(t, tr.Records, 3)
}

func TestParseErrors(t *testing.T) {
	valid := string(sampleBuilder().Bytes())
	for _, tc := range []struct {
		name  string
		input string
		err   error
	}{
		{"empty", "", dmtrace.ErrNoKeySection},
		{"not a trace", "GET / HTTP/1.1\r\n", dmtrace.ErrNoKeySection},
		{"no end", "*version\n3\nclock=dual\n*threads\n1\tmain\n", dmtrace.ErrMalformedKey},
		{"bad version", "*version\nthree\n*end\n", dmtrace.ErrMalformedKey},
		{"bad property", "*version\n3\nclock\n*end\n", dmtrace.ErrMalformedKey},
		{"bad clock", "*version\n3\nclock=sundial\n*end\n", dmtrace.ErrMalformedKey},
		{"bad thread", "*version\n3\n*threads\nmain\n*end\n", dmtrace.ErrMalformedKey},
		{"bad method", "*version\n3\n*methods\n0xzz\ta\tb\tc\n*end\n", dmtrace.ErrMalformedKey},
		{"short method", "*version\n3\n*methods\n0x10\ta\n*end\n", dmtrace.ErrMalformedKey},
		{"no data", "*version\n3\n*end\n", dmtrace.ErrBadMagic},
		{"bad magic", strings.Replace(valid, "SLOW", "FAST", 1), dmtrace.ErrBadMagic},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := dmtrace.Parse(strings.NewReader(tc.input))
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestParseUnsupportedVersion(t *testing.T) {
	b := sampleBuilder()
	b.Version = 9
	_, err := dmtrace.Parse(bytes.NewReader(b.Bytes()))
	require.ErrorIs(t, err, dmtrace.ErrUnsupportedVersion)
}

func TestParseBadHeader(t *testing.T) {
	b := sampleBuilder()
	b.Version = 2
	b.Clock = dmtrace.ClockDual
	_, err := dmtrace.Parse(bytes.NewReader(b.Bytes()))
	require.ErrorIs(t, err, dmtrace.ErrBadHeader)
	require.Contains(t, err.Error(), "dual clock with version 2")
}

func TestParseRecordSizeTooSmall(t *testing.T) {
	b := sampleBuilder()
	b.Version = 3
	b.Clock = dmtrace.ClockDual
	data := b.Bytes()
	hdr := bytes.Index(data, []byte("*end\n")) + len("*end\n")
	binary.LittleEndian.PutUint16(data[hdr+16:hdr+18], 10)
	_, err := dmtrace.Parse(bytes.NewReader(data))
	require.ErrorIs(t, err, dmtrace.ErrBadHeader)
	require.Contains(t, err.Error(), "record size 10")
}

func TestParseShortHeaderLength(t *testing.T) {
	b := sampleBuilder()
	data := b.Bytes()
	hdr := bytes.Index(data, []byte("*end\n")) + len("*end\n")
	binary.LittleEndian.PutUint16(data[hdr+6:hdr+8], 12)
	_, err := dmtrace.Parse(bytes.NewReader(data))
	require.ErrorIs(t, err, dmtrace.ErrBadHeader)
}

func TestParseIgnoresUnknownSections(t *testing.T) {
	input := "*version\n3\nclock=wall\n*stats\nanything goes\n*end\n"
	b := dmtracetest.New()
	b.Clock = dmtrace.ClockWall
	data := b.Bytes()
	idx := bytes.Index(data, []byte("*end\n")) + len("*end\n")
	tr, err := dmtrace.Parse(bytes.NewReader(append([]byte(input), data[idx:]...)))
	require.NoError(t, err)
	require.Equal(t, dmtrace.ClockWall, tr.Clock)
	require.Empty(t, tr.Methods)
}

func TestReadFileCompressed(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll(sampleBuilder().Bytes(), nil)
	require.NoError(t, enc.Close())
	filename := filepath.Join(t.TempDir(), "methods.trace.zst")
	require.NoError(t, os.WriteFile(filename, compressed, 0600))
	tr, err := dmtrace.ReadFile(filename)
	require.NoError(t, err)
	require.Len(t, tr.Methods, 2)
}

func TestReadFileReportsName(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "broken.trace")
	require.NoError(t, os.WriteFile(filename, []byte("junk"), 0600))
	_, err := dmtrace.ReadFile(filename)
	require.ErrorIs(t, err, dmtrace.ErrNoKeySection)
	require.Contains(t, err.Error(), "broken.trace")
}

func TestActionString(t *testing.T) {
	require.Equal(t, "ent", dmtrace.ActionEnter.String())
	require.Equal(t, "xit", dmtrace.ActionExit.String())
	require.Equal(t, "unr", dmtrace.ActionUnwind.String())
	require.Equal(t, "action(3)", dmtrace.Action(3).String())
}
