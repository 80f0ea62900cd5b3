package capture_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/smartdiet/netanalyzer/internal/capture"
	"github.com/smartdiet/netanalyzer/internal/capture/capturetest"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2011, 5, 2, 10, 0, 1, 0, time.UTC)

func sampleCapture() *capturetest.Builder {
	get := []byte("GET /feed.json HTTP/1.1\r\nHost: api.example.com\r\nUser-Agent: Dalvik/1.4.0\r\n\r\n")
	return capturetest.New().
		DNSExchange(t0, "10.0.2.15:40000", "10.0.2.3:53", "api.example.com", 30*time.Millisecond, "93.184.216.34").
		TCP(t0.Add(40*time.Millisecond), "10.0.2.15:41000", "93.184.216.34:80", "S", nil).
		TCP(t0.Add(90*time.Millisecond), "93.184.216.34:80", "10.0.2.15:41000", "SA", nil).
		TCP(t0.Add(91*time.Millisecond), "10.0.2.15:41000", "93.184.216.34:80", "PA", get).
		UDP(t0.Add(95*time.Millisecond), "[fe80::1]:5353", "[ff02::fb]:5353", []byte{1, 2, 3})
}

func TestReadPcap(t *testing.T) {
	b := sampleCapture()
	data := b.Pcap()
	require.NoError(t, b.Err())
	packets, err := capture.Read(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, packets, 6)

	query := packets[0]
	require.Equal(t, 0, query.Index)
	require.Equal(t, "ipv4", query.Network)
	require.Equal(t, "udp", query.Transport)
	require.Equal(t, uint16(53), query.DstPort)
	require.NotNil(t, query.DNS)
	require.False(t, query.DNS.Response)
	require.Equal(t, []capture.DNSQuestion{{Name: "api.example.com", Type: "A"}}, query.DNS.Questions)
	require.Equal(t, 14, query.LinkHeader)
	require.Equal(t, 20, query.NetworkHeader)
	require.Equal(t, 8, query.TransportHeader)
	require.True(t, t0.Equal(query.Timestamp))

	reply := packets[1]
	require.True(t, reply.DNS.Response)
	require.Equal(t, "NOERROR", reply.DNS.Rcode)
	require.Equal(t, []capture.DNSAnswer{{Name: "api.example.com", Type: "A", Data: "93.184.216.34"}}, reply.DNS.Answers)

	syn := packets[2]
	require.Equal(t, "tcp", syn.Transport)
	require.True(t, syn.TCPFlags.Has(capture.TCPFlagSYN))
	require.False(t, syn.TCPFlags.Has(capture.TCPFlagACK))
	require.Equal(t, "10.0.2.15:41000", syn.Src())
	require.Equal(t, "93.184.216.34:80", syn.Dst())
	require.Equal(t, "#2 tcp 10.0.2.15:41000 > 93.184.216.34:80 [S] len 0", syn.Describe())
	require.Equal(t, "SA", packets[3].TCPFlags.String())

	req := packets[4]
	require.NotNil(t, req.HTTP)
	require.Equal(t, "GET", req.HTTP.Method)
	require.Equal(t, "api.example.com", req.HTTP.Host)
	require.Equal(t, "/feed.json", req.HTTP.Path)
	require.Equal(t, "Dalvik/1.4.0", req.HTTP.UserAgent)
	require.Equal(t, len(req.Payload)+14+20+20, req.Length)

	mdns := packets[5]
	require.Equal(t, "ipv6", mdns.Network)
	require.Equal(t, "[fe80::1]:5353", mdns.Src())
	require.Nil(t, mdns.DNS)
}

func TestReadPcapng(t *testing.T) {
	b := sampleCapture()
	data := b.Pcapng()
	require.NoError(t, b.Err())
	packets, err := capture.Read(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, packets, 6)
	require.Equal(t, "93.184.216.34", packets[2].DstIP.String())
}

func TestReadKeepsUndecodableFrames(t *testing.T) {
	b := capturetest.New().Raw(t0, []byte{0xde, 0xad}).
		UDP(t0.Add(time.Second), "10.0.2.15:40000", "10.0.2.3:53", []byte("not dns"))
	packets, err := capture.Read(bytes.NewReader(b.Pcap()))
	require.NoError(t, err)
	require.Len(t, packets, 2)
	require.False(t, packets[0].HasEndpoints())
	require.Equal(t, "#0 2 bytes (not decoded)", packets[0].Describe())
	require.True(t, packets[1].HasEndpoints())
	require.Nil(t, packets[1].DNS)
}

func TestReadTruncatedCapture(t *testing.T) {
	data := sampleCapture().Pcap()
	packets, err := capture.Read(bytes.NewReader(data[:len(data)-10]))
	require.NoError(t, err)
	require.Len(t, packets, 5)
}

func TestReadUnknownFormat(t *testing.T) {
	_, err := capture.Read(bytes.NewReader([]byte("*version\n3\n")))
	require.ErrorIs(t, err, capture.ErrUnknownCaptureFormat)
	_, err = capture.Read(bytes.NewReader(nil))
	require.ErrorIs(t, err, capture.ErrUnknownCaptureFormat)
}

func TestReadFileGzip(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "packets.pcap.gz")
	fp, err := os.Create(filename)
	require.NoError(t, err)
	zw := gzip.NewWriter(fp)
	_, err = zw.Write(sampleCapture().Pcap())
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, fp.Close())
	packets, err := capture.ReadFile(filename)
	require.NoError(t, err)
	require.Len(t, packets, 6)
}

func TestReadFileMissing(t *testing.T) {
	_, err := capture.ReadFile(filepath.Join(t.TempDir(), "nope.pcap"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
