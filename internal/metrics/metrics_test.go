package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/smartdiet/netanalyzer/internal/analyzer"
	"github.com/stretchr/testify/require"
)

func newReport(path string) *analyzer.ArchivalReport {
	return &analyzer.ArchivalReport{
		Path:              path,
		Methods:           5000,
		Packets:           106,
		AttributedPackets: 91,
		SentBytes:         300,
		ReceivedBytes:     700,
		LinkBytes:         1000,
		NetworkBytes:      860,
		TransportBytes:    660,
		Flows:             []*analyzer.ArchivalFlow{{ID: 1}, {ID: 2}},
		TopMethods: []*analyzer.ArchivalMethodNetwork{{
			Method:    "fi.aalto.smartdiet.feed.FeedUpdater.refresh",
			Signature: "()V",
			Bytes:     900,
		}, {
			Method:    "fi.aalto.smartdiet.feed.FeedUpdater.refresh",
			Signature: "(Z)V",
			Bytes:     100,
		}},
		Runtime: 0.5,
	}
}

func TestGather(t *testing.T) {
	families, err := Gather(newReport("a"), newReport("b")).Gather()
	require.NoError(t, err)
	count := map[string]int{}
	for _, mf := range families {
		count[mf.GetName()] = len(mf.GetMetric())
	}
	require.Equal(t, 2, count["netanalyzer_packets"])
	require.Equal(t, 6, count["netanalyzer_layer_bytes"])
	require.Equal(t, 4, count["netanalyzer_bytes"])
	require.Equal(t, 4, count["netanalyzer_method_bytes"])
}

func TestExport(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "netanalyzer.prom")
	require.NoError(t, Export(filename, newReport("testdata/5k")))
	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	text := string(data)
	for _, line := range []string{
		`netanalyzer_methods{trace="testdata/5k"} 5000`,
		`netanalyzer_packets{trace="testdata/5k"} 106`,
		`netanalyzer_attributed_packets{trace="testdata/5k"} 91`,
		`netanalyzer_flows{trace="testdata/5k"} 2`,
		`netanalyzer_bytes{direction="sent",trace="testdata/5k"} 300`,
		`netanalyzer_bytes{direction="received",trace="testdata/5k"} 700`,
		`netanalyzer_layer_bytes{layer="l4",trace="testdata/5k"} 660`,
		`netanalyzer_method_bytes{method="fi.aalto.smartdiet.feed.FeedUpdater.refresh",signature="()V",trace="testdata/5k"} 900`,
		`netanalyzer_method_bytes{method="fi.aalto.smartdiet.feed.FeedUpdater.refresh",signature="(Z)V",trace="testdata/5k"} 100`,
		`netanalyzer_analysis_seconds{trace="testdata/5k"} 0.5`,
		`# TYPE netanalyzer_packets gauge`,
	} {
		require.Contains(t, text, line)
	}
}

func TestExportFailure(t *testing.T) {
	err := Export(filepath.Join(t.TempDir(), "missing", "x.prom"), newReport("a"))
	require.Error(t, err)
}
