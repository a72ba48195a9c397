package loader

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaelod/flowmap/types"
)

const payload = `{
  "sourceFiles": ["sample.pcap"],
  "timelines": [
    {"id": "tcp-10.0.0.1-40000-10.0.0.2-80", "protocol": "tcp", "protocolType": "tcp-handshake"},
    {"id": "udp-10.0.0.1-6000-10.0.0.2-53", "protocol": "dns", "protocolType": "dns-query",
     "stages": [{"key": "send", "label": "DNS Query", "direction": "forward", "durationMs": 1200}],
     "metrics": {"packetCount": 1, "resolvedIp": "93.184.216.34"}}
  ],
  "packets": [
    {"connectionId": "tcp-10.0.0.1-40000-10.0.0.2-80", "index": 2, "timestamp": 0.5,
     "fiveTuple": {"srcIp": "10.0.0.2", "srcPort": "80", "dstIp": "10.0.0.1", "dstPort": "40000", "protocol": "TCP"},
     "headers": {"tcp": {"flags": ["SYN", "ACK"]}}}
  ],
  "connectionPackets": {
    "tcp-10.0.0.1-40000-10.0.0.2-80": [{"index": 1, "timestamp": 0.25, "length": 60}]
  }
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"a.json", FormatJSON},
		{"a.LUA", FormatLua},
		{"dir/a.pcapng", FormatPCAP},
		{"a.cap", FormatPCAP},
	}
	for _, tt := range tests {
		got, err := DetectFormat(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}

	_, err := DetectFormat("notes.txt")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestLoadJSON(t *testing.T) {
	ds, report, err := Load(writeFile(t, "sample.json", payload))
	require.NoError(t, err)

	assert.Equal(t, FormatJSON, report.Format)
	assert.Equal(t, 2, report.Timelines)
	assert.Equal(t, 2, report.Packets)
	assert.Empty(t, report.Dropped)

	assert.Equal(t, []string{"sample.pcap"}, ds.SourceFiles)
	assert.Equal(t, "93.184.216.34", ds.Timelines[1].Metrics.ResolvedIP)
	assert.Equal(t, 1200.0, ds.Timelines[1].Stages[0].DurationMs)

	pkts := ds.PacketsByConnection["tcp-10.0.0.1-40000-10.0.0.2-80"]
	require.Len(t, pkts, 2)
	assert.Equal(t, 1, pkts[0].Index, "grouped packets get their connection id and sort by time")
	assert.Equal(t, []string{"SYN", "ACK"}, pkts[1].Headers.TCP.Flags)
}

func TestReadJSONUnwrapsAnalysisResult(t *testing.T) {
	wrapped := `{"basic_stats": {"total_packets": 3}, "protocol_timelines": ` + payload + `}`
	ds, err := ReadJSON(strings.NewReader(wrapped))
	require.NoError(t, err)
	assert.Len(t, ds.Timelines, 2)
	assert.Len(t, ds.Packets, 2)
}

func TestLoadLua(t *testing.T) {
	script := `return { timelines = { { id = "icmp-10.0.0.1-0-10.0.0.2-0", protocol_type = "icmp-ping" } } }`
	ds, report, err := Load(writeFile(t, "ping.lua", script))
	require.NoError(t, err)
	assert.Equal(t, FormatLua, report.Format)
	assert.Equal(t, "icmp-ping", ds.Timelines[0].ProtocolType)
}

func TestLoadErrors(t *testing.T) {
	_, _, err := Load(writeFile(t, "notes.txt", "hello"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, _, err = Load(writeFile(t, "empty.json", `{"timelines": []}`))
	assert.ErrorIs(t, err, ErrNoTimelines)

	_, _, err = Load(writeFile(t, "broken.json", `{"timelines": [`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoTimelines)

	_, _, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSanitize(t *testing.T) {
	ds := &types.Dataset{
		Timelines: []types.Timeline{
			{ID: "tcp-10.0.0.1-1-10.0.0.2-2"},
			{ID: ""},
			{ID: "udp-10.0.0.1-3-10.0.0.2-4", Stages: []types.StageSpec{{Key: "x", DurationMs: -5}}},
			{ID: "udp-10.0.0.1-5-10.0.0.2-6", Stages: []types.StageSpec{{Key: "y", DurationMs: 10, Opacity: 1.5}}},
		},
		Packets: []types.PacketRecord{
			{ConnectionID: "tcp-10.0.0.1-1-10.0.0.2-2", Timestamp: 1},
			{ConnectionID: "", Timestamp: 2},
			{ConnectionID: "tcp-10.0.0.1-1-10.0.0.2-2", Timestamp: math.NaN()},
			{ConnectionID: "udp-10.0.0.1-3-10.0.0.2-4", Timestamp: 3},
			{ConnectionID: "tcp-10.0.0.1-1-10.0.0.2-2", Timestamp: 4, Length: -1},
		},
	}

	dropped := Sanitize(ds)
	assert.Len(t, dropped, 7)
	require.Len(t, ds.Timelines, 1)
	assert.Equal(t, "tcp-10.0.0.1-1-10.0.0.2-2", ds.Timelines[0].ID)
	require.Len(t, ds.Packets, 1)
	assert.Equal(t, 1.0, ds.Packets[0].Timestamp)
	assert.Len(t, ds.PacketsByConnection["tcp-10.0.0.1-1-10.0.0.2-2"], 1)

	assert.Contains(t, dropped[1], "DurationMs")
	assert.Contains(t, dropped[5], "unknown connection")
}
