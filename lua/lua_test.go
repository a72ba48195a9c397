package lua

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaelod/flowmap/types"
)

const handshakeScript = `
-- generated by hand
local id = "tcp-10.0.0.1-40000-10.0.0.2-80"
local dataset = {
	timelines = {
		{ id = id, protocol = "TCP", protocol_type = "tcp-handshake", metrics = { rtt_ms = 12.5 } },
	},
	packets = {},
}

local flags = { {"SYN"}, {"SYN", "ACK"}, {"ACK"} }
for i, f in ipairs(flags) do
	local forward = i ~= 2
	table.insert(dataset.packets, {
		connection_id = id,
		index = i,
		timestamp = 100 + (i - 1) * 0.25,
		length = 60,
		five_tuple = {
			src_ip = forward and "10.0.0.1" or "10.0.0.2",
			src_port = forward and "40000" or "80",
			dst_ip = forward and "10.0.0.2" or "10.0.0.1",
			dst_port = forward and "80" or "40000",
			protocol = "TCP",
		},
		headers = { tcp = { flags = f } },
	})
end

return dataset
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestReadDataset(t *testing.T) {
	ds, err := ReadDataset(writeFile(t, "handshake.lua", handshakeScript))
	require.NoError(t, err)

	require.Len(t, ds.Timelines, 1)
	tl := ds.Timelines[0]
	assert.Equal(t, "tcp-handshake", tl.ProtocolType)
	assert.Equal(t, 12.5, tl.Metrics.RTTMs)

	require.Len(t, ds.Packets, 3)
	p := ds.Packets[1]
	assert.Equal(t, 2, p.Index)
	assert.Equal(t, 100.25, p.Timestamp)
	assert.Equal(t, "10.0.0.2", p.FiveTuple.SrcIP)
	assert.Equal(t, "80", p.FiveTuple.SrcPort)
	require.NotNil(t, p.Headers.TCP)
	assert.Equal(t, []string{"SYN", "ACK"}, p.Headers.TCP.Flags)

	assert.Len(t, ds.PacketsByConnection[tl.ID], 3)
}

func TestReadDatasetErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"syntax", "return {"},
		{"not a table", `return "dataset"`},
		{"unknown connection", `return { timelines = { { id = "a" } }, packets = { { connection_id = "b" } } }`},
		{"missing id", `return { timelines = { { protocol = "TCP" } } }`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadDataset(writeFile(t, "bad.lua", tt.script))
			assert.Error(t, err)
		})
	}
}

func floodDataset() *types.Dataset {
	id := "flood-203.0.113.9-0-10.0.0.2-443"
	return &types.Dataset{
		SourceFiles: []string{"attack.pcapng"},
		GeneratedAt: "2024-05-01T10:00:00Z",
		Timelines: []types.Timeline{
			{ID: id, Protocol: "TCP", ProtocolType: "flood", Metrics: types.Metrics{PacketCount: 2, Attack: "SYN Flood"}},
			{
				ID:           "udp-10.0.0.1-6000-10.0.0.2-7000",
				Protocol:     "UDP",
				ProtocolType: "udp-transfer",
				Stages: []types.StageSpec{
					{Key: "Transfer", Label: "Say \"hi\"", Direction: "forward", DurationMs: 250, Opacity: 0.5, Unreliable: true},
				},
			},
		},
		Packets: []types.PacketRecord{
			{
				ConnectionID: id, Index: 1, Timestamp: 1714557600.000123, Length: 60, ErrorType: "SYN Flood",
				FiveTuple: types.FiveTuple{SrcIP: "203.0.113.9", SrcPort: "20000", DstIP: "10.0.0.2", DstPort: "443", Protocol: "TCP"},
				Headers:   types.Headers{TCP: &types.TCPHeader{Flags: []string{"SYN"}}},
			},
			{
				ConnectionID: id, Index: 2, Timestamp: 1714557600.5, Length: 60,
				FiveTuple: types.FiveTuple{SrcIP: "203.0.113.9", SrcPort: "20001", DstIP: "10.0.0.2", DstPort: "443", Protocol: "TCP"},
				Headers:   types.Headers{TCP: &types.TCPHeader{}},
			},
			{
				ConnectionID: "udp-10.0.0.1-6000-10.0.0.2-7000", Index: 3, Timestamp: 1714557601, Length: 47,
				FiveTuple: types.FiveTuple{SrcIP: "10.0.0.1", SrcPort: "6000", DstIP: "10.0.0.2", DstPort: "7000", Protocol: "UDP"},
				Headers:   types.Headers{UDP: &types.UDPHeader{Length: 13}},
			},
		},
	}
}

func TestWriteDatasetLoadsBack(t *testing.T) {
	src := floodDataset()

	var buf bytes.Buffer
	require.NoError(t, WriteDataset(&buf, src))

	got, err := ReadDataset(writeFile(t, "flood.lua", buf.String()))
	require.NoError(t, err)

	assert.Equal(t, src.SourceFiles, got.SourceFiles)
	assert.Equal(t, src.GeneratedAt, got.GeneratedAt)
	assert.Equal(t, src.Timelines, got.Timelines)

	require.Len(t, got.Packets, 3)
	for i := range src.Packets {
		want, have := src.Packets[i], got.Packets[i]
		assert.Equal(t, want.ConnectionID, have.ConnectionID)
		assert.Equal(t, want.Index, have.Index)
		assert.Equal(t, want.Timestamp, have.Timestamp)
		assert.Equal(t, want.FiveTuple, have.FiveTuple)
		assert.Equal(t, want.ErrorType, have.ErrorType)
		assert.Equal(t, want.Headers.UDP, have.Headers.UDP)
		assert.Equal(t, want.Headers.TCP == nil, have.Headers.TCP == nil)
	}
	assert.Equal(t, []string{"SYN"}, got.Packets[0].Headers.TCP.Flags)
}

func TestSaveToRecentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recent")
	ds := floodDataset()

	first, err := SaveToRecentDir(ds, "/captures/attack.pcapng", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "attack_1.lua"), first)

	second, err := SaveToRecentDir(ds, "/captures/attack.pcapng", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "attack_2.lua"), second)

	loaded, err := ReadDataset(second)
	require.NoError(t, err)
	assert.Len(t, loaded.Timelines, 2)

	original := writeFile(t, "handshake.lua", handshakeScript)
	copied, err := SaveToRecentDir(nil, original, dir)
	require.NoError(t, err)
	data, err := os.ReadFile(copied)
	require.NoError(t, err)
	assert.Equal(t, handshakeScript, string(data))
}

func TestSaveToRecentDirRemovesFailedCopy(t *testing.T) {
	dir := t.TempDir()

	_, err := SaveToRecentDir(nil, filepath.Join(dir, "missing.lua"), dir)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "missing_1.lua"))
	assert.True(t, os.IsNotExist(statErr))
}
