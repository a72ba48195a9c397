// Package loader reads datasets from any supported source and sanitizes
// them before they reach the orchestrator.
package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/samaelod/flowmap/lua"
	"github.com/samaelod/flowmap/pcapreader"
	"github.com/samaelod/flowmap/types"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrNoTimelines       = errors.New("dataset has no usable timelines")
)

type Format string

const (
	FormatJSON Format = "json"
	FormatLua  Format = "lua"
	FormatPCAP Format = "pcap"
)

// Extensions lists every file extension Load understands.
var Extensions = []string{".json", ".lua", ".pcap", ".pcapng", ".cap"}

var validate = validator.New()

// Report describes what Load read and what it had to drop.
type Report struct {
	Format    Format
	Timelines int
	Packets   int
	Dropped   []string
}

func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".lua":
		return FormatLua, nil
	case ".pcap", ".pcapng", ".cap":
		return FormatPCAP, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
}

// Load reads path with the reader its extension selects, then sanitizes
// the result. A dataset left without timelines is ErrNoTimelines.
func Load(path string) (*types.Dataset, Report, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, Report{}, err
	}
	report := Report{Format: format}

	var ds *types.Dataset
	switch format {
	case FormatJSON:
		ds, err = readJSONFile(path)
	case FormatLua:
		ds, err = lua.ReadDataset(path)
	case FormatPCAP:
		ds, err = pcapreader.ReadPCAP(path)
	}
	if err != nil {
		return nil, report, fmt.Errorf("load %s: %w", path, err)
	}

	report.Dropped = Sanitize(ds)
	report.Timelines = len(ds.Timelines)
	report.Packets = len(ds.Packets)
	if len(ds.Timelines) == 0 {
		return nil, report, fmt.Errorf("load %s: %w", path, ErrNoTimelines)
	}
	return ds, report, nil
}

func readJSONFile(path string) (*types.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadJSON(f)
}

// jsonPayload accepts a timeline payload, optionally with packets grouped
// by connection id, or a full analysis result wrapping one.
type jsonPayload struct {
	types.Dataset
	ConnectionPackets map[string][]types.PacketRecord `json:"connectionPackets,omitempty"`
	ProtocolTimelines *jsonPayload                    `json:"protocol_timelines,omitempty"`
}

// ReadJSON decodes a JSON dataset.
func ReadJSON(r io.Reader) (*types.Dataset, error) {
	var p jsonPayload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if p.ProtocolTimelines != nil && len(p.Timelines) == 0 {
		inner := p.ProtocolTimelines
		inner.Packets = append(inner.Packets, p.Packets...)
		p = *inner
	}

	ds := p.Dataset
	ids := make([]string, 0, len(p.ConnectionPackets))
	for id := range p.ConnectionPackets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		for _, pkt := range p.ConnectionPackets[id] {
			pkt.ConnectionID = id
			ds.Packets = append(ds.Packets, pkt)
		}
	}
	ds.IndexPackets()
	return &ds, nil
}

// Sanitize drops timelines and packets that fail validation, and packets
// that reference no remaining timeline. It returns one line per drop and
// re-indexes the packets.
func Sanitize(ds *types.Dataset) []string {
	var dropped []string

	timelines := ds.Timelines[:0]
	known := make(map[string]bool, len(ds.Timelines))
	for i, tl := range ds.Timelines {
		if err := validate.Struct(tl); err != nil {
			dropped = append(dropped, fmt.Sprintf("timeline %d (%s): %s", i, tl.ID, describe(err)))
			continue
		}
		timelines = append(timelines, tl)
		known[tl.ID] = true
	}
	ds.Timelines = timelines

	packets := ds.Packets[:0]
	for i, p := range ds.Packets {
		switch err := validate.Struct(p); {
		case err != nil:
			dropped = append(dropped, fmt.Sprintf("packet %d: %s", i, describe(err)))
		case math.IsNaN(p.Timestamp) || math.IsInf(p.Timestamp, 0):
			dropped = append(dropped, fmt.Sprintf("packet %d: timestamp is not finite", i))
		case !known[p.ConnectionID]:
			dropped = append(dropped, fmt.Sprintf("packet %d: unknown connection %s", i, p.ConnectionID))
		default:
			packets = append(packets, p)
		}
	}
	ds.Packets = packets

	ds.IndexPackets()
	return dropped
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := e.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		if e.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", field, e.Tag(), e.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", field, e.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
