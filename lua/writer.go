package lua

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/samaelod/flowmap/types"
)

// WriteDataset emits ds as a Lua script ReadDataset can load back. Empty
// lists and zero fields are left out.
func WriteDataset(w io.Writer, ds *types.Dataset) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "local dataset = {}")
	fmt.Fprintln(bw)

	if len(ds.SourceFiles) > 0 {
		fmt.Fprint(bw, "dataset.source_files = {")
		for i, f := range ds.SourceFiles {
			if i > 0 {
				fmt.Fprint(bw, ", ")
			}
			fmt.Fprintf(bw, "%q", f)
		}
		fmt.Fprintln(bw, "}")
	}
	if ds.GeneratedAt != "" {
		fmt.Fprintf(bw, "dataset.generated_at = %q\n", ds.GeneratedAt)
	}
	fmt.Fprintln(bw)

	// Timelines
	fmt.Fprintln(bw, "-- TIMELINES ----------------------------------------")
	fmt.Fprintln(bw, "dataset.timelines = {")
	for _, tl := range ds.Timelines {
		fmt.Fprintln(bw, "\t{")
		fmt.Fprintf(bw, "\t\tid = %q,\n", tl.ID)
		str(bw, 2, "protocol", tl.Protocol)
		str(bw, 2, "protocol_type", tl.ProtocolType)
		writeStages(bw, tl.Stages)
		writeMetrics(bw, tl.Metrics)
		fmt.Fprintln(bw, "\t},")
	}
	fmt.Fprintln(bw, "}")
	fmt.Fprintln(bw)

	// Packets
	fmt.Fprintln(bw, "-- PACKETS ------------------------------------------")
	fmt.Fprintln(bw, "dataset.packets = {")
	for _, p := range ds.Packets {
		fmt.Fprintln(bw, "\t{")
		fmt.Fprintf(bw, "\t\tconnection_id = %q,\n", p.ConnectionID)
		fmt.Fprintf(bw, "\t\tindex = %d,\n", p.Index)
		fmt.Fprintf(bw, "\t\ttimestamp = %s,\n", num(p.Timestamp))
		fmt.Fprintf(bw, "\t\tlength = %d,\n", p.Length)
		ft := p.FiveTuple
		fmt.Fprintf(bw, "\t\tfive_tuple = { src_ip = %q, src_port = %q, dst_ip = %q, dst_port = %q, protocol = %q },\n",
			ft.SrcIP, ft.SrcPort, ft.DstIP, ft.DstPort, ft.Protocol)
		writeHeaders(bw, p.Headers)
		str(bw, 2, "error_type", p.ErrorType)
		fmt.Fprintln(bw, "\t},")
	}
	fmt.Fprintln(bw, "}")
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "return dataset")

	return bw.Flush()
}

func writeStages(w io.Writer, stages []types.StageSpec) {
	if len(stages) == 0 {
		return
	}
	fmt.Fprintln(w, "\t\tstages = {")
	for _, s := range stages {
		fmt.Fprintf(w, "\t\t\t{ key = %q, label = %q, direction = %q, duration_ms = %s", s.Key, s.Label, s.Direction, num(s.DurationMs))
		if s.Color != "" {
			fmt.Fprintf(w, ", color = %q", s.Color)
		}
		if s.Opacity != 0 {
			fmt.Fprintf(w, ", opacity = %s", num(s.Opacity))
		}
		for _, flag := range []struct {
			name string
			set  bool
		}{
			{"blinking", s.Blinking},
			{"spinning", s.Spinning},
			{"pulsing", s.Pulsing},
			{"unreliable", s.Unreliable},
			{"encrypted", s.Encrypted},
		} {
			if flag.set {
				fmt.Fprintf(w, ", %s = true", flag.name)
			}
		}
		fmt.Fprintln(w, " },")
	}
	fmt.Fprintln(w, "\t\t},")
}

func writeMetrics(w io.Writer, m types.Metrics) {
	if m == (types.Metrics{}) {
		return
	}
	fmt.Fprintln(w, "\t\tmetrics = {")
	if m.PacketCount != 0 {
		fmt.Fprintf(w, "\t\t\tpacket_count = %d,\n", m.PacketCount)
	}
	if m.StatusCode != 0 {
		fmt.Fprintf(w, "\t\t\tstatus_code = %d,\n", m.StatusCode)
	}
	if m.RTTMs != 0 {
		fmt.Fprintf(w, "\t\t\trtt_ms = %s,\n", num(m.RTTMs))
	}
	str(w, 3, "resolved_ip", m.ResolvedIP)
	str(w, 3, "attack", m.Attack)
	fmt.Fprintln(w, "\t\t},")
}

func writeHeaders(w io.Writer, h types.Headers) {
	switch {
	case h.TCP != nil && len(h.TCP.Flags) > 0:
		fmt.Fprint(w, "\t\theaders = { tcp = { flags = {")
		for i, f := range h.TCP.Flags {
			if i > 0 {
				fmt.Fprint(w, ", ")
			}
			fmt.Fprintf(w, "%q", f)
		}
		fmt.Fprintln(w, "} } },")
	case h.TCP != nil:
		// flags = {} would decode as a map, not a slice
		fmt.Fprintln(w, "\t\theaders = { tcp = {} },")
	case h.UDP != nil:
		fmt.Fprintf(w, "\t\theaders = { udp = { length = %d } },\n", h.UDP.Length)
	}
}

func str(w io.Writer, indent int, key, value string) {
	if value == "" {
		return
	}
	for i := 0; i < indent; i++ {
		fmt.Fprint(w, "\t")
	}
	fmt.Fprintf(w, "%s = %q,\n", key, value)
}

// num prints the shortest representation that parses back to v.
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
