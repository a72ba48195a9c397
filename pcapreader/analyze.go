package pcapreader

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/google/gopacket/layers"

	"github.com/samaelod/flowmap/types"
)

const (
	// FloodThreshold is the number of handshake-less SYNs from one source
	// to one service that is folded into a single flood connection.
	FloodThreshold = 100

	// TimeoutGapSec is the silence inside a TCP flow that marks a timeout.
	TimeoutGapSec = 3.0

	protoTCP  = "TCP"
	protoUDP  = "UDP"
	protoICMP = "ICMP"

	attackSYNFlood = "SYN Flood"
)

type packet struct {
	index            int
	ts               float64
	length           int
	srcIP, dstIP     string
	srcPort, dstPort int
	proto            string

	syn, ack, fin, rst bool
	flags              []string
	payload            []byte

	udpLength   int
	dnsResponse bool
	resolvedIP  string

	icmpType uint8
}

type flowKey struct {
	proto            string
	srcIP, dstIP     string
	srcPort, dstPort int
}

func (k flowKey) reverse() flowKey {
	return flowKey{proto: k.proto, srcIP: k.dstIP, dstIP: k.srcIP, srcPort: k.dstPort, dstPort: k.srcPort}
}

// id renders the key with a protocol prefix in connection id form.
func (k flowKey) id(prefix string) string {
	return fmt.Sprintf("%s-%s-%d-%s-%d", prefix, k.srcIP, k.srcPort, k.dstIP, k.dstPort)
}

// flow is every packet exchanged between two endpoints. key is oriented
// from the initiator.
type flow struct {
	key     flowKey
	packets []*packet

	// capture indices of the handshake packets, -1 until seen
	synIdx, synAckIdx, ackIdx int

	syns    int
	finPos  int // position in packets of the first FIN
	replied bool
}

func newFlow(k flowKey) *flow {
	return &flow{key: k, synIdx: -1, synAckIdx: -1, ackIdx: -1, finPos: -1}
}

func (f *flow) handshake() bool {
	return f.synIdx >= 0 && f.synAckIdx >= 0 && f.ackIdx >= 0
}

func (f *flow) fromInitiator(p *packet) bool {
	return p.srcIP == f.key.srcIP && p.srcPort == f.key.srcPort
}

// flowTable keeps flows in order of first appearance.
type flowTable struct {
	flows []*flow
	index map[flowKey]*flow
}

func (t *flowTable) lookup(k flowKey) (*flow, bool) {
	if f, ok := t.index[k]; ok {
		return f, true
	}
	f, ok := t.index[k.reverse()]
	return f, ok
}

func (t *flowTable) add(k flowKey) *flow {
	if t.index == nil {
		t.index = make(map[flowKey]*flow)
	}
	f := newFlow(k)
	t.index[k] = f
	t.flows = append(t.flows, f)
	return f
}

// analyze groups packets into flows and classifies each flow into one or
// more connection timelines.
func analyze(pkts []packet) *types.Dataset {
	var tcp, udp, icmp flowTable

	for i := range pkts {
		p := &pkts[i]
		k := flowKey{proto: p.proto, srcIP: p.srcIP, dstIP: p.dstIP, srcPort: p.srcPort, dstPort: p.dstPort}
		switch p.proto {
		case protoTCP:
			f, ok := tcp.lookup(k)
			if !ok {
				if p.syn && p.ack {
					k = k.reverse()
				}
				f = tcp.add(k)
			}
			trackTCP(f, p)
		case protoUDP:
			f, ok := udp.lookup(k)
			if !ok {
				f = udp.add(k)
			}
			f.packets = append(f.packets, p)
		case protoICMP:
			// echo pairs are keyed by address only
			k.srcPort, k.dstPort = 0, 0
			f, ok := icmp.lookup(k)
			if !ok {
				if p.icmpType == layers.ICMPv4TypeEchoReply {
					k = k.reverse()
				}
				f = icmp.add(k)
			}
			f.packets = append(f.packets, p)
		}
	}

	b := &builder{}
	floods := b.floods(tcp.flows)
	for _, f := range tcp.flows {
		if floods[f] {
			continue
		}
		b.tcp(f)
	}
	for _, f := range udp.flows {
		b.udp(f)
	}
	for _, f := range icmp.flows {
		b.icmp(f)
	}

	sort.SliceStable(b.ds.Packets, func(i, j int) bool { return b.ds.Packets[i].Index < b.ds.Packets[j].Index })
	b.ds.IndexPackets()
	return &b.ds
}

func trackTCP(f *flow, p *packet) {
	pos := len(f.packets)
	f.packets = append(f.packets, p)
	if !f.fromInitiator(p) {
		f.replied = true
	}
	switch {
	case p.syn && !p.ack:
		f.syns++
		if f.synIdx < 0 {
			f.synIdx = p.index
		}
	case p.syn && p.ack:
		if f.synIdx >= 0 && f.synAckIdx < 0 {
			f.synAckIdx = p.index
		}
	case p.ack && f.synAckIdx >= 0 && f.ackIdx < 0 && f.fromInitiator(p):
		f.ackIdx = p.index
	}
	if p.fin && f.finPos < 0 {
		f.finPos = pos
	}
}

type builder struct {
	ds types.Dataset
}

func (b *builder) add(tl types.Timeline) {
	b.ds.Timelines = append(b.ds.Timelines, tl)
}

func (b *builder) assign(p *packet, id string) {
	b.ds.Packets = append(b.ds.Packets, p.record(id))
}

type floodKey struct {
	srcIP, dstIP string
	dstPort      int
}

// floods folds unanswered SYN-only flows into one flood connection per
// source and service once they reach FloodThreshold SYNs.
func (b *builder) floods(flows []*flow) map[*flow]bool {
	groups := map[floodKey][]*flow{}
	var order []floodKey
	for _, f := range flows {
		if f.syns == 0 || f.replied || f.synAckIdx >= 0 {
			continue
		}
		k := floodKey{f.key.srcIP, f.key.dstIP, f.key.dstPort}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], f)
	}

	folded := map[*flow]bool{}
	for _, k := range order {
		syns := 0
		for _, f := range groups[k] {
			syns += f.syns
		}
		if syns < FloodThreshold {
			continue
		}
		id := flowKey{srcIP: k.srcIP, dstIP: k.dstIP, dstPort: k.dstPort}.id("flood")
		count := 0
		for _, f := range groups[k] {
			folded[f] = true
			for _, p := range f.packets {
				rec := p.record(id)
				rec.ErrorType = attackSYNFlood
				b.ds.Packets = append(b.ds.Packets, rec)
				count++
			}
		}
		b.add(types.Timeline{
			ID:           id,
			Protocol:     protoTCP,
			ProtocolType: "flood",
			Metrics:      types.Metrics{PacketCount: count, Attack: attackSYNFlood},
		})
	}
	return folded
}

// tcp emits the handshake, application, teardown and timeout timelines of a
// flow. Each packet is attributed to exactly one of them.
func (b *builder) tcp(f *flow) {
	k := f.key

	if f.syns > 0 && !f.replied {
		id := k.id("timeout")
		b.add(types.Timeline{ID: id, Protocol: protoTCP, ProtocolType: "timeout", Metrics: types.Metrics{PacketCount: len(f.packets)}})
		for _, p := range f.packets {
			b.assign(p, id)
		}
		return
	}

	var handshakeID, appID, teardownID string
	if f.handshake() {
		handshakeID = k.id("tcp")
		syn, ack := f.byIndex(f.synIdx), f.byIndex(f.ackIdx)
		b.add(types.Timeline{
			ID:           handshakeID,
			Protocol:     protoTCP,
			ProtocolType: "tcp-handshake",
			Metrics:      types.Metrics{PacketCount: 3, RTTMs: math.Max(1, (ack.ts-syn.ts)*1000)},
		})
	}

	if app, ok := classifyApp(k.dstPort); ok && f.hasPayload() {
		appID = k.id(app.prefix)
		b.add(types.Timeline{
			ID:           appID,
			Protocol:     app.protocol,
			ProtocolType: app.kind,
			Metrics:      types.Metrics{PacketCount: len(f.packets), StatusCode: f.statusCode()},
		})
	}

	if f.finPos >= 0 {
		teardownID = k.id("teardown")
		b.add(types.Timeline{
			ID:           teardownID,
			Protocol:     protoTCP,
			ProtocolType: "tcp-teardown",
			Metrics:      types.Metrics{PacketCount: len(f.packets) - f.finPos},
		})
	}

	for i := 1; i < len(f.packets); i++ {
		prev, cur := f.packets[i-1], f.packets[i]
		if cur.ts-prev.ts > TimeoutGapSec {
			b.add(types.Timeline{
				ID:           k.id("timeout") + "-" + strconv.Itoa(cur.index),
				Protocol:     protoTCP,
				ProtocolType: "timeout",
				Metrics:      types.Metrics{PacketCount: i},
			})
		}
	}

	fallback := firstNonEmpty(appID, handshakeID, teardownID)
	if fallback == "" {
		fallback = k.id("tcp")
		b.add(types.Timeline{ID: fallback, Protocol: protoTCP, ProtocolType: "unknown", Metrics: types.Metrics{PacketCount: len(f.packets)}})
	}

	for pos, p := range f.packets {
		id := fallback
		switch {
		case handshakeID != "" && (p.index == f.synIdx || p.index == f.synAckIdx || p.index == f.ackIdx):
			id = handshakeID
		case teardownID != "" && pos >= f.finPos:
			id = teardownID
		}
		b.assign(p, id)
	}
}

func (f *flow) byIndex(index int) *packet {
	for _, p := range f.packets {
		if p.index == index {
			return p
		}
	}
	return f.packets[0]
}

func (f *flow) hasPayload() bool {
	for _, p := range f.packets {
		if len(p.payload) > 0 {
			return true
		}
	}
	return false
}

var httpStatusPrefix = []byte("HTTP/1.")

// statusCode returns the first HTTP status line the responder sent.
func (f *flow) statusCode() int {
	for _, p := range f.packets {
		if f.fromInitiator(p) || !bytes.HasPrefix(p.payload, httpStatusPrefix) {
			continue
		}
		fields := bytes.Fields(p.payload)
		if len(fields) < 2 {
			continue
		}
		if code, err := strconv.Atoi(string(fields[1])); err == nil {
			return code
		}
	}
	return 0
}

type appProtocol struct {
	prefix, protocol, kind string
}

func classifyApp(port int) (appProtocol, bool) {
	switch port {
	case 80, 8080:
		return appProtocol{"http", "HTTP", "http-request"}, true
	case 443, 8443:
		return appProtocol{"https", "HTTPS", "https-request"}, true
	case 22:
		return appProtocol{"ssh", "SSH", "ssh-secure"}, true
	}
	return appProtocol{}, false
}

func (b *builder) udp(f *flow) {
	k := f.key
	tl := types.Timeline{
		ID:           k.id("udp"),
		Protocol:     protoUDP,
		ProtocolType: "udp-transfer",
		Metrics:      types.Metrics{PacketCount: len(f.packets)},
	}
	if k.srcPort == 53 || k.dstPort == 53 {
		tl.Protocol = "DNS"
		tl.ProtocolType = "dns-query"
		for _, p := range f.packets {
			if p.dnsResponse && p.resolvedIP != "" {
				tl.Metrics.ResolvedIP = p.resolvedIP
				break
			}
		}
	}
	b.add(tl)
	for _, p := range f.packets {
		b.assign(p, tl.ID)
	}
}

func (b *builder) icmp(f *flow) {
	tl := types.Timeline{
		ID:           f.key.id("icmp"),
		Protocol:     protoICMP,
		ProtocolType: "icmp-ping",
		Metrics:      types.Metrics{PacketCount: len(f.packets)},
	}
	var request *packet
	for _, p := range f.packets {
		switch {
		case request == nil && p.icmpType == layers.ICMPv4TypeEchoRequest:
			request = p
		case request != nil && p.icmpType == layers.ICMPv4TypeEchoReply:
			tl.Metrics.RTTMs = (p.ts - request.ts) * 1000
		}
		if tl.Metrics.RTTMs > 0 {
			break
		}
	}
	b.add(tl)
	for _, p := range f.packets {
		b.assign(p, tl.ID)
	}
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
