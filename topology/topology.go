// Package topology turns connection timelines into the node and edge sets
// the layout and the renderer work on.
package topology

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/samaelod/flowmap/types"
)

// Connection ids look like "<protocol>-<srcIp>-<srcPort>-<dstIp>-<dstPort>",
// optionally followed by "-<index>" for repeated attempts.
var connectionIDRegex = regexp.MustCompile(`^(.+?)-([0-9A-Fa-f.:]+)-(\d+)-([0-9A-Fa-f.:]+)-(\d+)(?:-(\d+))?$`)

// ConnectionKey is a parsed connection id. Index is -1 when absent.
type ConnectionKey struct {
	Protocol string
	SrcIP    string
	SrcPort  string
	DstIP    string
	DstPort  string
	Index    int
}

// ParseConnectionID splits id into its endpoints.
func ParseConnectionID(id string) (ConnectionKey, bool) {
	m := connectionIDRegex.FindStringSubmatch(id)
	if m == nil {
		return ConnectionKey{}, false
	}
	k := ConnectionKey{
		Protocol: strings.ToLower(m[1]),
		SrcIP:    m[2],
		SrcPort:  m[3],
		DstIP:    m[4],
		DstPort:  m[5],
		Index:    -1,
	}
	if m[6] != "" {
		k.Index, _ = strconv.Atoi(m[6])
	}
	return k, true
}

// FormatConnectionID is the inverse of ParseConnectionID.
func FormatConnectionID(k ConnectionKey) string {
	id := strings.Join([]string{k.Protocol, k.SrcIP, k.SrcPort, k.DstIP, k.DstPort}, "-")
	if k.Index >= 0 {
		id += "-" + strconv.Itoa(k.Index)
	}
	return id
}

// Node is one endpoint address.
type Node struct {
	ID        string   `json:"id"`
	Label     string   `json:"label"`
	Ports     []string `json:"ports"`
	Protocols []string `json:"protocols"`
	Degree    int      `json:"degree"`
	IsHub     bool     `json:"isHub"`
}

// PrimaryProtocol is the first protocol in sorted order, used for seeding.
func (n Node) PrimaryProtocol() string {
	if len(n.Protocols) == 0 {
		return ""
	}
	return n.Protocols[0]
}

// Edge is one connection between two nodes.
type Edge struct {
	ID           string         `json:"id"`
	Source       string         `json:"source"`
	Target       string         `json:"target"`
	Protocol     string         `json:"protocol"`
	ProtocolType string         `json:"protocolType"`
	Aggregate    string         `json:"aggregate"`
	Timeline     types.Timeline `json:"-"`
}

// Aggregate represents every connection between one unordered node pair.
type Aggregate struct {
	Key           string   `json:"key"`
	Source        string   `json:"source"`
	Target        string   `json:"target"`
	Count         int      `json:"count"`
	StrokeWidth   float64  `json:"strokeWidth"`
	Protocols     []string `json:"protocols"`
	ConnectionIDs []string `json:"connectionIds"`
}

// Drop records a timeline left out of the graph.
type Drop struct {
	ID     string
	Reason string
}

const (
	DropUnparsable = "unparsable"
	DropDuplicate  = "duplicate"
	DropSelfLoop   = "self-loop"

	maxStrokeWidth = 6
)

// Graph is the immutable topology of one dataset.
type Graph struct {
	Nodes      []Node
	Edges      []Edge
	Aggregates []Aggregate
	Hub        string
	Dropped    []Drop

	nodeIndex map[string]int
	edgeIndex map[string]int
}

// Build extracts nodes, edges and aggregates from timelines. Timelines whose
// ids cannot be parsed, repeat an earlier id, or connect an address to
// itself are dropped.
func Build(timelines []types.Timeline) *Graph {
	g := &Graph{
		nodeIndex: make(map[string]int),
		edgeIndex: make(map[string]int),
	}

	ports := map[string]map[string]bool{}
	protos := map[string]map[string]bool{}
	aggIndex := map[string]int{}

	touch := func(ip, port, proto string) {
		if _, ok := g.nodeIndex[ip]; !ok {
			g.nodeIndex[ip] = len(g.Nodes)
			g.Nodes = append(g.Nodes, Node{ID: ip, Label: ip})
			ports[ip] = map[string]bool{}
			protos[ip] = map[string]bool{}
		}
		g.Nodes[g.nodeIndex[ip]].Degree++
		ports[ip][port] = true
		if proto != "" {
			protos[ip][proto] = true
		}
	}

	for _, tl := range timelines {
		key, ok := ParseConnectionID(tl.ID)
		if !ok {
			g.Dropped = append(g.Dropped, Drop{ID: tl.ID, Reason: DropUnparsable})
			continue
		}
		if _, dup := g.edgeIndex[tl.ID]; dup {
			g.Dropped = append(g.Dropped, Drop{ID: tl.ID, Reason: DropDuplicate})
			continue
		}
		if key.SrcIP == key.DstIP {
			g.Dropped = append(g.Dropped, Drop{ID: tl.ID, Reason: DropSelfLoop})
			continue
		}

		proto := strings.ToUpper(tl.Protocol)
		if proto == "" {
			proto = strings.ToUpper(key.Protocol)
		}
		touch(key.SrcIP, key.SrcPort, proto)
		touch(key.DstIP, key.DstPort, proto)

		a, b := key.SrcIP, key.DstIP
		if b < a {
			a, b = b, a
		}
		aggKey := a + "|" + b
		ai, ok := aggIndex[aggKey]
		if !ok {
			ai = len(g.Aggregates)
			aggIndex[aggKey] = ai
			g.Aggregates = append(g.Aggregates, Aggregate{Key: aggKey, Source: a, Target: b})
		}
		agg := &g.Aggregates[ai]
		agg.Count++
		agg.ConnectionIDs = append(agg.ConnectionIDs, tl.ID)
		if !contains(agg.Protocols, proto) {
			agg.Protocols = append(agg.Protocols, proto)
		}

		g.edgeIndex[tl.ID] = len(g.Edges)
		g.Edges = append(g.Edges, Edge{
			ID:           tl.ID,
			Source:       key.SrcIP,
			Target:       key.DstIP,
			Protocol:     strings.ToLower(proto),
			ProtocolType: tl.ProtocolType,
			Aggregate:    aggKey,
			Timeline:     tl,
		})
	}

	for i := range g.Nodes {
		n := &g.Nodes[i]
		n.Ports = sortedKeys(ports[n.ID])
		n.Protocols = sortedKeys(protos[n.ID])
	}
	for i := range g.Aggregates {
		g.Aggregates[i].StrokeWidth = StrokeWidth(g.Aggregates[i].Count)
	}

	g.Hub = selectHub(g.Nodes)
	if g.Hub != "" {
		g.Nodes[g.nodeIndex[g.Hub]].IsHub = true
	}
	return g
}

// selectHub picks the highest-degree node; ties go to the smallest id.
func selectHub(nodes []Node) string {
	hub := ""
	best := -1
	for _, n := range nodes {
		if n.Degree > best || (n.Degree == best && n.ID < hub) {
			hub, best = n.ID, n.Degree
		}
	}
	return hub
}

// StrokeWidth grows logarithmically with the number of aggregated
// connections.
func StrokeWidth(count int) float64 {
	if count <= 1 {
		return 1
	}
	return math.Min(1+math.Log2(float64(count)), maxStrokeWidth)
}

func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.nodeIndex[id]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}

func (g *Graph) Edge(id string) (Edge, bool) {
	i, ok := g.edgeIndex[id]
	if !ok {
		return Edge{}, false
	}
	return g.Edges[i], true
}

// HasEdge reports whether id survived graph construction.
func (g *Graph) HasEdge(id string) bool {
	_, ok := g.edgeIndex[id]
	return ok
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
