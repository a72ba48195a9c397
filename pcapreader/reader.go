package pcapreader

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"

	"github.com/samaelod/flowmap/types"
)

type packetSource interface {
	LinkType() layers.LinkType
	ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error)
	Close()
}

type packetDataSource struct {
	src      packetSource
	linkType layers.LinkType
}

func (p *packetDataSource) LinkType() layers.LinkType {
	return p.linkType
}

func (p *packetDataSource) ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error) {
	return p.src.ReadPacketData()
}

func detectFormat(path string) (format string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	// Read first 4 bytes to check magic
	header := make([]byte, 4)
	n, err := file.Read(header)
	if err != nil || n < 4 {
		return "pcap", nil // Default to pcap
	}

	magic := uint32(header[0]) | uint32(header[1])<<8 | uint32(header[2])<<16 | uint32(header[3])<<24
	switch magic {
	case 0x0A0D0D0A: // pcapng Section Header Block
		return "pcapng", nil
	case 0xA1B2C3D4, 0xD4C3B2A1, 0xA1B23C4D, 0x4D3CB2A1:
		return "pcap", nil
	}

	// Default to pcap
	return "pcap", nil
}

func openPacketSource(path string) (packetSource, error) {
	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}

	if format == "pcapng" {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		reader, err := pcapgo.NewNgReader(file, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			file.Close()
			return nil, err
		}
		return &pcapngSource{reader: reader, file: file}, nil
	}

	// Classic pcap
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, err
	}
	return &pcapSource{handle: handle}, nil
}

type pcapSource struct {
	handle *pcap.Handle
}

func (p *pcapSource) LinkType() layers.LinkType {
	return p.handle.LinkType()
}

func (p *pcapSource) ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error) {
	data, ci, err = p.handle.ReadPacketData()
	return
}

func (p *pcapSource) Close() { p.handle.Close() }

type pcapngSource struct {
	reader *pcapgo.NgReader
	file   *os.File
}

func (p *pcapngSource) LinkType() layers.LinkType {
	return p.reader.LinkType()
}

func (p *pcapngSource) ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error) {
	return p.reader.ReadPacketData()
}

func (p *pcapngSource) Close() { p.file.Close() }

// ReadPCAP decodes a pcap or pcapng capture and classifies its traffic into
// connection timelines.
func ReadPCAP(path string) (*types.Dataset, error) {
	source, err := openPacketSource(path)
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", path, err)
	}
	defer source.Close()

	ds := &packetDataSource{src: source, linkType: source.LinkType()}
	packetSrc := gopacket.NewPacketSource(ds, ds.LinkType())

	var pkts []packet
	index, skipped := 0, 0
	for p := range packetSrc.Packets() {
		index++
		decoded, ok := decode(p, index)
		if !ok {
			skipped++
			continue
		}
		pkts = append(pkts, decoded)
	}
	if skipped > 0 {
		log.Printf("pcapreader: %s: skipped %d of %d packets without IP/TCP/UDP/ICMP", path, skipped, index)
	}

	dataset := analyze(pkts)
	dataset.SourceFiles = []string{filepath.Base(path)}
	dataset.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	return dataset, nil
}

// decode extracts the fields the analyzer needs. Packets without a
// transport the analyzer understands are rejected.
func decode(p gopacket.Packet, index int) (packet, bool) {
	net := p.NetworkLayer()
	if net == nil {
		return packet{}, false
	}

	out := packet{index: index, length: p.Metadata().Length}
	if out.length == 0 {
		out.length = len(p.Data())
	}
	ts := p.Metadata().Timestamp
	out.ts = float64(ts.UnixNano()) / float64(time.Second)

	// Extract IP addresses properly based on layer type
	switch ip := net.(type) {
	case *layers.IPv4:
		out.srcIP, out.dstIP = ip.SrcIP.String(), ip.DstIP.String()
	case *layers.IPv6:
		out.srcIP, out.dstIP = ip.SrcIP.String(), ip.DstIP.String()
	default:
		out.srcIP = net.NetworkFlow().Src().String()
		out.dstIP = net.NetworkFlow().Dst().String()
	}

	if l := p.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		out.proto = protoTCP
		out.srcPort, out.dstPort = int(tcp.SrcPort), int(tcp.DstPort)
		out.syn, out.ack, out.fin, out.rst = tcp.SYN, tcp.ACK, tcp.FIN, tcp.RST
		out.flags = tcpFlags(tcp)
		out.payload = tcp.Payload
		return out, true
	}

	if l := p.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		out.proto = protoUDP
		out.srcPort, out.dstPort = int(udp.SrcPort), int(udp.DstPort)
		out.udpLength = int(udp.Length)
		if dl := p.Layer(layers.LayerTypeDNS); dl != nil {
			dns := dl.(*layers.DNS)
			out.dnsResponse = dns.QR
			for _, a := range dns.Answers {
				if (a.Type == layers.DNSTypeA || a.Type == layers.DNSTypeAAAA) && a.IP != nil {
					out.resolvedIP = a.IP.String()
					break
				}
			}
		}
		return out, true
	}

	if l := p.Layer(layers.LayerTypeICMPv4); l != nil {
		icmp := l.(*layers.ICMPv4)
		out.proto = protoICMP
		out.icmpType = icmp.TypeCode.Type()
		return out, true
	}

	return packet{}, false
}

func tcpFlags(tcp *layers.TCP) []string {
	var flags []string
	for _, f := range []struct {
		set  bool
		name string
	}{
		{tcp.SYN, "SYN"},
		{tcp.ACK, "ACK"},
		{tcp.FIN, "FIN"},
		{tcp.RST, "RST"},
		{tcp.PSH, "PSH"},
		{tcp.URG, "URG"},
	} {
		if f.set {
			flags = append(flags, f.name)
		}
	}
	return flags
}

func (p packet) record(connectionID string) types.PacketRecord {
	rec := types.PacketRecord{
		ConnectionID: connectionID,
		Index:        p.index,
		Timestamp:    p.ts,
		Length:       p.length,
		FiveTuple: types.FiveTuple{
			SrcIP:    p.srcIP,
			SrcPort:  strconv.Itoa(p.srcPort),
			DstIP:    p.dstIP,
			DstPort:  strconv.Itoa(p.dstPort),
			Protocol: p.proto,
		},
	}
	switch p.proto {
	case protoTCP:
		rec.Headers.TCP = &types.TCPHeader{Flags: p.flags}
	case protoUDP:
		rec.Headers.UDP = &types.UDPHeader{Length: p.udpLength}
	}
	return rec
}
