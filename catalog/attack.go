package catalog

import (
	"image/color"
	"sort"
)

type ThreatLevel int

const (
	ThreatLow ThreatLevel = iota
	ThreatMedium
	ThreatHigh
)

func (t ThreatLevel) String() string {
	switch t {
	case ThreatHigh:
		return "high"
	case ThreatMedium:
		return "medium"
	default:
		return "low"
	}
}

// AttackType describes an error/attack label a packet may carry.
// Lower Priority sorts first.
type AttackType struct {
	Name        string
	Description string
	Threat      ThreatLevel
	Priority    int
	Color       color.NRGBA
}

const NormalTraffic = "Normal Traffic"

var attackTypes = map[string]AttackType{
	"URG-PSH-FIN Attack": {Description: "Abnormal flag combination: URG, PSH and FIN set together", Threat: ThreatHigh, Priority: 1, Color: color.NRGBA{0xe8, 0x79, 0xf9, 0xff}},
	"SYN Flood":          {Description: "Flood of half-open TCP connection attempts", Threat: ThreatHigh, Priority: 2, Color: color.NRGBA{0xf8, 0x71, 0x71, 0xff}},
	"PSH Flood":          {Description: "Flood forcing the receiver to process data immediately", Threat: ThreatHigh, Priority: 3, Color: color.NRGBA{0xf4, 0x72, 0xb6, 0xff}},
	"FIN Flood":          {Description: "Flood of FIN packets tearing down connections", Threat: ThreatHigh, Priority: 4, Color: color.NRGBA{0xf8, 0x71, 0x71, 0xff}},
	"RST Attack":         {Description: "Forced reset of established connections", Threat: ThreatMedium, Priority: 5, Color: color.NRGBA{0xfb, 0xbf, 0x24, 0xff}},
	"ACK Flood":          {Description: "Flood of ACK packets exhausting resources", Threat: ThreatHigh, Priority: 6, Color: color.NRGBA{0xfb, 0x92, 0x3c, 0xff}},
	"High Volume Attack": {Description: "Abnormally large traffic volume", Threat: ThreatMedium, Priority: 7, Color: color.NRGBA{0xfb, 0x92, 0x3c, 0xff}},
	"Suspicious Traffic": {Description: "Unusual pattern not confirmed as an attack", Threat: ThreatMedium, Priority: 8, Color: color.NRGBA{0xfa, 0xcc, 0x15, 0xff}},
	NormalTraffic:        {Description: "Normal traffic", Threat: ThreatLow, Priority: 9, Color: color.NRGBA{0x34, 0xd3, 0x99, 0xff}},
}

// LookupAttack returns the named attack type, or Normal Traffic.
func LookupAttack(name string) AttackType {
	a, ok := attackTypes[name]
	if !ok {
		name = NormalTraffic
		a = attackTypes[NormalTraffic]
	}
	a.Name = name
	return a
}

// IsAttack reports whether name is a known attack label.
func IsAttack(name string) bool {
	_, ok := attackTypes[name]
	return ok && name != NormalTraffic
}

func IsHighThreat(name string) bool {
	return IsAttack(name) && attackTypes[name].Threat == ThreatHigh
}

// AllAttackTypes lists every attack type ordered by priority.
func AllAttackTypes() []AttackType {
	out := make([]AttackType, 0, len(attackTypes))
	for name, a := range attackTypes {
		a.Name = name
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}
