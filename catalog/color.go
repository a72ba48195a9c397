package catalog

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

var (
	ColorBlue    = color.NRGBA{0x3b, 0x82, 0xf6, 0xff}
	ColorGreen   = color.NRGBA{0x10, 0xb9, 0x81, 0xff}
	ColorAmber   = color.NRGBA{0xf5, 0x9e, 0x0b, 0xff}
	ColorOrange  = color.NRGBA{0xf9, 0x73, 0x16, 0xff}
	ColorRed     = color.NRGBA{0xef, 0x44, 0x44, 0xff}
	ColorGold    = color.NRGBA{0xfb, 0xbf, 0x24, 0xff}
	ColorCyan    = color.NRGBA{0x06, 0xb6, 0xd4, 0xff}
	ColorViolet  = color.NRGBA{0x8b, 0x5c, 0xf6, 0xff}
	ColorSky     = color.NRGBA{0x60, 0xa5, 0xfa, 0xff}
	ColorSnow    = color.NRGBA{0xf8, 0xfa, 0xfc, 0xff}
	ColorSlate   = color.NRGBA{0x6b, 0x72, 0x80, 0xff}
	ColorEmerald = color.NRGBA{0x22, 0xc5, 0x5e, 0xff}
	ColorPurple  = color.NRGBA{0xa8, 0x55, 0xf7, 0xff}
)

var protocolColors = map[string]color.NRGBA{
	"tcp":   {0x38, 0xbd, 0xf8, 0xff},
	"udp":   {0x60, 0xa5, 0xfa, 0xff},
	"http":  {0xa8, 0x55, 0xf7, 0xff},
	"https": {0x14, 0xb8, 0xa6, 0xff},
	"dns":   {0xf9, 0x73, 0x16, 0xff},
	"icmp":  {0xfa, 0xcc, 0x15, 0xff},
	"ssh":   {0xfb, 0xbf, 0x24, 0xff},
	"tls":   {0xfb, 0xbf, 0x24, 0xff},
}

// ProtocolColor returns the palette color of a plain protocol name, falling
// back to slate.
func ProtocolColor(protocol string) color.NRGBA {
	if c, ok := protocolColors[strings.ToLower(protocol)]; ok {
		return c
	}
	return ColorSlate
}

// ParseColor accepts "#rgb", "#rrggbb", "#rrggbbaa" and "transparent".
func ParseColor(s string) (color.NRGBA, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "transparent" {
		return color.NRGBA{}, true
	}
	if !strings.HasPrefix(s, "#") {
		return color.NRGBA{}, false
	}
	s = s[1:]
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) == 6 {
		s += "ff"
	}
	if len(s) != 8 {
		return color.NRGBA{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, false
	}
	return color.NRGBA{uint8(v >> 24), uint8(v >> 16), uint8(v >> 8), uint8(v)}, true
}

// Hex formats c as "#rrggbb", or "#rrggbbaa" when it is not fully opaque.
func Hex(c color.NRGBA) string {
	if c.A == 0xff {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// IsSet reports whether c was given at all; the zero value means "unset".
func IsSet(c color.NRGBA) bool {
	return c != color.NRGBA{}
}

// Lerp interpolates each channel linearly, t clamped to [0,1].
func Lerp(a, b color.NRGBA, t float64) color.NRGBA {
	t = math.Max(0, math.Min(1, t))
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t))
	}
	return color.NRGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), mix(a.A, b.A)}
}

// Gradient samples evenly spaced color stops at t in [0,1].
func Gradient(stops []color.NRGBA, t float64) color.NRGBA {
	switch len(stops) {
	case 0:
		return color.NRGBA{}
	case 1:
		return stops[0]
	}
	if math.IsNaN(t) || t <= 0 {
		return stops[0]
	}
	if t >= 1 {
		return stops[len(stops)-1]
	}
	pos := t * float64(len(stops)-1)
	i := int(math.Floor(pos))
	return Lerp(stops[i], stops[i+1], pos-float64(i))
}
