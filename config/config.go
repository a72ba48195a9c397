package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure returned by Load.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	LogLines  int    `json:"log_lines" yaml:"log_lines" validate:"gte=1"`
	LogLevel  string `json:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	LogsDir   string `json:"logs_dir" yaml:"logs_dir" validate:"required"`
	RecentDir string `json:"recent_dir" yaml:"recent_dir" validate:"required"`
	TPS       int    `json:"tps" yaml:"tps" validate:"gte=1,lte=240"`

	Canvas    Canvas    `json:"canvas" yaml:"canvas"`
	Playback  Playback  `json:"playback" yaml:"playback"`
	Layout    Layout    `json:"layout" yaml:"layout"`
	Particles Particles `json:"particles" yaml:"particles"`
	Stream    Stream    `json:"stream" yaml:"stream"`
}

type Canvas struct {
	Width   float64 `json:"width" yaml:"width" validate:"gt=0"`
	Height  float64 `json:"height" yaml:"height" validate:"gt=0"`
	Padding float64 `json:"padding" yaml:"padding" validate:"gte=0"` // 0 derives from the canvas size
}

type Playback struct {
	Speed            float64 `json:"speed" yaml:"speed" validate:"gt=0,lte=10"`
	DiagramSpeed     float64 `json:"diagram_speed" yaml:"diagram_speed" validate:"gt=0,lte=10"`
	Loop             bool    `json:"loop" yaml:"loop"`
	MasterDurationMs float64 `json:"master_duration_ms" yaml:"master_duration_ms" validate:"gt=0"`
	MaxDeltaMs       float64 `json:"max_delta_ms" yaml:"max_delta_ms" validate:"gt=0"`
	LoopHoldMs       float64 `json:"loop_hold_ms" yaml:"loop_hold_ms" validate:"gte=0"`
	StepMs           float64 `json:"step_ms" yaml:"step_ms" validate:"gt=0"`
}

type Layout struct {
	PreStabilizeIterations int     `json:"pre_stabilize_iterations" yaml:"pre_stabilize_iterations" validate:"gte=0"`
	Damping                float64 `json:"damping" yaml:"damping" validate:"gt=0,lt=1"`
	SpringStrength         float64 `json:"spring_strength" yaml:"spring_strength" validate:"gt=0"`
	StableThreshold        float64 `json:"stable_threshold" yaml:"stable_threshold" validate:"gte=0"` // 0 derives from the canvas size
	Seed                   int64   `json:"seed" yaml:"seed"`
}

type Particles struct {
	MinTravelMs float64 `json:"min_travel_ms" yaml:"min_travel_ms" validate:"gt=0"`
	MaxTravelMs float64 `json:"max_travel_ms" yaml:"max_travel_ms" validate:"gtefield=MinTravelMs"`
	ShowLabels  bool    `json:"show_labels" yaml:"show_labels"`
}

type Stream struct {
	Addr string `json:"addr" yaml:"addr" validate:"required"`
}

var (
	defaultConfig *Config
	defaultPath   string
	once          sync.Once

	validate = validator.New()
)

func Default() *Config {
	return &Config{
		LogLines:  1000,
		LogLevel:  "info",
		LogsDir:   "logs",
		RecentDir: "recent",
		TPS:       30,
		Canvas: Canvas{
			Width:  1000,
			Height: 1000,
		},
		Playback: Playback{
			Speed:            1,
			DiagramSpeed:     1,
			Loop:             true,
			MasterDurationMs: 20000,
			MaxDeltaMs:       100,
			LoopHoldMs:       800,
			StepMs:           500,
		},
		Layout: Layout{
			PreStabilizeIterations: 300,
			Damping:                0.6,
			SpringStrength:         0.05,
		},
		Particles: Particles{
			MinTravelMs: 100,
			MaxTravelMs: 1000,
			ShowLabels:  true,
		},
		Stream: Stream{
			Addr: ":8080",
		},
	}
}

// searchPaths are tried in order when Load is given no path.
func searchPaths() []string {
	home := os.Getenv("HOME")
	return []string{
		"flowmap.json",
		"flowmap.yaml",
		".flowmap.yaml",
		filepath.Join(home, ".config", "flowmap", "config.json"),
		filepath.Join(home, ".config", "flowmap", "config.yaml"),
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, p := range searchPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}

		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.backfill()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// backfill applies defaults for any zero values.
func (c *Config) backfill() {
	d := Default()
	setInt(&c.LogLines, d.LogLines)
	setInt(&c.TPS, d.TPS)
	setString(&c.LogLevel, d.LogLevel)
	setString(&c.LogsDir, d.LogsDir)
	setString(&c.RecentDir, d.RecentDir)
	setString(&c.Stream.Addr, d.Stream.Addr)
	c.LogLevel = strings.ToLower(c.LogLevel)

	setFloat(&c.Canvas.Width, d.Canvas.Width)
	setFloat(&c.Canvas.Height, d.Canvas.Height)

	setFloat(&c.Playback.Speed, d.Playback.Speed)
	setFloat(&c.Playback.DiagramSpeed, d.Playback.DiagramSpeed)
	setFloat(&c.Playback.MasterDurationMs, d.Playback.MasterDurationMs)
	setFloat(&c.Playback.MaxDeltaMs, d.Playback.MaxDeltaMs)
	setFloat(&c.Playback.StepMs, d.Playback.StepMs)

	setFloat(&c.Layout.Damping, d.Layout.Damping)
	setFloat(&c.Layout.SpringStrength, d.Layout.SpringStrength)

	setFloat(&c.Particles.MinTravelMs, d.Particles.MinTravelMs)
	setFloat(&c.Particles.MaxTravelMs, d.Particles.MaxTravelMs)
}

func setInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func setFloat(v *float64, def float64) {
	if *v == 0 {
		*v = def
	}
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

// Validate checks the struct tags and flattens failures to "Field: reason".
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := strings.TrimPrefix(e.Namespace(), "Config.")
	switch e.Tag() {
	case "required":
		return field + ": field is required"
	case "gt", "gte":
		return fmt.Sprintf("%s: must be at least %s", field, e.Param())
	case "lt", "lte":
		return fmt.Sprintf("%s: must not exceed %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s: must be one of %s", field, e.Param())
	default:
		return fmt.Sprintf("%s: validation failed (%s)", field, e.Tag())
	}
}

// UseFile makes LoadDefault read path instead of searching. It has no
// effect once LoadDefault has run.
func UseFile(path string) {
	defaultPath = path
}

// LoadDefault loads the config once and caches it
func LoadDefault() (*Config, error) {
	var err error
	once.Do(func() {
		defaultConfig, err = Load(defaultPath)
	})
	if err != nil {
		return Default(), err
	}
	if defaultConfig == nil {
		return Default(), nil
	}
	return defaultConfig, nil
}
