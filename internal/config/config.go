// Package config holds the runtime configuration of a scan session.
// Fields may be loaded from a JSON file and overridden by command-line flags.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cell-sweeper/internal/models"
)

type Config struct {
	Slide    SlideConfig    `json:"slide"`
	Scan     ScanConfig     `json:"scan"`
	Detector DetectorConfig `json:"detector"`
	Keys     KeyConfig      `json:"keys"`
	Logging  LoggingConfig  `json:"logging"`
}

type SlideConfig struct {
	Path         string `json:"path"`
	// Region restricts scanning to a sub-rectangle of the slide. A zero
	// width or height means the whole slide.
	RegionX      int    `json:"region_x"`
	RegionY      int    `json:"region_y"`
	RegionW      int    `json:"region_w"`
	RegionH      int    `json:"region_h"`
	CacheRegions int    `json:"cache_regions"`
}

type ScanConfig struct {
	TileEdge      int      `json:"tile_edge"`
	OverviewLevel int      `json:"overview_level"`
	PollInterval  Duration `json:"poll_interval"`
	AutoAdvance   bool     `json:"auto_advance"`
}

// DetectorConfig mirrors the nine trackbar values. Circularity is on the
// 0-100 scale.
type DetectorConfig struct {
	HueMin      int `json:"hue_min"`
	HueMax      int `json:"hue_max"`
	SatMin      int `json:"sat_min"`
	SatMax      int `json:"sat_max"`
	ValMin      int `json:"val_min"`
	ValMax      int `json:"val_max"`
	AreaMin     int `json:"area_min"`
	AreaMax     int `json:"area_max"`
	Circularity int `json:"circularity"`
}

type KeyConfig struct {
	Quit     int `json:"quit"`
	Backward int `json:"backward"`
	Forward  int `json:"forward"`
}

type LoggingConfig struct {
	Level string `json:"level"`
	JSON  bool   `json:"json"`
}

// Duration is a time.Duration that reads and writes as "100ms" in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if err2 := json.Unmarshal(b, &n); err2 != nil {
			return fmt.Errorf("duration must be a string like \"100ms\": %w", err)
		}
		*d = Duration(time.Duration(n) * time.Millisecond)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns a Config populated with standard defaults.
func Default() *Config {
	p := models.DefaultDetectorParams()
	return &Config{
		Slide: SlideConfig{CacheRegions: 32},
		Scan: ScanConfig{
			TileEdge:      1024,
			OverviewLevel: 7,
			PollInterval:  Duration(100 * time.Millisecond),
			AutoAdvance:   true,
		},
		Detector: FromParams(p),
		Keys:     KeyConfig{Quit: 27, Backward: 49, Forward: 50},
		Logging:  LoggingConfig{Level: "info"},
	}
}

// LoadFromFile reads configuration from a JSON file on top of Default.
// A missing file yields the defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to path in indented JSON.
func (c *Config) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

// Validate reports the first invalid value.
func (c *Config) Validate() error {
	if c.Slide.Path == "" {
		return models.NewValidationError("slide.path", c.Slide.Path, "slide path is required")
	}
	if c.Slide.RegionW < 0 || c.Slide.RegionH < 0 {
		return models.NewValidationError("slide.region", fmt.Sprintf("%dx%d", c.Slide.RegionW, c.Slide.RegionH), "region size cannot be negative")
	}
	if c.Slide.CacheRegions < 0 {
		return models.NewValidationError("slide.cache_regions", c.Slide.CacheRegions, "cache size cannot be negative")
	}
	if c.Scan.TileEdge <= 0 {
		return models.NewValidationError("scan.tile_edge", c.Scan.TileEdge, "tile edge must be positive")
	}
	if c.Scan.OverviewLevel < 0 {
		return models.NewValidationError("scan.overview_level", c.Scan.OverviewLevel, "level cannot be negative")
	}
	if c.Scan.PollInterval <= 0 {
		return models.NewValidationError("scan.poll_interval", time.Duration(c.Scan.PollInterval).String(), "poll interval must be positive")
	}
	if c.Keys.Quit == c.Keys.Backward || c.Keys.Quit == c.Keys.Forward || c.Keys.Backward == c.Keys.Forward {
		return models.NewValidationError("keys", c.Keys, "quit, backward and forward keys must differ")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return models.NewValidationError("logging.level", c.Logging.Level, "unknown log level")
	}

	_, err := c.Detector.Params()
	return err
}

// FromParams converts detector parameters to their integer trackbar form.
func FromParams(p models.DetectorParams) DetectorConfig {
	circ, _ := p.Value(models.ParamCircularity)
	return DetectorConfig{
		HueMin: p.Low.H, HueMax: p.High.H,
		SatMin: p.Low.S, SatMax: p.High.S,
		ValMin: p.Low.V, ValMax: p.High.V,
		AreaMin: p.AreaMin, AreaMax: p.AreaMax,
		Circularity: circ,
	}
}

// Params validates the values and returns them as detector parameters.
func (d DetectorConfig) Params() (models.DetectorParams, error) {
	dc := models.NewDetectorConfiguration(models.DefaultDetectorParams())
	values := map[string]int{
		models.ParamHueMin:      d.HueMin,
		models.ParamHueMax:      d.HueMax,
		models.ParamSatMin:      d.SatMin,
		models.ParamSatMax:      d.SatMax,
		models.ParamValMin:      d.ValMin,
		models.ParamValMax:      d.ValMax,
		models.ParamAreaMin:     d.AreaMin,
		models.ParamAreaMax:     d.AreaMax,
		models.ParamCircularity: d.Circularity,
	}
	for _, spec := range models.ParameterSpecs() {
		if err := dc.Update(spec.Name, values[spec.Name]); err != nil {
			return models.DetectorParams{}, err
		}
	}
	return dc.Snapshot(), nil
}
