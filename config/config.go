// Package config loads maskview settings from YAML files.
package config

import (
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/maskview"
	"github.com/gogpu/maskview/rle"
)

// Config is the top-level maskview configuration.
//
// Fill is #rgb, #rrggbb or #rrggbbaa. Overlap is "recheck" or "refcount".
// Workers 0 selects GOMAXPROCS.
type Config struct {
	Categories      []string `yaml:"categories"`
	Hidden          []string `yaml:"hidden"`
	Fill            string   `yaml:"fill"`
	BatchSize       int      `yaml:"batch_size"`
	Workers         int      `yaml:"workers"`
	Overlap         string   `yaml:"overlap"`
	VerifyHashes    *bool    `yaml:"verify_hashes"`
	MaxDecodePixels int      `yaml:"max_decode_pixels"`
	ZoomCache       int      `yaml:"zoom_cache"`
	Database        string   `yaml:"database"`
}

// Default returns the built-in configuration.
func Default() *Config {
	verify := true
	return &Config{
		Categories:      []string{"text", "hatch", "line"},
		Fill:            "#ffffff",
		BatchSize:       maskview.DefaultBatchSize,
		Overlap:         maskview.OverlapRecheck.String(),
		VerifyHashes:    &verify,
		MaxDecodePixels: rle.DefaultMaxPixels,
		ZoomCache:       maskview.DefaultZoomCacheSize,
		Database:        "maskview.db",
	}
}

// Load reads and parses a YAML config file. Fields missing from the file
// keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse parses YAML configuration data over the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyDefaults() {
	d := Default()
	if len(c.Categories) == 0 {
		c.Categories = d.Categories
	}
	if c.Fill == "" {
		c.Fill = d.Fill
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Overlap == "" {
		c.Overlap = d.Overlap
	}
	if c.VerifyHashes == nil {
		c.VerifyHashes = d.VerifyHashes
	}
	if c.MaxDecodePixels <= 0 {
		c.MaxDecodePixels = d.MaxDecodePixels
	}
	if c.ZoomCache <= 0 {
		c.ZoomCache = d.ZoomCache
	}
}

// Validate checks that every value can be turned into options.
func (c *Config) Validate() error {
	cats, err := c.CategorySet()
	if err != nil {
		return err
	}
	if _, err := cats.HideSetOf(c.Hidden...); err != nil {
		return fmt.Errorf("hidden: %w", err)
	}
	if _, err := ParseColor(c.Fill); err != nil {
		return err
	}
	if _, err := maskview.ParseOverlapStrategy(c.Overlap); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	return nil
}

// CategorySet returns the configured categories.
func (c *Config) CategorySet() (maskview.CategorySet, error) {
	cats, err := maskview.NewCategorySet(c.Categories...)
	if err != nil {
		return maskview.CategorySet{}, fmt.Errorf("categories: %w", err)
	}
	return cats, nil
}

// Visibility returns the configured visibility state for page.
func (c *Config) Visibility(page maskview.PageID) (maskview.VisibilityState, error) {
	cats, err := c.CategorySet()
	if err != nil {
		return maskview.VisibilityState{}, err
	}
	hide, err := cats.HideSetOf(c.Hidden...)
	if err != nil {
		return maskview.VisibilityState{}, fmt.Errorf("hidden: %w", err)
	}
	return maskview.VisibilityState{Page: page, Hide: hide}, nil
}

// CacheOptions converts the configuration to cache options.
func (c *Config) CacheOptions() ([]maskview.CacheOption, error) {
	fill, err := ParseColor(c.Fill)
	if err != nil {
		return nil, err
	}
	overlap, err := maskview.ParseOverlapStrategy(c.Overlap)
	if err != nil {
		return nil, err
	}
	verify := c.VerifyHashes == nil || *c.VerifyHashes
	return []maskview.CacheOption{
		maskview.WithFill(fill),
		maskview.WithWorkers(c.Workers),
		maskview.WithOverlapStrategy(overlap),
		maskview.WithHashVerification(verify),
	}, nil
}

// PageOptions converts the configuration to page options.
func (c *Config) PageOptions() []maskview.PageOption {
	return []maskview.PageOption{
		maskview.WithBatchSize(c.BatchSize),
		maskview.WithDecodeOptions(rle.WithMaxPixels(c.MaxDecodePixels)),
	}
}

// ParseColor parses #rgb, #rrggbb or #rrggbbaa. The alpha channel is
// straight and converted to premultiplied RGBA.
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("fill %q: want #rgb, #rrggbb or #rrggbbaa", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("fill %q: %w", s, err)
	}
	n := color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}
	return color.RGBAModel.Convert(n).(color.RGBA), nil
}
