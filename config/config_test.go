package config

import (
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gogpu/maskview"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Parse(nil) mismatch (-want +got):\n%s", diff)
	}
}

func TestParse(t *testing.T) {
	data := []byte(`
categories: [Text, hatch, line, stamp]
hidden: [mark_text, stamp]
fill: "#000"
batch_size: 25
workers: 3
overlap: refcount
verify_hashes: false
zoom_cache: 2
database: /tmp/regions.db
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	verify := false
	want := &Config{
		Categories:      []string{"Text", "hatch", "line", "stamp"},
		Hidden:          []string{"mark_text", "stamp"},
		Fill:            "#000",
		BatchSize:       25,
		Workers:         3,
		Overlap:         "refcount",
		VerifyHashes:    &verify,
		MaxDecodePixels: Default().MaxDecodePixels,
		ZoomCache:       2,
		Database:        "/tmp/regions.db",
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}

	vs, err := cfg.Visibility("p7")
	if err != nil {
		t.Fatal(err)
	}
	if vs.Page != "p7" || !vs.Hides(0) || !vs.Hides(3) || vs.Hides(1) {
		t.Errorf("Visibility() = %+v", vs)
	}

	opts, err := cfg.CacheOptions()
	if err != nil {
		t.Fatal(err)
	}
	cats, _ := cfg.CategorySet()
	cache := maskview.NewCache(cats, opts...)
	defer cache.Close()
	if cache.Overlap() != maskview.OverlapRefCount || cache.Fill() != (color.RGBA{A: 0xff}) {
		t.Errorf("cache built with overlap %v, fill %v", cache.Overlap(), cache.Fill())
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad yaml", "categories: [", "parse config"},
		{"duplicate category", "categories: [text, TEXT]", "duplicate category"},
		{"unknown hidden", "hidden: [figure]", "hidden"},
		{"bad fill", "fill: white", "fill"},
		{"bad overlap", "overlap: bitmap", "overlap strategy"},
		{"negative workers", "workers: -1", "workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maskview.yaml")
	if err := os.WriteFile(path, []byte("batch_size: 7\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BatchSize != 7 || cfg.Fill != "#ffffff" {
		t.Errorf("Load() = %+v", cfg)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.RGBA
	}{
		{"#fff", color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}},
		{"#102030", color.RGBA{R: 0x10, G: 0x20, B: 0x30, A: 0xff}},
		{"ff000000", color.RGBA{}},
		{"#ffffff80", color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0x80}},
	}
	for _, tt := range tests {
		got, err := ParseColor(tt.in)
		if err != nil {
			t.Errorf("ParseColor(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	for _, bad := range []string{"", "#12", "#gggggg", "#1234567"} {
		if _, err := ParseColor(bad); err == nil {
			t.Errorf("ParseColor(%q) should fail", bad)
		}
	}
}
