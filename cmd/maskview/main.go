// Command maskview renders a page with its hidden mask categories painted
// over, using regions stored in a SQLite database.
//
// Usage:
//
//	maskview -image page.png -out composite.png
//	maskview -image page.png -add text:10,10,200,40 -add hatch:0,300,400,500
//	maskview -image page.tif -hide text,line -zoom 0.5 -out preview.png
//	maskview -image page.png -serve :8080
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/gogpu/maskview"
	"github.com/gogpu/maskview/config"
	"github.com/gogpu/maskview/server"
	"github.com/gogpu/maskview/store"
)

// rectFlag collects -add values of the form category:x0,y0,x1,y1.
type rectFlag []string

func (f *rectFlag) String() string     { return strings.Join(*f, " ") }
func (f *rectFlag) Set(v string) error { *f = append(*f, v); return nil }

func main() {
	var (
		imagePath  = flag.String("image", "", "page image (png, jpeg, tiff, bmp)")
		configPath = flag.String("config", "", "YAML configuration file")
		dbPath     = flag.String("db", "", "region database (overrides config; \"-\" disables)")
		pageID     = flag.String("page", "", "page ID (default: image file name)")
		output     = flag.String("out", "composite.png", "output file")
		hide       = flag.String("hide", "", "comma separated categories to hide (overrides config)")
		zoom       = flag.Float64("zoom", 1, "output scale")
		serve      = flag.String("serve", "", "serve the page over HTTP on this address instead of writing -out")
		verbose    = flag.Bool("v", false, "debug logging")
		adds       rectFlag
	)
	flag.Var(&adds, "add", "add a rectangular region, category:x0,y0,x1,y1 (repeatable)")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	maskview.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	opts := options{
		image:  *imagePath,
		config: *configPath,
		db:     *dbPath,
		page:   *pageID,
		output: *output,
		hide:   *hide,
		zoom:   *zoom,
		serve:  *serve,
		adds:   adds,
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, opts); err != nil {
		log.Fatalf("maskview: %v", err)
	}
}

type options struct {
	image, config, db, page, output, hide, serve string
	zoom                                         float64
	adds                                         []string
}

func run(ctx context.Context, o options) error {
	if o.image == "" {
		return fmt.Errorf("-image is required")
	}

	cfg := config.Default()
	if o.config != "" {
		var err error
		if cfg, err = config.Load(o.config); err != nil {
			return err
		}
	}
	switch o.db {
	case "":
	case "-":
		cfg.Database = ""
	default:
		cfg.Database = o.db
	}
	if o.hide != "" {
		cfg.Hidden = strings.Split(o.hide, ",")
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	cats, err := cfg.CategorySet()
	if err != nil {
		return err
	}

	original, err := loadImage(o.image)
	if err != nil {
		return err
	}
	id := maskview.PageID(o.page)
	if id == "" {
		id = maskview.PageID(filepath.Base(o.image))
	}
	page := maskview.NewPage(id, original, cats, cfg.PageOptions()...)

	var db *store.Store
	if cfg.Database != "" {
		if db, err = store.Open(cfg.Database, cats); err != nil {
			return err
		}
		defer db.Close()

		rs, err := db.LoadRegions(ctx, id)
		if err != nil {
			return err
		}
		if _, err := page.Restore(ctx, rs); err != nil {
			return err
		}
	}

	cacheOpts, err := cfg.CacheOptions()
	if err != nil {
		return err
	}
	cache := maskview.NewCache(cats, cacheOpts...)
	defer cache.Close()
	page.Subscribe(cache)

	vs, err := cfg.Visibility(id)
	if err != nil {
		return err
	}
	viewer := maskview.NewViewer(cache, cfg.ZoomCache)
	// Compose before editing so additions are patched in.
	viewer.View(page, vs, 1)

	if len(o.adds) > 0 {
		if err := addRegions(page, cats, o.adds); err != nil {
			return err
		}
		if db != nil {
			if err := db.SavePage(ctx, page); err != nil {
				return err
			}
		}
	}

	if o.serve != "" {
		err := server.New(page, cache, viewer, db, vs).ListenAndServe(ctx, o.serve)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	out := viewer.View(page, vs, o.zoom)
	if err := out.SavePNG(o.output); err != nil {
		return fmt.Errorf("save %s: %w", o.output, err)
	}

	st := cache.Stats()
	maskview.Logger().Info("composite saved",
		"out", o.output, "state", vs.Format(cats),
		"size", fmt.Sprintf("%dx%d", out.Width(), out.Height()),
		"regions", page.Len(), "patches", st.Patches, "misses", st.Misses)
	return nil
}

func loadImage(path string) (*maskview.Pixmap, error) {
	f, err := os.Open(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return maskview.DecodeImage(f)
}

// freeID returns the first unused ID of the form prefix-N.
func freeID(page *maskview.Page, prefix string) maskview.RegionID {
	for n := page.Len() + 1; ; n++ {
		id := maskview.RegionID(fmt.Sprintf("%s-%d", prefix, n))
		if _, taken := page.Region(id); !taken {
			return id
		}
	}
}

// addRegions adds one rectangular region per -add value, clipped to the page.
func addRegions(page *maskview.Page, cats maskview.CategorySet, specs []string) error {
	for _, s := range specs {
		name, coords, ok := strings.Cut(s, ":")
		if !ok {
			return fmt.Errorf("-add %q: want category:x0,y0,x1,y1", s)
		}
		c, err := cats.Parse(name)
		if err != nil {
			return fmt.Errorf("-add %q: %w", s, err)
		}
		var r image.Rectangle
		if _, err := fmt.Sscanf(coords, "%d,%d,%d,%d", &r.Min.X, &r.Min.Y, &r.Max.X, &r.Max.Y); err != nil {
			return fmt.Errorf("-add %q: %w", s, err)
		}
		if r = r.Canon().Intersect(page.Bounds()); r.Empty() {
			return fmt.Errorf("-add %q: rectangle is empty or outside the %v page", s, page.Bounds().Size())
		}
		id := freeID(page, cats.Name(c))
		if _, err := page.AddRegion(maskview.RectRegion(id, c, r)); err != nil {
			return err
		}
	}
	return nil
}
