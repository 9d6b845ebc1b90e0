package maskview

import (
	"image"
	"math"
	"sync"
	"sync/atomic"

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/maskview/internal/cache"
)

// DefaultZoomCacheSize is the number of scaled composites a Viewer keeps.
const DefaultZoomCacheSize = 8

type viewKey struct {
	gen  uint64
	key  cacheKey
	zoom float64
}

// Viewer serves the composite of a Cache at arbitrary zoom levels.
//
// Scaled images are kept in a small LRU keyed by the cache generation and
// zoom, so a scaled image is never served after the composite changed.
// Shrinking uses Catmull-Rom resampling, enlarging uses bilinear.
type Viewer struct {
	cache     *Cache
	scaled    *cache.Cache[viewKey, *Pixmap]
	maxPixels int
	evicted   atomic.Uint64

	mu      sync.Mutex
	lastGen uint64
}

// NewViewer returns a viewer over c keeping up to size scaled images.
// A size below 1 selects DefaultZoomCacheSize.
func NewViewer(c *Cache, size int, opts ...ViewerOption) *Viewer {
	if size < 1 {
		size = DefaultZoomCacheSize
	}
	cfg := defaultViewerOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	v := &Viewer{cache: c, scaled: cache.New[viewKey, *Pixmap](size), maxPixels: cfg.maxPixels}
	v.scaled.OnEvict(func(viewKey, *Pixmap) { v.evicted.Add(1) })
	return v
}

// MaxPixels returns the largest scaled image, in pixels, the viewer produces.
func (v *Viewer) MaxPixels() int { return v.maxPixels }

// ZoomFits reports whether scaling an image of size bounds by zoom stays
// within MaxPixels. View reduces zooms that do not fit.
func (v *Viewer) ZoomFits(bounds image.Rectangle, zoom float64) bool {
	return float64(bounds.Dx())*zoom*float64(bounds.Dy())*zoom <= float64(v.maxPixels)
}

// View returns the composite of p under vs scaled by zoom. A zoom of 1, or
// one that is not a positive finite number, returns the composite itself.
// A zoom whose result would exceed MaxPixels is reduced until it fits.
// The result must not be modified.
func (v *Viewer) View(p PageSource, vs VisibilityState, zoom float64) *Pixmap {
	c := v.cache
	c.mu.Lock()
	defer c.mu.Unlock()

	img, gen := c.queryLocked(p, vs)
	if zoom <= 0 || zoom == 1 || math.IsInf(zoom, 0) || math.IsNaN(zoom) {
		return img
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.lastGen {
		v.scaled.Purge()
		v.lastGen = gen
	}
	key := viewKey{gen: gen, key: cacheKey{page: p.ID(), vs: vs}, zoom: zoom}
	return v.scaled.GetOrCreate(key, func() *Pixmap {
		return scale(img, zoom, v.maxPixels)
	})
}

// ViewerStats reports scaled-image cache activity.
type ViewerStats struct {
	Cached  int
	Hits    uint64
	Misses  uint64
	Evicted uint64
}

// Stats returns the scaled-image cache counters. Evicted counts images
// dropped for capacity or because the composite changed.
func (v *Viewer) Stats() ViewerStats {
	s := v.scaled.Stats()
	return ViewerStats{Cached: s.Len, Hits: s.Hits, Misses: s.Misses, Evicted: v.evicted.Load()}
}

// scaledSize returns the size of a w×h image scaled by zoom, shrunk to at
// most maxPixels pixels. Each side is at least 1.
func scaledSize(w, h int, zoom float64, maxPixels int) image.Point {
	sw, sh := float64(w)*zoom, float64(h)*zoom
	if limit := float64(maxPixels); sw*sh > limit {
		z := math.Sqrt(limit / (float64(w) * float64(h)))
		return image.Pt(max(1, int(float64(w)*z)), max(1, int(float64(h)*z)))
	}
	return image.Pt(max(1, int(math.Round(sw))), max(1, int(math.Round(sh))))
}

// scale resamples src by zoom within maxPixels. The result is at least 1×1
// for a non-empty source.
func scale(src *Pixmap, zoom float64, maxPixels int) *Pixmap {
	if src.width == 0 || src.height == 0 {
		return NewPixmap(0, 0)
	}
	size := scaledSize(src.width, src.height, zoom, maxPixels)
	dst := NewPixmap(size.X, size.Y)

	var interp xdraw.Interpolator = xdraw.ApproxBiLinear
	if size.X < src.width {
		interp = xdraw.CatmullRom
	}
	interp.Scale(dst.rgba(), dst.Bounds(), src.rgba(), src.Bounds(), xdraw.Src, nil)
	return dst
}
