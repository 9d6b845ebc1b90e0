package maskview

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/gogpu/maskview/internal/parallel"
	"github.com/gogpu/maskview/mask"
)

// OverlapStrategy selects how the cache decides, when pixels leave a hidden
// category's mask, whether another hidden category still covers them.
type OverlapStrategy int

const (
	// OverlapRecheck ORs the other hidden categories' combined masks over the
	// changed words. It needs no memory beyond the composite.
	OverlapRecheck OverlapStrategy = iota

	// OverlapRefCount keeps a per-pixel count of covering hidden categories.
	// It costs one byte per pixel and makes each removal check O(1).
	OverlapRefCount
)

// String returns the strategy name.
func (s OverlapStrategy) String() string {
	switch s {
	case OverlapRecheck:
		return "recheck"
	case OverlapRefCount:
		return "refcount"
	default:
		return fmt.Sprintf("OverlapStrategy(%d)", int(s))
	}
}

// ParseOverlapStrategy parses "recheck" or "refcount".
func ParseOverlapStrategy(s string) (OverlapStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "recheck":
		return OverlapRecheck, nil
	case "refcount":
		return OverlapRefCount, nil
	default:
		return 0, fmt.Errorf("maskview: unknown overlap strategy %q", s)
	}
}

type cacheKey struct {
	page PageID
	vs   VisibilityState
}

// entry is a composite and the state it was built from.
type entry struct {
	key      cacheKey
	img      *Pixmap
	original *Pixmap

	// masks and hashes are indexed by category and track the combined masks
	// the composite currently reflects. A nil mask was unusable at build time.
	masks  []*mask.Mask
	hashes []uint64

	// coverage counts, per pixel, the hidden categories covering it.
	// Only kept with OverlapRefCount.
	coverage []uint8
}

// CacheStats reports cache activity counters.
type CacheStats struct {
	Hits          uint64
	Misses        uint64
	Patches       uint64
	Invalidations uint64
	Stale         uint64
	HashFailures  uint64
}

// Cache holds at most one composite and keeps it consistent with the combined
// masks of the page it was built for.
//
// Query returns the cached composite when its key matches, and composes a new
// one otherwise. Mask changes reported through NotifyMaskChanged are patched
// into the composite in place; anything the cache cannot patch with certainty
// drops the entry, so the next Query recomposes.
//
// A Cache is an Observer and is usually subscribed to the active page.
//
// Thread safety: Cache is safe for concurrent use.
type Cache struct {
	categories CategorySet
	cfg        cacheOptions
	pool       *parallel.WorkerPool

	mu     sync.Mutex
	entry  *entry
	gen    uint64
	dirty  *parallel.DirtyTiles
	stats  CacheStats
	closed bool
}

var _ Observer = (*Cache)(nil)

// NewCache creates an empty cache for pages using the given categories.
// Close releases its worker goroutines.
func NewCache(categories CategorySet, opts ...CacheOption) *Cache {
	cfg := defaultCacheOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cache{
		categories: categories,
		cfg:        cfg,
		pool:       parallel.NewWorkerPool(cfg.workers),
	}
}

// Close drops the entry and stops the worker pool. The cache keeps working
// afterwards, composing on the calling goroutine, but Refresh results are no
// longer installed.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.entry = nil
	c.gen++
	c.mu.Unlock()
	c.pool.Close()
	Logger().Info("cache closed")
}

// Fill returns the colour painted over hidden pixels.
func (c *Cache) Fill() color.RGBA { return c.cfg.fill }

// Overlap returns the configured overlap strategy.
func (c *Cache) Overlap() OverlapStrategy { return c.cfg.overlap }

// Query returns the composite of p under vs.
//
// The result is owned by the cache and is patched in place by later mask
// notifications. Callers that keep it across mutations, or read it while
// another goroutine mutates the page, should Clone it.
func (c *Cache) Query(p PageSource, vs VisibilityState) *Pixmap {
	c.mu.Lock()
	defer c.mu.Unlock()
	img, _ := c.queryLocked(p, vs)
	return img
}

// queryLocked returns the composite and the generation it belongs to.
// c.mu must be held.
func (c *Cache) queryLocked(p PageSource, vs VisibilityState) (*Pixmap, uint64) {
	key := cacheKey{page: p.ID(), vs: vs}
	if e := c.entry; e != nil && e.key == key && e.original == p.Original() && c.verify(e, p) {
		c.stats.Hits++
		Logger().Debug("cache hit", "state", vs.Format(c.categories))
		return e.img, c.gen
	}

	c.stats.Misses++
	Logger().Debug("cache miss", "state", vs.Format(c.categories))
	// Background context: the build only stops early on cancellation.
	e, _ := c.build(context.Background(), p, vs)
	c.install(e)
	return e.img, c.gen
}

// verify reports whether every hidden category's combined mask still hashes
// to the value the composite was built with.
func (c *Cache) verify(e *entry, p PageSource) bool {
	if !c.cfg.verifyHashes {
		return true
	}
	for _, cat := range e.key.vs.Hide.Categories() {
		if !c.categories.Contains(cat) {
			continue
		}
		if maskHash(p.CombinedMask(cat)) != e.hashes[cat] {
			c.stats.HashFailures++
			Logger().Warn("combined mask changed without notification",
				"page", e.key.page, "category", c.categories.Name(cat))
			return false
		}
	}
	return true
}

func maskHash(m *mask.Mask) uint64 {
	if m == nil {
		return 0
	}
	return m.Hash()
}

// build composes a new entry for (p, vs) on the worker pool. It does not
// touch the cache state.
func (c *Cache) build(ctx context.Context, p PageSource, vs VisibilityState) (*entry, error) {
	orig := p.Original()
	w, h := orig.Width(), orig.Height()
	e := &entry{
		key:      cacheKey{page: p.ID(), vs: vs},
		img:      NewPixmap(w, h),
		original: orig,
		masks:    make([]*mask.Mask, c.categories.Len()),
		hashes:   make([]uint64, c.categories.Len()),
	}

	var hidden []*mask.Mask
	for _, cat := range c.categories.All() {
		m := p.CombinedMask(cat)
		e.hashes[cat] = maskHash(m)
		if m == nil || m.Width() != w || m.Height() != h {
			continue
		}
		e.masks[cat] = m
		if vs.Hides(cat) {
			hidden = append(hidden, m)
		}
	}

	bands := (h + parallel.TileSize - 1) / parallel.TileSize
	err := c.pool.Run(ctx, bands, func(i int) {
		y0 := i * parallel.TileSize
		composeRows(e.img, orig, hidden, c.cfg.fill, y0, min(y0+parallel.TileSize, h))
	})
	if err != nil {
		return nil, err
	}

	if c.cfg.overlap == OverlapRefCount {
		e.coverage = buildCoverage(w, h, hidden)
	}
	return e, nil
}

// install makes e the entry. c.mu must be held.
func (c *Cache) install(e *entry) {
	c.entry = e
	c.gen++
	size := image.Pt(e.img.Width(), e.img.Height())
	if c.dirty == nil || c.dirty.Size() != size {
		c.dirty = parallel.NewDirtyTiles(size.X, size.Y)
	}
	if c.dirty != nil {
		c.dirty.MarkAll()
	}
}

// invalidateLocked drops the entry. c.mu must be held.
func (c *Cache) invalidateLocked(reason string) {
	if c.entry != nil {
		c.stats.Invalidations++
		Logger().Debug("cache invalidated", "page", c.entry.key.page, "reason", reason)
	}
	c.entry = nil
	c.gen++
}

// Invalidate drops the cached composite. The next Query recomposes.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked("explicit")
}

// NotifyStructureChanged drops the entry if it belongs to p.
func (c *Cache) NotifyStructureChanged(p PageSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.entry != nil && c.entry.key.page == p.ID() {
		c.invalidateLocked("structure changed")
	}
}

// NotifyMaskChanged patches the cached composite after the combined mask of
// category cat on page p changed as described by ch.
//
// If nothing is cached for p the call only records that the page changed.
// If cat is not hidden, only the stored hash is updated. Otherwise pixels
// newly covered are filled, and pixels no longer covered are restored unless
// another hidden category still covers them. A change the cache cannot apply
// exactly drops the entry instead.
func (c *Cache) NotifyMaskChanged(p PageSource, cat Category, ch MaskChange) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	e := c.entry
	if e == nil || e.key.page != p.ID() {
		return
	}
	if !c.categories.Contains(cat) || ch.IsZero() {
		Logger().Warn("unusable mask change", "page", p.ID(), "category", cat)
		c.invalidateLocked("unusable change")
		return
	}
	if !ch.New().SameSize(ch.Old()) || ch.New().Width() != e.img.Width() || ch.New().Height() != e.img.Height() {
		Logger().Warn("mask change size differs from composite",
			"page", p.ID(), "category", c.categories.Name(cat),
			"change", ch.New().Bounds(), "composite", e.img.Bounds())
		c.invalidateLocked("size mismatch")
		return
	}

	switch {
	case e.masks[cat] == ch.New():
		// Already reflected, e.g. built from the new mask while the
		// notification was in flight.
		return
	case e.masks[cat] == ch.Old():
	case e.hashes[cat] == ch.Old().Hash():
	default:
		c.invalidateLocked("change does not start from cached mask")
		return
	}

	if !e.key.vs.Hides(cat) {
		e.hashes[cat] = rehash(e.hashes[cat], ch)
		e.masks[cat] = ch.New()
		return
	}
	if e.masks[cat] == nil {
		c.invalidateLocked("hidden mask was unusable")
		return
	}

	words := c.patch(e, cat, ch)
	e.masks[cat] = ch.New()
	c.stats.Patches++
	Logger().Debug("cache patched", "page", p.ID(), "category", c.categories.Name(cat),
		"region", ch.Region(), "words", words)
}

// DrainDirty calls fn with every 64×64 tile of the composite changed since
// the last drain, and clears them.
func (c *Cache) DrainDirty(fn func(image.Rectangle)) {
	c.mu.Lock()
	d := c.dirty
	c.mu.Unlock()
	if d != nil {
		d.Drain(fn)
	}
}

// Generation returns a counter that changes whenever the cached composite
// may have changed.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Stats returns the activity counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Refresh composes (p, vs) in the background and installs the result unless
// the cache changed while it was being built: any notification, invalidation
// or install in between makes the result stale, and it is discarded with
// ErrStale. The channel receives exactly one value.
func (c *Cache) Refresh(ctx context.Context, p PageSource, vs VisibilityState) <-chan error {
	done := make(chan error, 1)

	c.mu.Lock()
	start := c.gen
	c.mu.Unlock()

	go func() {
		e, err := c.build(ctx, p, vs)
		if err != nil {
			done <- err
			return
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		switch {
		case c.closed:
			done <- ErrClosed
		case c.gen != start:
			c.stats.Stale++
			Logger().Warn("discarding stale composite", "state", vs.Format(c.categories))
			done <- ErrStale
		default:
			c.install(e)
			done <- nil
		}
	}()
	return done
}
