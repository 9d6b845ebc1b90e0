package maskview

import (
	"context"
	"image/color"

	"github.com/gogpu/maskview/rle"
)

// DefaultBatchSize is the number of regions processed between yields during
// bulk page operations.
const DefaultBatchSize = 100

// DefaultFill is the colour painted over hidden pixels.
var DefaultFill = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

// PageOption configures a Page during creation.
//
// Example:
//
//	page := maskview.NewPage("p1", img, cats,
//		maskview.WithBatchSize(50),
//		maskview.WithYield(func(ctx context.Context) { runtime.Gosched() }))
type PageOption func(*pageOptions)

type pageOptions struct {
	batchSize  int
	yield      func(context.Context)
	decodeOpts []rle.DecodeOption
}

func defaultPageOptions() pageOptions {
	return pageOptions{batchSize: DefaultBatchSize}
}

// WithBatchSize sets how many regions bulk operations process per batch.
// Values below 1 select DefaultBatchSize. The batch size never changes the
// resulting masks, only how often the yield hook runs and how often bulk
// additions notify observers.
func WithBatchSize(n int) PageOption {
	return func(o *pageOptions) {
		if n < 1 {
			n = DefaultBatchSize
		}
		o.batchSize = n
	}
}

// WithYield installs a hook called between batches of bulk operations, so a
// cooperative event loop can run. The page lock is not held while it runs.
func WithYield(fn func(context.Context)) PageOption {
	return func(o *pageOptions) {
		o.yield = fn
	}
}

// WithDecodeOptions sets the options used to decode region data, such as
// rle.WithMaxPixels.
func WithDecodeOptions(opts ...rle.DecodeOption) PageOption {
	return func(o *pageOptions) {
		o.decodeOpts = append([]rle.DecodeOption(nil), opts...)
	}
}

// CacheOption configures a Cache during creation.
//
// Example:
//
//	cache := maskview.NewCache(cats,
//		maskview.WithFill(color.RGBA{A: 0xff}),
//		maskview.WithOverlapStrategy(maskview.OverlapRefCount))
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	fill         color.RGBA
	workers      int
	overlap      OverlapStrategy
	verifyHashes bool
}

func defaultCacheOptions() cacheOptions {
	return cacheOptions{
		fill:         DefaultFill,
		overlap:      OverlapRecheck,
		verifyHashes: true,
	}
}

// WithFill sets the colour substituted for hidden pixels.
func WithFill(c color.RGBA) CacheOption {
	return func(o *cacheOptions) {
		o.fill = c
	}
}

// WithWorkers sets the number of goroutines used for full recomposition.
// Zero or negative selects GOMAXPROCS.
func WithWorkers(n int) CacheOption {
	return func(o *cacheOptions) {
		o.workers = n
	}
}

// WithOverlapStrategy selects how removals decide whether another hidden
// category still covers a pixel.
func WithOverlapStrategy(s OverlapStrategy) CacheOption {
	return func(o *cacheOptions) {
		o.overlap = s
	}
}

// WithHashVerification controls whether Query compares the stored
// combined-mask hashes with the page's current masks before reporting a hit.
// It is on by default; turning it off trusts that every mutation was
// notified.
func WithHashVerification(on bool) CacheOption {
	return func(o *cacheOptions) {
		o.verifyHashes = on
	}
}

// DefaultMaxViewPixels bounds the size of a scaled view.
const DefaultMaxViewPixels = rle.DefaultMaxPixels

// ViewerOption configures a Viewer during creation.
type ViewerOption func(*viewerOptions)

type viewerOptions struct {
	maxPixels int
}

func defaultViewerOptions() viewerOptions {
	return viewerOptions{maxPixels: DefaultMaxViewPixels}
}

// WithMaxViewPixels limits scaled views to n pixels. Values below 1 select
// DefaultMaxViewPixels.
func WithMaxViewPixels(n int) ViewerOption {
	return func(o *viewerOptions) {
		if n < 1 {
			n = DefaultMaxViewPixels
		}
		o.maxPixels = n
	}
}
