// Package maskview maintains the composite image shown while annotating a
// scanned page: the original pixels, with every pixel covered by a hidden
// mask category painted over with a fill colour.
//
// # Overview
//
// Regions drawn by the user are grouped by Category (text, hatch, line by
// default). A Page keeps, for every category, the Combined Mask: the union of
// the category's live regions. A Cache holds at most one composite, keyed by
// the page and the VisibilityState (which categories are hidden), and keeps it
// current as combined masks change:
//
//	page := maskview.NewPage("p1", original, maskview.DefaultCategories())
//	cache := maskview.NewCache(maskview.DefaultCategories())
//	defer cache.Close()
//	page.Subscribe(cache)
//
//	vs := maskview.VisibilityState{Page: page.ID()}.WithHidden(maskview.CategoryText, true)
//	img := cache.Query(page, vs) // full compose on first use
//
//	page.AddRegion(maskview.RectRegion("r1", maskview.CategoryText, image.Rect(10, 10, 50, 20)))
//	img = cache.Query(page, vs) // patched in place, no recompose
//
// # Correctness
//
// Whenever the cache holds a composite for (page, state), that composite is
// pixel-identical to Compose over the page's current combined masks of every
// hidden category. Incremental patches restore a pixel only when no other
// hidden category still covers it. Anything the cache cannot patch with
// certainty (unknown changes, size mismatches, content hashes that no longer
// match) falls back to a full recompose.
//
// # Coordinate System
//
// Origin (0,0) at the top-left pixel, X increases right, Y increases down.
package maskview

// Version is the current version of the library.
const Version = "0.1.0"
