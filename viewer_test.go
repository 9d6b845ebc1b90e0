package maskview

import (
	"image"
	"sync"
	"testing"
)

func TestViewerZoom(t *testing.T) {
	page := NewPage("p1", patterned(200, 100), DefaultCategories())
	cache := newTestCache(t)
	page.Subscribe(cache)
	viewer := NewViewer(cache, 4)
	vs := hide(page.ID(), CategoryText)

	tests := []struct {
		zoom          float64
		width, height int
	}{
		{0.5, 100, 50},
		{2, 400, 200},
		{0.001, 1, 1},
		{1, 200, 100},
		{0, 200, 100},
		{-3, 200, 100},
	}
	for _, tt := range tests {
		img := viewer.View(page, vs, tt.zoom)
		if img.Width() != tt.width || img.Height() != tt.height {
			t.Errorf("View(zoom=%v) is %dx%d, want %dx%d", tt.zoom, img.Width(), img.Height(), tt.width, tt.height)
		}
	}
	if viewer.View(page, vs, 1) != cache.Query(page, vs) {
		t.Error("zoom 1 should return the cached composite itself")
	}
}

func TestViewerReusesScaledImages(t *testing.T) {
	page := NewPage("p1", patterned(128, 128), DefaultCategories())
	cache := newTestCache(t)
	page.Subscribe(cache)
	viewer := NewViewer(cache, 0)
	vs := hide(page.ID(), CategoryText)

	first := viewer.View(page, vs, 0.5)
	if viewer.View(page, vs, 0.5) != first {
		t.Error("unchanged composite should reuse the scaled image")
	}
	if st := viewer.Stats(); st.Hits != 1 || st.Misses != 1 {
		t.Errorf("Stats() = %+v", st)
	}

	page.AddRegion(RectRegion("a", CategoryText, image.Rect(0, 0, 128, 128)))
	second := viewer.View(page, vs, 0.5)
	if second == first {
		t.Fatal("a patched composite must not serve the old scaled image")
	}
	if got := second.RGBAAt(10, 10); got != DefaultFill {
		t.Errorf("scaled pixel of a fully hidden page = %v, want fill", got)
	}
	if st := viewer.Stats(); st.Cached != 1 || st.Evicted != 1 {
		t.Errorf("Stats() = %+v, want old generations purged", st)
	}
}

func TestViewerLimitsScaledSize(t *testing.T) {
	page := NewPage("p1", patterned(200, 100), DefaultCategories())
	cache := newTestCache(t)
	page.Subscribe(cache)
	viewer := NewViewer(cache, 4, WithMaxViewPixels(5000))
	vs := hide(page.ID(), CategoryText)

	if viewer.MaxPixels() != 5000 {
		t.Errorf("MaxPixels() = %d, want 5000", viewer.MaxPixels())
	}
	if viewer.ZoomFits(page.Bounds(), 1e12) {
		t.Error("ZoomFits(1e12) = true")
	}
	if !viewer.ZoomFits(page.Bounds(), 0.5) {
		t.Error("ZoomFits(0.5) = false")
	}

	for _, zoom := range []float64{1e12, 1e300, 5} {
		img := viewer.View(page, vs, zoom)
		if n := img.Width() * img.Height(); n > 5000 || n == 0 {
			t.Errorf("View(zoom=%v) is %dx%d, want at most 5000 pixels", zoom, img.Width(), img.Height())
		}
		if img.Width() < img.Height() {
			t.Errorf("View(zoom=%v) lost the aspect ratio: %dx%d", zoom, img.Width(), img.Height())
		}
	}
	if img := viewer.View(page, vs, 0.5); img.Width() != 100 || img.Height() != 50 {
		t.Errorf("View(0.5) is %dx%d after oversized zooms", img.Width(), img.Height())
	}
}

func TestViewerConcurrentWithEdits(t *testing.T) {
	page := NewPage("p1", patterned(256, 256), DefaultCategories())
	cache := newTestCache(t)
	page.Subscribe(cache)
	viewer := NewViewer(cache, 2)
	vs := hide(page.ID(), CategoryHatch)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 50 {
			page.AddRegion(RectRegion(RegionID(rune('a'+i%26))+RegionID(rune('a'+i/26)), CategoryHatch,
				image.Rect(i*5, i*5, i*5+10, i*5+10)))
		}
	}()
	go func() {
		defer wg.Done()
		for range 50 {
			if img := viewer.View(page, vs, 0.25); img.Width() != 64 {
				t.Errorf("View width = %d, want 64", img.Width())
				return
			}
		}
	}()
	wg.Wait()

	if !cache.Query(page, vs).Equal(oracle(page, vs)) {
		t.Error("composite differs from Compose after concurrent edits")
	}
}
