package store

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gogpu/maskview"
	"github.com/gogpu/maskview/mask"
)

func openTest(t *testing.T, cats maskview.CategorySet) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "regions.db"), cats)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRegions(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, maskview.DefaultCategories())

	shape := mask.New(100, 100)
	shape.SetRect(image.Rect(10, 10, 30, 20))
	shape.Set(40, 40, true)
	want := []maskview.Region{
		maskview.NewRegion("a", maskview.CategoryHatch, shape),
		maskview.RectRegion("b", maskview.CategoryText, image.Rect(0, 0, 5, 5)),
	}
	if err := s.SaveRegions(ctx, "p1", want); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveRegions(ctx, "p2", want[1:]); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadRegions(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadRegions() mismatch (-want +got):\n%s", diff)
	}

	pages, err := s.Pages(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]maskview.PageID{"p1", "p2"}, pages); diff != "" {
		t.Errorf("Pages() mismatch (-want +got):\n%s", diff)
	}

	if err := s.DeleteRegion(ctx, "p1", "a"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteRegion(ctx, "p1", "a"); !errors.Is(err, maskview.ErrUnknownRegion) {
		t.Errorf("second DeleteRegion() error = %v", err)
	}
	got, _ = s.LoadRegions(ctx, "p1")
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("after delete: %v", got)
	}
}

func TestSaveRegionsRejectsUnknownCategory(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, maskview.DefaultCategories())
	rs := []maskview.Region{
		maskview.RectRegion("ok", maskview.CategoryText, image.Rect(0, 0, 2, 2)),
		maskview.RectRegion("bad", maskview.Category(9), image.Rect(0, 0, 2, 2)),
	}
	if err := s.SaveRegions(ctx, "p1", rs); !errors.Is(err, maskview.ErrUnknownCategory) {
		t.Fatalf("SaveRegions() error = %v", err)
	}
	got, err := s.LoadRegions(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Error("a failed save must not leave partial rows")
	}
}

func TestLoadSkipsUnconfiguredCategories(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "regions.db")

	wide, _ := maskview.NewCategorySet("text", "hatch", "line", "stamp")
	s, err := Open(path, wide)
	if err != nil {
		t.Fatal(err)
	}
	err = s.SaveRegions(ctx, "p1", []maskview.Region{
		maskview.RectRegion("t", 0, image.Rect(0, 0, 3, 3)),
		maskview.RectRegion("s", 3, image.Rect(0, 0, 3, 3)),
	})
	s.Close()
	if err != nil {
		t.Fatal(err)
	}

	// Reopen with the categories in another order and without "stamp".
	narrow, _ := maskview.NewCategorySet("line", "text")
	s2, err := Open(path, narrow)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	got, err := s2.LoadRegions(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "t" || got[0].Category != 1 {
		t.Errorf("LoadRegions() = %+v", got)
	}
}

func TestSavePageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, maskview.DefaultCategories())

	page := maskview.NewPage("p1", maskview.NewPixmap(120, 80), maskview.DefaultCategories())
	page.AddRegion(maskview.RectRegion("a", maskview.CategoryText, image.Rect(5, 5, 40, 20)))
	page.AddRegion(maskview.RectRegion("b", maskview.CategoryLine, image.Rect(0, 70, 120, 72)))
	if err := s.SaveRegions(ctx, "p1", []maskview.Region{
		maskview.RectRegion("stale", maskview.CategoryText, image.Rect(0, 0, 1, 1)),
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.SavePage(ctx, page); err != nil {
		t.Fatal(err)
	}

	rs, err := s.LoadRegions(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	restored := maskview.NewPage("p1", maskview.NewPixmap(120, 80), maskview.DefaultCategories())
	dropped, err := restored.Restore(ctx, rs)
	if err != nil || len(dropped) != 0 {
		t.Fatalf("Restore() = %v, %v", dropped, err)
	}
	for _, c := range maskview.DefaultCategories().All() {
		if !restored.CombinedMask(c).Equal(page.CombinedMask(c)) {
			t.Errorf("category %d differs after the round trip", c)
		}
	}
	if _, ok := restored.Region("stale"); ok {
		t.Error("SavePage should replace previously stored regions")
	}
}
