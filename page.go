package maskview

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"image"
	"slices"
	"sync"

	"github.com/gogpu/maskview/mask"
	"github.com/gogpu/maskview/rle"
)

// PageSource is the read side of a page consumed by the Cache.
type PageSource interface {
	// ID returns the page identity.
	ID() PageID

	// Original returns the page image. It must not be modified.
	Original() *Pixmap

	// CombinedMask returns the current union of the regions of c, or nil if c
	// is not a category of the page. The result must not be modified.
	CombinedMask(c Category) *mask.Mask
}

// Observer receives notifications after a page mutates its masks.
//
// Notifications are delivered synchronously, in mutation order, on the
// goroutine that performed the mutation. An Observer must not call a Page
// mutator from inside a notification.
type Observer interface {
	// NotifyMaskChanged reports that the combined mask of c changed as
	// described by ch.
	NotifyMaskChanged(p PageSource, c Category, ch MaskChange)

	// NotifyStructureChanged reports a change that cannot be described as a
	// set of mask changes: restore, image reload, full rebuild.
	NotifyStructureChanged(p PageSource)
}

type observerEntry struct {
	id int
	o  Observer
}

// Page holds the regions of one scanned page and the combined mask of every
// category.
//
// Combined masks are copy-on-write: a mutation builds a new mask and swaps it
// in, so a mask returned by CombinedMask, or carried in a MaskChange, never
// changes afterwards.
//
// Thread safety: Page is safe for concurrent use. Mutators are serialized;
// readers never block on a mutation in progress except while masks are
// swapped in.
type Page struct {
	id         PageID
	categories CategorySet
	opts       pageOptions
	width      int
	height     int

	// wmu serializes mutators, so a mutation's snapshot, build and
	// notification form one step.
	wmu sync.Mutex

	// mu guards the fields below.
	mu        sync.RWMutex
	original  *Pixmap
	combined  []*mask.Mask
	regions   map[RegionID]Region
	observers []observerEntry
	nextObsID int
}

// NewPage creates a page with no regions. The original image is used as is
// and must not be modified afterwards.
func NewPage(id PageID, original *Pixmap, categories CategorySet, opts ...PageOption) *Page {
	o := defaultPageOptions()
	for _, opt := range opts {
		opt(&o)
	}
	p := &Page{
		id:         id,
		categories: categories,
		opts:       o,
		width:      original.Width(),
		height:     original.Height(),
		original:   original,
		combined:   make([]*mask.Mask, categories.Len()),
		regions:    make(map[RegionID]Region),
	}
	for i := range p.combined {
		p.combined[i] = mask.New(p.width, p.height)
	}
	return p
}

// ID returns the page identity.
func (p *Page) ID() PageID { return p.id }

// Categories returns the page's category set.
func (p *Page) Categories() CategorySet { return p.categories }

// Bounds returns the page rectangle.
func (p *Page) Bounds() image.Rectangle { return image.Rect(0, 0, p.width, p.height) }

// Original returns the page image.
func (p *Page) Original() *Pixmap {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.original
}

// CombinedMask returns the current combined mask of c, or nil for an unknown
// category.
func (p *Page) CombinedMask(c Category) *mask.Mask {
	if !p.categories.Contains(c) {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.combined[c]
}

// Len returns the number of regions on the page.
func (p *Page) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.regions)
}

// Region returns the region with the given ID.
func (p *Page) Region(id RegionID) (Region, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.regions[id]
	return r, ok
}

// Regions returns the regions of category c ordered by ID.
func (p *Page) Regions(c Category) []Region {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.regionsOf(c)
}

// regionsOf must be called with mu or wmu held.
func (p *Page) regionsOf(c Category) []Region {
	var rs []Region
	for _, r := range p.regions {
		if r.Category == c {
			rs = append(rs, r)
		}
	}
	slices.SortFunc(rs, func(a, b Region) int { return cmp.Compare(a.ID, b.ID) })
	return rs
}

// RegionAt returns the regions covering the pixel (x, y), ordered by ID.
func (p *Page) RegionAt(x, y int) []Region {
	pt := image.Pt(x, y)
	p.mu.RLock()
	var candidates []Region
	for _, r := range p.regions {
		if pt.In(r.Bounds) {
			candidates = append(candidates, r)
		}
	}
	p.mu.RUnlock()

	hits := candidates[:0]
	for _, r := range candidates {
		if r.Contains(x, y) {
			hits = append(hits, r)
		}
	}
	slices.SortFunc(hits, func(a, b Region) int { return cmp.Compare(a.ID, b.ID) })
	return hits
}

// Subscribe registers o for notifications and returns a function that
// removes it.
func (p *Page) Subscribe(o Observer) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextObsID
	p.nextObsID++
	p.observers = append(p.observers, observerEntry{id: id, o: o})
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.observers = slices.DeleteFunc(p.observers, func(e observerEntry) bool { return e.id == id })
	}
}

func (p *Page) snapshotObservers() []Observer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Observer, len(p.observers))
	for i, e := range p.observers {
		out[i] = e.o
	}
	return out
}

func (p *Page) notifyMaskChanged(c Category, ch MaskChange) {
	if ch.Empty() {
		return
	}
	for _, o := range p.snapshotObservers() {
		o.NotifyMaskChanged(p, c, ch)
	}
}

func (p *Page) notifyStructureChanged() {
	for _, o := range p.snapshotObservers() {
		o.NotifyStructureChanged(p)
	}
}

func (p *Page) checkRegion(r Region) error {
	if err := r.validate(); err != nil {
		return err
	}
	if !p.categories.Contains(r.Category) {
		return fmt.Errorf("%w: region %q has category %d", ErrUnknownCategory, r.ID, r.Category)
	}
	return nil
}

// AddRegion adds r to the page and ORs it into the combined mask of its
// category. The returned change has already been delivered to observers.
func (p *Page) AddRegion(r Region) (MaskChange, error) {
	if err := p.checkRegion(r); err != nil {
		return MaskChange{}, err
	}

	p.wmu.Lock()
	defer p.wmu.Unlock()

	if _, dup := p.regions[r.ID]; dup {
		return MaskChange{}, fmt.Errorf("%w: %q", ErrDuplicateRegion, r.ID)
	}
	before := p.combined[r.Category]
	after := before.Clone()
	if err := rle.OrRegion(after, r.Bounds, r.Data, p.opts.decodeOpts...); err != nil {
		return MaskChange{}, fmt.Errorf("maskview: add region %q: %w", r.ID, err)
	}

	p.mu.Lock()
	p.combined[r.Category] = after
	p.regions[r.ID] = r
	p.mu.Unlock()

	ch := makeChange(before, after, r.Bounds)
	p.notifyMaskChanged(r.Category, ch)
	return ch, nil
}

// AddRegions adds many regions in batches. After each batch observers get
// one change per touched category, and the yield hook runs.
//
// Regions that are invalid, duplicated or cannot be decoded are skipped with
// a warning; their errors are joined into the result. Cancelling ctx stops
// between batches; regions of completed batches stay on the page.
func (p *Page) AddRegions(ctx context.Context, rs []Region) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	var errs []error
	for start := 0; start < len(rs); start += p.opts.batchSize {
		if err := p.pause(ctx, start > 0); err != nil {
			errs = append(errs, err)
			break
		}
		batch := rs[start:min(start+p.opts.batchSize, len(rs))]
		errs = append(errs, p.addBatch(batch)...)
	}
	return errors.Join(errs...)
}

// addBatch must be called with wmu held.
func (p *Page) addBatch(batch []Region) []error {
	var errs []error
	after := make(map[Category]*mask.Mask)
	touched := make(map[Category]image.Rectangle)
	added := make(map[RegionID]Region, len(batch))

	for _, r := range batch {
		err := p.checkRegion(r)
		if err == nil {
			_, dup := p.regions[r.ID]
			_, dupBatch := added[r.ID]
			if dup || dupBatch {
				err = fmt.Errorf("%w: %q", ErrDuplicateRegion, r.ID)
			}
		}
		if err == nil {
			m := after[r.Category]
			if m == nil {
				m = p.combined[r.Category].Clone()
				after[r.Category] = m
			}
			if derr := rle.OrRegion(m, r.Bounds, r.Data, p.opts.decodeOpts...); derr != nil {
				err = fmt.Errorf("maskview: add region %q: %w", r.ID, derr)
			}
		}
		if err != nil {
			Logger().Warn("skipping region", "page", p.id, "region", r.ID, "err", err)
			errs = append(errs, err)
			continue
		}
		added[r.ID] = r
		touched[r.Category] = touched[r.Category].Union(r.Bounds)
	}

	before := make(map[Category]*mask.Mask, len(after))
	p.mu.Lock()
	for c, m := range after {
		before[c] = p.combined[c]
		p.combined[c] = m
	}
	for id, r := range added {
		p.regions[id] = r
	}
	p.mu.Unlock()

	for _, c := range sortedCategories(after) {
		p.notifyMaskChanged(c, makeChange(before[c], after[c], touched[c]))
	}
	return errs
}

func sortedCategories[V any](m map[Category]V) []Category {
	cs := make([]Category, 0, len(m))
	for c := range m {
		cs = append(cs, c)
	}
	slices.Sort(cs)
	return cs
}

// pause runs the yield hook when between batches and reports cancellation.
func (p *Page) pause(ctx context.Context, between bool) error {
	if between && p.opts.yield != nil {
		p.opts.yield(ctx)
	}
	return ctx.Err()
}

// buildUnion returns the union of rs as a page-sized mask, decoding in
// batches. Regions that fail to decode are left out and returned in dropped.
func (p *Page) buildUnion(ctx context.Context, rs []Region) (m *mask.Mask, dropped []RegionID, err error) {
	m = mask.New(p.width, p.height)
	for start := 0; start == 0 || start < len(rs); start += p.opts.batchSize {
		if err := p.pause(ctx, start > 0); err != nil {
			return nil, nil, err
		}
		for _, r := range rs[start:min(start+p.opts.batchSize, len(rs))] {
			if err := rle.OrRegion(m, r.Bounds, r.Data, p.opts.decodeOpts...); err != nil {
				Logger().Warn("dropping region from combined mask",
					"page", p.id, "region", r.ID, "category", r.Category, "err", err)
				dropped = append(dropped, r.ID)
			}
		}
	}
	return m, dropped, nil
}

// replaceMask swaps in next for c and notifies observers. It must be called
// with wmu held. edit runs under the write lock together with the swap.
func (p *Page) replaceMask(c Category, next *mask.Mask, edit func()) MaskChange {
	p.mu.Lock()
	before := p.combined[c]
	p.combined[c] = next
	if edit != nil {
		edit()
	}
	p.mu.Unlock()

	ch := makeChange(before, next, mask.DiffBounds(before, next))
	p.notifyMaskChanged(c, ch)
	return ch
}

// Rebuild recomputes the combined mask of c from its regions. If ctx is
// cancelled part way, the previous mask stays in place and ctx.Err() is
// returned.
func (p *Page) Rebuild(ctx context.Context, c Category) (MaskChange, error) {
	if !p.categories.Contains(c) {
		return MaskChange{}, fmt.Errorf("%w: %d", ErrUnknownCategory, c)
	}
	p.wmu.Lock()
	defer p.wmu.Unlock()

	next, _, err := p.buildUnion(ctx, p.regionsOf(c))
	if err != nil {
		return MaskChange{}, err
	}
	return p.replaceMask(c, next, nil), nil
}

// RemoveRegion deletes a region and rebuilds its category's combined mask
// from the remaining regions, so pixels shared with other regions stay set.
func (p *Page) RemoveRegion(ctx context.Context, id RegionID) (MaskChange, error) {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	r, ok := p.regions[id]
	if !ok {
		return MaskChange{}, fmt.Errorf("%w: %q", ErrUnknownRegion, id)
	}
	rest := slices.DeleteFunc(p.regionsOf(r.Category), func(o Region) bool { return o.ID == id })
	next, _, err := p.buildUnion(ctx, rest)
	if err != nil {
		return MaskChange{}, err
	}
	return p.replaceMask(r.Category, next, func() { delete(p.regions, id) }), nil
}

// UpdateRegion replaces the shape of a region with the set pixels of m, a
// page-sized mask, and rebuilds its category's combined mask.
func (p *Page) UpdateRegion(ctx context.Context, id RegionID, m *mask.Mask) (MaskChange, error) {
	if m == nil || m.Width() != p.width || m.Height() != p.height {
		return MaskChange{}, fmt.Errorf("%w: region mask must be %dx%d", ErrSizeMismatch, p.width, p.height)
	}
	p.wmu.Lock()
	defer p.wmu.Unlock()

	old, ok := p.regions[id]
	if !ok {
		return MaskChange{}, fmt.Errorf("%w: %q", ErrUnknownRegion, id)
	}
	updated := NewRegion(id, old.Category, m)
	rs := p.regionsOf(old.Category)
	for i := range rs {
		if rs[i].ID == id {
			rs[i] = updated
		}
	}
	next, _, err := p.buildUnion(ctx, rs)
	if err != nil {
		return MaskChange{}, err
	}
	return p.replaceMask(old.Category, next, func() { p.regions[id] = updated }), nil
}

// rebuildAll builds every combined mask from regions. It must be called with
// wmu held.
func (p *Page) rebuildAll(ctx context.Context, regions map[RegionID]Region) ([]*mask.Mask, []RegionID, error) {
	byCat := make([][]Region, p.categories.Len())
	for _, r := range regions {
		byCat[r.Category] = append(byCat[r.Category], r)
	}
	masks := make([]*mask.Mask, len(byCat))
	var dropped []RegionID
	for c, rs := range byCat {
		slices.SortFunc(rs, func(a, b Region) int { return cmp.Compare(a.ID, b.ID) })
		m, d, err := p.buildUnion(ctx, rs)
		if err != nil {
			return nil, nil, err
		}
		masks[c] = m
		dropped = append(dropped, d...)
	}
	return masks, dropped, nil
}

// RebuildAll recomputes every combined mask and sends a structure change.
func (p *Page) RebuildAll(ctx context.Context) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	masks, _, err := p.rebuildAll(ctx, p.regions)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.combined = masks
	p.mu.Unlock()
	p.notifyStructureChanged()
	return nil
}

// Restore replaces every region of the page, as when a saved workspace is
// loaded. Regions that are invalid, duplicated, of an unknown category, or
// whose data cannot be decoded are dropped with a warning and their IDs
// returned; the rest are loaded. Observers get one structure change.
//
// If ctx is cancelled the page is left unchanged.
func (p *Page) Restore(ctx context.Context, rs []Region) (dropped []RegionID, err error) {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	regions := make(map[RegionID]Region, len(rs))
	for _, r := range rs {
		cerr := p.checkRegion(r)
		if _, dup := regions[r.ID]; cerr == nil && dup {
			cerr = fmt.Errorf("%w: %q", ErrDuplicateRegion, r.ID)
		}
		if cerr != nil {
			Logger().Warn("dropping region on restore", "page", p.id, "region", r.ID, "err", cerr)
			dropped = append(dropped, r.ID)
			continue
		}
		regions[r.ID] = r
	}

	masks, undecodable, err := p.rebuildAll(ctx, regions)
	if err != nil {
		return nil, err
	}
	for _, id := range undecodable {
		delete(regions, id)
	}
	dropped = append(dropped, undecodable...)

	p.mu.Lock()
	p.combined = masks
	p.regions = regions
	p.mu.Unlock()

	Logger().Info("page restored", "page", p.id, "regions", len(regions), "dropped", len(dropped))
	p.notifyStructureChanged()
	return dropped, nil
}

// Clear removes every region.
func (p *Page) Clear() {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	masks := make([]*mask.Mask, p.categories.Len())
	for i := range masks {
		masks[i] = mask.New(p.width, p.height)
	}
	p.mu.Lock()
	p.combined = masks
	p.regions = make(map[RegionID]Region)
	p.mu.Unlock()
	p.notifyStructureChanged()
}

// ReplaceOriginal swaps in a reloaded page image of the same size.
func (p *Page) ReplaceOriginal(img *Pixmap) error {
	if img.Width() != p.width || img.Height() != p.height {
		return fmt.Errorf("%w: page is %dx%d, image is %dx%d",
			ErrSizeMismatch, p.width, p.height, img.Width(), img.Height())
	}
	p.wmu.Lock()
	defer p.wmu.Unlock()

	p.mu.Lock()
	p.original = img
	p.mu.Unlock()
	p.notifyStructureChanged()
	return nil
}
