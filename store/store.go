// Package store persists page regions in SQLite.
//
// Region shapes are stored in the region encoding of package rle, so a
// database written by one version of maskview stays readable as long as the
// encoding version byte is understood. Categories are stored by name, so a
// reordered category list still loads correctly.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"image"

	_ "modernc.org/sqlite"

	"github.com/gogpu/maskview"
)

const schema = `
CREATE TABLE IF NOT EXISTS regions (
	page_id   TEXT    NOT NULL,
	region_id TEXT    NOT NULL,
	category  TEXT    NOT NULL,
	x0        INTEGER NOT NULL,
	y0        INTEGER NOT NULL,
	x1        INTEGER NOT NULL,
	y1        INTEGER NOT NULL,
	data      BLOB    NOT NULL,
	PRIMARY KEY (page_id, region_id)
);`

// Store is a region database.
type Store struct {
	db   *sql.DB
	cats maskview.CategorySet
}

// Open opens or creates the database at path. Use ":memory:" for a private
// in-memory database.
func Open(path string, cats maskview.CategorySet) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range append(pragmas, schema) {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: init: %w", err)
		}
	}
	return &Store{db: db, cats: cats}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRegions inserts or replaces regions of page in one transaction.
func (s *Store) SaveRegions(ctx context.Context, page maskview.PageID, rs []maskview.Region) error {
	return s.save(ctx, page, rs, false)
}

// SavePage replaces every stored region of p with its current regions.
func (s *Store) SavePage(ctx context.Context, p *maskview.Page) error {
	var rs []maskview.Region
	for _, c := range p.Categories().All() {
		rs = append(rs, p.Regions(c)...)
	}
	return s.save(ctx, p.ID(), rs, true)
}

func (s *Store) save(ctx context.Context, page maskview.PageID, rs []maskview.Region, replace bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM regions WHERE page_id = ?`, string(page)); err != nil {
			return fmt.Errorf("store: clear page %q: %w", page, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO regions
		(page_id, region_id, category, x0, y0, x1, y1, data) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range rs {
		name := s.cats.Name(r.Category)
		if name == "" {
			return fmt.Errorf("store: region %q: %w", r.ID, maskview.ErrUnknownCategory)
		}
		b := r.Bounds
		if _, err := stmt.ExecContext(ctx, string(page), string(r.ID), name,
			b.Min.X, b.Min.Y, b.Max.X, b.Max.Y, r.Data); err != nil {
			return fmt.Errorf("store: save region %q: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// DeleteRegion removes one region. It returns maskview.ErrUnknownRegion if
// the region is not stored.
func (s *Store) DeleteRegion(ctx context.Context, page maskview.PageID, id maskview.RegionID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM regions WHERE page_id = ? AND region_id = ?`,
		string(page), string(id))
	if err != nil {
		return fmt.Errorf("store: delete region %q: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store: %w: %q", maskview.ErrUnknownRegion, id)
	}
	return nil
}

// DeletePage removes every region of page.
func (s *Store) DeletePage(ctx context.Context, page maskview.PageID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM regions WHERE page_id = ?`, string(page)); err != nil {
		return fmt.Errorf("store: delete page %q: %w", page, err)
	}
	return nil
}

// LoadRegions returns the stored regions of page ordered by region ID.
// Rows whose category is not configured are skipped with a warning.
func (s *Store) LoadRegions(ctx context.Context, page maskview.PageID) ([]maskview.Region, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT region_id, category, x0, y0, x1, y1, data
		FROM regions WHERE page_id = ? ORDER BY region_id`, string(page))
	if err != nil {
		return nil, fmt.Errorf("store: load page %q: %w", page, err)
	}
	defer rows.Close()

	var rs []maskview.Region
	for rows.Next() {
		var (
			id, category   string
			x0, y0, x1, y1 int
			data           []byte
		)
		if err := rows.Scan(&id, &category, &x0, &y0, &x1, &y1, &data); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		c, err := s.cats.Parse(category)
		if err != nil {
			maskview.Logger().Warn("skipping stored region", "page", page, "region", id, "err", err)
			continue
		}
		rs = append(rs, maskview.Region{
			ID:       maskview.RegionID(id),
			Category: c,
			Bounds:   image.Rect(x0, y0, x1, y1),
			Data:     data,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load page %q: %w", page, err)
	}
	return rs, nil
}

// Pages returns the IDs of every page with stored regions.
func (s *Store) Pages(ctx context.Context) ([]maskview.PageID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT page_id FROM regions ORDER BY page_id`)
	if err != nil {
		return nil, fmt.Errorf("store: list pages: %w", err)
	}
	defer rows.Close()

	var ids []maskview.PageID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		ids = append(ids, maskview.PageID(id))
	}
	return ids, rows.Err()
}
