package maskview

import "errors"

var (
	// ErrUnknownCategory is returned for a category outside the configured set.
	ErrUnknownCategory = errors.New("maskview: unknown category")

	// ErrUnknownRegion is returned when a region ID is not on the page.
	ErrUnknownRegion = errors.New("maskview: unknown region")

	// ErrDuplicateRegion is returned when adding a region whose ID is taken.
	ErrDuplicateRegion = errors.New("maskview: duplicate region")

	// ErrInvalidRegion is returned for a nil region or one without an ID.
	ErrInvalidRegion = errors.New("maskview: invalid region")

	// ErrInvalidChange is returned by NewMaskChange when a mask is missing.
	ErrInvalidChange = errors.New("maskview: invalid mask change")

	// ErrSizeMismatch is returned when images or masks disagree in size.
	ErrSizeMismatch = errors.New("maskview: size mismatch")

	// ErrStale is delivered by Refresh when the cache changed while the
	// composite was being built, so the result was discarded.
	ErrStale = errors.New("maskview: composite superseded before install")
)

// ErrClosed is delivered by Refresh when the cache was closed before the
// composite could be installed.
var ErrClosed = errors.New("maskview: cache closed")
