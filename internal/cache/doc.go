// Package cache provides a small generic LRU used to keep derived images,
// such as scaled views of a composite, between frames.
//
//	c := cache.New[key, *Image](8)
//	img := c.GetOrCreate(k, func() *Image { return scale(src) })
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
