package mask

// Content hashes are the XOR of independent per-word contributions, so a
// caller that knows which words changed can update a stored hash without
// rescanning the mask. Zero words contribute nothing.

const golden = 0x9e3779b97f4a7c15

// mix is the splitmix64 finalizer.
func mix(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// WordHash returns the hash contribution of word w stored at word index i.
func WordHash(i int, w uint64) uint64 {
	if w == 0 {
		return 0
	}
	return mix(w ^ mix(uint64(i)+golden))
}

// Hash returns a content hash of the mask. Masks that are Equal have equal
// hashes.
func (m *Mask) Hash() uint64 {
	h := mix(uint64(m.width)<<32 | uint64(m.height))
	for i, w := range m.words {
		h ^= WordHash(i, w)
	}
	return h
}

// UpdateHash returns h adjusted for word i changing from was to now.
func UpdateHash(h uint64, i int, was, now uint64) uint64 {
	return h ^ WordHash(i, was) ^ WordHash(i, now)
}
