package container

// MaxKeyLen is the longest string key StringMap accepts; longer keys are
// rejected by Put, which returns ok=false.
const MaxKeyLen = 64

type mapEntry struct {
	used  bool
	key   string
	value any
}

// StringMap is an open-addressed, linear-probing hash map from a short
// string key to an arbitrary value. Its hash is a simple multiplicative
// rolling hash: collision quality is adequate for small tables of at most a
// few hundred entries.
type StringMap struct {
	entries []mapEntry
	count   int
}

// NewStringMap returns an empty map with room for at least capacityHint
// entries before the first rehash.
func NewStringMap(capacityHint int) *StringMap {
	n := 8
	for n < capacityHint*2 {
		n *= 2
	}
	return &StringMap{entries: make([]mapEntry, n)}
}

func rollingHash(s string) uint64 {
	var h uint64 = 1469598103934665603 // FNV offset basis, reused as a seed
	for i := 0; i < len(s); i++ {
		h = h*31 + uint64(s[i])
	}
	return h
}

// Put inserts or overwrites key -> value. ok is false if key is longer than
// MaxKeyLen and the entry was rejected.
func (m *StringMap) Put(key string, value any) (ok bool) {
	if len(key) > MaxKeyLen {
		return false
	}
	if m.count*2 >= len(m.entries) {
		m.rehash()
	}
	idx := m.probe(key)
	if !m.entries[idx].used {
		m.count++
	}
	m.entries[idx] = mapEntry{used: true, key: key, value: value}
	return true
}

// Get returns the value stored under key, if any.
func (m *StringMap) Get(key string) (value any, ok bool) {
	if len(m.entries) == 0 {
		return nil, false
	}
	idx := m.probe(key)
	e := m.entries[idx]
	if !e.used {
		return nil, false
	}
	return e.value, true
}

// Len returns the number of entries stored.
func (m *StringMap) Len() int { return m.count }

// probe returns the slot key currently occupies, or the first free slot on
// its probe sequence if it is absent.
func (m *StringMap) probe(key string) int {
	n := len(m.entries)
	idx := int(rollingHash(key) % uint64(n))
	for {
		e := &m.entries[idx]
		if !e.used || e.key == key {
			return idx
		}
		idx = (idx + 1) % n
	}
}

func (m *StringMap) rehash() {
	old := m.entries
	newLen := len(old) * 2
	if newLen == 0 {
		newLen = 8
	}
	m.entries = make([]mapEntry, newLen)
	m.count = 0
	for _, e := range old {
		if e.used {
			m.Put(e.key, e.value)
		}
	}
}
