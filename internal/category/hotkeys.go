package category

import "strconv"

// Hotkeys binds keyboard keys to canonical category indices. Each key maps to at
// most one index and each index holds at most one key.
type Hotkeys struct {
	byKey   map[string]int
	byIndex map[int]string
}

// DefaultHotkeys binds "1".."9" to indices 0..8 and "0" to index 9.
func DefaultHotkeys() *Hotkeys {
	h := &Hotkeys{
		byKey:   make(map[string]int),
		byIndex: make(map[int]string),
	}
	for i := 0; i < 10; i++ {
		h.bind(strconv.Itoa((i+1)%10), i)
	}
	return h
}

func (h *Hotkeys) bind(key string, index int) {
	h.byKey[key] = index
	h.byIndex[index] = key
}

// Assign moves key onto index.
//
// When key is already held by another index, the two indices swap keys: the
// other index receives whatever key index held before (or nothing). Applying
// group bindings in configuration order therefore gives the later group the key.
// An empty key leaves the bindings unchanged.
func (h *Hotkeys) Assign(index int, key string) {
	if key == "" {
		return
	}
	oldKey, hadKey := h.byIndex[index]
	if hadKey && oldKey == key {
		return
	}
	other, taken := h.byKey[key]

	if hadKey {
		delete(h.byKey, oldKey)
		delete(h.byIndex, index)
	}
	if taken {
		delete(h.byIndex, other)
		delete(h.byKey, key)
		if hadKey {
			h.bind(oldKey, other)
		}
	}
	h.bind(key, index)
}

// KeyFor returns the key bound to index.
func (h *Hotkeys) KeyFor(index int) (string, bool) {
	k, ok := h.byIndex[index]
	return k, ok
}

// IndexFor returns the index bound to key.
func (h *Hotkeys) IndexFor(key string) (int, bool) {
	i, ok := h.byKey[key]
	return i, ok
}

// Clone returns an independent copy.
func (h *Hotkeys) Clone() *Hotkeys {
	c := &Hotkeys{
		byKey:   make(map[string]int, len(h.byKey)),
		byIndex: make(map[int]string, len(h.byIndex)),
	}
	for k, v := range h.byKey {
		c.bind(k, v)
	}
	return c
}
