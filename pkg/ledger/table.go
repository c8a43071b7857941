package ledger

// Table is a key-value mapping whose writes are journaled by the Tx they are
// made in. Stored values must be treated as immutable: replace, never mutate.
type Table[K comparable, V any] struct {
	rows map[K]V
}

// NewTable creates an empty table
func NewTable[K comparable, V any]() *Table[K, V] {
	return &Table[K, V]{rows: make(map[K]V)}
}

// Get returns the value stored under key
func (t *Table[K, V]) Get(tx *Tx, key K) (V, bool) {
	v, ok := t.rows[key]
	return v, ok
}

// Has reports whether key is present
func (t *Table[K, V]) Has(tx *Tx, key K) bool {
	_, ok := t.rows[key]
	return ok
}

// Set stores val under key
func (t *Table[K, V]) Set(tx *Tx, key K, val V) {
	tx.mustWrite()
	prev, existed := t.rows[key]
	tx.record(func() {
		if existed {
			t.rows[key] = prev
		} else {
			delete(t.rows, key)
		}
	})
	t.rows[key] = val
}

// TestAndSet stores val only if key is absent and reports whether it did
func (t *Table[K, V]) TestAndSet(tx *Tx, key K, val V) bool {
	if _, ok := t.rows[key]; ok {
		return false
	}
	t.Set(tx, key, val)
	return true
}

// Len returns the number of rows
func (t *Table[K, V]) Len(tx *Tx) int {
	return len(t.rows)
}

// Range calls fn for every row until fn returns false. Order is unspecified.
func (t *Table[K, V]) Range(tx *Tx, fn func(key K, val V) bool) {
	for k, v := range t.rows {
		if !fn(k, v) {
			return
		}
	}
}
