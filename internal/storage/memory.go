package storage

import (
	"strings"
	"sync"
)

// MemoryDB implements DB using an in-memory map. It is used by tests and by
// the cmd/testnet harness.
type MemoryDB struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemory creates a new in-memory database.
func NewMemory() *MemoryDB {
	return &MemoryDB{
		data: make(map[string][]byte),
	}
}

// Get retrieves a value by key.
func (m *MemoryDB) Get(key []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return v, nil
}

// Put stores a key-value pair.
func (m *MemoryDB) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = value
	return nil
}

// Delete removes a key.
func (m *MemoryDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

// Has checks if a key exists.
func (m *MemoryDB) Has(key []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

// ForEach iterates over all keys with the given prefix.
func (m *MemoryDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	m.mu.Lock()
	snapshot := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		snapshot[k] = v
	}
	m.mu.Unlock()

	p := string(prefix)
	for k, v := range snapshot {
		if strings.HasPrefix(k, p) {
			if err := fn([]byte(k), v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes the database.
func (m *MemoryDB) Close() error {
	return nil
}

// Update runs fn against a staged write set, holding the store lock for the
// duration so concurrent Update/View calls serialize. Writes are discarded
// if fn returns a non-nil error.
func (m *MemoryDB) Update(fn func(txn Txn) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &memoryTxn{db: m, staged: make(map[string][]byte), deleted: make(map[string]bool)}
	if err := fn(t); err != nil {
		return err
	}
	for k, v := range t.staged {
		m.data[k] = v
	}
	for k := range t.deleted {
		delete(m.data, k)
	}
	return nil
}

// View runs fn against a read-only snapshot.
func (m *MemoryDB) View(fn func(txn Txn) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memoryTxn{db: m, staged: make(map[string][]byte), deleted: make(map[string]bool)})
}

// NewBatch returns a batch that applies all writes atomically on Commit.
func (m *MemoryDB) NewBatch() Batch {
	return &memoryBatch{db: m, staged: make(map[string][]byte), deleted: make(map[string]bool)}
}

// memoryTxn layers staged writes over the live map so reads inside the
// same transaction see its own uncommitted writes before they land.
type memoryTxn struct {
	db      *MemoryDB
	staged  map[string][]byte
	deleted map[string]bool
}

func (t *memoryTxn) Get(key []byte) ([]byte, error) {
	k := string(key)
	if t.deleted[k] {
		return nil, ErrKeyNotFound
	}
	if v, ok := t.staged[k]; ok {
		return v, nil
	}
	v, ok := t.db.data[k]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return v, nil
}

func (t *memoryTxn) Put(key, value []byte) error {
	k := string(key)
	delete(t.deleted, k)
	t.staged[k] = value
	return nil
}

func (t *memoryTxn) Delete(key []byte) error {
	k := string(key)
	delete(t.staged, k)
	t.deleted[k] = true
	return nil
}

func (t *memoryTxn) Has(key []byte) (bool, error) {
	_, err := t.Get(key)
	if err == ErrKeyNotFound {
		return false, nil
	}
	return err == nil, err
}

func (t *memoryTxn) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	p := string(prefix)
	seen := make(map[string]bool)
	for k, v := range t.staged {
		if strings.HasPrefix(k, p) {
			seen[k] = true
			if err := fn([]byte(k), v); err != nil {
				return err
			}
		}
	}
	for k, v := range t.db.data {
		if seen[k] || t.deleted[k] {
			continue
		}
		if strings.HasPrefix(k, p) {
			if err := fn([]byte(k), v); err != nil {
				return err
			}
		}
	}
	return nil
}

// memoryBatch buffers writes for a single atomic application to MemoryDB.
type memoryBatch struct {
	db      *MemoryDB
	staged  map[string][]byte
	deleted map[string]bool
}

func (b *memoryBatch) Put(key, value []byte) error {
	k := string(key)
	delete(b.deleted, k)
	b.staged[k] = value
	return nil
}

func (b *memoryBatch) Delete(key []byte) error {
	k := string(key)
	delete(b.staged, k)
	b.deleted[k] = true
	return nil
}

func (b *memoryBatch) Commit() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for k, v := range b.staged {
		b.db.data[k] = v
	}
	for k := range b.deleted {
		delete(b.db.data, k)
	}
	return nil
}
