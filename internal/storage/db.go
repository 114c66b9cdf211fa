// Package storage provides the key-value database abstraction the chain,
// mempool, and receipts log are built on.
package storage

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error

	// Update runs fn within a single read-write transaction. All reads and
	// writes made through txn are applied atomically if fn returns nil;
	// any error (fn's own or the commit's) rolls back every write. Block
	// application uses this to update balances, nonces, receipts, and the
	// block index as one unit.
	Update(fn func(txn Txn) error) error
	// View runs fn within a read-only, point-in-time transaction.
	View(fn func(txn Txn) error) error
}

// Txn is a single logical transaction over the store, handed to the
// callback passed to DB.Update or DB.View.
type Txn interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	ForEach(prefix []byte, fn func(key, value []byte) error) error
}

// Batch buffers writes for a single atomic commit, for callers that build
// up keys incrementally outside of a Txn callback shape.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
}

// Batcher is implemented by DBs that can hand out a Batch.
type Batcher interface {
	NewBatch() Batch
}

// ErrKeyNotFound is returned by Get when the key is absent. Callers that
// need "absent means zero" semantics (balances, nonces) should treat this
// specifically rather than inspecting error text.
var ErrKeyNotFound = errKeyNotFound{}

type errKeyNotFound struct{}

func (errKeyNotFound) Error() string { return "key not found" }
