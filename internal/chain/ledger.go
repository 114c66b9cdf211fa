package chain

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// ErrInsufficientBalance is returned when a debit would take an account
// balance below zero.
var ErrInsufficientBalance = errors.New("insufficient balance")

const (
	balancePrefix = "bal/"
	noncePrefix   = "non/"
)

// kv is the minimal read/write surface both storage.DB and storage.Txn
// satisfy, letting ledger operations run identically outside a transaction
// (genesis application, rebuild) and inside one (per-block application).
type kv interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Has(key []byte) (bool, error)
	ForEach(prefix []byte, fn func(key, value []byte) error) error
}

// Ledger is the account balance/nonce store: a thin, prefixed view over the
// chain's shared storage.DB. It holds no state of its own — every method
// reads and writes directly through the store — so it is safe to construct
// cheaply and to use both standalone and from within an active transaction
// via the package-level Ledger* helpers below.
type Ledger struct {
	db storage.DB
}

// NewLedger wraps db for standalone (non-transactional) balance/nonce access.
func NewLedger(db storage.DB) *Ledger {
	return &Ledger{db: db}
}

func balanceKey(addr types.Address) []byte {
	return append([]byte(balancePrefix), addr[:]...)
}

func nonceKey(addr types.Address) []byte {
	return append([]byte(noncePrefix), addr[:]...)
}

// Balance returns addr's balance, defaulting to zero for an unknown address.
func (l *Ledger) Balance(addr types.Address) (types.U128, error) {
	return LedgerBalance(l.db, addr)
}

// Nonce returns addr's next-expected nonce (0 for an address that has never sent).
func (l *Ledger) Nonce(addr types.Address) (uint64, error) {
	return LedgerNonce(l.db, addr)
}

// SetBalance directly sets addr's balance, bypassing nonce/signature checks.
func (l *Ledger) SetBalance(addr types.Address, bal types.U128) error {
	return LedgerSetBalance(l.db, addr, bal)
}

// Credit adds amount to addr's balance.
func (l *Ledger) Credit(addr types.Address, amount types.U128) error {
	return LedgerCredit(l.db, addr, amount)
}

// ForEachAccount iterates over every account with a stored balance entry
// (including one whose balance is zero); accounts with only a nonce entry
// are not visited.
func (l *Ledger) ForEachAccount(fn func(addr types.Address, bal types.U128) error) error {
	return l.db.ForEach([]byte(balancePrefix), func(key, value []byte) error {
		var addr types.Address
		copy(addr[:], key[len(balancePrefix):])
		return fn(addr, types.U128FromBytes(value))
	})
}

// LedgerBalance reads addr's balance through any kv (DB or an active Txn).
func LedgerBalance(store kv, addr types.Address) (types.U128, error) {
	val, err := store.Get(balanceKey(addr))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return types.U128{}, nil
		}
		return types.U128{}, err
	}
	return types.U128FromBytes(val), nil
}

// LedgerSetBalance writes addr's balance through any kv.
func LedgerSetBalance(store kv, addr types.Address, bal types.U128) error {
	return store.Put(balanceKey(addr), bal.Bytes())
}

// LedgerCredit adds amount to addr's balance through any kv.
func LedgerCredit(store kv, addr types.Address, amount types.U128) error {
	bal, err := LedgerBalance(store, addr)
	if err != nil {
		return err
	}
	return LedgerSetBalance(store, addr, bal.Add(amount))
}

// LedgerDebit subtracts amount from addr's balance through any kv. Returns
// ErrInsufficientBalance without modifying state if the balance would go
// negative.
func LedgerDebit(store kv, addr types.Address, amount types.U128) error {
	bal, err := LedgerBalance(store, addr)
	if err != nil {
		return err
	}
	newBal, ok := bal.Sub(amount)
	if !ok {
		return fmt.Errorf("%w: address %s has %s, need %s", ErrInsufficientBalance, addr, bal, amount)
	}
	return LedgerSetBalance(store, addr, newBal)
}

// LedgerNonce reads addr's next-expected nonce through any kv.
func LedgerNonce(store kv, addr types.Address) (uint64, error) {
	val, err := store.Get(nonceKey(addr))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if len(val) != 8 {
		return 0, fmt.Errorf("corrupt nonce entry for %s: %d bytes", addr, len(val))
	}
	var n uint64
	for i := 0; i < 8; i++ {
		n |= uint64(val[i]) << (8 * i)
	}
	return n, nil
}

// LedgerSetNonce writes addr's next-expected nonce through any kv.
func LedgerSetNonce(store kv, addr types.Address, nonce uint64) error {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(nonce >> (8 * i))
	}
	return store.Put(nonceKey(addr), b)
}
