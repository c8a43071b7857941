// Package ledger is the serialized execution environment the settlement
// engines run on. Every state change happens inside an atomic unit: either all
// writes and events of the unit are kept or none are.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrTxClosed is returned when a transaction handle is used after its unit ended
	ErrTxClosed = errors.New("transaction already closed")
	// ErrReadOnly is returned for writes inside View
	ErrReadOnly = errors.New("write in read-only view")
)

// Event is an entry of the append-only event log
type Event interface {
	Name() string
}

// Ledger holds all durable state and serializes access to it
type Ledger struct {
	mu     sync.Mutex
	clock  Clock
	events []Event
	height uint64

	contractsMu sync.RWMutex
	contracts   map[common.Address]interface{}

	balances   *Table[balanceKey, *big.Int]
	allowances *Table[allowanceKey, *big.Int]
}

// New creates an empty ledger driven by clock
func New(clock Clock) *Ledger {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Ledger{
		clock:      clock,
		contracts:  make(map[common.Address]interface{}),
		balances:   NewTable[balanceKey, *big.Int](),
		allowances: NewTable[allowanceKey, *big.Int](),
	}
}

// Now returns the current block timestamp
func (l *Ledger) Now() uint64 {
	return l.clock.Now()
}

// Atomic runs fn as one unit. If fn returns an error or panics every write it
// made is undone and its events are dropped.
func (l *Ledger) Atomic(fn func(tx *Tx) error) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &Tx{ledger: l, now: l.clock.Now()}
	committed := false
	defer func() {
		if !committed {
			tx.revert()
		}
		tx.closed = true
	}()

	if err = fn(tx); err != nil {
		return err
	}

	l.events = append(l.events, tx.events...)
	l.height++
	committed = true
	return nil
}

// View runs fn against the current state without allowing writes
func (l *Ledger) View(fn func(tx *Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &Tx{ledger: l, now: l.clock.Now(), readOnly: true}
	defer func() {
		tx.revert()
		tx.closed = true
	}()
	return fn(tx)
}

// Height is the number of committed units
func (l *Ledger) Height() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height
}

// Events returns a copy of the committed event log
func (l *Ledger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// EventsSince returns committed events starting at index from
func (l *Ledger) EventsSince(from int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if from >= len(l.events) {
		return nil
	}
	out := make([]Event, len(l.events)-from)
	copy(out, l.events[from:])
	return out
}

// Deploy registers a contract capability at addr
func (l *Ledger) Deploy(addr common.Address, contract interface{}) error {
	l.contractsMu.Lock()
	defer l.contractsMu.Unlock()
	if _, exists := l.contracts[addr]; exists {
		return fmt.Errorf("contract already deployed at %s", addr.Hex())
	}
	l.contracts[addr] = contract
	return nil
}

// ContractAt returns the contract registered at addr
func (l *Ledger) ContractAt(addr common.Address) (interface{}, bool) {
	l.contractsMu.RLock()
	defer l.contractsMu.RUnlock()
	c, ok := l.contracts[addr]
	return c, ok
}

// Tx is a handle on the unit in progress. It is only valid inside the
// Atomic or View callback that created it.
type Tx struct {
	ledger   *Ledger
	now      uint64
	journal  []func()
	events   []Event
	readOnly bool
	closed   bool
}

// Now is the block timestamp the unit executes at
func (tx *Tx) Now() uint64 {
	return tx.now
}

// Emit appends an event, kept only if the unit commits
func (tx *Tx) Emit(ev Event) {
	tx.mustWrite()
	tx.events = append(tx.events, ev)
}

// ContractAt resolves a contract capability by address
func (tx *Tx) ContractAt(addr common.Address) (interface{}, bool) {
	return tx.ledger.ContractAt(addr)
}

func (tx *Tx) record(undo func()) {
	tx.journal = append(tx.journal, undo)
}

func (tx *Tx) mustWrite() {
	if tx.closed {
		panic(ErrTxClosed)
	}
	if tx.readOnly {
		panic(ErrReadOnly)
	}
}

func (tx *Tx) revert() {
	for i := len(tx.journal) - 1; i >= 0; i-- {
		tx.journal[i]()
	}
	tx.journal = nil
	tx.events = nil
}
