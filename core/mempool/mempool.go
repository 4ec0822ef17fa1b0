package mempool

import (
	"sync"

	"github.com/nikakhov/bitshares-toolkit/core/block"
	"github.com/nikakhov/bitshares-toolkit/types/ids"
)

// Pool holds pending validated transactions not yet included in any applied
// block, keyed by transaction ID. Callers validate before inserting; the
// pool itself only deduplicates.
type Pool struct {
	mu    sync.Mutex
	txs   map[ids.ID]block.SignedTransaction
	order []ids.ID // insertion order, for stable snapshots
}

// NewPool creates an empty pool
func NewPool() *Pool {
	return &Pool{
		txs:   make(map[ids.ID]block.SignedTransaction),
		order: make([]ids.ID, 0),
	}
}

// Insert adds a transaction and reports whether it was newly added. A
// duplicate (by ID) leaves the pool unchanged and returns false.
func (p *Pool) Insert(trx block.SignedTransaction) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := trx.ID()
	if _, exists := p.txs[id]; exists {
		return false
	}
	p.txs[id] = trx
	p.order = append(p.order, id)
	return true
}

// Remove deletes a transaction by ID. Absence is not an error.
func (p *Pool) Remove(id ids.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.txs[id]; !exists {
		return
	}
	delete(p.txs, id)
	for i, cur := range p.order {
		if cur == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Lookup returns a transaction by ID (and bool for existence)
func (p *Pool) Lookup(id ids.ID) (block.SignedTransaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	trx, ok := p.txs[id]
	return trx, ok
}

// Snapshot returns all pending transactions in insertion order, suitable as
// input to block assembly.
func (p *Pool) Snapshot() []block.SignedTransaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	txs := make([]block.SignedTransaction, 0, len(p.txs))
	for _, id := range p.order {
		txs = append(txs, p.txs[id])
	}
	return txs
}

// Size returns the number of pending transactions.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.txs)
}
