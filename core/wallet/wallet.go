package wallet

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/nikakhov/bitshares-toolkit/core/block"
	"github.com/nikakhov/bitshares-toolkit/core/chain"
	"github.com/nikakhov/bitshares-toolkit/types/ids"
)

// Entry records a transfer touching a tracked key, found while scanning.
type Entry struct {
	TrxID    ids.ID
	BlockNum uint32
	Amount   uint64
	Incoming bool
}

// Wallet tracks a set of Ed25519 keys, assembles candidate blocks from
// pending transactions, and keeps its view of the chain current by scanning
// applied blocks.
type Wallet struct {
	mu          sync.Mutex
	tracked     map[string]ed25519.PrivateKey // hex pubkey -> privkey (nil for watch-only)
	history     []Entry
	lastScanned uint32 // chain.EmptyChainHead before the first scan
}

// NewWallet creates an empty wallet
func NewWallet() *Wallet {
	return &Wallet{
		tracked:     make(map[string]ed25519.PrivateKey),
		lastScanned: chain.EmptyChainHead,
	}
}

// Track registers a keypair with the wallet. A nil private key tracks the
// address watch-only.
func (w *Wallet) Track(pub ed25519.PublicKey, priv ed25519.PrivateKey) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tracked[hex.EncodeToString(pub)] = priv
}

// NewTransaction builds and signs a transfer from a tracked key.
func (w *Wallet) NewTransaction(from ed25519.PublicKey, to []byte, amount uint64, memo string) (*block.SignedTransaction, error) {
	w.mu.Lock()
	priv, ok := w.tracked[hex.EncodeToString(from)]
	w.mu.Unlock()
	if !ok || priv == nil {
		return nil, fmt.Errorf("wallet: no signing key for %x", from)
	}
	trx := &block.SignedTransaction{
		From:      from,
		To:        to,
		Amount:    amount,
		Timestamp: time.Now().UTC(),
		Memo:      memo,
	}
	trx.Sign(priv)
	return trx, nil
}

// GenerateNextBlock assembles a candidate block on top of the chain head
// from the pending set. The caller signs and broadcasts it.
func (w *Wallet) GenerateNextBlock(c *chain.ChainDB, pending []block.SignedTransaction) (*block.TrxBlock, error) {
	if len(pending) == 0 {
		return nil, fmt.Errorf("wallet: no pending transactions to include")
	}
	blk := &block.TrxBlock{
		BlockNum:  c.HeadBlockNum() + 1, // wraps to 0 on an empty chain
		PrevBlock: c.HeadBlockID(),
		Timestamp: time.Now().UTC(),
		Trxs:      pending,
	}
	return blk, nil
}

// ScanChain walks applied blocks up to upToBlockNum and records transfers
// touching tracked keys. Already-scanned heights are skipped.
func (w *Wallet) ScanChain(c *chain.ChainDB, upToBlockNum uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if upToBlockNum == chain.EmptyChainHead {
		return nil // empty chain, nothing to scan
	}
	for w.lastScanned != upToBlockNum {
		num := w.lastScanned + 1
		blk, err := c.FetchTrxBlock(num)
		if err != nil {
			return fmt.Errorf("wallet: scan stopped at block %d: %w", num, err)
		}
		for i := range blk.Trxs {
			trx := &blk.Trxs[i]
			if _, ok := w.tracked[hex.EncodeToString(trx.To)]; ok {
				w.history = append(w.history, Entry{TrxID: trx.ID(), BlockNum: num, Amount: trx.Amount, Incoming: true})
			}
			if len(trx.From) > 0 {
				if _, ok := w.tracked[hex.EncodeToString(trx.From)]; ok {
					w.history = append(w.history, Entry{TrxID: trx.ID(), BlockNum: num, Amount: trx.Amount, Incoming: false})
				}
			}
		}
		w.lastScanned = num
	}
	return nil
}

// History returns the transfers recorded so far, oldest first.
func (w *Wallet) History() []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Entry, len(w.history))
	copy(out, w.history)
	return out
}

// LastScanned returns the height of the most recently scanned block, or
// chain.EmptyChainHead when nothing has been scanned.
func (w *Wallet) LastScanned() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastScanned
}
