package client

import (
	"fmt"

	"github.com/nikakhov/bitshares-toolkit/core/block"
	"github.com/nikakhov/bitshares-toolkit/core/chain"
	"github.com/nikakhov/bitshares-toolkit/core/net"
	"github.com/nikakhov/bitshares-toolkit/types/ids"
)

// The client implements net.Delegate for both transports. OnNewBlock and
// OnNewTransaction are the only writers of the chain and the mempool besides
// the trustee loop; all three serialize on c.mu.

// OnNewBlock applies a block regardless of which transport delivered it: the
// chain is updated, included transactions leave the mempool, and the wallet
// scans up to the new head. On a push failure nothing changes.
func (c *Client) OnNewBlock(blk *block.TrxBlock) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onNewBlockLocked(blk)
}

func (c *Client) onNewBlockLocked(blk *block.TrxBlock) error {
	if err := c.chainDB.PushBlock(blk); err != nil {
		fmt.Printf("[CLIENT] Error pushing block %d: %v\n", blk.BlockNum, err)
		return err
	}
	for i := range blk.Trxs {
		c.pool.Remove(blk.Trxs[i].ID())
	}
	if blk.Timestamp.After(c.lastBlock) {
		c.lastBlock = blk.Timestamp
	}
	if c.wallet != nil {
		if err := c.wallet.ScanChain(c.chainDB, blk.BlockNum); err != nil {
			// The block is applied either way; the wallet catches up on the
			// next scan.
			fmt.Printf("[CLIENT] Wallet scan after block %d failed: %v\n", blk.BlockNum, err)
		}
	}
	return nil
}

// OnNewTransaction evaluates a transaction against the current head and, if
// valid, admits it to the mempool. Evaluation failures propagate to the
// transport; the mempool is untouched. Duplicates are ignored.
func (c *Client) OnNewTransaction(trx *block.SignedTransaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.chainDB.EvaluateTransaction(trx); err != nil {
		return err
	}
	if c.pool.Insert(*trx) {
		fmt.Println("[CLIENT] new transaction")
	} else {
		fmt.Println("[CLIENT] duplicate transaction, ignoring")
	}
	return nil
}

// HasItem always answers false; peers fall back to GetItem. The extra
// traffic is tolerated by the sync protocol.
func (c *Client) HasItem(id net.ItemID) bool {
	return false
}

// HandleMessage dispatches an inbound wire message on its tag. Unknown tags
// are ignored.
func (c *Client) HandleMessage(msg net.Message) error {
	switch msg.Type {
	case net.BlockMessageType:
		bm, err := msg.AsBlockMessage()
		if err != nil {
			return err
		}
		fmt.Printf("[CLIENT] just received block %s\n", bm.BlockID)
		return c.OnNewBlock(&bm.Block)
	case net.TrxMessageType:
		tm, err := msg.AsTrxMessage()
		if err != nil {
			return err
		}
		return c.OnNewTransaction(&tm.Trx)
	}
	return nil
}

// GetItemIDs answers a p2p sync query: the IDs of up to limit blocks
// following from, ascending, plus how many remain after those. A zero from
// hash means "from genesis"; an unknown non-zero hash means the peer is on a
// fork we cannot serve and gets an empty answer.
func (c *Client) GetItemIDs(from net.ItemID, limit uint32) ([]ids.ID, uint32, error) {
	if from.Type != net.BlockMessageType {
		return nil, 0, fmt.Errorf("%w: get_item_ids wants a block item, got type %d", net.ErrPrecondition, from.Type)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	head := c.chainDB.HeadBlockNum()

	var next, remaining uint32
	if from.Hash.IsZero() {
		if head == chain.EmptyChainHead {
			return nil, 0, nil
		}
		next = 0
		remaining = head + 1
	} else {
		lastSeen, err := c.chainDB.FetchBlockNum(from.Hash)
		if err != nil {
			return nil, 0, nil // unknown fork point: nothing to serve
		}
		next = lastSeen + 1
		remaining = head - lastSeen
	}

	count := remaining
	if limit < count {
		count = limit
	}
	hashes := make([]ids.ID, 0, count)
	for i := uint32(0); i < count; i++ {
		header, err := c.chainDB.FetchBlock(next)
		if err != nil {
			return nil, 0, fmt.Errorf("client: height index hole at %d: %w", next, err)
		}
		hashes = append(hashes, header.BlockID)
		next++
	}
	return hashes, remaining - count, nil
}

// GetItem produces the wire message for a block (from the chain) or a
// pending transaction (from the mempool).
func (c *Client) GetItem(id net.ItemID) (net.Message, error) {
	switch id.Type {
	case net.BlockMessageType:
		c.mu.Lock()
		defer c.mu.Unlock()
		num, err := c.chainDB.FetchBlockNum(id.Hash)
		if err != nil {
			return net.Message{}, net.ErrNotFound
		}
		blk, err := c.chainDB.FetchTrxBlock(num)
		if err != nil {
			return net.Message{}, net.ErrNotFound
		}
		bm := net.BlockMessage{BlockID: blk.ID(), Block: *blk, Signature: blk.TrusteeSignature}
		if bm.BlockID != id.Hash {
			return net.Message{}, fmt.Errorf("client: block %d hashes to %s, expected %s", num, bm.BlockID, id.Hash)
		}
		return net.NewBlockMessage(bm), nil
	case net.TrxMessageType:
		if trx, ok := c.pool.Lookup(id.Hash); ok {
			return net.NewTrxMessage(net.TrxMessage{Trx: trx}), nil
		}
	}
	return net.Message{}, net.ErrNotFound
}

// SyncStatus is informational only.
func (c *Client) SyncStatus(itemType net.MsgType, count uint32) {}

// ConnectionCountChanged is informational only.
func (c *Client) ConnectionCountChanged(count int) {}
