package client

import (
	"context"
	"fmt"
	"time"
)

// trusteeLoop mints a block whenever transactions are pending and enough
// time has passed since the last block. Cancellation is observed at each
// tick; production failures are logged and the loop carries on.
func (c *Client) trusteeLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	c.mu.Lock()
	head := c.chainDB.GetHeadBlock()
	if head.Timestamp.After(c.lastBlock) {
		c.lastBlock = head.Timestamp
	}
	c.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.produceIfDue(); err != nil {
			fmt.Printf("[TRUSTEE] error producing block?: %v\n", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.tick):
		}
	}
}

// produceIfDue takes a mempool snapshot and, when the production gates pass,
// builds, signs, broadcasts and (in Peer mode) self-applies one block. The
// last-block time only advances on full success.
func (c *Client) produceIfDue() error {
	c.mu.Lock()
	pending := c.pool.Snapshot()
	if len(pending) == 0 || c.now().Sub(c.lastBlock) <= c.blockInterval {
		c.mu.Unlock()
		return nil
	}

	blk, err := c.wallet.GenerateNextBlock(c.chainDB, pending)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	blk.Sign(c.trusteeKey)
	c.mu.Unlock()

	// Broadcast outside the state lock; transports do I/O.
	if err := c.transport.broadcastBlock(blk); err != nil {
		return err
	}
	if c.mode == Peer {
		// The p2p network will not send our own block back to us.
		if err := c.OnNewBlock(blk); err != nil {
			return err
		}
	}

	c.mu.Lock()
	if now := c.now(); now.After(c.lastBlock) {
		c.lastBlock = now
	}
	c.mu.Unlock()
	return nil
}

// LastBlockTime returns the production clock: the timestamp of the most
// recent block applied or produced.
func (c *Client) LastBlockTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastBlock
}
