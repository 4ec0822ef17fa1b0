package chain

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/nikakhov/bitshares-toolkit/core/block"
	"github.com/nikakhov/bitshares-toolkit/core/storage"
	"github.com/nikakhov/bitshares-toolkit/types/ids"
)

// EmptyChainHead is the head block number of an empty chain. Unsigned
// wraparound makes the expected successor of an empty chain block 0.
const EmptyChainHead = uint32(math.MaxUint32)

var (
	// ErrNotFound is returned for unknown block hashes or heights.
	ErrNotFound = errors.New("chain: block not found")
	// ErrInvalidBlock is wrapped by all push failures.
	ErrInvalidBlock = errors.New("chain: invalid block")
	// ErrInvalidTransaction is wrapped by all evaluation failures.
	ErrInvalidTransaction = errors.New("chain: invalid transaction")
)

// ChainDB is the chain database: an append-only block sequence backed by
// LevelDB plus the account balance state derived from it. On open, state is
// rebuilt by replaying every stored block through the height index.
type ChainDB struct {
	mu         sync.Mutex
	store      *storage.Storage
	trusteePub ed25519.PublicKey

	headNum   uint32 // EmptyChainHead when no blocks applied
	headID    ids.ID
	headBlock block.TrxBlock
	balances  map[string]uint64
}

// NewChainDB opens the chain over store. trusteePub, when non-nil, is
// required to have signed every non-genesis block.
func NewChainDB(store *storage.Storage, trusteePub ed25519.PublicKey) (*ChainDB, error) {
	c := &ChainDB{
		store:      store,
		trusteePub: trusteePub,
		headNum:    EmptyChainHead,
		balances:   make(map[string]uint64),
	}
	if err := c.replay(); err != nil {
		return nil, err
	}
	return c, nil
}

// replay rebuilds head and balances from storage, walking the height index
// from genesis upward.
func (c *ChainDB) replay() error {
	for height := uint32(0); ; height++ {
		blk, err := c.store.GetBlockByHeight(height)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				break
			}
			return err
		}
		staged, err := c.applyTrxs(blk, c.balances)
		if err != nil {
			return fmt.Errorf("replay height %d: %w", height, err)
		}
		c.balances = staged
		c.headNum = blk.BlockNum
		c.headID = blk.ID()
		c.headBlock = *blk
	}
	if c.headNum != EmptyChainHead {
		fmt.Printf("[RECOVERY] Chain head restored: height %d, block %s\n", c.headNum, c.headID)
	}
	return nil
}

// PushBlock validates blk against the current head and applies it. On any
// failure the chain state is untouched.
func (c *ChainDB) PushBlock(blk *block.TrxBlock) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if blk.BlockNum != c.headNum+1 { // wraps to 0 on an empty chain
		return fmt.Errorf("%w: block num %d does not follow head %d", ErrInvalidBlock, blk.BlockNum, c.headNum)
	}
	if blk.PrevBlock != c.headID {
		return fmt.Errorf("%w: prev block %s does not match head %s", ErrInvalidBlock, blk.PrevBlock, c.headID)
	}
	if blk.BlockNum > 0 && c.trusteePub != nil && !blk.VerifyTrusteeSignature(c.trusteePub) {
		return fmt.Errorf("%w: bad trustee signature on block %d", ErrInvalidBlock, blk.BlockNum)
	}

	staged, err := c.applyTrxs(blk, c.balances)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBlock, err)
	}
	if err := c.store.SaveBlock(blk); err != nil {
		return fmt.Errorf("%w: persist failed: %v", ErrInvalidBlock, err)
	}

	c.balances = staged
	c.headNum = blk.BlockNum
	c.headID = blk.ID()
	c.headBlock = *blk
	return nil
}

// applyTrxs evaluates every transaction in blk against a staged copy of the
// balances and returns the copy; the live map is never touched.
func (c *ChainDB) applyTrxs(blk *block.TrxBlock, balances map[string]uint64) (map[string]uint64, error) {
	staged := make(map[string]uint64, len(balances))
	for k, v := range balances {
		staged[k] = v
	}
	for i := range blk.Trxs {
		trx := &blk.Trxs[i]
		if trx.IsMint() {
			if blk.BlockNum != 0 {
				return nil, fmt.Errorf("mint transaction outside genesis block")
			}
			staged[hex.EncodeToString(trx.To)] += trx.Amount
			continue
		}
		if err := evaluateAgainst(trx, staged); err != nil {
			return nil, err
		}
		staged[hex.EncodeToString(trx.From)] -= trx.Amount
		staged[hex.EncodeToString(trx.To)] += trx.Amount
	}
	return staged, nil
}

// EvaluateTransaction checks a transaction against the current head state
// without applying it. It returns an error wrapping ErrInvalidTransaction
// when the transaction cannot be included as-is.
func (c *ChainDB) EvaluateTransaction(trx *block.SignedTransaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if trx.IsMint() {
		return fmt.Errorf("%w: mint outside genesis", ErrInvalidTransaction)
	}
	return evaluateAgainst(trx, c.balances)
}

func evaluateAgainst(trx *block.SignedTransaction, balances map[string]uint64) error {
	if !trx.VerifySignature() {
		return fmt.Errorf("%w: bad signature on %s", ErrInvalidTransaction, trx.ID())
	}
	if balances[hex.EncodeToString(trx.From)] < trx.Amount {
		return fmt.Errorf("%w: insufficient funds for %s", ErrInvalidTransaction, trx.ID())
	}
	return nil
}

// GetHeadBlock returns the most recently applied block. Its timestamp
// defines "now" for production decisions; on an empty chain the zero block
// is returned.
func (c *ChainDB) GetHeadBlock() block.TrxBlock {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headBlock
}

// HeadBlockNum returns the head height, or EmptyChainHead when no block has
// been applied.
func (c *ChainDB) HeadBlockNum() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headNum
}

// HeadBlockID returns the head block ID, or the empty ID on an empty chain.
func (c *ChainDB) HeadBlockID() ids.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headID
}

// FetchBlockNum resolves a block ID to its height.
func (c *ChainDB) FetchBlockNum(hash ids.ID) (uint32, error) {
	blk, err := c.store.GetBlock(hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return blk.BlockNum, nil
}

// FetchBlock returns the header of the block at the given height.
func (c *ChainDB) FetchBlock(num uint32) (block.BlockHeader, error) {
	blk, err := c.FetchTrxBlock(num)
	if err != nil {
		return block.BlockHeader{}, err
	}
	return blk.Header(), nil
}

// FetchTrxBlock returns the full block at the given height.
func (c *ChainDB) FetchTrxBlock(num uint32) (*block.TrxBlock, error) {
	blk, err := c.store.GetBlockByHeight(num)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return blk, nil
}

// BalanceOf returns the confirmed balance of an Ed25519 public key.
func (c *ChainDB) BalanceOf(pub []byte) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[hex.EncodeToString(pub)]
}
