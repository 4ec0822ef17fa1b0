package chain

import (
	"crypto/ed25519"
	"crypto/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nikakhov/bitshares-toolkit/core/block"
	"github.com/nikakhov/bitshares-toolkit/core/storage"
	"github.com/nikakhov/bitshares-toolkit/types/ids"
)

type fixture struct {
	chain       *ChainDB
	store       *storage.Storage
	trusteePub  ed25519.PublicKey
	trusteePriv ed25519.PrivateKey
	alicePub    ed25519.PublicKey
	alicePriv   ed25519.PrivateKey
	bobPub      ed25519.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	trusteePub, trusteePriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	alicePub, alicePriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	bobPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "chaindb"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	c, err := NewChainDB(store, trusteePub)
	require.NoError(t, err)

	return &fixture{
		chain:       c,
		store:       store,
		trusteePub:  trusteePub,
		trusteePriv: trusteePriv,
		alicePub:    alicePub,
		alicePriv:   alicePriv,
		bobPub:      bobPub,
	}
}

func (f *fixture) genesisBlock(amount uint64) *block.TrxBlock {
	return &block.TrxBlock{
		BlockNum:  0,
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Trxs: []block.SignedTransaction{
			{To: f.alicePub, Amount: amount, Timestamp: time.Unix(1700000000, 0).UTC()},
		},
	}
}

func (f *fixture) transfer(amount uint64, memo string) block.SignedTransaction {
	trx := block.SignedTransaction{
		From:      f.alicePub,
		To:        f.bobPub,
		Amount:    amount,
		Timestamp: time.Now().UTC(),
		Memo:      memo,
	}
	trx.Sign(f.alicePriv)
	return trx
}

func (f *fixture) nextBlock(t *testing.T, trxs ...block.SignedTransaction) *block.TrxBlock {
	t.Helper()
	blk := &block.TrxBlock{
		BlockNum:  f.chain.HeadBlockNum() + 1,
		PrevBlock: f.chain.HeadBlockID(),
		Timestamp: time.Now().UTC(),
		Trxs:      trxs,
	}
	blk.Sign(f.trusteePriv)
	return blk
}

func TestEmptyChainHeadAccessors(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, EmptyChainHead, f.chain.HeadBlockNum())
	require.Equal(t, ids.Empty, f.chain.HeadBlockID())
}

func TestPushGenesisAndTransfer(t *testing.T) {
	f := newFixture(t)
	gen := f.genesisBlock(1000)
	require.NoError(t, f.chain.PushBlock(gen))
	require.Equal(t, uint32(0), f.chain.HeadBlockNum())
	require.Equal(t, gen.ID(), f.chain.HeadBlockID())
	require.Equal(t, uint64(1000), f.chain.BalanceOf(f.alicePub))

	blk := f.nextBlock(t, f.transfer(400, "rent"))
	require.NoError(t, f.chain.PushBlock(blk))
	require.Equal(t, uint32(1), f.chain.HeadBlockNum())
	require.Equal(t, uint64(600), f.chain.BalanceOf(f.alicePub))
	require.Equal(t, uint64(400), f.chain.BalanceOf(f.bobPub))
}

func TestEvaluateTransaction(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.chain.PushBlock(f.genesisBlock(100)))

	valid := f.transfer(50, "ok")
	require.NoError(t, f.chain.EvaluateTransaction(&valid))

	broke := f.transfer(500, "too much")
	err := f.chain.EvaluateTransaction(&broke)
	require.ErrorIs(t, err, ErrInvalidTransaction)

	forged := f.transfer(10, "forged")
	forged.Signature = []byte("nope")
	require.ErrorIs(t, f.chain.EvaluateTransaction(&forged), ErrInvalidTransaction)

	mint := block.SignedTransaction{To: f.bobPub, Amount: 1, Timestamp: time.Now().UTC()}
	require.ErrorIs(t, f.chain.EvaluateTransaction(&mint), ErrInvalidTransaction)
}

func TestPushBlockRejections(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.chain.PushBlock(f.genesisBlock(100)))
	headID := f.chain.HeadBlockID()

	wrongNum := f.nextBlock(t, f.transfer(1, "a"))
	wrongNum.BlockNum = 7
	wrongNum.Sign(f.trusteePriv)
	require.ErrorIs(t, f.chain.PushBlock(wrongNum), ErrInvalidBlock)

	wrongPrev := f.nextBlock(t, f.transfer(1, "b"))
	wrongPrev.PrevBlock = ids.NewID([]byte("elsewhere"))
	wrongPrev.Sign(f.trusteePriv)
	require.ErrorIs(t, f.chain.PushBlock(wrongPrev), ErrInvalidBlock)

	unsigned := f.nextBlock(t, f.transfer(1, "c"))
	unsigned.TrusteeSignature = nil
	require.ErrorIs(t, f.chain.PushBlock(unsigned), ErrInvalidBlock)

	overdraft := f.nextBlock(t, f.transfer(10000, "d"))
	require.ErrorIs(t, f.chain.PushBlock(overdraft), ErrInvalidBlock)

	// every rejection leaves the chain untouched
	require.Equal(t, uint32(0), f.chain.HeadBlockNum())
	require.Equal(t, headID, f.chain.HeadBlockID())
	require.Equal(t, uint64(100), f.chain.BalanceOf(f.alicePub))
}

func TestFetchers(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.chain.PushBlock(f.genesisBlock(100)))
	blk1 := f.nextBlock(t, f.transfer(10, "x"))
	require.NoError(t, f.chain.PushBlock(blk1))

	num, err := f.chain.FetchBlockNum(blk1.ID())
	require.NoError(t, err)
	require.Equal(t, uint32(1), num)

	_, err = f.chain.FetchBlockNum(ids.NewID([]byte("unknown")))
	require.ErrorIs(t, err, ErrNotFound)

	header, err := f.chain.FetchBlock(1)
	require.NoError(t, err)
	require.Equal(t, blk1.ID(), header.BlockID)
	require.Equal(t, blk1.TrusteeSignature, header.TrusteeSignature)

	full, err := f.chain.FetchTrxBlock(1)
	require.NoError(t, err)
	require.Len(t, full.Trxs, 1)

	_, err = f.chain.FetchTrxBlock(9)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReplayOnReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "chaindb")
	store, err := storage.NewStorage(dir)
	require.NoError(t, err)

	f := newFixture(t)
	// rebuild the fixture on the shared store
	c, err := NewChainDB(store, f.trusteePub)
	require.NoError(t, err)
	f.chain = c
	require.NoError(t, f.chain.PushBlock(f.genesisBlock(100)))
	require.NoError(t, f.chain.PushBlock(f.nextBlock(t, f.transfer(30, "q"))))
	headID := f.chain.HeadBlockID()
	require.NoError(t, store.Close())

	store2, err := storage.NewStorage(dir)
	require.NoError(t, err)
	defer store2.Close()
	reopened, err := NewChainDB(store2, f.trusteePub)
	require.NoError(t, err)
	require.Equal(t, uint32(1), reopened.HeadBlockNum())
	require.Equal(t, headID, reopened.HeadBlockID())
	require.Equal(t, uint64(70), reopened.BalanceOf(f.alicePub))
	require.Equal(t, uint64(30), reopened.BalanceOf(f.bobPub))

	_, err = reopened.FetchTrxBlock(2)
	require.ErrorIs(t, err, ErrNotFound)
}
