package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nikakhov/bitshares-toolkit/core/block"
	"github.com/nikakhov/bitshares-toolkit/types/ids"
)

func TestSaveAndLookupBlock(t *testing.T) {
	s, err := NewStorage(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer s.Close()

	ok, err := s.HasGenesisBlock()
	require.NoError(t, err)
	require.False(t, ok)

	blk := &block.TrxBlock{
		BlockNum:  0,
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Trxs: []block.SignedTransaction{
			{To: []byte{1, 2, 3}, Amount: 42, Timestamp: time.Unix(1700000000, 0).UTC()},
		},
	}
	require.NoError(t, s.SaveBlock(blk))

	got, err := s.GetBlock(blk.ID())
	require.NoError(t, err)
	require.Equal(t, blk.ID(), got.ID())

	byHeight, err := s.GetBlockByHeight(0)
	require.NoError(t, err)
	require.Equal(t, blk.ID(), byHeight.ID())

	id, err := s.GetBlockIDByHeight(0)
	require.NoError(t, err)
	require.Equal(t, blk.ID(), id)

	ok, err = s.HasGenesisBlock()
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.GetBlock(ids.NewID([]byte("missing")))
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetBlockByHeight(5)
	require.ErrorIs(t, err, ErrNotFound)
}
