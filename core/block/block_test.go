package block

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBlockIDExcludesSignature(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	blk := &TrxBlock{
		BlockNum:  3,
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Trxs:      []SignedTransaction{{To: []byte{9}, Amount: 1, Timestamp: time.Unix(1700000000, 0).UTC()}},
	}
	before := blk.ID()
	blk.Sign(priv)
	require.Equal(t, before, blk.ID())
}

func TestTrusteeSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	other, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	blk := &TrxBlock{BlockNum: 1, Timestamp: time.Now().UTC()}
	require.False(t, blk.VerifyTrusteeSignature(pub))
	blk.Sign(priv)
	require.True(t, blk.VerifyTrusteeSignature(pub))
	require.False(t, blk.VerifyTrusteeSignature(other))
}

func TestTransactionSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	trx := SignedTransaction{From: pub, To: []byte{1}, Amount: 7, Timestamp: time.Now().UTC(), Memo: "m"}
	require.False(t, trx.VerifySignature())
	trx.Sign(priv)
	require.True(t, trx.VerifySignature())

	trx.Amount = 8 // payload change invalidates the signature
	require.False(t, trx.VerifySignature())
}

func TestSerializeRoundTrip(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	blk := &TrxBlock{
		BlockNum:  2,
		Timestamp: time.Unix(1700000123, 0).UTC(),
		Trxs:      []SignedTransaction{{To: []byte{4, 5}, Amount: 12, Timestamp: time.Unix(1700000123, 0).UTC()}},
	}
	blk.Sign(priv)

	data, err := blk.Serialize()
	require.NoError(t, err)
	got, err := Deserialize(data)
	require.NoError(t, err)
	require.Equal(t, blk.ID(), got.ID())
	require.Equal(t, blk.TrusteeSignature, got.TrusteeSignature)
}
