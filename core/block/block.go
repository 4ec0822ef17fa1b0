package block

import (
	"crypto/ed25519"
	"encoding/json"
	"time"

	"github.com/nikakhov/bitshares-toolkit/types/ids"
)

// TrxBlock is a full block: an ordered list of signed transactions plus the
// header fields linking it into the chain. The trustee signature covers the
// block ID and is excluded from it, so signing does not change the ID.
type TrxBlock struct {
	BlockNum         uint32              `json:"blockNum"` // Height (genesis = 0)
	PrevBlock        ids.ID              `json:"prevBlock"`
	Timestamp        time.Time           `json:"timestamp"`
	Trxs             []SignedTransaction `json:"trxs"`
	TrusteeSignature []byte              `json:"trusteeSignature,omitempty"`
}

// BlockHeader is the header view of a block as stored in the height index.
type BlockHeader struct {
	BlockID          ids.ID    `json:"blockID"`
	BlockNum         uint32    `json:"blockNum"`
	PrevBlock        ids.ID    `json:"prevBlock"`
	Timestamp        time.Time `json:"timestamp"`
	TrusteeSignature []byte    `json:"trusteeSignature,omitempty"`
}

// ID computes the block hash over the header fields and the transaction ids
// (excluding the trustee signature).
func (b *TrxBlock) ID() ids.ID {
	trxIDs := make([]ids.ID, len(b.Trxs))
	for i := range b.Trxs {
		trxIDs[i] = b.Trxs[i].ID()
	}
	header := struct {
		BlockNum  uint32
		PrevBlock ids.ID
		Timestamp time.Time
		TrxIDs    []ids.ID
	}{b.BlockNum, b.PrevBlock, b.Timestamp, trxIDs}
	data, _ := json.Marshal(header)
	return ids.NewID(data)
}

// Header returns the header view with the block ID precomputed.
func (b *TrxBlock) Header() BlockHeader {
	return BlockHeader{
		BlockID:          b.ID(),
		BlockNum:         b.BlockNum,
		PrevBlock:        b.PrevBlock,
		Timestamp:        b.Timestamp,
		TrusteeSignature: b.TrusteeSignature,
	}
}

// Sign sets the trustee signature over the block ID.
func (b *TrxBlock) Sign(priv ed25519.PrivateKey) {
	id := b.ID()
	b.TrusteeSignature = ed25519.Sign(priv, id[:])
}

// VerifyTrusteeSignature checks the trustee signature against pub.
func (b *TrxBlock) VerifyTrusteeSignature(pub ed25519.PublicKey) bool {
	id := b.ID()
	return ed25519.Verify(pub, id[:], b.TrusteeSignature)
}

// Serialize encodes the block into JSON
func (b *TrxBlock) Serialize() ([]byte, error) {
	return json.Marshal(b)
}

// Deserialize decodes JSON into a TrxBlock
func Deserialize(data []byte) (*TrxBlock, error) {
	var b TrxBlock
	err := json.Unmarshal(data, &b)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
