package block

import (
	"crypto/ed25519"
	"encoding/json"
	"time"

	"github.com/nikakhov/bitshares-toolkit/types/ids"
)

// SignedTransaction is a value transfer signed by the sending key. A
// transaction with an empty From key is a mint and is only valid inside the
// genesis block.
type SignedTransaction struct {
	From      []byte    `json:"from,omitempty"` // Ed25519 public key of sender
	To        []byte    `json:"to"`             // Ed25519 public key of recipient
	Amount    uint64    `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	Memo      string    `json:"memo,omitempty"`
	Signature []byte    `json:"signature,omitempty"`
}

// ID computes the transaction hash over the payload fields (excluding the
// signature itself).
func (t *SignedTransaction) ID() ids.ID {
	payload := struct {
		From      []byte
		To        []byte
		Amount    uint64
		Timestamp time.Time
		Memo      string
	}{t.From, t.To, t.Amount, t.Timestamp, t.Memo}
	data, _ := json.Marshal(payload)
	return ids.NewID(data)
}

// Sign sets the transaction signature using the sender's private key.
func (t *SignedTransaction) Sign(priv ed25519.PrivateKey) {
	id := t.ID()
	t.Signature = ed25519.Sign(priv, id[:])
}

// VerifySignature checks the signature against the From key. Mint
// transactions (empty From) carry no signature and verify trivially.
func (t *SignedTransaction) VerifySignature() bool {
	if len(t.From) == 0 {
		return true
	}
	if len(t.From) != ed25519.PublicKeySize {
		return false
	}
	id := t.ID()
	return ed25519.Verify(ed25519.PublicKey(t.From), id[:], t.Signature)
}

// IsMint reports whether the transaction creates new funds (genesis only).
func (t *SignedTransaction) IsMint() bool {
	return len(t.From) == 0
}
