package net

import (
	"encoding/json"
	"fmt"

	"github.com/nikakhov/bitshares-toolkit/core/block"
	"github.com/nikakhov/bitshares-toolkit/types/ids"
)

// MsgType is the wire tag of a message. The values are part of the protocol
// and must not be renumbered.
type MsgType uint32

const (
	TrxMessageType   MsgType = 1000
	BlockMessageType MsgType = 1001
)

// ItemID addresses a synchronization item: a block or a transaction.
type ItemID struct {
	Type MsgType `json:"type"`
	Hash ids.ID  `json:"hash"`
}

// Message is the tagged wire envelope carrying either a BlockMessage or a
// TrxMessage.
type Message struct {
	Type MsgType         `json:"msgType"`
	Data json.RawMessage `json:"data"`
}

// BlockMessage carries a full block plus its ID and trustee signature.
type BlockMessage struct {
	BlockID   ids.ID         `json:"blockID"`
	Block     block.TrxBlock `json:"block"`
	Signature []byte         `json:"signature,omitempty"`
}

// TrxMessage carries a single signed transaction.
type TrxMessage struct {
	Trx block.SignedTransaction `json:"trx"`
}

// NewBlockMessage wraps a block message into a wire envelope.
func NewBlockMessage(bm BlockMessage) Message {
	data, _ := json.Marshal(bm)
	return Message{Type: BlockMessageType, Data: data}
}

// NewTrxMessage wraps a transaction message into a wire envelope.
func NewTrxMessage(tm TrxMessage) Message {
	data, _ := json.Marshal(tm)
	return Message{Type: TrxMessageType, Data: data}
}

// AsBlockMessage decodes the envelope payload as a BlockMessage.
func (m Message) AsBlockMessage() (BlockMessage, error) {
	var bm BlockMessage
	if m.Type != BlockMessageType {
		return bm, fmt.Errorf("net: message type %d is not a block message", m.Type)
	}
	err := json.Unmarshal(m.Data, &bm)
	return bm, err
}

// AsTrxMessage decodes the envelope payload as a TrxMessage.
func (m Message) AsTrxMessage() (TrxMessage, error) {
	var tm TrxMessage
	if m.Type != TrxMessageType {
		return tm, fmt.Errorf("net: message type %d is not a trx message", m.Type)
	}
	err := json.Unmarshal(m.Data, &tm)
	return tm, err
}

// ItemHash returns the ID of the item the message carries.
func (m Message) ItemHash() (ids.ID, error) {
	switch m.Type {
	case BlockMessageType:
		bm, err := m.AsBlockMessage()
		if err != nil {
			return ids.Empty, err
		}
		return bm.BlockID, nil
	case TrxMessageType:
		tm, err := m.AsTrxMessage()
		if err != nil {
			return ids.Empty, err
		}
		return tm.Trx.ID(), nil
	}
	return ids.Empty, fmt.Errorf("net: unknown message type %d", m.Type)
}
