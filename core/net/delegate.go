package net

import (
	"errors"

	"github.com/nikakhov/bitshares-toolkit/core/block"
	"github.com/nikakhov/bitshares-toolkit/types/ids"
)

var (
	// ErrNotFound is returned by GetItem when the item cannot be produced.
	ErrNotFound = errors.New("net: item not found")
	// ErrPrecondition is returned by GetItemIDs for a non-block from item.
	ErrPrecondition = errors.New("net: precondition failed")
)

// Delegate is the inbound callback surface a transport drives. The
// coordinator implements it; transports hold it as a back reference and
// never own the coordinator.
type Delegate interface {
	// OnNewBlock applies a block delivered by the transport.
	OnNewBlock(blk *block.TrxBlock) error
	// OnNewTransaction admits a transaction delivered by the transport.
	OnNewTransaction(trx *block.SignedTransaction) error

	// HasItem reports whether the item is already held locally.
	HasItem(id ItemID) bool
	// HandleMessage dispatches an inbound wire message. Unknown tags are
	// ignored.
	HandleMessage(msg Message) error
	// GetItemIDs returns up to limit block IDs following from, in ascending
	// height order, plus the count of IDs still remaining after those.
	GetItemIDs(from ItemID, limit uint32) ([]ids.ID, uint32, error)
	// GetItem produces the wire message for a held item.
	GetItem(id ItemID) (Message, error)

	// SyncStatus reports sync progress. Informational.
	SyncStatus(itemType MsgType, count uint32)
	// ConnectionCountChanged reports the new connection count. Informational.
	ConnectionCountChanged(count int)
}
