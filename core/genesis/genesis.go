package genesis

import (
	"encoding/hex"
	"fmt"

	"github.com/nikakhov/bitshares-toolkit/core/block"
)

// CreateGenesisBlock builds block 0 from a config: one mint transaction per
// allocation, in config order.
func CreateGenesisBlock(cfg *Config) (*block.TrxBlock, error) {
	trxs := make([]block.SignedTransaction, 0, len(cfg.Allocations))
	for _, alloc := range cfg.Allocations {
		to, err := hex.DecodeString(alloc.Address)
		if err != nil {
			return nil, fmt.Errorf("genesis: bad allocation address %q: %w", alloc.Address, err)
		}
		trxs = append(trxs, block.SignedTransaction{
			To:        to,
			Amount:    alloc.Amount,
			Timestamp: cfg.Timestamp,
			Memo:      cfg.ChainID,
		})
	}
	return &block.TrxBlock{
		BlockNum:  0,
		Timestamp: cfg.Timestamp,
		Trxs:      trxs,
	}, nil
}
