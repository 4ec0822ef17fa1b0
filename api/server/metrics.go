package server

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/nikakhov/bitshares-toolkit/core/chain"
)

// NodeMetrics is the live metric snapshot reported by /status.
type NodeMetrics struct {
	UptimeSeconds int64   `json:"uptimeSeconds"`
	BlockHeight   uint32  `json:"blockHeight"`
	ChainEmpty    bool    `json:"chainEmpty"`
	MempoolSize   int     `json:"mempoolSize"`
	Connected     bool    `json:"connected"`
	LastBlockTime string  `json:"lastBlockTime,omitempty"`
	CPUPercent    float64 `json:"cpuPercent"`
}

// GetNodeMetrics gathers a metrics snapshot.
func (s *Server) GetNodeMetrics() NodeMetrics {
	m := NodeMetrics{
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		MempoolSize:   s.client.Pool().Size(),
		Connected:     s.client.IsConnected(),
	}

	if c := s.client.GetChain(); c != nil {
		head := c.HeadBlockNum()
		if head == chain.EmptyChainHead {
			m.ChainEmpty = true
		} else {
			m.BlockHeight = head
			m.LastBlockTime = c.GetHeadBlock().Timestamp.UTC().Format(time.RFC3339)
		}
	}

	// Instantaneous sample; an error just leaves the field at zero.
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		m.CPUPercent = percents[0]
	}
	return m
}
