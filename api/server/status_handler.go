// status_handler.go - HTTP handler for /status
package server

import (
	"encoding/json"
	"net/http"
)

// StatusResponse is the /status payload.
type StatusResponse struct {
	Status  string      `json:"status"`
	Mode    string      `json:"mode"`
	Metrics NodeMetrics `json:"metrics"`
}

// HandleStatus responds to /status with node status
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	metrics := s.GetNodeMetrics()

	status := "healthy"
	if metrics.ChainEmpty {
		status = "initializing"
	} else if !metrics.Connected {
		status = "isolated"
	}

	mode := "client-server"
	if s.client.GetNode() != nil {
		mode = "peer"
	}

	resp := StatusResponse{
		Status:  status,
		Mode:    mode,
		Metrics: metrics,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
