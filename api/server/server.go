package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	_ "github.com/joho/godotenv/autoload"

	"github.com/nikakhov/bitshares-toolkit/core/block"
	"github.com/nikakhov/bitshares-toolkit/core/client"
)

// Server exposes the node over HTTP: status and chain reads are open, the
// broadcast endpoint requires a JWT when JWT_SECRET is set.
type Server struct {
	client     *client.Client
	listenAddr string
	startTime  time.Time
}

// NewServer creates an API server over a wired coordinator.
func NewServer(c *client.Client, listenAddr string) *Server {
	return &Server{
		client:     c,
		listenAddr: listenAddr,
		startTime:  time.Now(),
	}
}

// Start begins serving in the background.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.HandleStatus)
	mux.HandleFunc("/mempool", s.HandleMempool)
	mux.HandleFunc("/block/", s.HandleBlock)
	mux.HandleFunc("/broadcast_tx", s.HandleBroadcastTx)

	go func() {
		if err := http.ListenAndServe(s.listenAddr, mux); err != nil {
			log.Printf("[API] Server stopped: %v", err)
		}
	}()
	fmt.Printf("[API] Serving on %s\n", s.listenAddr)
	return nil
}

// requireJWT checks Authorization: Bearer against JWT_SECRET. When no secret
// is configured the check is skipped (local/dev mode). The secret is read at
// request time, after the autoload import has merged any .env file.
func requireJWT(w http.ResponseWriter, r *http.Request) bool {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return true
	}
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return false
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(jwtSecret), nil
	})
	if err != nil || !token.Valid {
		log.Printf("[API] Invalid JWT: %v", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return false
	}
	return true
}

// HandleMempool lists pending transaction IDs.
func (s *Server) HandleMempool(w http.ResponseWriter, r *http.Request) {
	txs := s.client.Pool().Snapshot()
	ids := make([]string, len(txs))
	for i := range txs {
		ids[i] = txs[i].ID().String()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ids)
}

// HandleBlock serves a full block by height: /block/{height}
func (s *Server) HandleBlock(w http.ResponseWriter, r *http.Request) {
	heightStr := strings.TrimPrefix(r.URL.Path, "/block/")
	height, err := strconv.ParseUint(heightStr, 10, 32)
	if err != nil {
		http.Error(w, "bad height", http.StatusBadRequest)
		return
	}
	blk, err := s.client.GetChain().FetchTrxBlock(uint32(height))
	if err != nil {
		http.Error(w, "block not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(blk)
}

// HandleBroadcastTx accepts a signed transaction and routes it through the
// coordinator's transport.
func (s *Server) HandleBroadcastTx(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	if !requireJWT(w, r) {
		return
	}
	var trx block.SignedTransaction
	if err := json.NewDecoder(r.Body).Decode(&trx); err != nil {
		http.Error(w, "bad transaction JSON", http.StatusBadRequest)
		return
	}
	if err := s.client.BroadcastTransaction(&trx); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"txID": trx.ID().String(), "status": "broadcast"})
}
