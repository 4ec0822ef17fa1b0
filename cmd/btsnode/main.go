package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/nikakhov/bitshares-toolkit/api/server"
	"github.com/nikakhov/bitshares-toolkit/core"
	"github.com/nikakhov/bitshares-toolkit/core/chain"
	"github.com/nikakhov/bitshares-toolkit/core/client"
	"github.com/nikakhov/bitshares-toolkit/core/genesis"
	"github.com/nikakhov/bitshares-toolkit/core/net"
	"github.com/nikakhov/bitshares-toolkit/core/storage"
	"github.com/nikakhov/bitshares-toolkit/core/wallet"
)

func main() {
	godotenv.Load()

	fmt.Println("Starting bitshares-toolkit node")

	dataDir := envOr("DATA_DIR", "./bts_data")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create data dir: %v", err)
	}

	mode := client.ClientServer
	if envOr("MODE", "peer") == "peer" {
		mode = client.Peer
	}

	// === Node key ===
	pubKey, privKey, err := core.GenerateAndSaveKeypair(dataDir)
	if err != nil {
		log.Fatalf("Failed to load/generate Ed25519 keypair: %v", err)
	}
	fmt.Printf("[KEY] Node public key: %x\n", pubKey)

	// === Trustee identity: our own key when producing, else from env ===
	trusteePub := ed25519.PublicKey(pubKey)
	if hexKey := os.Getenv("TRUSTEE_PUBKEY"); hexKey != "" {
		raw, err := hex.DecodeString(hexKey)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			log.Fatalf("Bad TRUSTEE_PUBKEY: %v", err)
		}
		trusteePub = ed25519.PublicKey(raw)
	}

	// === Storage and chain ===
	store, err := storage.NewStorage(filepath.Join(dataDir, "chaindb"))
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	chainDB, err := chain.NewChainDB(store, trusteePub)
	if err != nil {
		log.Fatalf("Failed to open chain: %v", err)
	}

	// === Genesis ===
	hasGenesis, _ := store.HasGenesisBlock()
	if !hasGenesis {
		genesisPath := envOr("GENESIS", "genesis.json")
		cfg, err := genesis.LoadConfig(genesisPath)
		if err != nil {
			log.Fatalf("No chain and no usable genesis config at %s: %v", genesisPath, err)
		}
		blk, err := genesis.CreateGenesisBlock(cfg)
		if err != nil {
			log.Fatalf("Failed to build genesis block: %v", err)
		}
		if err := chainDB.PushBlock(blk); err != nil {
			log.Fatalf("Failed to apply genesis block: %v", err)
		}
		fmt.Printf("[GENESIS] Chain %s initialized, block %s\n", cfg.ChainID, blk.ID())
	}

	// === Coordinator ===
	c := client.NewClient(mode)
	if err := c.SetChain(chainDB); err != nil {
		log.Fatalf("%v", err)
	}
	w := wallet.NewWallet()
	w.Track(pubKey, privKey)
	if err := c.SetWallet(w); err != nil {
		log.Fatalf("%v", err)
	}
	if err := c.Configure(dataDir); err != nil {
		log.Fatalf("Failed to load node configuration: %v", err)
	}

	// === Transport wiring ===
	switch mode {
	case client.Peer:
		if portStr := os.Getenv("LISTEN_PORT"); portStr != "" {
			port, err := strconv.ParseUint(portStr, 10, 16)
			if err != nil {
				log.Fatalf("Bad LISTEN_PORT: %v", err)
			}
			if err := c.ListenOnPort(uint16(port)); err != nil {
				log.Fatalf("Failed to listen: %v", err)
			}
			fmt.Printf("[P2P] Listening on port %d\n", port)
		}
		for _, ep := range splitList(os.Getenv("PEERS")) {
			if err := c.ConnectToPeer(ep); err != nil {
				fmt.Printf("[P2P] Could not connect to %s: %v\n", ep, err)
			}
		}
		if err := c.ConnectToP2PNetwork(); err != nil {
			fmt.Printf("[P2P] Network entry failed: %v\n", err)
		}
	default:
		serverAddr := os.Getenv("SERVER_ADDR")
		if serverAddr == "" {
			log.Fatalf("MODE=client-server requires SERVER_ADDR")
		}
		if err := c.AddNode(serverAddr); err != nil {
			log.Fatalf("Failed to reach chain server %s: %v", serverAddr, err)
		}
	}

	// === Optional chain server (serves client-server nodes) ===
	if addr := os.Getenv("CHAIN_SERVER_ADDR"); addr != "" {
		cs := net.NewChainServer(c, chainDB)
		if err := cs.Listen(addr); err != nil {
			log.Fatalf("Failed to start chain server: %v", err)
		}
		fmt.Printf("[CHAINSERVER] Listening on %s\n", addr)
	}

	// === Trustee ===
	if os.Getenv("TRUSTEE") == "1" {
		if err := c.RunTrustee(privKey); err != nil {
			log.Fatalf("Failed to start trustee: %v", err)
		}
		fmt.Println("[TRUSTEE] Block production enabled")
	}

	// === API ===
	api := server.NewServer(c, envOr("API_ADDR", ":8080"))
	if err := api.Start(); err != nil {
		log.Fatalf("Failed to start API server: %v", err)
	}

	// === Wait for shutdown ===
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Println("[NODE] Shutting down")
	c.Shutdown()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
