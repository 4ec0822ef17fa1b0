package client

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nikakhov/bitshares-toolkit/core/block"
	"github.com/nikakhov/bitshares-toolkit/core/chain"
	"github.com/nikakhov/bitshares-toolkit/core/mempool"
	"github.com/nikakhov/bitshares-toolkit/core/net"
	"github.com/nikakhov/bitshares-toolkit/core/wallet"
)

// Mode selects the network transport. It is fixed at construction.
type Mode int

const (
	// ClientServer connects to a chain server that echoes every broadcast
	// back to the sender.
	ClientServer Mode = iota
	// Peer joins a gossip network that never echoes a broadcast back; the
	// client self-applies everything it broadcasts.
	Peer
)

// transport is the mode-exclusive seam between the client and the network.
// Exactly one implementation is live for the client's lifetime; operations
// outside a mode's capability are no-ops.
type transport interface {
	broadcastTransaction(trx *block.SignedTransaction) error
	broadcastBlock(blk *block.TrxBlock) error
	listenOnPort(port uint16) error
	addNode(ep string) error
	connectToPeer(ep string) error
	isConnected() bool
	close()
}

// Client is the node coordinator: it wires the chain database, the wallet
// and one transport together, handles inbound blocks and transactions,
// serves p2p sync queries, and optionally runs the trustee production loop.
//
// Go runs the transports preemptively, so one coarse mutex spans the chain
// mutations, the mempool and the last-block time.
type Client struct {
	mode      Mode
	transport transport

	mu        sync.Mutex
	chainDB   *chain.ChainDB
	wallet    *wallet.Wallet
	pool      *mempool.Pool
	lastBlock time.Time
	dataDir   string

	trusteeKey    ed25519.PrivateKey
	trusteeCancel context.CancelFunc
	trusteeDone   chan struct{}

	// production knobs; tests shrink them
	blockInterval time.Duration
	tick          time.Duration
	now           func() time.Time
}

// NewClient constructs a coordinator in the given mode. The transport is
// created here and holds the client as its delegate back reference.
func NewClient(mode Mode) *Client {
	c := &Client{
		mode:          mode,
		pool:          mempool.NewPool(),
		blockInterval: 30 * time.Second,
		tick:          time.Second,
		now:           time.Now,
	}
	switch mode {
	case Peer:
		node := net.NewNode()
		node.SetDelegate(c)
		c.transport = &peerTransport{node: node}
	default:
		c.transport = &clientServerTransport{cc: net.NewChainClient(c)}
	}
	return c
}

// Mode returns the transport mode the client was constructed with.
func (c *Client) Mode() Mode {
	return c.mode
}

// SetChain binds the chain database. It may be called once, before the
// wallet is bound.
func (c *Client) SetChain(db *chain.ChainDB) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chainDB != nil {
		return errors.New("client: chain already bound")
	}
	c.chainDB = db
	if cs, ok := c.transport.(*clientServerTransport); ok {
		cs.cc.SetChain(db)
	}
	return nil
}

// SetWallet binds the wallet and scans the chain from genesis to the current
// head. The chain must already be bound; neither may be rebound while the
// trustee loop runs.
func (c *Client) SetWallet(w *wallet.Wallet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chainDB == nil {
		return errors.New("client: chain must be bound before the wallet")
	}
	if c.trusteeDone != nil {
		return errors.New("client: cannot rebind wallet while trustee runs")
	}
	c.wallet = w
	return w.ScanChain(c.chainDB, c.chainDB.HeadBlockNum())
}

// RunTrustee stores the signing key and starts the block production loop.
func (c *Client) RunTrustee(key ed25519.PrivateKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wallet == nil {
		return errors.New("client: wallet must be bound before the trustee starts")
	}
	if c.trusteeDone != nil {
		return errors.New("client: trustee already running")
	}
	c.trusteeKey = key
	ctx, cancel := context.WithCancel(context.Background())
	c.trusteeCancel = cancel
	c.trusteeDone = make(chan struct{})
	go c.trusteeLoop(ctx, c.trusteeDone)
	return nil
}

// Shutdown cancels the trustee loop, waits for it to finish, and closes the
// transport. Cancellation is expected and absorbed.
func (c *Client) Shutdown() {
	c.mu.Lock()
	cancel := c.trusteeCancel
	done := c.trusteeDone
	c.trusteeCancel = nil
	c.trusteeDone = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		fmt.Println("[CLIENT] waiting for trustee loop to complete")
		<-done
	}
	c.transport.close()
}

// BroadcastTransaction routes a transaction through the transport. In Peer
// mode the gossip network does not echo, so the transaction is self-applied
// immediately after the broadcast.
func (c *Client) BroadcastTransaction(trx *block.SignedTransaction) error {
	if err := c.transport.broadcastTransaction(trx); err != nil {
		return err
	}
	if c.mode == Peer {
		// p2p doesn't send messages back to the originator
		return c.OnNewTransaction(trx)
	}
	return nil
}

// ConnectToP2PNetwork computes the head item to sync from and joins the
// gossip network. No-op in ClientServer mode.
func (c *Client) ConnectToP2PNetwork() error {
	pt, ok := c.transport.(*peerTransport)
	if !ok {
		return nil
	}
	c.mu.Lock()
	headItem := net.ItemID{Type: net.BlockMessageType}
	if c.chainDB != nil && c.chainDB.HeadBlockNum() != chain.EmptyChainHead {
		headItem.Hash = c.chainDB.HeadBlockID()
	}
	c.mu.Unlock()
	pt.node.SyncFrom(headItem)
	return pt.node.ConnectToP2PNetwork()
}

// ListenOnPort binds the p2p listener. No-op in ClientServer mode.
func (c *Client) ListenOnPort(port uint16) error {
	return c.transport.listenOnPort(port)
}

// AddNode registers the chain server endpoint. No-op in Peer mode.
func (c *Client) AddNode(ep string) error {
	return c.transport.addNode(ep)
}

// ConnectToPeer dials a p2p peer. No-op in ClientServer mode.
func (c *Client) ConnectToPeer(ep string) error {
	return c.transport.connectToPeer(ep)
}

// IsConnected reports transport connectivity.
func (c *Client) IsConnected() bool {
	return c.transport.isConnected()
}

// Configure persists the data directory and forwards it to the p2p node for
// configuration load.
func (c *Client) Configure(dataDir string) error {
	c.mu.Lock()
	c.dataDir = dataDir
	c.mu.Unlock()
	if pt, ok := c.transport.(*peerTransport); ok {
		return pt.node.LoadConfiguration(dataDir)
	}
	return nil
}

// GetDataDir returns the configured data directory.
func (c *Client) GetDataDir() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dataDir
}

// GetChain returns the bound chain database.
func (c *Client) GetChain() *chain.ChainDB {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chainDB
}

// GetWallet returns the bound wallet.
func (c *Client) GetWallet() *wallet.Wallet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wallet
}

// GetNode returns the p2p node, or nil in ClientServer mode.
func (c *Client) GetNode() *net.Node {
	if pt, ok := c.transport.(*peerTransport); ok {
		return pt.node
	}
	return nil
}

// Pool returns the pending-transaction pool.
func (c *Client) Pool() *mempool.Pool {
	return c.pool
}

// clientServerTransport forwards everything to the chain server and relies
// on the server echo for local delivery.
type clientServerTransport struct {
	cc *net.ChainClient
}

func (t *clientServerTransport) broadcastTransaction(trx *block.SignedTransaction) error {
	return t.cc.BroadcastTransaction(trx)
}

func (t *clientServerTransport) broadcastBlock(blk *block.TrxBlock) error {
	return t.cc.BroadcastBlock(blk)
}

func (t *clientServerTransport) listenOnPort(port uint16) error { return nil }

func (t *clientServerTransport) addNode(ep string) error { return t.cc.AddNode(ep) }

func (t *clientServerTransport) connectToPeer(ep string) error { return nil }

func (t *clientServerTransport) isConnected() bool { return t.cc.IsConnected() }

func (t *clientServerTransport) close() { t.cc.Close() }

// peerTransport gossips broadcasts to the network; nothing comes back to the
// sender, so the client self-applies at every broadcast site.
type peerTransport struct {
	node *net.Node
}

func (t *peerTransport) broadcastTransaction(trx *block.SignedTransaction) error {
	return t.node.Broadcast(net.NewTrxMessage(net.TrxMessage{Trx: *trx}))
}

func (t *peerTransport) broadcastBlock(blk *block.TrxBlock) error {
	return t.node.Broadcast(net.NewBlockMessage(net.BlockMessage{
		BlockID:   blk.ID(),
		Block:     *blk,
		Signature: blk.TrusteeSignature,
	}))
}

func (t *peerTransport) listenOnPort(port uint16) error { return t.node.ListenOnPort(port) }

func (t *peerTransport) addNode(ep string) error { return nil }

func (t *peerTransport) connectToPeer(ep string) error { return t.node.ConnectTo(ep) }

func (t *peerTransport) isConnected() bool { return t.node.IsConnected() }

func (t *peerTransport) close() { t.node.Close() }
