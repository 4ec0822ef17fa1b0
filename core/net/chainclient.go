package net

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/nikakhov/bitshares-toolkit/core/block"
	"github.com/nikakhov/bitshares-toolkit/core/chain"
)

// clientHello opens a chain-client session; the server streams every block
// after HeadBlockNum before forwarding live traffic.
type clientHello struct {
	HeadBlockNum uint32 `json:"headBlockNum"`
}

// ChainClient is the client half of the client/server transport: a single
// TCP connection to a chain server speaking JSON lines. Every broadcast is
// forwarded to the server, which echoes it back through the delegate —
// including to the original sender.
type ChainClient struct {
	mu         sync.Mutex
	delegate   Delegate
	chain      *chain.ChainDB
	serverAddr string
	conn       net.Conn
	connected  bool
}

// NewChainClient creates a chain client calling back into delegate.
func NewChainClient(delegate Delegate) *ChainClient {
	return &ChainClient{delegate: delegate}
}

// SetChain binds the local chain database; its head is reported to the
// server at connect time so the server can stream missed blocks.
func (cc *ChainClient) SetChain(c *chain.ChainDB) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.chain = c
}

// AddNode registers the server endpoint and connects to it.
func (cc *ChainClient) AddNode(ep string) error {
	cc.mu.Lock()
	cc.serverAddr = ep
	cc.mu.Unlock()
	return cc.connect()
}

func (cc *ChainClient) connect() error {
	cc.mu.Lock()
	addr := cc.serverAddr
	headNum := chain.EmptyChainHead
	if cc.chain != nil {
		headNum = cc.chain.HeadBlockNum()
	}
	cc.mu.Unlock()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("chainclient: dial %s: %w", addr, err)
	}
	hello, _ := json.Marshal(clientHello{HeadBlockNum: headNum})
	if _, err := conn.Write(append(hello, '\n')); err != nil {
		conn.Close()
		return fmt.Errorf("chainclient: hello: %w", err)
	}

	cc.mu.Lock()
	cc.conn = conn
	cc.connected = true
	cc.mu.Unlock()

	go cc.readLoop(conn)
	return nil
}

func (cc *ChainClient) readLoop(conn net.Conn) {
	defer func() {
		cc.mu.Lock()
		cc.connected = false
		cc.mu.Unlock()
		conn.Close()
		cc.delegate.ConnectionCountChanged(0)
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			fmt.Printf("[CHAINCLIENT] Dropping unparseable line from server: %v\n", err)
			continue
		}
		if err := cc.delegate.HandleMessage(msg); err != nil {
			// Invalid transactions and blocks are logged here; the server
			// keeps the session open.
			fmt.Printf("[CHAINCLIENT] Rejected message type %d: %v\n", msg.Type, err)
		}
	}
}

// BroadcastTransaction forwards a transaction to the server. The server
// echoes it back; the caller must not self-apply.
func (cc *ChainClient) BroadcastTransaction(trx *block.SignedTransaction) error {
	return cc.send(NewTrxMessage(TrxMessage{Trx: *trx}))
}

// BroadcastBlock forwards a block to the server. The server echoes it back;
// the caller must not self-apply.
func (cc *ChainClient) BroadcastBlock(blk *block.TrxBlock) error {
	return cc.send(NewBlockMessage(BlockMessage{BlockID: blk.ID(), Block: *blk, Signature: blk.TrusteeSignature}))
}

func (cc *ChainClient) send(msg Message) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.conn == nil {
		return fmt.Errorf("chainclient: not connected")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = cc.conn.Write(append(data, '\n'))
	return err
}

// IsConnected reports whether the server session is live.
func (cc *ChainClient) IsConnected() bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.connected
}

// Close tears down the server session.
func (cc *ChainClient) Close() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.conn != nil {
		cc.conn.Close()
		cc.conn = nil
	}
	cc.connected = false
}
