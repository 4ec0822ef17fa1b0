package net

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/nikakhov/bitshares-toolkit/core/chain"
)

// ChainServer is the server half of the client/server transport. It applies
// every inbound message through its own delegate and, on success, echoes it
// to every connected client — the sender included. Clients rely on that echo
// instead of self-applying.
type ChainServer struct {
	mu       sync.Mutex
	delegate Delegate
	chain    *chain.ChainDB
	ln       net.Listener
	conns    map[string]*serverConn

	// echoMu serializes echo fanout against catch-up streaming, so a block
	// pushed while a client catches up cannot fall between the end of its
	// stream and its admission to the echo set.
	echoMu sync.Mutex
}

type serverConn struct {
	id   string
	conn net.Conn
	mu   sync.Mutex
}

func (sc *serverConn) write(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	_, err = sc.conn.Write(append(data, '\n'))
	return err
}

// NewChainServer creates a server applying traffic through delegate and
// serving catch-up blocks from c.
func NewChainServer(delegate Delegate, c *chain.ChainDB) *ChainServer {
	return &ChainServer{
		delegate: delegate,
		chain:    c,
		conns:    make(map[string]*serverConn),
	}
}

// Listen binds addr and starts accepting clients.
func (s *ChainServer) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.handleConnection(conn)
		}
	}()
	return nil
}

// Addr returns the bound listen address.
func (s *ChainServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *ChainServer) handleConnection(conn net.Conn) {
	reader := bufio.NewScanner(conn)
	reader.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !reader.Scan() {
		conn.Close()
		return
	}
	var hello clientHello
	if err := json.Unmarshal(reader.Bytes(), &hello); err != nil {
		fmt.Printf("[CHAINSERVER] Client hello parse error: %v\n", err)
		conn.Close()
		return
	}

	sc := &serverConn{id: uuid.NewString(), conn: conn}

	// Stream every block the client missed and admit it to the echo set in
	// one step under echoMu: an echo either completes before the stream
	// starts (its block is then part of the stream) or waits until the
	// client is registered. A block pushed mid-stream may arrive twice; the
	// duplicate fails the client's ordering check and is dropped there.
	s.echoMu.Lock()
	for num := hello.HeadBlockNum + 1; ; num++ {
		blk, err := s.chain.FetchTrxBlock(num)
		if err != nil {
			break
		}
		msg := NewBlockMessage(BlockMessage{BlockID: blk.ID(), Block: *blk, Signature: blk.TrusteeSignature})
		if err := sc.write(msg); err != nil {
			s.echoMu.Unlock()
			conn.Close()
			return
		}
	}
	s.mu.Lock()
	s.conns[sc.id] = sc
	count := len(s.conns)
	s.mu.Unlock()
	s.echoMu.Unlock()
	s.delegate.ConnectionCountChanged(count)

	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, sc.id)
		count := len(s.conns)
		s.mu.Unlock()
		s.delegate.ConnectionCountChanged(count)
	}()

	for reader.Scan() {
		var msg Message
		if err := json.Unmarshal(reader.Bytes(), &msg); err != nil {
			fmt.Printf("[CHAINSERVER] Dropping unparseable line from %s: %v\n", sc.id, err)
			continue
		}
		if err := s.delegate.HandleMessage(msg); err != nil {
			fmt.Printf("[CHAINSERVER] Rejected message type %d from %s: %v\n", msg.Type, sc.id, err)
			continue
		}
		s.echo(msg)
	}
}

// echo forwards an accepted message to every client, the sender included.
func (s *ChainServer) echo(msg Message) {
	s.echoMu.Lock()
	defer s.echoMu.Unlock()
	s.mu.Lock()
	conns := make([]*serverConn, 0, len(s.conns))
	for _, sc := range s.conns {
		conns = append(conns, sc)
	}
	s.mu.Unlock()
	for _, sc := range conns {
		if err := sc.write(msg); err != nil {
			fmt.Printf("[CHAINSERVER] Echo to %s failed: %v\n", sc.id, err)
		}
	}
}

// ConnectionCount returns the number of connected clients.
func (s *ChainServer) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close stops accepting and drops all client sessions.
func (s *ChainServer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		s.ln.Close()
	}
	for _, sc := range s.conns {
		sc.conn.Close()
	}
}
