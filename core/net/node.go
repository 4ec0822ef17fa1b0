package net

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/nikakhov/bitshares-toolkit/types/ids"
)

const syncBatchLimit = 2000

// peerHello opens a peer session. Kind is "gossip" for a persistent
// broadcast link or "sync" for an ephemeral request/response session.
type peerHello struct {
	NodeID     string `json:"nodeID"`
	Kind       string `json:"kind"`
	ListenPort uint16 `json:"listenPort,omitempty"`
}

// frame is the p2p wire unit, JSON per line.
type frame struct {
	Kind      string   `json:"kind"` // msg, get_item_ids, item_ids, get_item, item, notfound
	Msg       *Message `json:"msg,omitempty"`
	From      *ItemID  `json:"from,omitempty"`
	Limit     uint32   `json:"limit,omitempty"`
	Item      *ItemID  `json:"item,omitempty"`
	Hashes    []ids.ID `json:"hashes,omitempty"`
	Remaining uint32   `json:"remaining,omitempty"`
}

type peerConn struct {
	nodeID string
	addr   string
	conn   net.Conn
	mu     sync.Mutex
}

func (pc *peerConn) write(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	_, err = pc.conn.Write(append(data, '\n'))
	return err
}

// Node is the peer-to-peer transport: gossip over persistent TCP links plus
// an explicit sync protocol driven by the delegate's item server. A locally
// broadcast message is never echoed back to this node; callers self-apply.
type Node struct {
	mu        sync.Mutex
	id        string
	delegate  Delegate
	ln        net.Listener
	peers     map[string]*peerConn // nodeID -> live gossip link
	endpoints []string             // configured peer endpoints
	seen      map[ids.ID]struct{}  // gossip dedup
	syncFrom  ItemID
	dataDir   string
}

// NewNode creates an unconnected p2p node.
func NewNode() *Node {
	return &Node{
		id:    uuid.NewString(),
		peers: make(map[string]*peerConn),
		seen:  make(map[ids.ID]struct{}),
	}
}

// SetDelegate registers the coordinator back reference. Must be called
// before any listen or connect.
func (n *Node) SetDelegate(d Delegate) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delegate = d
}

// LoadConfiguration reads the persisted peer list from dataDir.
func (n *Node) LoadConfiguration(dataDir string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dataDir = dataDir
	data, err := os.ReadFile(filepath.Join(dataDir, "peers.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, &n.endpoints)
}

func (n *Node) persistPeers() {
	n.mu.Lock()
	dir := n.dataDir
	data, _ := json.Marshal(n.endpoints)
	n.mu.Unlock()
	if dir == "" {
		return
	}
	if err := os.WriteFile(filepath.Join(dir, "peers.json"), data, 0644); err != nil {
		fmt.Printf("[P2P] Failed to persist peer list: %v\n", err)
	}
}

// ListenOnPort binds the p2p listener.
func (n *Node) ListenOnPort(port uint16) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.ln = ln
	n.mu.Unlock()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go n.handleConnection(conn)
		}
	}()
	return nil
}

// ListenAddr returns the bound p2p listen address.
func (n *Node) ListenAddr() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ln == nil {
		return ""
	}
	return n.ln.Addr().String()
}

// ConnectTo records a peer endpoint and establishes a gossip link to it.
func (n *Node) ConnectTo(ep string) error {
	n.mu.Lock()
	known := false
	for _, e := range n.endpoints {
		if e == ep {
			known = true
			break
		}
	}
	if !known {
		n.endpoints = append(n.endpoints, ep)
	}
	n.mu.Unlock()
	n.persistPeers()

	conn, err := net.Dial("tcp", ep)
	if err != nil {
		return fmt.Errorf("p2p: dial %s: %w", ep, err)
	}
	hello, _ := json.Marshal(peerHello{NodeID: n.id, Kind: "gossip"})
	if _, err := conn.Write(append(hello, '\n')); err != nil {
		conn.Close()
		return err
	}
	reader := bufio.NewScanner(conn)
	reader.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !reader.Scan() {
		conn.Close()
		return fmt.Errorf("p2p: no hello from %s", ep)
	}
	var theirs peerHello
	if err := json.Unmarshal(reader.Bytes(), &theirs); err != nil {
		conn.Close()
		return fmt.Errorf("p2p: bad hello from %s: %w", ep, err)
	}
	if !n.registerPeer(&peerConn{nodeID: theirs.NodeID, addr: ep, conn: conn}) {
		conn.Close()
		return nil // self or duplicate link
	}
	go n.gossipLoop(theirs.NodeID, reader, conn)
	return nil
}

// SyncFrom records the item to resume synchronization after, typically the
// local head block ID or the empty ID for a fresh chain.
func (n *Node) SyncFrom(id ItemID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.syncFrom = id
}

// ConnectToP2PNetwork syncs from each configured peer and then brings up
// gossip links.
func (n *Node) ConnectToP2PNetwork() error {
	n.mu.Lock()
	endpoints := append([]string(nil), n.endpoints...)
	n.mu.Unlock()

	for _, ep := range endpoints {
		if err := n.syncWithPeer(ep); err != nil {
			fmt.Printf("[SYNC] Sync from %s failed: %v\n", ep, err)
			continue
		}
		if err := n.ConnectTo(ep); err != nil {
			fmt.Printf("[P2P] Gossip link to %s failed: %v\n", ep, err)
		}
	}
	return nil
}

// syncWithPeer pulls blocks after the sync-from point over an ephemeral
// request session and feeds them through the delegate.
func (n *Node) syncWithPeer(ep string) error {
	n.mu.Lock()
	from := n.syncFrom
	d := n.delegate
	n.mu.Unlock()
	if d == nil {
		return fmt.Errorf("p2p: no delegate")
	}

	conn, err := net.Dial("tcp", ep)
	if err != nil {
		return err
	}
	defer conn.Close()
	hello, _ := json.Marshal(peerHello{NodeID: n.id, Kind: "sync"})
	if _, err := conn.Write(append(hello, '\n')); err != nil {
		return err
	}
	pc := &peerConn{addr: ep, conn: conn}
	reader := bufio.NewScanner(conn)
	reader.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	fetched := uint32(0)
	for {
		if err := pc.write(frame{Kind: "get_item_ids", From: &from, Limit: syncBatchLimit}); err != nil {
			return err
		}
		var resp frame
		if err := readFrame(reader, &resp); err != nil {
			return err
		}
		if resp.Kind != "item_ids" {
			return fmt.Errorf("p2p: unexpected reply %q to get_item_ids", resp.Kind)
		}
		for _, hash := range resp.Hashes {
			item := ItemID{Type: BlockMessageType, Hash: hash}
			if d.HasItem(item) {
				from.Hash = hash
				continue
			}
			if err := pc.write(frame{Kind: "get_item", Item: &item}); err != nil {
				return err
			}
			var itemResp frame
			if err := readFrame(reader, &itemResp); err != nil {
				return err
			}
			if itemResp.Kind != "item" || itemResp.Msg == nil {
				return fmt.Errorf("p2p: peer %s could not serve block %s", ep, hash)
			}
			if err := d.HandleMessage(*itemResp.Msg); err != nil {
				return fmt.Errorf("p2p: applying synced block %s: %w", hash, err)
			}
			n.markSeen(hash)
			from.Hash = hash
			fetched++
		}
		d.SyncStatus(BlockMessageType, fetched)
		if resp.Remaining == 0 && len(resp.Hashes) < syncBatchLimit {
			return nil
		}
	}
}

func readFrame(reader *bufio.Scanner, f *frame) error {
	if !reader.Scan() {
		if err := reader.Err(); err != nil {
			return err
		}
		return fmt.Errorf("p2p: connection closed mid-request")
	}
	return json.Unmarshal(reader.Bytes(), f)
}

// Broadcast gossips a message to every connected peer. The message is not
// delivered back to this node; the caller self-applies.
func (n *Node) Broadcast(msg Message) error {
	hash, err := msg.ItemHash()
	if err != nil {
		return err
	}
	n.markSeen(hash)
	n.fanout(msg, "")
	return nil
}

// fanout forwards msg to all gossip peers except the one it arrived from.
func (n *Node) fanout(msg Message, exceptNodeID string) {
	n.mu.Lock()
	peers := make([]*peerConn, 0, len(n.peers))
	for id, pc := range n.peers {
		if id == exceptNodeID {
			continue
		}
		peers = append(peers, pc)
	}
	n.mu.Unlock()
	for _, pc := range peers {
		if err := pc.write(frame{Kind: "msg", Msg: &msg}); err != nil {
			fmt.Printf("[GOSSIP] Send to %s failed: %v\n", pc.addr, err)
		}
	}
}

func (n *Node) markSeen(hash ids.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen[hash] = struct{}{}
}

func (n *Node) wasSeen(hash ids.ID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.seen[hash]
	return ok
}

func (n *Node) registerPeer(pc *peerConn) bool {
	n.mu.Lock()
	if pc.nodeID == n.id {
		n.mu.Unlock()
		return false
	}
	if _, dup := n.peers[pc.nodeID]; dup {
		n.mu.Unlock()
		return false
	}
	n.peers[pc.nodeID] = pc
	count := len(n.peers)
	d := n.delegate
	n.mu.Unlock()
	if d != nil {
		d.ConnectionCountChanged(count)
	}
	return true
}

func (n *Node) dropPeer(nodeID string) {
	n.mu.Lock()
	pc, ok := n.peers[nodeID]
	if ok {
		delete(n.peers, nodeID)
	}
	count := len(n.peers)
	d := n.delegate
	n.mu.Unlock()
	if ok {
		pc.conn.Close()
		if d != nil {
			d.ConnectionCountChanged(count)
		}
	}
}

func (n *Node) handleConnection(conn net.Conn) {
	reader := bufio.NewScanner(conn)
	reader.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !reader.Scan() {
		conn.Close()
		return
	}
	var hello peerHello
	if err := json.Unmarshal(reader.Bytes(), &hello); err != nil {
		fmt.Printf("[P2P] Peer hello parse error: %v\n", err)
		conn.Close()
		return
	}

	switch hello.Kind {
	case "sync":
		n.handleSyncSession(reader, conn)
		conn.Close()
	case "gossip":
		ours, _ := json.Marshal(peerHello{NodeID: n.id, Kind: "gossip"})
		if _, err := conn.Write(append(ours, '\n')); err != nil {
			conn.Close()
			return
		}
		pc := &peerConn{nodeID: hello.NodeID, addr: conn.RemoteAddr().String(), conn: conn}
		if !n.registerPeer(pc) {
			conn.Close()
			return
		}
		n.gossipLoop(hello.NodeID, reader, conn)
	default:
		fmt.Printf("[P2P] Unknown session kind %q from %s\n", hello.Kind, conn.RemoteAddr())
		conn.Close()
	}
}

// gossipLoop consumes frames from a persistent peer link.
func (n *Node) gossipLoop(nodeID string, reader *bufio.Scanner, conn net.Conn) {
	defer n.dropPeer(nodeID)
	for reader.Scan() {
		var f frame
		if err := json.Unmarshal(reader.Bytes(), &f); err != nil {
			fmt.Printf("[GOSSIP] Dropping unparseable frame from %s: %v\n", nodeID, err)
			continue
		}
		if f.Kind != "msg" || f.Msg == nil {
			continue
		}
		n.handleGossip(nodeID, *f.Msg)
	}
}

func (n *Node) handleGossip(fromNodeID string, msg Message) {
	n.mu.Lock()
	d := n.delegate
	n.mu.Unlock()
	if d == nil {
		return
	}
	hash, err := msg.ItemHash()
	if err != nil {
		fmt.Printf("[GOSSIP] Dropping malformed message from %s: %v\n", fromNodeID, err)
		return
	}
	if n.wasSeen(hash) || d.HasItem(ItemID{Type: msg.Type, Hash: hash}) {
		return
	}
	// Mark seen only on success. A block can be rejected merely because its
	// predecessor has not arrived yet; marking it first would suppress every
	// later gossip of it and strand the node behind the chain.
	if err := d.HandleMessage(msg); err != nil {
		fmt.Printf("[GOSSIP] Rejected item %s from %s: %v\n", hash, fromNodeID, err)
		return
	}
	n.markSeen(hash)
	n.fanout(msg, fromNodeID)
}

// handleSyncSession answers get_item_ids / get_item requests on an
// ephemeral session.
func (n *Node) handleSyncSession(reader *bufio.Scanner, conn net.Conn) {
	n.mu.Lock()
	d := n.delegate
	n.mu.Unlock()
	if d == nil {
		return
	}
	pc := &peerConn{addr: conn.RemoteAddr().String(), conn: conn}
	for reader.Scan() {
		var f frame
		if err := json.Unmarshal(reader.Bytes(), &f); err != nil {
			return
		}
		switch f.Kind {
		case "get_item_ids":
			if f.From == nil {
				return
			}
			hashes, remaining, err := d.GetItemIDs(*f.From, f.Limit)
			if err != nil {
				fmt.Printf("[SYNC] get_item_ids from %s failed: %v\n", pc.addr, err)
				return
			}
			if err := pc.write(frame{Kind: "item_ids", Hashes: hashes, Remaining: remaining}); err != nil {
				return
			}
		case "get_item":
			if f.Item == nil {
				return
			}
			msg, err := d.GetItem(*f.Item)
			if err != nil {
				if err := pc.write(frame{Kind: "notfound", Item: f.Item}); err != nil {
					return
				}
				continue
			}
			if err := pc.write(frame{Kind: "item", Msg: &msg}); err != nil {
				return
			}
		default:
			return
		}
	}
}

// IsConnected reports whether at least one gossip link is live.
func (n *Node) IsConnected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.peers) > 0
}

// ConnectionCount returns the number of live gossip links.
func (n *Node) ConnectionCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.peers)
}

// Close stops the listener and drops all peer links.
func (n *Node) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ln != nil {
		n.ln.Close()
	}
	for _, pc := range n.peers {
		pc.conn.Close()
	}
	n.peers = make(map[string]*peerConn)
}
