package storage

import (
	"bytes"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"

	"github.com/nikakhov/bitshares-toolkit/core/block"
	"github.com/nikakhov/bitshares-toolkit/types/ids"
)

// ErrNotFound is returned when a requested key is absent from the store.
var ErrNotFound = leveldb.ErrNotFound

// Storage persists blocks in LevelDB, indexed both by block ID and height.
type Storage struct {
	db *leveldb.DB
}

func NewStorage(path string) (*Storage, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Get retrieves a raw value by key.
func (s *Storage) Get(key string) ([]byte, error) {
	return s.db.Get([]byte(key), nil)
}

// Put stores a raw key-value pair.
func (s *Storage) Put(key string, value []byte) error {
	return s.db.Put([]byte(key), value, nil)
}

// SaveBlock writes a block under both the block index and the height index
// in one batch.
func (s *Storage) SaveBlock(blk *block.TrxBlock) error {
	data, err := blk.Serialize()
	if err != nil {
		return err
	}
	id := blk.ID()
	batch := new(leveldb.Batch)
	batch.Put(blockKey(id), data)
	batch.Put(heightKey(blk.BlockNum), id[:])
	return s.db.Write(batch, nil)
}

// GetBlock loads a block by its ID.
func (s *Storage) GetBlock(id ids.ID) (*block.TrxBlock, error) {
	data, err := s.db.Get(blockKey(id), nil)
	if err != nil {
		return nil, err
	}
	return block.Deserialize(data)
}

// GetBlockIDByHeight returns the block ID stored in the height index.
func (s *Storage) GetBlockIDByHeight(height uint32) (ids.ID, error) {
	var id ids.ID
	data, err := s.db.Get(heightKey(height), nil)
	if err != nil {
		return id, err
	}
	copy(id[:], data)
	return id, nil
}

// GetBlockByHeight uses the height index for O(1) lookup
func (s *Storage) GetBlockByHeight(height uint32) (*block.TrxBlock, error) {
	id, err := s.GetBlockIDByHeight(height)
	if err != nil {
		return nil, err
	}
	return s.GetBlock(id)
}

// HasGenesisBlock reports whether any block exists in the store.
func (s *Storage) HasGenesisBlock() (bool, error) {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	for iter.Next() {
		if bytes.HasPrefix(iter.Key(), []byte("block:")) {
			return true, iter.Error()
		}
	}
	return false, iter.Error()
}

func (s *Storage) Iterator() iterator.Iterator {
	return s.db.NewIterator(nil, nil)
}

// DB exposes the underlying LevelDB instance
func (s *Storage) DB() *leveldb.DB {
	return s.db
}

func blockKey(id ids.ID) []byte {
	return []byte("block:" + id.String())
}

func heightKey(height uint32) []byte {
	return []byte(fmt.Sprintf("height:%d", height))
}
