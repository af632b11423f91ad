// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package objmap

import (
	"encoding/binary"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelDBStore persists the index in a LevelDB database, one key per
// object. Updates use synced writes: an Update completion must imply
// durability, or the Pending/Exists protocol loses its crash
// consistency.
type LevelDBStore struct {
	db        *leveldb.DB
	writeOpts *opt.WriteOptions
}

// OpenLevelDBStore opens (recovering if corrupted) the database at dir.
func OpenLevelDBStore(dir string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil && !lerrors.IsCorrupted(err) {
		return nil, err
	}
	if lerrors.IsCorrupted(err) {
		db, err = leveldb.RecoverFile(dir, nil)
		if err != nil {
			return nil, err
		}
	}
	return &LevelDBStore{
		db:        db,
		writeOpts: &opt.WriteOptions{Sync: true},
	}, nil
}

func key(objectNo uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], objectNo)
	return k[:]
}

func (s *LevelDBStore) Load(objectCount uint64) ([]State, error) {
	states := make([]State, objectCount)
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	for iter.Next() {
		if len(iter.Key()) != 8 || len(iter.Value()) != 1 {
			continue
		}
		objectNo := binary.BigEndian.Uint64(iter.Key())
		if objectNo < objectCount {
			states[objectNo] = State(iter.Value()[0])
		}
	}
	return states, iter.Error()
}

func (s *LevelDBStore) Put(objectNo uint64, st State) error {
	return s.db.Put(key(objectNo), []byte{byte(st)}, s.writeOpts)
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
