// Package raftstore implements the Raft Storage Adapter: a
// bbolt-backed, node-local durable log and hard/conf state record
// satisfying go.etcd.io/raft/v3's raft.Storage interface, using a
// bucket-per-concern layout for the meta and entries buckets.
package raftstore

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"

	bolt "go.etcd.io/bbolt"
	"go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"

	"github.com/cuemby/loom/internal/errs"
)

var (
	bucketMeta    = []byte("meta")
	bucketEntries = []byte("entries")

	keyHardState = []byte("hard_state")
	keyConfState = []byte("conf_state")
	keyLastIdx   = []byte("last_idx")
)

// Store is a single node's durable Raft log, backed by one bbolt file
// under <base_path>/wal/.
type Store struct {
	db      *bolt.DB
	lastIdx atomic.Uint64
}

// Open creates or opens the store at <baseDir>/wal/raft.db.
func Open(baseDir string) (*Store, error) {
	dbPath := filepath.Join(baseDir, "wal", "raft.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errs.IOError(err)
	}
	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, errs.IOError(err)
	}

	s := &Store{db: db}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketEntries); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errs.IOError(err)
	}

	last, err := s.readLastIdx()
	if err != nil {
		db.Close()
		return nil, err
	}
	s.lastIdx.Store(last)
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) readLastIdx() (uint64, error) {
	var idx uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get(keyLastIdx)
		if v == nil {
			idx = 0
			return nil
		}
		idx = binary.BigEndian.Uint64(v)
		return nil
	})
	if err != nil {
		return 0, errs.IOError(err)
	}
	return idx, nil
}

// InitialState satisfies raft.Storage.
func (s *Store) InitialState() (raftpb.HardState, raftpb.ConfState, error) {
	var hs raftpb.HardState
	var cs raftpb.ConfState

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if v := b.Get(keyHardState); v != nil {
			if err := json.Unmarshal(v, &hs); err != nil {
				return err
			}
		}
		if v := b.Get(keyConfState); v != nil {
			if err := json.Unmarshal(v, &cs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return hs, cs, errs.IOError(err)
	}
	return hs, cs, nil
}

// Entries satisfies raft.Storage: returns entries in [lo, hi), bounded
// by maxSize bytes (at least one entry is returned even if it alone
// exceeds maxSize; 0 means no bound). Returns an empty slice (not an
// error) when the range reaches past the last persisted index, i.e.
// when hi > last+1.
func (s *Store) Entries(lo, hi, maxSize uint64) ([]raftpb.Entry, error) {
	last := s.lastIdx.Load()
	if hi > last+1 {
		return []raftpb.Entry{}, nil
	}

	var entries []raftpb.Entry
	var size uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		for i := lo; i < hi; i++ {
			v := b.Get(entryKey(i))
			if v == nil {
				continue
			}
			var e raftpb.Entry
			if err := e.Unmarshal(v); err != nil {
				return err
			}
			sz := uint64(e.Size())
			if maxSize > 0 && len(entries) > 0 && size+sz > maxSize {
				break
			}
			entries = append(entries, e)
			size += sz
		}
		return nil
	})
	if err != nil {
		return nil, errs.IOError(err)
	}
	return entries, nil
}

// Term satisfies raft.Storage.
func (s *Store) Term(i uint64) (uint64, error) {
	var term uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketEntries).Get(entryKey(i))
		if v == nil {
			return raft.ErrUnavailable
		}
		var e raftpb.Entry
		if err := e.Unmarshal(v); err != nil {
			return err
		}
		term = e.Term
		return nil
	})
	if err != nil {
		if err == raft.ErrUnavailable {
			return 0, raft.ErrUnavailable
		}
		return 0, errs.IOError(err)
	}
	return term, nil
}

// LastIndex satisfies raft.Storage.
func (s *Store) LastIndex() (uint64, error) { return s.lastIdx.Load(), nil }

// FirstIndex satisfies raft.Storage. Loom does not support log
// compaction below index 1, so this is always 1.
func (s *Store) FirstIndex() (uint64, error) { return 1, nil }

// Snapshot satisfies raft.Storage. Loom has no snapshot producer of
// its own (Non-goal: "no log compaction/snapshot beyond the single
// apply_snapshot entry point"), so this always reports unavailable.
func (s *Store) Snapshot() (raftpb.Snapshot, error) {
	return raftpb.Snapshot{}, raft.ErrSnapshotTemporarilyUnavailable
}

// AppendEntries durably appends entries and advances last_idx,
// refusing normal entries (those without Type == ConfChange) that
// carry both empty Data and empty Context.
func (s *Store) AppendEntries(entries []raftpb.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.Type == raftpb.EntryNormal && len(e.Data) == 0 && len(e.Context) == 0 {
			return errs.IOErrorf("raft entry at index %d: normal entry with empty data and empty context", e.Index)
		}
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		var maxIdx uint64
		for _, e := range entries {
			data, err := e.Marshal()
			if err != nil {
				return err
			}
			if err := b.Put(entryKey(e.Index), data); err != nil {
				return err
			}
			if e.Index > maxIdx {
				maxIdx = e.Index
			}
		}
		if maxIdx > s.lastIdx.Load() {
			if err := putLastIdx(tx, maxIdx); err != nil {
				return err
			}
			s.lastIdx.Store(maxIdx)
		}
		return nil
	})
}

// SetHardState persists hs.
func (s *Store) SetHardState(hs raftpb.HardState) error {
	data, err := json.Marshal(hs)
	if err != nil {
		return errs.IOError(err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyHardState, data)
	})
}

// SetConfState persists cs.
func (s *Store) SetConfState(cs raftpb.ConfState) error {
	data, err := json.Marshal(cs)
	if err != nil {
		return errs.IOError(err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyConfState, data)
	})
}

// ApplySnapshot is the single snapshot-install entry point Loom
// supports: it resets last_idx to the
// snapshot's metadata index and persists its conf state.
func (s *Store) ApplySnapshot(snap raftpb.Snapshot) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := putLastIdx(tx, snap.Metadata.Index); err != nil {
			return err
		}
		data, err := json.Marshal(snap.Metadata.ConfState)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyConfState, data)
	})
	if err != nil {
		return errs.IOError(err)
	}
	s.lastIdx.Store(snap.Metadata.Index)
	return nil
}

// Compact is a placeholder consistent with the Non-goal "no log
// compaction below index 1": it validates the request but performs no
// deletion, since FirstIndex always reports 1.
func (s *Store) Compact(compactIndex uint64) error {
	if compactIndex > s.lastIdx.Load() {
		return errs.IOErrorf("compact index %d is beyond last index %d", compactIndex, s.lastIdx.Load())
	}
	return nil
}

func entryKey(i uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, i)
	return k
}

func putLastIdx(tx *bolt.Tx, idx uint64) error {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, idx)
	return tx.Bucket(bucketMeta).Put(keyLastIdx, v)
}

var _ raft.Storage = (*Store)(nil)
