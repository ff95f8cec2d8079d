// Package badger implements a backend in a Badger key-value database.
package badger

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	stderrs "errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bobg/ds"
	"github.com/bobg/ds/store"
)

var _ ds.Backend = &Store{}

// Store is a Badger-based backend.
//
// Keys:
//   o:<32-byte address>                               object bytes
//   h:<hex owner>:<hex identity>:<8-byte big-endian seq>  history entry (a 32-byte address)
type Store struct {
	db *badger.DB
}

// New produces a new Store using db for storage.
func New(db *badger.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if necessary) a Badger database in dir.
// An empty dir means an in-memory database.
// Writes are synced to disk before they are acknowledged.
// Badger's own log output goes to log, which may be nil.
func Open(dir string, log logrus.FieldLogger) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithSyncWrites(true)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	if log == nil {
		opts = opts.WithLogger(nil)
	} else {
		opts = opts.WithLogger(log)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening badger db in %s", dir)
	}
	return New(db), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get gets the bytes at address `a`.
func (s *Store) Get(_ context.Context, a ds.Address) ([]byte, error) {
	var b []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(objectKey(a))
		if err != nil {
			return err
		}
		b, err = item.ValueCopy(nil)
		return err
	})
	if stderrs.Is(err, badger.ErrKeyNotFound) {
		return nil, ds.ErrNotFound
	}
	return b, errors.Wrapf(err, "getting %s", a)
}

// Put adds bytes to the store if they weren't already present.
func (s *Store) Put(_ context.Context, b []byte) (ds.Address, bool, error) {
	var (
		a     = ds.AddressOf(b)
		key   = objectKey(a)
		added bool
	)
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !stderrs.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		added = true
		return txn.Set(key, b)
	})
	if stderrs.Is(err, badger.ErrConflict) {
		// A concurrent Put of the same bytes won.
		return a, false, nil
	}
	return a, added, errors.Wrapf(err, "storing %s", a)
}

// ListAddresses produces all addresses in the store, in lexicographic order.
func (s *Store) ListAddresses(ctx context.Context, start ds.Address, f func(ds.Address) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte("o:")
		for it.Seek(objectKey(start)); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			a := ds.AddressFromBytes(it.Item().Key()[len(prefix):])
			if a == start {
				continue
			}
			if err := f(a); err != nil {
				return err
			}
		}
		return nil
	})
}

// Append implements ds.Recorder.
// Concurrent appends to the same history are serialized by Badger's optimistic transactions:
// the loser's commit fails and is reported as ds.ErrConflict.
func (s *Store) Append(_ context.Context, owner ds.Agent, id ds.Identity, prev, addr ds.Address) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		hist, err := history(txn, owner, id)
		if err != nil {
			return err
		}
		if err = ds.CheckAppend(hist, prev); err != nil {
			return err
		}

		// Reading the next slot puts it in this transaction's read set,
		// so a concurrent writer of the same slot causes a commit conflict.
		key := historyKey(owner, id, uint64(len(hist)))
		_, err = txn.Get(key)
		if err == nil {
			return ds.ErrConflict
		}
		if !stderrs.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, addr[:])
	})
	if stderrs.Is(err, badger.ErrConflict) {
		return ds.ErrConflict
	}
	if errors.Is(err, ds.ErrConflict) {
		return err
	}
	return errors.Wrapf(err, "appending to history of %s", id)
}

// History implements ds.Recorder.
func (s *Store) History(_ context.Context, owner ds.Agent, id ds.Identity) ([]ds.Address, error) {
	var hist []ds.Address
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		hist, err = history(txn, owner, id)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "reading history of %s", id)
	}
	if len(hist) == 0 {
		return nil, ds.ErrNotFound
	}
	return hist, nil
}

func history(txn *badger.Txn, owner ds.Agent, id ds.Identity) ([]ds.Address, error) {
	var hist []ds.Address
	err := eachHistoryEntry(txn, historyPrefix(owner, id), func(_ ds.Identity, a ds.Address) error {
		hist = append(hist, a)
		return nil
	})
	return hist, err
}

// Histories implements ds.Recorder.
func (s *Store) Histories(ctx context.Context, owner ds.Agent, f func(ds.Identity, []ds.Address) error) error {
	m := make(map[ds.Identity][]ds.Address)
	err := s.db.View(func(txn *badger.Txn) error {
		return eachHistoryEntry(txn, ownerPrefix(owner), func(id ds.Identity, a ds.Address) error {
			m[id] = append(m[id], a)
			return nil
		})
	})
	if err != nil {
		return errors.Wrapf(err, "reading histories of %s", owner)
	}

	// Hex key order is not identity order when one identity is a prefix of another.
	ids := make([]ds.Identity, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f(id, m[id]); err != nil {
			return err
		}
	}
	return nil
}

// ListOwners implements ds.Recorder.
func (s *Store) ListOwners(_ context.Context, f func(ds.Agent) error) error {
	var owners []ds.Agent
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte("h:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); {
			key := it.Item().Key()[len(prefix):]
			end := bytes.IndexByte(key, ':')
			if end < 0 {
				return fmt.Errorf("malformed history key %x", it.Item().Key())
			}
			ownerHex := string(key[:end])
			o, err := hex.DecodeString(ownerHex)
			if err != nil {
				return errors.Wrapf(err, "decoding owner in key %x", it.Item().Key())
			}
			owners = append(owners, ds.Agent(o))

			// Skip the rest of this owner's keys.
			it.Seek([]byte("h:" + ownerHex + ";"))
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "listing owners")
	}

	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	for _, owner := range owners {
		if err := f(owner); err != nil {
			return err
		}
	}
	return nil
}

func eachHistoryEntry(txn *badger.Txn, prefix []byte, f func(ds.Identity, ds.Address) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		id, err := identityFromKey(item.Key())
		if err != nil {
			return err
		}
		var a ds.Address
		err = item.Value(func(v []byte) error {
			if len(v) != len(a) {
				return fmt.Errorf("history entry %x has wrong size %d", item.Key(), len(v))
			}
			copy(a[:], v)
			return nil
		})
		if err != nil {
			return err
		}
		if err = f(id, a); err != nil {
			return err
		}
	}
	return nil
}

func objectKey(a ds.Address) []byte {
	return append([]byte("o:"), a[:]...)
}

func ownerPrefix(owner ds.Agent) []byte {
	return []byte("h:" + hex.EncodeToString([]byte(owner)) + ":")
}

func historyPrefix(owner ds.Agent, id ds.Identity) []byte {
	return append(ownerPrefix(owner), hex.EncodeToString([]byte(id))+":"...)
}

func historyKey(owner ds.Agent, id ds.Identity, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(historyPrefix(owner, id), seq)
}

func identityFromKey(key []byte) (ds.Identity, error) {
	parts := strings.SplitN(string(key), ":", 4)
	if len(parts) != 4 || len(parts[3]) != 8 {
		return "", fmt.Errorf("malformed history key %x", key)
	}
	id, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", errors.Wrapf(err, "decoding identity in key %x", key)
	}
	return ds.Identity(id), nil
}

func init() {
	store.Register("badger", func(ctx context.Context, conf map[string]interface{}) (ds.Backend, error) {
		dir, ok := conf["dir"].(string)
		if !ok {
			return nil, errors.New(`missing "dir" parameter`)
		}
		return Open(dir, logrus.StandardLogger())
	})
}
