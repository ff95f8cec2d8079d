// Package compress implements a backend that compresses and uncompresses objects
// on their way into and out of a nested backend.
//
// Objects are still addressed by the hash of their uncompressed bytes.
// The nested backend stores the compressed form under its own address,
// and the mapping from one to the other is kept as a one-entry history
// per object, owned by the reserved agent IndexOwner.
package compress

import (
	"compress/lzw"
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/bobg/ds"
	"github.com/bobg/ds/store"
)

var _ ds.Backend = &Store{}

// IndexOwner is the agent under which the address map lives in the nested backend.
// It is hidden from ListOwners.
const IndexOwner = ds.Agent("ds:compress-index")

// Store is a backend wrapping a nested backend and a Compressor.
type Store struct {
	s ds.Backend
	c Compressor
}

// New produces a new Store.
func New(s ds.Backend, c Compressor) *Store {
	return &Store{s: s, c: c}
}

func (s *Store) lookup(ctx context.Context, a ds.Address) (ds.Address, error) {
	hist, err := s.s.History(ctx, IndexOwner, ds.Identity(a.String()))
	if err != nil {
		return ds.Zero, err
	}
	return hist[len(hist)-1], nil
}

// Get gets the uncompressed bytes at address `a`.
func (s *Store) Get(ctx context.Context, a ds.Address) ([]byte, error) {
	ca, err := s.lookup(ctx, a)
	if err != nil {
		return nil, errors.Wrapf(err, "getting compressed address for %s", a)
	}

	b, err := s.s.Get(ctx, ca)
	if err != nil {
		return nil, errors.Wrap(err, "getting compressed object")
	}

	if ca != a {
		b, err = s.c.Uncompress(b)
		if err != nil {
			return nil, errors.Wrap(err, "uncompressing object")
		}
	}

	return b, nil
}

// Put compresses b and stores it in the nested backend.
// If compression does not make b smaller, b is stored as-is.
func (s *Store) Put(ctx context.Context, b []byte) (ds.Address, bool, error) {
	a := ds.AddressOf(b)

	_, err := s.lookup(ctx, a)
	if err == nil {
		return a, false, nil
	}
	if !errors.Is(err, ds.ErrNotFound) {
		return ds.Zero, false, errors.Wrap(err, "consulting address map")
	}

	cb, err := s.c.Compress(b)
	if err != nil {
		return ds.Zero, false, errors.Wrap(err, "compressing object")
	}
	if len(cb) >= len(b) {
		cb = b
	}

	ca, _, err := s.s.Put(ctx, cb)
	if err != nil {
		return ds.Zero, false, errors.Wrap(err, "storing compressed object")
	}

	err = s.s.Append(ctx, IndexOwner, ds.Identity(a.String()), ds.Zero, ca)
	if errors.Is(err, ds.ErrConflict) {
		// Someone else stored the same object concurrently.
		return a, false, nil
	}
	if err != nil {
		return ds.Zero, false, errors.Wrap(err, "updating address map")
	}
	return a, true, nil
}

// ListAddresses produces the uncompressed addresses of all objects, in lexicographic order.
func (s *Store) ListAddresses(ctx context.Context, start ds.Address, f func(ds.Address) error) error {
	// Identities are lowercase hex, so their order is the order of the addresses.
	return s.s.Histories(ctx, IndexOwner, func(id ds.Identity, _ []ds.Address) error {
		a, err := ds.AddressFromHex(string(id))
		if err != nil {
			return errors.Wrapf(err, "parsing address map entry %s", id)
		}
		if !start.Less(a) {
			return nil
		}
		return f(a)
	})
}

// Append implements ds.Recorder.
func (s *Store) Append(ctx context.Context, owner ds.Agent, id ds.Identity, prev, addr ds.Address) error {
	if owner == IndexOwner {
		return fmt.Errorf("owner %s is reserved", owner)
	}
	return s.s.Append(ctx, owner, id, prev, addr)
}

// History implements ds.Recorder.
func (s *Store) History(ctx context.Context, owner ds.Agent, id ds.Identity) ([]ds.Address, error) {
	return s.s.History(ctx, owner, id)
}

// Histories implements ds.Recorder.
func (s *Store) Histories(ctx context.Context, owner ds.Agent, f func(ds.Identity, []ds.Address) error) error {
	return s.s.Histories(ctx, owner, f)
}

// ListOwners implements ds.Recorder.
func (s *Store) ListOwners(ctx context.Context, f func(ds.Agent) error) error {
	return s.s.ListOwners(ctx, func(owner ds.Agent) error {
		if owner == IndexOwner {
			return nil
		}
		return f(owner)
	})
}

func init() {
	store.Register("compress", func(ctx context.Context, conf map[string]interface{}) (ds.Backend, error) {
		nested, err := store.Nested(ctx, conf)
		if err != nil {
			return nil, err
		}
		compressor, ok := conf["compressor"].(string)
		if !ok {
			return nil, errors.New(`missing "compressor" parameter`)
		}
		switch compressor {
		case "lzw":
			order := lzw.LSB
			if o, ok := conf["order"].(int); ok && lzw.Order(o) == lzw.MSB {
				order = lzw.MSB
			}
			return New(nested, LZW{Order: order}), nil

		case "flate":
			level := -1
			if l, ok := conf["level"].(int); ok {
				level = l
			}
			return New(nested, Flate{Level: level}), nil

		case "zstd":
			var level zstd.EncoderLevel
			if l, ok := conf["level"].(string); ok {
				ok, lev := zstd.EncoderLevelFromString(l)
				if !ok {
					return nil, fmt.Errorf(`unknown zstd level "%s"`, l)
				}
				level = lev
			}
			return New(nested, Zstd{Level: level}), nil

		case "xz":
			return New(nested, XZ{}), nil

		default:
			return nil, fmt.Errorf(`unknown compressor "%s"`, compressor)
		}
	})
}
