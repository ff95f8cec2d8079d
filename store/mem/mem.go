// Package mem implements an in-memory backend.
package mem

import (
	"context"
	"sort"
	"sync"

	"github.com/bobg/ds"
	"github.com/bobg/ds/store"
)

var _ ds.Backend = &Store{}

// Store is a memory-based implementation of a backend.
type Store struct {
	mu        sync.Mutex
	objects   map[ds.Address][]byte
	histories map[ds.Agent]map[ds.Identity][]ds.Address
}

// New produces a new Store.
func New() *Store {
	return &Store{
		objects:   make(map[ds.Address][]byte),
		histories: make(map[ds.Agent]map[ds.Identity][]ds.Address),
	}
}

// Get gets the bytes at address `a`.
func (s *Store) Get(_ context.Context, a ds.Address) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.objects[a]; ok {
		return b, nil
	}
	return nil, ds.ErrNotFound
}

// Put adds bytes to the store if they weren't already present.
func (s *Store) Put(_ context.Context, b []byte) (ds.Address, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added bool

	a := ds.AddressOf(b)
	if _, ok := s.objects[a]; !ok {
		s.objects[a] = append([]byte{}, b...)
		added = true
	}

	return a, added, nil
}

// ListAddresses produces all addresses in the store, in lexicographic order.
func (s *Store) ListAddresses(ctx context.Context, start ds.Address, f func(ds.Address) error) error {
	s.mu.Lock()
	addrs := make([]ds.Address, 0, len(s.objects))
	for a := range s.objects {
		addrs = append(addrs, a)
	}
	s.mu.Unlock()

	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })
	index := sort.Search(len(addrs), func(n int) bool {
		return start.Less(addrs[n])
	})

	for i := index; i < len(addrs); i++ {
		err := f(addrs[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// Append implements ds.Recorder.
func (s *Store) Append(_ context.Context, owner ds.Agent, id ds.Identity, prev, addr ds.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ds.CheckAppend(s.histories[owner][id], prev); err != nil {
		return err
	}

	m, ok := s.histories[owner]
	if !ok {
		m = make(map[ds.Identity][]ds.Address)
		s.histories[owner] = m
	}
	m[id] = append(m[id], addr)
	return nil
}

// History implements ds.Recorder.
func (s *Store) History(_ context.Context, owner ds.Agent, id ds.Identity) ([]ds.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.histories[owner][id]
	if !ok {
		return nil, ds.ErrNotFound
	}
	return append([]ds.Address{}, h...), nil
}

// Histories implements ds.Recorder.
func (s *Store) Histories(ctx context.Context, owner ds.Agent, f func(ds.Identity, []ds.Address) error) error {
	s.mu.Lock()
	var (
		ids = make([]ds.Identity, 0, len(s.histories[owner]))
		hs  = make(map[ds.Identity][]ds.Address, len(s.histories[owner]))
	)
	for id, h := range s.histories[owner] {
		ids = append(ids, id)
		hs[id] = append([]ds.Address{}, h...)
	}
	s.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		err := f(id, hs[id])
		if err != nil {
			return err
		}
	}
	return nil
}

// ListOwners implements ds.Recorder.
func (s *Store) ListOwners(ctx context.Context, f func(ds.Agent) error) error {
	s.mu.Lock()
	owners := make([]ds.Agent, 0, len(s.histories))
	for owner := range s.histories {
		owners = append(owners, owner)
	}
	s.mu.Unlock()

	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })

	for _, owner := range owners {
		err := f(owner)
		if err != nil {
			return err
		}
	}
	return nil
}

func init() {
	store.Register("mem", func(context.Context, map[string]interface{}) (ds.Backend, error) {
		return New(), nil
	})
}
