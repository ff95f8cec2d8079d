package ds

import (
	"context"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultCacheSize is the number of serialized objects a Datastore caches
// when Config.CacheSize is zero.
const DefaultCacheSize = 1024

// Config tells Open how to set up a Datastore.
type Config struct {
	// Owner is the agent owning the local branch.
	Owner Agent

	// CacheSize bounds the in-memory object cache,
	// which evicts least-recently-used entries.
	// Zero means DefaultCacheSize.
	CacheSize int

	// Path is the on-disk location of the backend, if it has one.
	// It is informational; the backend owns its layout.
	Path string

	// Logger receives debug and error entries.
	// Nil means a new logrus.Logger at warning level.
	Logger *logrus.Logger
}

// Datastore combines a local Branch,
// read-only copies of other agents' Branches,
// and a Backend fronted by an LRU cache of serialized objects.
//
// Each method call is atomic with respect to other calls on the same Datastore.
type Datastore struct {
	backend Backend
	path    string
	log     *logrus.Logger

	mu       sync.Mutex
	local    *Branch
	cached   map[Agent]*Branch
	cacheMap *lru.Cache // Address -> []byte
}

// Open produces a Datastore persisting to backend.
// The local branch is loaded from backend's records for conf.Owner,
// and every other owner's records are loaded as cached branches.
func Open(ctx context.Context, backend Backend, conf Config) (*Datastore, error) {
	if conf.Logger == nil {
		conf.Logger = logrus.New()
		conf.Logger.SetLevel(logrus.WarnLevel)
	}
	size := conf.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "creating object cache")
	}

	local, err := loadBranch(ctx, backend, conf.Owner)
	if err != nil {
		return nil, errors.Wrapf(err, "loading local branch of %s", conf.Owner)
	}

	d := &Datastore{
		backend:  backend,
		path:     conf.Path,
		log:      conf.Logger,
		local:    local,
		cacheMap: c,
	}

	d.cached, err = d.loadCachedBranches(ctx)
	if err != nil {
		return nil, err
	}

	d.log.WithFields(logrus.Fields{
		"owner":      conf.Owner,
		"identities": len(local.identities),
		"cached":     len(d.cached),
	}).Debug("opened datastore")

	return d, nil
}

func loadBranch(ctx context.Context, r Recorder, owner Agent) (*Branch, error) {
	b := NewBranch(owner, nil)
	err := r.Histories(ctx, owner, func(id Identity, h []Address) error {
		b.identities[id] = append([]Address{}, h...)
		return nil
	})
	return b, err
}

func (d *Datastore) loadCachedBranches(ctx context.Context) (map[Agent]*Branch, error) {
	var owners []Agent
	err := d.backend.ListOwners(ctx, func(owner Agent) error {
		if owner != d.local.owner {
			owners = append(owners, owner)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing owners")
	}

	branches := make([]*Branch, len(owners))

	eg, ctx := errgroup.WithContext(ctx)
	for i, owner := range owners {
		i, owner := i, owner
		eg.Go(func() error {
			b, err := loadBranch(ctx, d.backend, owner)
			if err != nil {
				return errors.Wrapf(err, "loading branch of %s", owner)
			}
			branches[i] = b
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	result := make(map[Agent]*Branch, len(owners))
	for _, b := range branches {
		result[b.owner] = b
	}
	return result, nil
}

// Refresh reloads the cached branches of other agents from the backend.
// The local branch is untouched.
func (d *Datastore) Refresh(ctx context.Context) error {
	cached, err := d.loadCachedBranches(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.cached = cached
	d.mu.Unlock()

	return nil
}

// Path returns the on-disk location given in Config.Path.
func (d *Datastore) Path() string {
	return d.path
}

// Caller must obtain a lock.
func (d *Datastore) load(ctx context.Context, addr Address) (Storable, error) {
	var b []byte
	if got, ok := d.cacheMap.Get(addr); ok {
		b = got.([]byte)
	} else {
		var err error
		b, err = d.backend.Get(ctx, addr)
		if err != nil {
			return nil, errors.Wrapf(err, "getting %s", addr)
		}
		if AddressOf(b) != addr {
			return nil, errors.Wrapf(ErrCorrupt, "getting %s", addr)
		}
		d.cacheMap.Add(addr, b)
	}
	return Decode(b)
}

// Caller must obtain a lock.
func (d *Datastore) store(ctx context.Context, s Storable) (Address, error) {
	b, err := Encode(s)
	if err != nil {
		return Zero, err
	}
	addr := AddressOf(b)

	_, added, err := d.backend.Put(ctx, b)
	if err != nil {
		return Zero, errors.Wrapf(err, "storing %s", addr)
	}
	d.cacheMap.Add(addr, b)

	d.log.WithFields(logrus.Fields{
		"address": addr,
		"kind":    s.Kind(),
		"added":   added,
	}).Debug("stored object")

	return addr, nil
}

// Load gets the object at addr,
// from the cache if possible and otherwise from the backend.
func (d *Datastore) Load(ctx context.Context, addr Address) (Storable, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.load(ctx, addr)
}

// Head returns the latest address of id on the local branch.
func (d *Datastore) Head(id Identity) (Address, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.local.Head(id)
}

// History returns the history of id on the local branch, oldest first.
func (d *Datastore) History(id Identity) ([]Address, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.local.History(id)
}

// Update records s as the new version of its identity on the local branch.
//
// It fails with ErrNoHead if the identity has no history there.
// Otherwise the current head is loaded,
// s is serialized and stored in the backend,
// the commit is recorded in the backend,
// and finally the local branch is advanced.
// If any step fails the local branch and its recorded history are unchanged.
//
// The returned Delta links the old head to the new one.
func (d *Datastore) Update(ctx context.Context, s Storable) (Delta, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := s.Identity()

	head, ok := d.local.Head(id)
	if !ok {
		return Delta{}, errors.Wrapf(ErrNoHead, "updating %s", id)
	}

	// TODO: compute a diff against the new version once a diff format exists.
	if _, err := d.load(ctx, head); err != nil {
		return Delta{}, errors.Wrapf(err, "loading head of %s", id)
	}

	addr, err := d.store(ctx, s)
	if err != nil {
		return Delta{}, errors.Wrapf(err, "updating %s", id)
	}

	err = d.backend.Append(ctx, d.local.owner, id, head, addr)
	if err != nil {
		d.cacheMap.Remove(addr)
		d.log.WithFields(logrus.Fields{
			"identity": id,
			"address":  addr,
		}).WithError(err).Error("recording commit")
		return Delta{}, errors.Wrapf(err, "recording commit of %s to %s", addr, id)
	}

	if err = d.local.Commit(id, addr); err != nil {
		return Delta{}, errors.Wrapf(err, "committing %s to %s", addr, id)
	}

	d.log.WithFields(logrus.Fields{
		"identity": id,
		"previous": head,
		"current":  addr,
	}).Debug("updated")

	return Delta{Previous: head, Current: addr}, nil
}

// Register is meant to create the first version of a never-before-seen identity,
// after checking where it belongs.
// Those rules are not defined,
// so Register always fails with ErrNotImplemented and changes nothing.
func (d *Datastore) Register(_ context.Context, s Storable) error {
	return errors.Wrapf(ErrNotImplemented, "registering %s", s.Identity())
}

// Owner returns the owner of the local branch.
func (d *Datastore) Owner() Agent {
	return d.local.owner
}

// LocalBranch returns a snapshot of the local branch.
func (d *Datastore) LocalBranch() *Branch {
	d.mu.Lock()
	defer d.mu.Unlock()

	return NewBranch(d.local.owner, d.local.identities)
}

// CachedBranch returns a snapshot of the cached branch of another agent.
func (d *Datastore) CachedBranch(owner Agent) (*Branch, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.cached[owner]
	if !ok {
		return nil, false
	}
	return NewBranch(b.owner, b.identities), true
}

// CachedOwners lists the agents whose branches are cached, sorted.
func (d *Datastore) CachedOwners() []Agent {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := make([]Agent, 0, len(d.cached))
	for owner := range d.cached {
		result = append(result, owner)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// CachedAddresses returns a snapshot of the object cache.
func (d *Datastore) CachedAddresses() map[Address][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := make(map[Address][]byte)
	for _, k := range d.cacheMap.Keys() {
		if v, ok := d.cacheMap.Peek(k); ok {
			result[k.(Address)] = append([]byte{}, v.([]byte)...)
		}
	}
	return result
}
