package ds_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/bobg/ds"
	"github.com/bobg/ds/store/mem"
)

const (
	alice = ds.Agent("alice")
	bob   = ds.Agent("bob")
)

// seed stores s in backend and records it as the first version of its identity for owner.
func seed(ctx context.Context, t *testing.T, backend ds.Backend, owner ds.Agent, s ds.Storable) ds.Address {
	t.Helper()

	b, err := ds.Encode(s)
	require.NoError(t, err)
	addr, _, err := backend.Put(ctx, b)
	require.NoError(t, err)
	require.NoError(t, backend.Append(ctx, owner, s.Identity(), ds.Zero, addr))
	return addr
}

func open(ctx context.Context, t *testing.T, backend ds.Backend, owner ds.Agent) *ds.Datastore {
	t.Helper()

	logger, _ := test.NewNullLogger()
	d, err := ds.Open(ctx, backend, ds.Config{Owner: owner, Logger: logger})
	require.NoError(t, err)
	return d
}

func TestUpdate(t *testing.T) {
	var (
		ctx     = context.Background()
		backend = mem.New()
		id      = ds.Identity("doc")
		a0      = seed(ctx, t, backend, alice, &ds.Blob{ID: id, Data: []byte("v0")})
		d       = open(ctx, t, backend, alice)
	)

	v1 := &ds.Blob{ID: id, Data: []byte("v1")}
	delta, err := d.Update(ctx, v1)
	require.NoError(t, err)

	enc, err := ds.Encode(v1)
	require.NoError(t, err)
	a1 := ds.AddressOf(enc)

	require.Equal(t, ds.Delta{Previous: a0, Current: a1}, delta)

	require.Contains(t, d.CachedAddresses(), a1)
	require.Equal(t, enc, d.CachedAddresses()[a1])

	head, ok := d.Head(id)
	require.True(t, ok)
	require.Equal(t, a1, head)

	hist, ok := d.History(id)
	require.True(t, ok)
	require.Equal(t, []ds.Address{a0, a1}, hist)

	// The commit is durable.
	recorded, err := backend.History(ctx, alice, id)
	require.NoError(t, err)
	require.Equal(t, []ds.Address{a0, a1}, recorded)

	got, err := d.Load(ctx, a1)
	require.NoError(t, err)
	require.Equal(t, ds.Storable(v1), got)

	// A second datastore on the same backend sees the same branch.
	d2 := open(ctx, t, backend, alice)
	hist, _ = d2.History(id)
	require.Equal(t, []ds.Address{a0, a1}, hist)
}

func TestUpdateChain(t *testing.T) {
	var (
		ctx     = context.Background()
		backend = mem.New()
		id      = ds.NewIdentity()
		a0      = seed(ctx, t, backend, alice, &ds.Blob{ID: id, Data: []byte("0")})
		d       = open(ctx, t, backend, alice)
		want    = []ds.Address{a0}
	)

	for _, data := range []string{"1", "2", "3"} {
		delta, err := d.Update(ctx, &ds.Blob{ID: id, Data: []byte(data)})
		require.NoError(t, err)
		require.Equal(t, want[len(want)-1], delta.Previous)
		want = append(want, delta.Current)
	}

	hist, _ := d.History(id)
	require.Equal(t, want, hist)
}

func TestUpdateUnseeded(t *testing.T) {
	var (
		ctx     = context.Background()
		backend = mem.New()
		d       = open(ctx, t, backend, alice)
	)

	_, err := d.Update(ctx, &ds.Blob{ID: "nobody", Data: []byte("x")})
	require.True(t, errors.Is(err, ds.ErrNoHead), "got %v, want ErrNoHead", err)

	require.Empty(t, d.CachedAddresses())
	_, ok := d.History("nobody")
	require.False(t, ok)

	var n int
	require.NoError(t, backend.ListAddresses(ctx, ds.Zero, func(ds.Address) error {
		n++
		return nil
	}))
	require.Zero(t, n)
}

// withEmpty is a backend that also reports an empty history for identity "empty",
// as a recorder may after an interrupted first append.
type withEmpty struct {
	*mem.Store
}

func (w withEmpty) Histories(ctx context.Context, owner ds.Agent, f func(ds.Identity, []ds.Address) error) error {
	if err := f("empty", nil); err != nil {
		return err
	}
	return w.Store.Histories(ctx, owner, f)
}

func TestUpdateEmptyHistory(t *testing.T) {
	var (
		ctx     = context.Background()
		backend = mem.New()
		d       = open(ctx, t, withEmpty{Store: backend}, alice)
	)

	hist, ok := d.History("empty")
	require.True(t, ok)
	require.Empty(t, hist)
	_, ok = d.Head("empty")
	require.False(t, ok)

	_, err := d.Update(ctx, &ds.Blob{ID: "empty", Data: []byte("v1")})
	require.ErrorIs(t, err, ds.ErrNoHead)

	hist, ok = d.History("empty")
	require.True(t, ok)
	require.Empty(t, hist)
	require.Empty(t, d.CachedAddresses())

	var addrs []ds.Address
	err = backend.ListAddresses(ctx, ds.Zero, func(a ds.Address) error {
		addrs = append(addrs, a)
		return nil
	})
	require.NoError(t, err)
	require.Empty(t, addrs)

	_, err = backend.History(ctx, alice, "empty")
	require.ErrorIs(t, err, ds.ErrNotFound)
}

func TestRegister(t *testing.T) {
	var (
		ctx     = context.Background()
		backend = mem.New()
		d       = open(ctx, t, backend, alice)
		s       = &ds.Blob{ID: "new", Data: []byte("x")}
	)

	err := d.Register(ctx, s)
	require.ErrorIs(t, err, ds.ErrNotImplemented)

	require.Empty(t, d.CachedAddresses())
	_, ok := d.Head("new")
	require.False(t, ok)
}

func TestCachedBranches(t *testing.T) {
	var (
		ctx     = context.Background()
		backend = mem.New()
		a0      = seed(ctx, t, backend, alice, &ds.Blob{ID: "doc", Data: []byte("alice's")})
		b0      = seed(ctx, t, backend, bob, &ds.Blob{ID: "doc", Data: []byte("bob's")})
		d       = open(ctx, t, backend, alice)
	)

	require.Equal(t, alice, d.Owner())
	require.Equal(t, []ds.Agent{bob}, d.CachedOwners())

	bobs, ok := d.CachedBranch(bob)
	require.True(t, ok)
	head, ok := bobs.Head("doc")
	require.True(t, ok)
	require.Equal(t, b0, head)

	_, ok = d.CachedBranch(alice)
	require.False(t, ok)

	// Updating the local branch leaves bob's branch alone.
	delta, err := d.Update(ctx, &ds.Blob{ID: "doc", Data: []byte("alice's v1")})
	require.NoError(t, err)
	require.Equal(t, a0, delta.Previous)

	bobs, _ = d.CachedBranch(bob)
	hist, _ := bobs.History("doc")
	require.Equal(t, []ds.Address{b0}, hist)

	recorded, err := backend.History(ctx, bob, "doc")
	require.NoError(t, err)
	require.Equal(t, []ds.Address{b0}, recorded)

	// Snapshots are not live.
	local := d.LocalBranch()
	require.NoError(t, local.Commit("doc", ds.Zero))
	h, _ := d.History("doc")
	require.Len(t, h, 2)
}

func TestRefresh(t *testing.T) {
	var (
		ctx     = context.Background()
		backend = mem.New()
		d       = open(ctx, t, backend, alice)
	)

	require.Empty(t, d.CachedOwners())

	b0 := seed(ctx, t, backend, bob, &ds.Blob{ID: "doc", Data: []byte("bob's")})
	require.Empty(t, d.CachedOwners())

	require.NoError(t, d.Refresh(ctx))
	require.Equal(t, []ds.Agent{bob}, d.CachedOwners())

	bobs, _ := d.CachedBranch(bob)
	head, _ := bobs.Head("doc")
	require.Equal(t, b0, head)
}

func TestLoadFallsBackToBackend(t *testing.T) {
	var (
		ctx     = context.Background()
		backend = mem.New()
		s       = &ds.Blob{ID: "doc", Data: []byte("stored elsewhere")}
		a0      = seed(ctx, t, backend, bob, s)
		d       = open(ctx, t, backend, alice)
	)

	require.NotContains(t, d.CachedAddresses(), a0)

	got, err := d.Load(ctx, a0)
	require.NoError(t, err)
	require.Equal(t, ds.Storable(s), got)
	require.Contains(t, d.CachedAddresses(), a0)

	_, err = d.Load(ctx, ds.AddressOf([]byte("missing")))
	require.ErrorIs(t, err, ds.ErrNotFound)
}

// corrupt is a backend whose Get returns the wrong bytes.
type corrupt struct {
	*mem.Store
}

func (corrupt) Get(context.Context, ds.Address) ([]byte, error) {
	return []byte("garbage"), nil
}

func TestLoadCorrupt(t *testing.T) {
	var (
		ctx     = context.Background()
		backend = mem.New()
		a0      = seed(ctx, t, backend, alice, &ds.Blob{ID: "doc", Data: []byte("v0")})
		d       = open(ctx, t, corrupt{Store: backend}, alice)
	)

	_, err := d.Load(ctx, a0)
	require.ErrorIs(t, err, ds.ErrCorrupt)

	// Update must load the head first, so it fails without recording anything.
	_, err = d.Update(ctx, &ds.Blob{ID: "doc", Data: []byte("v1")})
	require.ErrorIs(t, err, ds.ErrCorrupt)

	hist, _ := d.History("doc")
	require.Equal(t, []ds.Address{a0}, hist)
	require.Empty(t, d.CachedAddresses())
}

func TestUpdateConflict(t *testing.T) {
	var (
		ctx     = context.Background()
		backend = mem.New()
		a0      = seed(ctx, t, backend, alice, &ds.Blob{ID: "doc", Data: []byte("v0")})
		d1      = open(ctx, t, backend, alice)
		d2      = open(ctx, t, backend, alice)
	)

	_, err := d1.Update(ctx, &ds.Blob{ID: "doc", Data: []byte("from d1")})
	require.NoError(t, err)

	// d2 still believes a0 is the head.
	v := &ds.Blob{ID: "doc", Data: []byte("from d2")}
	_, err = d2.Update(ctx, v)
	require.ErrorIs(t, err, ds.ErrConflict)

	hist, _ := d2.History("doc")
	require.Equal(t, []ds.Address{a0}, hist)

	enc, err := ds.Encode(v)
	require.NoError(t, err)
	require.NotContains(t, d2.CachedAddresses(), ds.AddressOf(enc))
}

func TestCacheBound(t *testing.T) {
	var (
		ctx     = context.Background()
		backend = mem.New()
		_       = seed(ctx, t, backend, alice, &ds.Blob{ID: "doc", Data: []byte("v0")})
	)

	logger, _ := test.NewNullLogger()
	d, err := ds.Open(ctx, backend, ds.Config{Owner: alice, CacheSize: 2, Logger: logger, Path: "/nowhere"})
	require.NoError(t, err)
	require.Equal(t, "/nowhere", d.Path())

	for _, data := range []string{"v1", "v2", "v3", "v4"} {
		_, err := d.Update(ctx, &ds.Blob{ID: "doc", Data: []byte(data)})
		require.NoError(t, err)
	}
	require.Len(t, d.CachedAddresses(), 2)

	// Evicted objects are still in the backend.
	hist, _ := d.History("doc")
	for _, a := range hist {
		_, err := d.Load(ctx, a)
		require.NoError(t, err)
	}
}

func TestUpdateLogs(t *testing.T) {
	var (
		ctx          = context.Background()
		backend      = mem.New()
		_            = seed(ctx, t, backend, alice, &ds.Blob{ID: "doc", Data: []byte("v0")})
		logger, hook = test.NewNullLogger()
	)
	logger.SetLevel(logrus.DebugLevel)

	d, err := ds.Open(ctx, backend, ds.Config{Owner: alice, Logger: logger})
	require.NoError(t, err)

	delta, err := d.Update(ctx, &ds.Blob{ID: "doc", Data: []byte("v1")})
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, "updated", entry.Message)
	require.Equal(t, ds.Identity("doc"), entry.Data["identity"])
	require.Equal(t, delta.Current, entry.Data["current"])
}
