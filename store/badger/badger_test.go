package badger

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/bobg/ds"
	"github.com/bobg/ds/testutil"
)

func TestStore(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	testutil.ReadWrite(context.Background(), t, s, testutil.Data(1<<20))
}

func TestAllAddresses(t *testing.T) {
	var prev *Store
	testutil.AllAddresses(context.Background(), t, func() ds.Store {
		// Each in-memory db reserves sizable memtables, so keep only one open at a time.
		if prev != nil {
			prev.Close()
		}
		s, err := Open("", nil)
		require.NoError(t, err)
		prev = s
		return s
	})
	if prev != nil {
		prev.Close()
	}
}

func TestHistories(t *testing.T) {
	s := openTestStore(t, "")
	testutil.Histories(context.Background(), t, s)
}

func TestReopen(t *testing.T) {
	var (
		ctx = context.Background()
		dir = t.TempDir()
	)

	s, err := Open(dir, nil)
	require.NoError(t, err)

	a, _, err := s.Put(ctx, []byte("persistent"))
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, "alice", "doc", ds.Zero, a))
	require.NoError(t, s.Close())

	s, err = Open(dir, nil)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, a)
	require.NoError(t, err)
	require.Equal(t, []byte("persistent"), got)

	hist, err := s.History(ctx, "alice", "doc")
	require.NoError(t, err)
	require.Equal(t, []ds.Address{a}, hist)
}

func TestConcurrentAppend(t *testing.T) {
	var (
		ctx = context.Background()
		s   = openTestStore(t, "")
		wg  sync.WaitGroup
	)

	const n = 16
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.Append(ctx, "alice", "doc", ds.Zero, ds.Address{byte(i + 1)})
		}()
	}
	wg.Wait()

	var won int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		require.True(t, errors.Is(err, ds.ErrConflict), "unexpected error %v", err)
	}
	require.Equal(t, 1, won)

	hist, err := s.History(ctx, "alice", "doc")
	require.NoError(t, err)
	require.Len(t, hist, 1)
}

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()

	s, err := Open(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
