package testutil

import (
	"context"
	"sort"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/ds"
)

// AllAddresses writes a random set of random byte sequences to an empty store
// and makes sure that the right set of addresses comes back in a call to ListAddresses.
func AllAddresses(ctx context.Context, t *testing.T, storeFactory func() ds.Store) {
	if err := quick.Check(allAddressesHelper(ctx, t, storeFactory), nil); err != nil {
		t.Error(err)
	}
}

func allAddressesHelper(ctx context.Context, t *testing.T, storeFactory func() ds.Store) func([][]byte) bool {
	return func(blobs [][]byte) bool {
		var (
			store = storeFactory()
			want  []ds.Address
		)
		for _, blob := range blobs {
			addr, added, err := store.Put(ctx, blob)
			if err != nil {
				t.Fatal(err)
			}
			if added {
				want = append(want, addr)
			}
		}
		var got []ds.Address
		err := store.ListAddresses(ctx, ds.Zero, func(a ds.Address) error {
			got = append(got, a)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}

		sort.Slice(want, func(i, j int) bool { return want[i].Less(want[j]) })

		if !sort.SliceIsSorted(got, func(i, j int) bool { return got[i].Less(got[j]) }) {
			t.Log("ListAddresses produced addresses out of order")
			return false
		}

		if diff := cmp.Diff(want, got); diff != "" {
			t.Logf("mismatch (-want +got):\n%s", diff)
			return false
		}
		return true
	}
}
