package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/ds"
	. "github.com/bobg/ds/store"
	"github.com/bobg/ds/store/mem"
)

func TestSync(t *testing.T) {
	const text = `abc def ghi jkl mno pqr stu`

	var (
		ctx    = context.Background()
		words  = strings.Fields(text)
		stores = make([]ds.Store, 0, len(words))
	)
	for i := range words {
		s := mem.New()
		stores = append(stores, s)
		for j, word := range words {
			if i == j {
				continue
			}

			_, _, err := s.Put(ctx, []byte(word))
			if err != nil {
				t.Fatal(err)
			}
		}
	}

	err := Sync(ctx, stores)
	if err != nil {
		t.Fatal(err)
	}

	addrs := listAddresses(ctx, t, stores[0])
	if len(addrs) != len(words) {
		t.Fatalf("got %d addresses, want %d", len(addrs), len(words))
	}

	for i := 1; i < len(stores); i++ {
		if diff := cmp.Diff(addrs, listAddresses(ctx, t, stores[i])); diff != "" {
			t.Errorf("store %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestSyncEmpty(t *testing.T) {
	ctx := context.Background()

	src, dst := mem.New(), mem.New()
	a, _, err := src.Put(ctx, []byte("only here"))
	if err != nil {
		t.Fatal(err)
	}
	if err = Sync(ctx, []ds.Store{src, dst}); err != nil {
		t.Fatal(err)
	}
	got, err := dst.Get(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "only here" {
		t.Errorf("got %q, want %q", got, "only here")
	}
}

func listAddresses(ctx context.Context, t *testing.T, s ds.Store) []ds.Address {
	t.Helper()

	var result []ds.Address
	err := s.ListAddresses(ctx, ds.Zero, func(a ds.Address) error {
		result = append(result, a)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return result
}
