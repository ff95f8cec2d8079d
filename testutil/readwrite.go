package testutil

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/bobg/ds"
)

// Data produces n bytes of pseudorandom data from a fixed seed.
func Data(n int) []byte {
	r := rand.New(rand.NewSource(1))
	b := make([]byte, n)
	r.Read(b)
	return b
}

// ReadWrite permits testing a Store implementation
// by writing some data to it,
// then reading it back out to make sure it's the same.
// It also checks that a second write of the same data is a no-op
// and that a missing address produces ds.ErrNotFound.
func ReadWrite(ctx context.Context, t *testing.T, store ds.Store, data []byte) {
	t1 := time.Now()
	addr, added, err := store.Put(ctx, data)
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("wrote %d bytes in %s", len(data), time.Since(t1))

	if !added {
		t.Error("first Put reported added=false")
	}
	if want := ds.AddressOf(data); addr != want {
		t.Fatalf("got address %s, want %s", addr, want)
	}

	addr2, added, err := store.Put(ctx, data)
	if err != nil {
		t.Fatal(err)
	}
	if added {
		t.Error("second Put reported added=true")
	}
	if addr2 != addr {
		t.Errorf("second Put produced %s, want %s", addr2, addr)
	}

	t2 := time.Now()
	got, err := store.Get(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("read %d bytes in %s", len(got), time.Since(t2))

	if len(got) != len(data) {
		t.Errorf("got length %d, want %d", len(got), len(data))
	} else if !bytes.Equal(got, data) {
		t.Error("mismatch")
	}

	missing := ds.AddressOf([]byte("this was never stored"))
	_, err = store.Get(ctx, missing)
	if !errors.Is(err, ds.ErrNotFound) {
		t.Errorf("got error %v for missing address, want ds.ErrNotFound", err)
	}
}
