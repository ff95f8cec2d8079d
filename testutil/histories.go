package testutil

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/ds"
)

// Histories exercises a Recorder:
// compare-and-append semantics,
// per-owner isolation,
// and the listing methods.
// The recorder must start out empty.
func Histories(ctx context.Context, t *testing.T, r ds.Recorder) {
	var (
		alice = ds.Agent("alice")
		bob   = ds.Agent("bob")
		carol = ds.Agent("carol")

		id1 = ds.Identity("identity1")
		id2 = ds.Identity("identity:2/with odd chars")

		a1 = ds.Address{0x1a}
		a2 = ds.Address{0x2a}
		a3 = ds.Address{0x3a}
		b1 = ds.Address{0x1b}
	)

	appends := []struct {
		owner   ds.Agent
		id      ds.Identity
		prev    ds.Address
		addr    ds.Address
		wantErr error
	}{
		{owner: alice, id: id1, prev: ds.Zero, addr: a1},
		{owner: alice, id: id1, prev: a1, addr: a2},
		{owner: alice, id: id1, prev: a1, addr: a3, wantErr: ds.ErrConflict},
		{owner: alice, id: id1, prev: ds.Zero, addr: a3, wantErr: ds.ErrConflict},
		{owner: alice, id: id1, prev: a2, addr: a2},
		{owner: alice, id: id2, prev: a2, addr: a3, wantErr: ds.ErrConflict},
		{owner: alice, id: id2, prev: ds.Zero, addr: a3},
		{owner: bob, id: id1, prev: ds.Zero, addr: b1},

		// A failed first append must not make carol an owner.
		{owner: carol, id: id1, prev: a1, addr: a2, wantErr: ds.ErrConflict},
	}

	for i, c := range appends {
		t.Run(fmt.Sprintf("append_%02d", i+1), func(t *testing.T) {
			err := r.Append(ctx, c.owner, c.id, c.prev, c.addr)
			if c.wantErr != nil {
				if !errors.Is(err, c.wantErr) {
					t.Fatalf("got error %v, want %v", err, c.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
		})
	}

	cases := []struct {
		owner   ds.Agent
		id      ds.Identity
		want    []ds.Address
		wantErr error
	}{
		{owner: alice, id: id1, want: []ds.Address{a1, a2, a2}},
		{owner: alice, id: id2, want: []ds.Address{a3}},
		{owner: bob, id: id1, want: []ds.Address{b1}},
		{owner: bob, id: id2, wantErr: ds.ErrNotFound},
		{owner: carol, id: id1, wantErr: ds.ErrNotFound},
	}

	for i, c := range cases {
		t.Run(fmt.Sprintf("history_%02d", i+1), func(t *testing.T) {
			got, err := r.History(ctx, c.owner, c.id)
			if c.wantErr != nil {
				if !errors.Is(err, c.wantErr) {
					t.Fatalf("got error %v, want %v", err, c.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}

	got := make(map[ds.Identity][]ds.Address)
	var order []ds.Identity
	err := r.Histories(ctx, alice, func(id ds.Identity, h []ds.Address) error {
		got[id] = h
		order = append(order, id)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := map[ds.Identity][]ds.Address{
		id1: {a1, a2, a2},
		id2: {a3},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Histories mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]ds.Identity{id1, id2}, order); diff != "" {
		t.Errorf("Histories order mismatch (-want +got):\n%s", diff)
	}

	var owners []ds.Agent
	err = r.ListOwners(ctx, func(owner ds.Agent) error {
		owners = append(owners, owner)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]ds.Agent{alice, bob}, owners); diff != "" {
		t.Errorf("ListOwners mismatch (-want +got):\n%s", diff)
	}
}
