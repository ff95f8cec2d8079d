package store

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/ds"
)

// Sync synchronizes the objects in two or more stores.
// It runs ListAddresses on all input stores.
// When an address is found to be in some but not all stores,
// its bytes are added to the stores where it's missing.
//
// Histories are not copied: each owner's history lives only in its own backend.
func Sync(ctx context.Context, stores []ds.Store) error {
	if len(stores) < 2 {
		return nil
	}

	type tuple struct {
		s    ds.Store
		ch   <-chan ds.Address
		addr *ds.Address
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx2 := errgroup.WithContext(ctx)

	tuples := make([]*tuple, 0, len(stores))
	for _, s := range stores {
		s := s
		ch := make(chan ds.Address)
		eg.Go(func() error {
			defer close(ch)
			return s.ListAddresses(ctx2, ds.Zero, func(a ds.Address) error {
				select {
				case <-ctx2.Done():
					return ctx2.Err()
				case ch <- a:
				}
				return nil
			})
		})
		tuples = append(tuples, &tuple{s: s, ch: ch})
	}

	errch := make(chan error, 1)

	go func() {
		err := eg.Wait()
		if err != nil {
			errch <- err
		}
		close(errch)
	}()

	// Stores whose current address was the minimum on the last round
	// are the ones that must advance.
	advancers := tuples
	for {
		for _, tup := range advancers {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case err, ok := <-errch:
				if ok && err != nil {
					return err
				}
				// All producers are done, so tup.ch is closed or about to be.
				a, ok := <-tup.ch
				if ok {
					tup.addr = &a
				} else {
					tup.addr = nil
				}
			case a, ok := <-tup.ch:
				if ok {
					tup.addr = &a
				} else {
					tup.addr = nil
				}
			}
		}

		sort.Slice(tuples, func(i, j int) bool {
			ai := tuples[i].addr
			aj := tuples[j].addr
			if ai != nil {
				if aj != nil {
					return ai.Less(*aj)
				}
				return true
			}
			return false
		})

		if tuples[0].addr == nil {
			// End of input on all channels.
			return nil
		}

		addr := *(tuples[0].addr)

		havers := []*tuple{tuples[0]}
		i := 1
		for i < len(tuples) && tuples[i].addr != nil && *(tuples[i].addr) == addr {
			havers = append(havers, tuples[i])
			i++
		}
		advancers = havers

		if i == len(tuples) {
			continue
		}

		b, err := havers[0].s.Get(ctx, addr)
		if err != nil {
			return errors.Wrapf(err, "getting object %s", addr)
		}
		for _, tup := range tuples[i:] {
			if _, _, err = tup.s.Put(ctx, b); err != nil {
				return errors.Wrapf(err, "storing object %s", addr)
			}
		}
	}
}
