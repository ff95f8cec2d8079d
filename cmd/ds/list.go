package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/ds"
	"github.com/bobg/ds/store"
)

func (c maincmd) listAddresses(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		start = fs.String("start", "", "start after this address")
		cids  = fs.Bool("cid", false, "print addresses as CIDs")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	var startAddr ds.Address
	if *start != "" {
		startAddr, err = ds.ParseAddress(*start)
		if err != nil {
			return errors.Wrap(err, "parsing start address")
		}
	}

	return c.b.ListAddresses(ctx, startAddr, func(a ds.Address) error {
		fmt.Println(formatAddress(a, *cids))
		return nil
	})
}

func (c maincmd) owners(_ context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	fmt.Printf("%s (local)\n", c.d.Owner())
	for _, owner := range c.d.CachedOwners() {
		fmt.Println(owner)
	}
	return nil
}

func (c maincmd) identities(_ context.Context, fs *flag.FlagSet, args []string) error {
	owner := fs.String("owner", "", "list identities on this agent's branch (default: local)")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	b, err := c.branch(ds.Agent(*owner))
	if err != nil {
		return err
	}
	for _, id := range b.Identities() {
		fmt.Println(id)
	}
	return nil
}

func (c maincmd) history(_ context.Context, fs *flag.FlagSet, args []string) error {
	var (
		owner = fs.String("owner", "", "show history on this agent's branch (default: local)")
		cids  = fs.Bool("cid", false, "print addresses as CIDs")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	args = fs.Args()
	if len(args) == 0 {
		return errors.New("missing identity")
	}
	id := ds.Identity(args[0])

	b, err := c.branch(ds.Agent(*owner))
	if err != nil {
		return err
	}
	hist, ok := b.History(id)
	if !ok {
		return errors.Wrapf(ds.ErrNotFound, "no history for %s", id)
	}
	return writeHistory(os.Stdout, b.Owner(), id, hist, *cids)
}

func (c maincmd) branch(owner ds.Agent) (*ds.Branch, error) {
	if owner == "" || owner == c.d.Owner() {
		return c.d.LocalBranch(), nil
	}
	b, ok := c.d.CachedBranch(owner)
	if !ok {
		return nil, fmt.Errorf("no branch for %s", owner)
	}
	return b, nil
}

func (c maincmd) sync(ctx context.Context, fs *flag.FlagSet, args []string) error {
	to := fs.String("to", "", "config file of the store to sync with")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if *to == "" {
		return errors.New("missing -to")
	}

	other, err := backendFromConfig(ctx, *to)
	if err != nil {
		return errors.Wrapf(err, "creating store from %s", *to)
	}

	return store.Sync(ctx, []ds.Store{c.b, other})
}
