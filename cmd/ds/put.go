package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/ds"
)

// put stores stdin verbatim, outside any branch.
func (c maincmd) put(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return errors.Wrap(err, "reading stdin")
	}
	addr, added, err := c.b.Put(ctx, b)
	if err != nil {
		return errors.Wrap(err, "storing object")
	}

	c.log.WithField("added", added).Info("stored")
	fmt.Println(addr)
	return nil
}

// update reads a new version of an identity's blob from stdin.
func (c maincmd) update(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	args = fs.Args()
	if len(args) == 0 {
		return errors.New("missing identity")
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return errors.Wrap(err, "reading stdin")
	}

	delta, err := c.d.Update(ctx, &ds.Blob{ID: ds.Identity(args[0]), Data: data})
	if err != nil {
		return err
	}
	fmt.Printf("%s -> %s\n", delta.Previous, delta.Current)
	return nil
}

func (c maincmd) register(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	args = fs.Args()
	if len(args) == 0 {
		return errors.New("missing identity")
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return errors.Wrap(err, "reading stdin")
	}
	return c.d.Register(ctx, &ds.Blob{ID: ds.Identity(args[0]), Data: data})
}

// seed starts the history of a new identity on the local branch,
// writing straight to the backend.
// The datastore has no operation for this.
// Other datastores open on the same backend see the new identity only after reopening.
func (c maincmd) seed(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	var id ds.Identity
	if args = fs.Args(); len(args) > 0 {
		id = ds.Identity(args[0])
	} else {
		id = ds.NewIdentity()
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return errors.Wrap(err, "reading stdin")
	}

	b, err := ds.Encode(&ds.Blob{ID: id, Data: data})
	if err != nil {
		return err
	}
	addr, _, err := c.b.Put(ctx, b)
	if err != nil {
		return errors.Wrap(err, "storing first version")
	}
	err = c.b.Append(ctx, c.d.Owner(), id, ds.Zero, addr)
	if errors.Is(err, ds.ErrConflict) {
		return fmt.Errorf("identity %s already has a history", id)
	}
	if err != nil {
		return errors.Wrapf(err, "recording first version of %s", id)
	}

	fmt.Printf("%s %s\n", id, addr)
	return nil
}
