package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/ds"
)

func (c maincmd) get(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		refstr = fs.String("ref", "", "address (hex or CID) of object to get")
		idstr  = fs.String("id", "", "identity whose head object to get")
		raw    = fs.Bool("raw", false, "write the stored bytes instead of the object's data")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	if (*refstr == "" && *idstr == "") || (*refstr != "" && *idstr != "") {
		return errors.New("must supply one of -ref or -id")
	}

	var addr ds.Address
	if *refstr != "" {
		addr, err = ds.ParseAddress(*refstr)
		if err != nil {
			return errors.Wrapf(err, "decoding address %s", *refstr)
		}
	} else {
		var ok bool
		addr, ok = c.d.Head(ds.Identity(*idstr))
		if !ok {
			return errors.Wrapf(ds.ErrNoHead, "getting %s", *idstr)
		}
	}

	if *raw {
		b, err := c.b.Get(ctx, addr)
		if err != nil {
			return errors.Wrapf(err, "getting %s", addr)
		}
		_, err = os.Stdout.Write(b)
		return errors.Wrap(err, "writing object to stdout")
	}

	s, err := c.d.Load(ctx, addr)
	if err != nil {
		return errors.Wrapf(err, "loading %s", addr)
	}
	blob, ok := s.(*ds.Blob)
	if !ok {
		return fmt.Errorf("object %s is a %s, use -raw", addr, s.Kind())
	}
	_, err = os.Stdout.Write(blob.Data)
	return errors.Wrap(err, "writing blob to stdout")
}

func (c maincmd) head(_ context.Context, fs *flag.FlagSet, args []string) error {
	cids := fs.Bool("cid", false, "print the address as a CID")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	args = fs.Args()
	if len(args) == 0 {
		return errors.New("missing identity")
	}
	id := ds.Identity(args[0])

	addr, ok := c.d.Head(id)
	if !ok {
		return errors.Wrapf(ds.ErrNoHead, "getting head of %s", id)
	}
	fmt.Println(formatAddress(addr, *cids))
	return nil
}
