package main

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/bobg/ds"
)

func formatAddress(a ds.Address, cid bool) string {
	if cid {
		return a.CID().String()
	}
	return a.String()
}

// writeHistory writes a history oldest first, marking the head.
func writeHistory(w io.Writer, owner ds.Agent, id ds.Identity, hist []ds.Address, cids bool) error {
	_, err := fmt.Fprintf(w, "owner: %s\nidentity: %s\nversions: %d\n", owner, id, len(hist))
	if err != nil {
		return errors.Wrap(err, "writing history header")
	}
	for i, a := range hist {
		var suffix string
		if i == len(hist)-1 {
			suffix = " (head)"
		}
		_, err = fmt.Fprintf(w, "%4d %s%s\n", i, formatAddress(a, cids), suffix)
		if err != nil {
			return errors.Wrap(err, "writing history")
		}
	}
	return nil
}
