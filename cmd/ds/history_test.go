package main

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/bobg/ds"
)

func TestWriteHistory(t *testing.T) {
	var (
		a0 = ds.AddressOf([]byte("v0"))
		a1 = ds.AddressOf([]byte("v1"))
		a2 = ds.AddressOf([]byte("v2"))
	)

	cases := []struct {
		name string
		hist []ds.Address
		cids bool
	}{
		{name: "history_hex", hist: []ds.Address{a0, a1, a2}},
		{name: "history_cid", hist: []ds.Address{a0, a1}, cids: true},
		{name: "history_empty", hist: []ds.Address{}},
	}

	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			if err := writeHistory(buf, "alice", "doc", c.hist, c.cids); err != nil {
				t.Fatal(err)
			}
			g.Assert(t, c.name, buf.Bytes())
		})
	}
}
