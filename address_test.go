package ds

import (
	"bytes"
	"fmt"
	"testing"
	"testing/quick"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
)

func TestAddressOf(t *testing.T) {
	cases := []struct {
		inp  string
		want string
	}{
		{inp: "", want: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{inp: "hello", want: "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
	}
	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%02d", i+1), func(t *testing.T) {
			got := AddressOf([]byte(c.inp))
			if got.String() != c.want {
				t.Errorf("got %s, want %s", got, c.want)
			}
			if again := AddressOf([]byte(c.inp)); again != got {
				t.Errorf("second computation gave %s, first gave %s", again, got)
			}
		})
	}
}

func TestAddressDistinct(t *testing.T) {
	f := func(a, b []byte) bool {
		return bytes.Equal(a, b) == (AddressOf(a) == AddressOf(b))
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestAddressHex(t *testing.T) {
	f := func(a Address) bool {
		got, err := AddressFromHex(a.String())
		return err == nil && got == a
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}

	if _, err := AddressFromHex("abcd"); err == nil {
		t.Error("parsed a short hex string")
	}
}

func TestAddressLess(t *testing.T) {
	a := Address{1}
	b := Address{2}
	if !a.Less(b) || b.Less(a) || a.Less(a) {
		t.Error("Less is not a strict order")
	}
	if !Zero.IsZero() || a.IsZero() {
		t.Error("IsZero is wrong")
	}
}

func TestParseAddress(t *testing.T) {
	a := AddressOf([]byte("hello"))

	b32, err := a.CID().StringOfBase(multibase.Base32)
	if err != nil {
		t.Fatal(err)
	}
	b58, err := a.CID().StringOfBase(multibase.Base58BTC)
	if err != nil {
		t.Fatal(err)
	}

	sha512, err := multihash.Sum([]byte("hello"), multihash.SHA2_512, -1)
	if err != nil {
		t.Fatal(err)
	}
	other := cid.NewCidV1(cid.Raw, sha512).String()

	cases := []struct {
		inp     string
		wantErr bool
	}{
		{inp: a.String()},
		{inp: b32},
		{inp: b58},
		{inp: a.CID().String()},
		{inp: other, wantErr: true},
		{inp: "not an address", wantErr: true},
		{inp: "", wantErr: true},
	}
	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%02d", i+1), func(t *testing.T) {
			got, err := ParseAddress(c.inp)
			if c.wantErr {
				if err == nil {
					t.Errorf("parsed %q as %s, want error", c.inp, got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != a {
				t.Errorf("got %s, want %s", got, a)
			}
		})
	}
}

func TestAddressSQL(t *testing.T) {
	a := AddressOf([]byte("hello"))
	v, err := a.Value()
	if err != nil {
		t.Fatal(err)
	}

	var got Address
	if err = got.Scan(v); err != nil {
		t.Fatal(err)
	}
	if got != a {
		t.Errorf("got %s, want %s", got, a)
	}

	if err = got.Scan(nil); err != nil || !got.IsZero() {
		t.Errorf("scanning nil gave %s, %v", got, err)
	}
	if err = got.Scan([]byte{1, 2, 3}); err == nil {
		t.Error("scanned a short byte slice")
	}
	if err = got.Scan(17); err == nil {
		t.Error("scanned an int")
	}
}
