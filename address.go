package ds

import (
	"bytes"
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
)

// Address is the address of a serialized value: its sha256 hash.
type Address [sha256.Size]byte

// AddressOf computes the Address of a byte sequence.
func AddressOf(b []byte) Address {
	return sha256.Sum256(b)
}

// Zero is the zero value of an Address.
var Zero Address

// IsZero tells whether a is the zero Address.
func (a Address) IsZero() bool {
	return a == Zero
}

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Less tells whether a sorts before other.
func (a Address) Less(other Address) bool {
	return bytes.Compare(a[:], other[:]) < 0
}

// FromHex parses the hex string s into a.
func (a *Address) FromHex(s string) error {
	if len(s) != 2*sha256.Size {
		return errors.New("wrong length")
	}
	_, err := hex.Decode(a[:], []byte(s))
	return err
}

// AddressFromBytes copies b into an Address.
// Excess bytes are ignored and a short b is zero-padded.
func AddressFromBytes(b []byte) Address {
	var out Address
	copy(out[:], b)
	return out
}

// AddressFromHex parses a hex string into an Address.
func AddressFromHex(s string) (Address, error) {
	var out Address
	err := out.FromHex(s)
	return out, err
}

// CID expresses a as a CIDv1 with the raw codec and a sha2-256 multihash.
func (a Address) CID() cid.Cid {
	mh, err := multihash.Encode(a[:], multihash.SHA2_256)
	if err != nil {
		// Only possible for an unknown code or wrong digest length, neither of which applies.
		panic(err)
	}
	return cid.NewCidV1(cid.Raw, mh)
}

// ParseAddress parses either the hex form of an Address
// or a multibase-encoded CID whose multihash is sha2-256.
func ParseAddress(s string) (Address, error) {
	if len(s) == 2*sha256.Size {
		if a, err := AddressFromHex(s); err == nil {
			return a, nil
		}
	}

	_, b, err := multibase.Decode(s)
	if err != nil {
		return Zero, errors.Wrapf(err, "decoding %s", s)
	}
	c, err := cid.Cast(b)
	if err != nil {
		return Zero, errors.Wrapf(err, "parsing CID %s", s)
	}
	dec, err := multihash.Decode(c.Hash())
	if err != nil {
		return Zero, errors.Wrapf(err, "decoding multihash of %s", s)
	}
	if dec.Code != multihash.SHA2_256 || len(dec.Digest) != sha256.Size {
		return Zero, fmt.Errorf("CID %s does not hold a sha2-256 digest", s)
	}
	return AddressFromBytes(dec.Digest), nil
}

// Value implements driver.Valuer.
func (a Address) Value() (driver.Value, error) {
	return a[:], nil
}

// Scan implements sql.Scanner.
func (a *Address) Scan(src interface{}) error {
	switch src := src.(type) {
	case []byte:
		if len(src) != len(a) {
			return fmt.Errorf("scanning %d bytes into an address (want %d)", len(src), len(a))
		}
		copy(a[:], src)
		return nil

	case nil:
		*a = Zero
		return nil
	}
	return fmt.Errorf("cannot scan %T into an address", src)
}
