package ds

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Blob is a Storable holding uninterpreted bytes.
type Blob struct {
	ID   Identity
	Data []byte
}

var _ Storable = &Blob{}

// BlobKind is the kind of a Blob.
const BlobKind = "blob"

// Identity implements Storable.
func (b *Blob) Identity() Identity { return b.ID }

// Kind implements Storable.
func (b *Blob) Kind() string { return BlobKind }

const (
	blobIDField   protowire.Number = 1
	blobDataField protowire.Number = 2
)

// MarshalBinary implements Storable.
// The encoding is protobuf wire format with the identity in field 1 and the data in field 2.
func (b *Blob) MarshalBinary() ([]byte, error) {
	var out []byte
	out = protowire.AppendTag(out, blobIDField, protowire.BytesType)
	out = protowire.AppendString(out, string(b.ID))
	out = protowire.AppendTag(out, blobDataField, protowire.BytesType)
	out = protowire.AppendBytes(out, b.Data)
	return out, nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (b *Blob) UnmarshalBinary(inp []byte) error {
	*b = Blob{}
	for len(inp) > 0 {
		num, typ, n := protowire.ConsumeTag(inp)
		if n < 0 {
			return protowire.ParseError(n)
		}
		inp = inp[n:]

		switch {
		case num == blobIDField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(inp)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b.ID = Identity(v)
			inp = inp[n:]

		case num == blobDataField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(inp)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if len(v) > 0 {
				b.Data = append([]byte{}, v...)
			}
			inp = inp[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, inp)
			if n < 0 {
				return fmt.Errorf("skipping field %d: %w", num, protowire.ParseError(n))
			}
			inp = inp[n:]
		}
	}
	return nil
}

func init() {
	RegisterKind(BlobKind, func(b []byte) (Storable, error) {
		var blob Blob
		err := blob.UnmarshalBinary(b)
		return &blob, err
	})
}
