package ds

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
)

func TestBlobRoundTrip(t *testing.T) {
	cases := []*Blob{
		{ID: "a", Data: []byte("hello")},
		{ID: "", Data: []byte{0, 1, 2}},
		{ID: "no data"},
		{ID: Identity("odd\x00identity"), Data: bytes.Repeat([]byte("x"), 1<<16)},
	}
	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%02d", i+1), func(t *testing.T) {
			b, err := Encode(c)
			if err != nil {
				t.Fatal(err)
			}
			got, err := Decode(b)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(Storable(c), got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}

			b2, err := Encode(c)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(b, b2) {
				t.Error("encoding is not deterministic")
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	unknown, err := proto.Marshal(&anypb.Any{TypeUrl: typeURLPrefix + "no-such-kind", Value: []byte("x")})
	if err != nil {
		t.Fatal(err)
	}
	foreign, err := proto.Marshal(&anypb.Any{TypeUrl: "type.googleapis.com/foo", Value: []byte("x")})
	if err != nil {
		t.Fatal(err)
	}
	badPayload, err := proto.Marshal(&anypb.Any{TypeUrl: typeURLPrefix + BlobKind, Value: []byte{0x0a, 0x05, 'a'}})
	if err != nil {
		t.Fatal(err)
	}

	cases := [][]byte{
		unknown,
		foreign,
		badPayload,
		{0xff, 0xff, 0xff},
	}
	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%02d", i+1), func(t *testing.T) {
			_, err := Decode(c)
			if !errors.Is(err, ErrDecode) {
				t.Errorf("got error %v, want ErrDecode", err)
			}
		})
	}
}

type unmarshalable struct{}

func (unmarshalable) Identity() Identity             { return "u" }
func (unmarshalable) Kind() string                   { return "unmarshalable" }
func (unmarshalable) MarshalBinary() ([]byte, error) { return nil, errors.New("nope") }

func TestEncodeError(t *testing.T) {
	_, err := Encode(unmarshalable{})
	if !errors.Is(err, ErrEncode) {
		t.Errorf("got error %v, want ErrEncode", err)
	}
}

func TestRegisterKindTwice(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("second registration did not panic")
		}
	}()
	RegisterKind(BlobKind, nil)
}
