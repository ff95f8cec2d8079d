package ds

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
)

// Storable is a value that can be kept in a Datastore.
type Storable interface {
	// Identity reports the stable identity of the entity this value is a version of.
	Identity() Identity

	// Kind names the concrete variant,
	// so that Decode can reconstruct it.
	// It must have been registered with RegisterKind.
	Kind() string

	// MarshalBinary serializes the value.
	// It must be deterministic.
	MarshalBinary() ([]byte, error)
}

// DecodeFunc reconstructs a Storable from the output of its MarshalBinary method.
type DecodeFunc func([]byte) (Storable, error)

var (
	kindsMu sync.RWMutex
	kinds   = make(map[string]DecodeFunc)
)

// RegisterKind makes a Storable variant decodable.
// It is meant to be called from init functions
// and panics if kind is already registered.
func RegisterKind(kind string, f DecodeFunc) {
	kindsMu.Lock()
	defer kindsMu.Unlock()

	if _, ok := kinds[kind]; ok {
		panic(fmt.Sprintf("kind %s registered twice", kind))
	}
	kinds[kind] = f
}

const typeURLPrefix = "type.ds/"

// Encode serializes a Storable into the form that is content-addressed and stored.
// The payload is wrapped in a protobuf Any naming its kind.
func Encode(s Storable) ([]byte, error) {
	payload, err := s.MarshalBinary()
	if err != nil {
		return nil, errors.Wrapf(ErrEncode, "marshaling %s: %s", s.Kind(), err)
	}
	env := &anypb.Any{
		TypeUrl: typeURLPrefix + s.Kind(),
		Value:   payload,
	}
	b, err := proto.MarshalOptions{Deterministic: true}.Marshal(env)
	if err != nil {
		return nil, errors.Wrapf(ErrEncode, "marshaling envelope: %s", err)
	}
	return b, nil
}

// Decode is the inverse of Encode.
func Decode(b []byte) (Storable, error) {
	var env anypb.Any
	if err := proto.Unmarshal(b, &env); err != nil {
		return nil, errors.Wrapf(ErrDecode, "unmarshaling envelope: %s", err)
	}
	if !strings.HasPrefix(env.TypeUrl, typeURLPrefix) {
		return nil, errors.Wrapf(ErrDecode, "unexpected type URL %q", env.TypeUrl)
	}
	kind := strings.TrimPrefix(env.TypeUrl, typeURLPrefix)

	kindsMu.RLock()
	f, ok := kinds[kind]
	kindsMu.RUnlock()

	if !ok {
		return nil, errors.Wrapf(ErrDecode, "unknown kind %q", kind)
	}
	s, err := f(env.Value)
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "unmarshaling %s: %s", kind, err)
	}
	return s, nil
}
