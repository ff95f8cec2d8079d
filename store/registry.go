package store

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/bobg/ds"
)

// Factory creates a backend from a config map.
type Factory func(context.Context, map[string]interface{}) (ds.Backend, error)

var registry = make(map[string]Factory)

// Register makes a backend type available to Create under the given key.
// Backend packages call it from init.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create creates a backend of the type registered under key.
func Create(ctx context.Context, key string, conf map[string]interface{}) (ds.Backend, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}

// Nested is a helper for decorator backends.
// It creates the backend described by the "nested" entry of conf.
func Nested(ctx context.Context, conf map[string]interface{}) (ds.Backend, error) {
	nested, ok := conf["nested"].(map[string]interface{})
	if !ok {
		return nil, errors.New(`missing "nested" parameter`)
	}
	nestedType, ok := nested["type"].(string)
	if !ok {
		return nil, errors.New(`"nested" parameter missing "type"`)
	}
	b, err := Create(ctx, nestedType, nested)
	return b, errors.Wrap(err, "creating nested store")
}
