package ds

import "context"

// Getter is a read-only Store (qv).
type Getter interface {
	// Get gets the bytes stored at an address.
	Get(context.Context, Address) ([]byte, error)

	// ListAddresses calls a function for each address in the store in lexicographic order,
	// beginning with the first address _after_ the specified one.
	//
	// The calls reflect at least the set of addresses
	// known at the moment ListAddresses was called.
	// It is unspecified whether later changes,
	// that happen concurrently with ListAddresses,
	// are reflected.
	//
	// If the callback function returns an error,
	// ListAddresses exits with that error.
	ListAddresses(context.Context, Address, func(Address) error) error
}

// Store is a content-addressed object store.
// It stores byte sequences of arbitrary length,
// each retrievable by its Address,
// the SHA2-256 hash of its content.
type Store interface {
	Getter

	// Put adds b to the store if it was not already present.
	// It returns b's address and a boolean that is true iff the bytes had to be added.
	// When Put returns without error the bytes are durable
	// to whatever extent the implementation offers durability.
	Put(ctx context.Context, b []byte) (a Address, added bool, err error)
}

// Recorder is the permanent index of branch commits.
// For each owner it maps identities to chronological address histories.
type Recorder interface {
	// Append adds addr to the end of the history of id on owner's branch,
	// provided the last element of that history is prev.
	// A zero prev requires the history to be absent or empty.
	// Otherwise Append fails with ErrConflict and changes nothing.
	Append(ctx context.Context, owner Agent, id Identity, prev, addr Address) error

	// History returns the history of id on owner's branch, oldest first.
	// It returns ErrNotFound if there is none.
	History(ctx context.Context, owner Agent, id Identity) ([]Address, error)

	// Histories calls f for every identity on owner's branch, in lexicographic order.
	Histories(ctx context.Context, owner Agent, f func(Identity, []Address) error) error

	// ListOwners calls f for every owner with at least one recorded history, in lexicographic order.
	ListOwners(ctx context.Context, f func(Agent) error) error
}

// Backend is a Store together with a Recorder.
// It is what a Datastore persists to.
type Backend interface {
	Store
	Recorder
}

// CheckAppend is a helper for Recorder implementations.
// Given the current history of an identity,
// it reports whether appending with the expected head prev is allowed.
func CheckAppend(history []Address, prev Address) error {
	var head Address
	if len(history) > 0 {
		head = history[len(history)-1]
	}
	if head != prev {
		return ErrConflict
	}
	return nil
}
