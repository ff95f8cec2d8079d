package ds

import "github.com/pkg/errors"

var (
	// ErrNotFound is the error returned
	// when a Getter tries to access a non-existent address,
	// or a Recorder is asked for a history it does not have.
	ErrNotFound = errors.New("not found")

	// ErrEncode is the error (possibly wrapped) returned when a Storable cannot be serialized.
	ErrEncode = errors.New("encoding failed")

	// ErrDecode is the error (possibly wrapped) returned when stored bytes cannot be turned back into a Storable.
	ErrDecode = errors.New("decoding failed")

	// ErrNoHead is the error returned by Datastore.Update
	// for an identity with no history on the local branch.
	ErrNoHead = errors.New("no head")

	// ErrUnseeded is the error returned by Branch.Commit
	// for an identity the branch has no entry for.
	ErrUnseeded = errors.New("identity not seeded")

	// ErrConflict is the error returned by Recorder.Append
	// when the recorded head is not the expected one.
	ErrConflict = errors.New("history conflict")

	// ErrCorrupt is the error returned when bytes read from a store
	// do not hash to the address they were stored under.
	ErrCorrupt = errors.New("content does not match address")

	// ErrNotImplemented is the error returned by Datastore.Register.
	ErrNotImplemented = errors.New("not implemented")
)
