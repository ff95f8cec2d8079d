package ds

import "github.com/google/uuid"

type (
	// Identity is the stable key of a logical entity.
	// All versions of an entity share its Identity
	// while each has its own Address.
	Identity string

	// Agent is the opaque key of a Branch's owner.
	Agent string
)

// NewIdentity produces a new random Identity.
func NewIdentity() Identity {
	return Identity(uuid.NewString())
}
