package ds

import "sort"

// Branch is one agent's version-history index.
// It maps each Identity to the chronological list of its Addresses,
// oldest first.
// Histories are append-only.
//
// A Branch is not safe for concurrent use.
// The Datastore that owns one serializes access to it.
type Branch struct {
	owner      Agent
	identities map[Identity][]Address
}

// NewBranch produces a Branch for owner holding a copy of the given histories.
// An identity may map to an empty history;
// Head treats that the same as an identity with no entry,
// but Commit accepts it.
func NewBranch(owner Agent, histories map[Identity][]Address) *Branch {
	b := &Branch{
		owner:      owner,
		identities: make(map[Identity][]Address, len(histories)),
	}
	for id, h := range histories {
		b.identities[id] = append([]Address{}, h...)
	}
	return b
}

// Owner returns the agent that owns b.
func (b *Branch) Owner() Agent {
	return b.owner
}

// Head returns the latest address for id.
// The boolean is false if id has no entry or an empty history.
func (b *Branch) Head(id Identity) (Address, bool) {
	versions := b.identities[id]
	if len(versions) == 0 {
		return Zero, false
	}
	return versions[len(versions)-1], true
}

// Commit appends addr to the history of id.
// It returns ErrUnseeded if b has no entry for id.
func (b *Branch) Commit(id Identity, addr Address) error {
	versions, ok := b.identities[id]
	if !ok {
		return ErrUnseeded
	}
	b.identities[id] = append(versions, addr)
	return nil
}

// History returns a copy of the history of id, oldest first.
func (b *Branch) History(id Identity) ([]Address, bool) {
	versions, ok := b.identities[id]
	if !ok {
		return nil, false
	}
	return append([]Address{}, versions...), true
}

// Histories returns a copy of the whole Identity->history map.
func (b *Branch) Histories() map[Identity][]Address {
	result := make(map[Identity][]Address, len(b.identities))
	for id, versions := range b.identities {
		result[id] = append([]Address{}, versions...)
	}
	return result
}

// Identities returns the identities b has entries for, sorted.
func (b *Branch) Identities() []Identity {
	result := make([]Identity, 0, len(b.identities))
	for id := range b.identities {
		result = append(result, id)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}
