// Package ds is a content-addressed object store with per-identity version chains.
//
// Values are serialized and indexed by their hash,
// which is used as a unique key.
// This key is called the value’s address.
// Storing the same bytes twice yields the same address and stores nothing new.
//
// Content addressing means that when some data changes,
// so does its address,
// which makes it tricky to keep track of a piece of data over its lifetime.
// So every value also reports an identity:
// a stable key shared by all versions of one logical entity.
// A branch maps each identity to the chronological list of its addresses,
// the last of which is the identity’s head.
// Branches are append-only:
// a new version never overwrites an old one.
//
// Each branch belongs to one agent.
// A Datastore owns a local branch,
// which Update advances,
// and keeps read-only copies of other agents’ branches.
// Objects and branch histories persist in a Backend
// (see the store subpackages),
// and recently used objects are cached in memory.
//
// Addresses use sha2-256.
// A collision between two distinct serialized values is assumed not to happen.
package ds
