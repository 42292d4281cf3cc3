// Package storage rewrites the teacher's Agent/Channel/User persistence
// layer (internal/storage) into the two repositories named in spec §6:
// the canary-state singleton row and the append-only trace store. User
// identity and channel connection persistence are out of scope (§1
// Non-goal "owning user identity"), so AgentStore/ChannelConnectionStore/
// UserStore have no analog here.
//
// Grounded on the teacher's interfaces.go (StoreSet-of-interfaces shape)
// and its dual memory.go/cockroach.go implementations, both kept: an
// in-memory implementation for tests and local runs, and a
// github.com/lib/pq-backed implementation for durable deployments.
package storage

import "errors"

var (
	// ErrNotFound mirrors the teacher's sentinel for a missing row.
	ErrNotFound = errors.New("not found")
)
