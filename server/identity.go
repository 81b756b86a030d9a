// Copyright 2026 The Starling Authors
// This file is part of Starling.
//
// Starling is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Starling is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Starling. If not, see <http://www.gnu.org/licenses/>.

package server

import (
	"crypto/rand"
	"encoding/hex"
)

const (
	RolePrimary = "master"
	RoleReplica = "slave"
)

// Identity is the server's immutable per-process identity: a role, a
// 40-hex-character replication id, and a starting replication offset
// (always zero in this core — partial resync is a non-goal). It is
// set once at startup and never mutated, so it may be read from any
// connection goroutine without locking.
type Identity struct {
	Role       string
	ReplID     string
	ReplOffset int64
}

// NewIdentity builds an Identity for a fresh process. isReplica
// reflects whether a primary address was configured; the caller
// decides that from the process flags, not this package.
func NewIdentity(isReplica bool) (*Identity, error) {
	id, err := randomHexID()
	if err != nil {
		return nil, err
	}
	role := RolePrimary
	if isReplica {
		role = RoleReplica
	}
	return &Identity{Role: role, ReplID: id}, nil
}

// randomHexID produces a 40-character hex string (20 random bytes),
// matching the replication id's conventional length. There is no
// third-party ID generator in the retrieved stack shaped for this —
// google/uuid produces 32 hex characters from a 16-byte value, not
// 40 — so this one spot uses crypto/rand directly rather than
// stretching a UUID to a length it was never meant to have.
func randomHexID() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
