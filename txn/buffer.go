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

// Package txn holds the per-connection transaction buffer. It is
// deliberately a tiny value type with no behavior beyond its own
// bookkeeping — command execution lives in the server package, which
// owns the buffer for the lifetime of one connection and never lets
// it escape.
package txn

// Buffer is the per-connection transaction state from the data model:
// an "in transaction" flag plus the ordered sequence of pending
// command argument vectors queued while that flag is set.
type Buffer struct {
	Active bool
	Queued [][][]byte
}

// Begin starts a transaction, clearing any previously queued
// commands. Callers are responsible for rejecting a nested MULTI
// before calling Begin.
func (b *Buffer) Begin() {
	b.Active = true
	b.Queued = nil
}

// Enqueue appends one command's argument vector (command name
// included) to the queue. Queued commands are not validated here;
// validation errors surface at EXEC time as that command's own
// response fragment.
func (b *Buffer) Enqueue(args [][]byte) {
	b.Queued = append(b.Queued, args)
}

// Drain returns the queued commands and resets the buffer to NORMAL,
// used by EXEC.
func (b *Buffer) Drain() [][][]byte {
	queued := b.Queued
	b.Active = false
	b.Queued = nil
	return queued
}

// Discard clears the buffer and returns to NORMAL, used by DISCARD.
func (b *Buffer) Discard() {
	b.Active = false
	b.Queued = nil
}
