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
	"bytes"
	"strings"

	"github.com/starlingdb/starling/resp"
	"github.com/starlingdb/starling/store"
)

func (c *Conn) handleMulti() resp.Reply {
	if c.txn.Active {
		return resp.Error("MULTI calls can not be nested")
	}
	c.txn.Begin()
	return resp.OK
}

func (c *Conn) handleDiscard() resp.Reply {
	if !c.txn.Active {
		return resp.Error("DISCARD without MULTI")
	}
	c.txn.Discard()
	return resp.OK
}

// handleExec drains the queue and replays it against a single *Tx, so
// the whole batch runs as one atomic step with respect to every other
// connection touching the store. Mutating, non-error commands are
// propagated in queued order only after the lock is released.
func (c *Conn) handleExec() resp.Reply {
	if !c.txn.Active {
		return resp.Error("EXEC without MULTI")
	}
	queued := c.txn.Drain()
	if len(queued) == 0 {
		return resp.EmptyArray
	}

	var frag bytes.Buffer
	var toPropagate [][][]byte

	c.realStore.Exec(func(tx *store.Tx) {
		prev := c.store
		c.store = tx
		defer func() { c.store = prev }()

		for _, full := range queued {
			name := strings.ToUpper(string(full[0]))
			reply, mutates := c.execDispatch(name, full[1:])
			frag.Write(reply)
			if mutates && !isErrorReply(reply) {
				toPropagate = append(toPropagate, full)
			}
		}
	})

	for _, full := range toPropagate {
		c.replicas.Propagate(resp.Array(full))
	}

	out := make(resp.Reply, 0, frag.Len()+16)
	out = append(out, resp.ArrayHeader(len(queued))...)
	out = append(out, frag.Bytes()...)
	return out
}
