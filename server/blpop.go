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
	"context"
	"strconv"
	"time"

	"github.com/starlingdb/starling/resp"
)

// handleBlpop implements BLPOP key timeout. It is never queued inside
// a transaction and never propagated directly (propagation happens
// through the RPUSH/LPUSH that actually moved the element); both are
// enforced by keeping this call entirely outside the handler map and
// the dispatch-rule-6 propagation path.
func (c *Conn) handleBlpop(ctx context.Context, args [][]byte) resp.Reply {
	if len(args) != 2 {
		return arityError("blpop")
	}
	key := string(args[0])
	timeoutSec, err := strconv.ParseFloat(string(args[1]), 64)
	if err != nil || timeoutSec < 0 {
		return resp.Error("timeout is not a float or out of range")
	}

	for {
		v, popped, waiter, err := c.realStore.LPopOrWait(key)
		if err != nil {
			return errorReply(err)
		}
		if popped {
			return resp.Array([][]byte{[]byte(key), v})
		}

		if timeoutSec == 0 {
			select {
			case <-waiter:
				continue
			case <-ctx.Done():
				return resp.NullBulk
			}
		}

		timer := time.NewTimer(time.Duration(timeoutSec * float64(time.Second)))
		select {
		case <-waiter:
			timer.Stop()
			continue
		case <-timer.C:
			return resp.NullBulk
		case <-ctx.Done():
			timer.Stop()
			return resp.NullBulk
		}
	}
}
