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
	"fmt"

	"go.uber.org/zap"

	"github.com/starlingdb/starling/rdb"
	"github.com/starlingdb/starling/resp"
)

// handlePsync runs the PSYNC upgrade path for "PSYNC ? -1". It
// reports upgraded=true once the FULLRESYNC handshake has started,
// meaning the caller must never resume normal dispatch on this
// connection regardless of how runReplicaStream eventually returns.
// Any other PSYNC form is rejected with an ordinary error reply and
// the connection stays in NORMAL.
func (c *Conn) handlePsync(ctx context.Context, args [][]byte) (upgraded bool, err error) {
	if len(args) != 2 || string(args[0]) != "?" || string(args[1]) != "-1" {
		return false, c.writeReply(resp.Error("PSYNC not supported"))
	}

	if err := c.writeReply(resp.Simple(fmt.Sprintf("FULLRESYNC %s 0", c.identity.ReplID))); err != nil {
		return true, err
	}

	dump := rdb.EmptyDump()
	if _, err := fmt.Fprintf(c.w, "$%d\r\n", len(dump)); err != nil {
		return true, err
	}
	if _, err := c.w.Write(dump); err != nil {
		return true, err
	}
	if err := c.w.Flush(); err != nil {
		return true, err
	}

	return true, c.runReplicaStream(ctx)
}

// runReplicaStream is the one place in this codebase that suspends on
// a channel receive while holding no shared lock: it drains the
// replica's outbound channel onto the socket until the channel closes,
// a write fails, or ctx is cancelled (process shutdown).
func (c *Conn) runReplicaStream(ctx context.Context) error {
	ch := c.replicas.Add()
	c.log.Info("replica attached", zap.String("replid", c.identity.ReplID))

	for {
		select {
		case cmd, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := c.w.Write(cmd); err != nil {
				return err
			}
			if err := c.w.Flush(); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
