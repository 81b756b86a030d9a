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
	"fmt"
	"strings"

	"github.com/starlingdb/starling/common/math"
	"github.com/starlingdb/starling/resp"
)

func errorReply(err error) resp.Reply {
	return resp.Error(err.Error())
}

func handlePing(c *Conn, args [][]byte) (resp.Reply, bool) {
	switch len(args) {
	case 0:
		return resp.Simple("PONG"), false
	case 1:
		return resp.Bulk(args[0]), false
	default:
		return arityError("ping"), false
	}
}

func handleEcho(c *Conn, args [][]byte) (resp.Reply, bool) {
	if len(args) != 1 {
		return arityError("echo"), false
	}
	return resp.Bulk(args[0]), false
}

func handleGet(c *Conn, args [][]byte) (resp.Reply, bool) {
	if len(args) != 1 {
		return arityError("get"), false
	}
	v, ok, err := c.store.Get(string(args[0]))
	if err != nil {
		return errorReply(err), false
	}
	if !ok {
		return resp.NullBulk, false
	}
	return resp.Bulk(v), false
}

func handleSet(c *Conn, args [][]byte) (resp.Reply, bool) {
	switch len(args) {
	case 2:
		c.store.Set(string(args[0]), args[1])
		return resp.OK, true
	case 4:
		if !strings.EqualFold(string(args[2]), "PX") {
			return arityError("set"), true
		}
		ttl, ok := math.ParseInt64(string(args[3]))
		if !ok {
			return resp.Error("value is not an integer or out of range"), true
		}
		c.store.SetTTL(string(args[0]), args[1], ttl)
		return resp.OK, true
	default:
		return arityError("set"), true
	}
}

func handleIncr(c *Conn, args [][]byte) (resp.Reply, bool) {
	if len(args) != 1 {
		return arityError("incr"), true
	}
	n, err := c.store.Incr(string(args[0]))
	if err != nil {
		return errorReply(err), true
	}
	return resp.Integer(n), true
}

func handleKeys(c *Conn, args [][]byte) (resp.Reply, bool) {
	if len(args) != 1 {
		return arityError("keys"), false
	}
	if string(args[0]) != "*" {
		return resp.Error("Only KEYS * is supported"), false
	}
	return resp.ArrayStrings(c.store.Keys()), false
}

func handleConfig(c *Conn, args [][]byte) (resp.Reply, bool) {
	if len(args) < 1 {
		return arityError("config"), false
	}
	if !strings.EqualFold(string(args[0]), "GET") {
		return resp.Error("Only CONFIG GET is supported"), false
	}
	if len(args) != 2 {
		return arityError("config|get"), false
	}
	key := strings.ToLower(string(args[1]))
	var value string
	switch key {
	case "dir":
		value = c.cfg.Dir
	case "dbfilename":
		value = c.cfg.DBFilename
	default:
		return resp.Error("Unknown CONFIG key"), false
	}
	return resp.ArrayStrings([]string{key, value}), false
}

func handleInfo(c *Conn, args [][]byte) (resp.Reply, bool) {
	section := ""
	if len(args) > 0 {
		section = strings.ToLower(string(args[0]))
	}
	if section != "replication" {
		return resp.BulkString(""), false
	}
	body := fmt.Sprintf("role:%s\r\nmaster_replid:%s\r\nmaster_repl_offset:%d",
		c.identity.Role, c.identity.ReplID, c.identity.ReplOffset)
	return resp.BulkString(body), false
}

func handleLPush(c *Conn, args [][]byte) (resp.Reply, bool) {
	if len(args) < 2 {
		return arityError("lpush"), true
	}
	n, err := c.store.LPush(string(args[0]), args[1:]...)
	if err != nil {
		return errorReply(err), true
	}
	return resp.Integer(int64(n)), true
}

func handleRPush(c *Conn, args [][]byte) (resp.Reply, bool) {
	if len(args) < 2 {
		return arityError("rpush"), true
	}
	n, err := c.store.RPush(string(args[0]), args[1:]...)
	if err != nil {
		return errorReply(err), true
	}
	return resp.Integer(int64(n)), true
}

func handleLPop(c *Conn, args [][]byte) (resp.Reply, bool) {
	switch len(args) {
	case 1:
		v, ok, err := c.store.LPop(string(args[0]))
		if err != nil {
			return errorReply(err), true
		}
		if !ok {
			return resp.NullBulk, true
		}
		return resp.Bulk(v), true
	case 2:
		count, ok := math.ParseInt64(string(args[1]))
		if !ok || count < 0 {
			return resp.Error("value is not an integer or out of range"), true
		}
		popped, err := c.store.LPopCount(string(args[0]), int(count))
		if err != nil {
			return errorReply(err), true
		}
		if len(popped) == 0 {
			return resp.EmptyArray, true
		}
		return resp.Array(popped), true
	default:
		return arityError("lpop"), true
	}
}

func handleLLen(c *Conn, args [][]byte) (resp.Reply, bool) {
	if len(args) != 1 {
		return arityError("llen"), false
	}
	n, err := c.store.LLen(string(args[0]))
	if err != nil {
		return errorReply(err), false
	}
	return resp.Integer(int64(n)), false
}

func handleLRange(c *Conn, args [][]byte) (resp.Reply, bool) {
	if len(args) != 3 {
		return arityError("lrange"), false
	}
	start, ok := math.ParseInt64(string(args[1]))
	if !ok {
		return resp.Error("value is not an integer or out of range"), false
	}
	stop, ok := math.ParseInt64(string(args[2]))
	if !ok {
		return resp.Error("value is not an integer or out of range"), false
	}
	items, err := c.store.LRange(string(args[0]), int(start), int(stop))
	if err != nil {
		return errorReply(err), false
	}
	if len(items) == 0 {
		return resp.EmptyArray, false
	}
	return resp.Array(items), false
}

func handleReplconf(c *Conn, args [][]byte) (resp.Reply, bool) {
	return resp.OK, false
}
