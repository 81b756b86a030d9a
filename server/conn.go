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

// Package server is the connection processor: per-connection protocol
// framing, command dispatch, transaction queueing, the BLPOP
// wait/notify cycle, and the PSYNC upgrade path.
package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/starlingdb/starling/blocking"
	"github.com/starlingdb/starling/replica"
	"github.com/starlingdb/starling/resp"
	"github.com/starlingdb/starling/store"
	"github.com/starlingdb/starling/txn"
)

// Config is the subset of process configuration a connection's
// handlers need to answer CONFIG GET — just the two recognized keys.
type Config struct {
	Dir        string
	DBFilename string
}

// Conn is the struct threaded through one connection's entire
// lifetime. It is never shared across goroutines.
type Conn struct {
	nc  net.Conn
	r   *bufio.Reader
	w   *bufio.Writer
	log *zap.Logger
	id  uuid.UUID

	realStore *store.Store
	store     store.Ops
	notifier  *blocking.Notifier
	replicas  *replica.Registry
	identity  *Identity
	cfg       Config

	txn txn.Buffer
}

// handlerFunc is the signature every non-control, non-blocking,
// non-upgrade command handler implements: args excludes the command
// name. The bool return is "this command mutated state and, if the
// reply is not an error, should propagate" — dispatch rule 6 in one
// place instead of re-inspecting the command name afterward.
type handlerFunc func(c *Conn, args [][]byte) (resp.Reply, bool)

// handlers is built once at package init, keyed on the upper-cased
// command name. PSYNC, BLPOP, and MULTI/EXEC/DISCARD are intercepted
// in Serve's read loop before this map is ever consulted, per
// dispatch rules 2-4.
var handlers = map[string]handlerFunc{
	"PING":     handlePing,
	"ECHO":     handleEcho,
	"GET":      handleGet,
	"SET":      handleSet,
	"INCR":     handleIncr,
	"KEYS":     handleKeys,
	"CONFIG":   handleConfig,
	"INFO":     handleInfo,
	"LPUSH":    handleLPush,
	"RPUSH":    handleRPush,
	"LPOP":     handleLPop,
	"LLEN":     handleLLen,
	"LRANGE":   handleLRange,
	"REPLCONF": handleReplconf,
}

// Serve owns one accepted connection end to end. It returns when the
// connection closes, either because the peer went away or because ctx
// was cancelled during a suspendable wait (BLPOP, the PSYNC outbound
// loop). A handler panic is recovered here and converted into closing
// this one connection; it never takes down the listener or any other
// connection.
func Serve(ctx context.Context, nc net.Conn, st *store.Store, notifier *blocking.Notifier, replicas *replica.Registry, identity *Identity, cfg Config, log *zap.Logger) {
	id := uuid.New()
	c := &Conn{
		nc:        nc,
		r:         bufio.NewReader(nc),
		w:         bufio.NewWriter(nc),
		log:       log.With(zap.String("conn_id", id.String()), zap.String("remote", nc.RemoteAddr().String())),
		id:        id,
		realStore: st,
		store:     st,
		notifier:  notifier,
		replicas:  replicas,
		identity:  identity,
		cfg:       cfg,
	}
	connectionsAccepted.Inc()
	connectionsActive.Inc()
	defer connectionsActive.Dec()
	defer nc.Close()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("connection handler panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	if err := c.loop(ctx); err != nil && !errors.Is(err, io.EOF) {
		c.log.Debug("connection closed", zap.Error(err))
	}
}

func (c *Conn) loop(ctx context.Context) error {
	for {
		full, err := resp.Decode(c.r)
		if err != nil {
			return err
		}
		if full == nil {
			continue
		}

		name := strings.ToUpper(string(full[0]))
		switch name {
		case "PSYNC":
			upgraded, err := c.handlePsync(ctx, full[1:])
			if upgraded {
				return err
			}
			if err != nil {
				return err
			}
			continue
		case "BLPOP":
			reply := c.handleBlpop(ctx, full[1:])
			if err := c.writeReply(reply); err != nil {
				return err
			}
			continue
		case "MULTI":
			if err := c.writeReply(c.handleMulti()); err != nil {
				return err
			}
			continue
		case "EXEC":
			if err := c.writeReply(c.handleExec()); err != nil {
				return err
			}
			continue
		case "DISCARD":
			if err := c.writeReply(c.handleDiscard()); err != nil {
				return err
			}
			continue
		}

		if c.txn.Active {
			c.txn.Enqueue(full)
			if err := c.writeReply(resp.Simple("QUEUED")); err != nil {
				return err
			}
			continue
		}

		reply, mutates := c.dispatch(name, full[1:])
		if err := c.writeReply(reply); err != nil {
			return err
		}
		if mutates && !isErrorReply(reply) {
			c.replicas.Propagate(resp.Array(full))
		}
	}
}

// dispatch looks the command up in the handler map for normal (not
// queued, not in a transaction) execution.
func (c *Conn) dispatch(name string, args [][]byte) (resp.Reply, bool) {
	h, ok := handlers[name]
	if !ok {
		return resp.Error("Unknown command"), false
	}
	return h(c, args)
}

// execDispatch is dispatch's sibling used only from inside EXEC:
// a command the server does not recognize gets a different error
// ("command not allowed in transaction") at EXEC time than at normal
// dispatch time ("Unknown command"), since queueing never validated
// the command in the first place.
func (c *Conn) execDispatch(name string, args [][]byte) (resp.Reply, bool) {
	h, ok := handlers[name]
	if !ok {
		return resp.Error("command not allowed in transaction"), false
	}
	return h(c, args)
}

func (c *Conn) writeReply(r resp.Reply) error {
	if err := r.WriteTo(c.w); err != nil {
		return err
	}
	return c.w.Flush()
}

func isErrorReply(r resp.Reply) bool {
	return len(r) > 0 && r[0] == '-'
}

func arityError(cmd string) resp.Reply {
	return resp.Error(fmt.Sprintf("wrong number of arguments for '%s' command", cmd))
}
