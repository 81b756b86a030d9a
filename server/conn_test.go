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
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/starlingdb/starling/blocking"
	"github.com/starlingdb/starling/rdb"
	"github.com/starlingdb/starling/replica"
	"github.com/starlingdb/starling/store"
)

// harness wires one shared engine and lets a test attach any number
// of client connections to it, each served by its own goroutine over
// an in-memory pipe instead of a real TCP socket.
type harness struct {
	t        *testing.T
	ctx      context.Context
	cancel   context.CancelFunc
	store    *store.Store
	notifier *blocking.Notifier
	replicas *replica.Registry
	identity *Identity
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	identity, err := NewIdentity(false)
	require.NoError(t, err)

	notifier := blocking.New()
	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		t:        t,
		ctx:      ctx,
		cancel:   cancel,
		store:    store.New(notifier),
		notifier: notifier,
		replicas: replica.New(),
		identity: identity,
	}
	t.Cleanup(cancel)
	return h
}

func (h *harness) connect() net.Conn {
	h.t.Helper()
	client, srv := net.Pipe()
	go Serve(h.ctx, srv, h.store, h.notifier, h.replicas, h.identity, Config{Dir: "/tmp", DBFilename: "dump.rdb"}, zap.NewNop())
	h.t.Cleanup(func() { client.Close() })
	return client
}

func send(t *testing.T, c net.Conn, req string) {
	t.Helper()
	_, err := c.Write([]byte(req))
	require.NoError(t, err)
}

func recv(t *testing.T, c net.Conn, n int) string {
	t.Helper()
	buf := make([]byte, n)
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := io.ReadFull(c, buf)
	require.NoError(t, err)
	return string(buf)
}

func roundtrip(t *testing.T, c net.Conn, req, want string) {
	t.Helper()
	send(t, c, req)
	assert.Equal(t, want, recv(t, c, len(want)))
}

func cmd(parts ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%d\r\n", len(parts))
	for _, p := range parts {
		fmt.Fprintf(&b, "$%d\r\n%s\r\n", len(p), p)
	}
	return b.String()
}

func TestPing(t *testing.T) {
	c := newHarness(t).connect()
	roundtrip(t, c, "*1\r\n$4\r\nPING\r\n", "+PONG\r\n")
}

func TestSetGet(t *testing.T) {
	c := newHarness(t).connect()
	roundtrip(t, c, "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n", "+OK\r\n")
	roundtrip(t, c, "*2\r\n$3\r\nGET\r\n$1\r\nk\r\n", "$1\r\nv\r\n")
}

func TestSetPXExpires(t *testing.T) {
	c := newHarness(t).connect()
	roundtrip(t, c, cmd("SET", "k", "v", "PX", "100"), "+OK\r\n")
	time.Sleep(150 * time.Millisecond)
	roundtrip(t, c, cmd("GET", "k"), "$-1\r\n")
}

func TestRPushLRange(t *testing.T) {
	c := newHarness(t).connect()
	roundtrip(t, c, cmd("RPUSH", "L", "a", "b", "c"), ":3\r\n")
	roundtrip(t, c, cmd("LRANGE", "L", "0", "-1"), "*3\r\n$1\r\na\r\n$1\r\nb\r\n$1\r\nc\r\n")
}

func TestLPushReversesArgumentOrder(t *testing.T) {
	c := newHarness(t).connect()
	roundtrip(t, c, cmd("LPUSH", "L", "x", "y"), ":2\r\n")
	roundtrip(t, c, cmd("LRANGE", "L", "0", "-1"), "*2\r\n$1\r\ny\r\n$1\r\nx\r\n")
}

func TestTransactionSetIncrExec(t *testing.T) {
	c := newHarness(t).connect()
	roundtrip(t, c, cmd("MULTI"), "+OK\r\n")
	roundtrip(t, c, cmd("SET", "a", "1"), "+QUEUED\r\n")
	roundtrip(t, c, cmd("INCR", "a"), "+QUEUED\r\n")
	roundtrip(t, c, cmd("EXEC"), "*2\r\n+OK\r\n:2\r\n")
}

func TestExecEmptyQueue(t *testing.T) {
	c := newHarness(t).connect()
	roundtrip(t, c, cmd("MULTI"), "+OK\r\n")
	roundtrip(t, c, cmd("EXEC"), "*0\r\n")
}

func TestExecThenMultiStartsClean(t *testing.T) {
	c := newHarness(t).connect()
	roundtrip(t, c, cmd("MULTI"), "+OK\r\n")
	roundtrip(t, c, cmd("SET", "a", "1"), "+QUEUED\r\n")
	roundtrip(t, c, cmd("EXEC"), "*1\r\n+OK\r\n")
	roundtrip(t, c, cmd("MULTI"), "+OK\r\n")
	roundtrip(t, c, cmd("EXEC"), "*0\r\n")
}

func TestTransactionErrors(t *testing.T) {
	c := newHarness(t).connect()
	roundtrip(t, c, cmd("EXEC"), "-ERR EXEC without MULTI\r\n")
	roundtrip(t, c, cmd("DISCARD"), "-ERR DISCARD without MULTI\r\n")
	roundtrip(t, c, cmd("MULTI"), "+OK\r\n")
	roundtrip(t, c, cmd("MULTI"), "-ERR MULTI calls can not be nested\r\n")
	roundtrip(t, c, cmd("DISCARD"), "+OK\r\n")
}

func TestUnknownCommandInTransaction(t *testing.T) {
	c := newHarness(t).connect()
	roundtrip(t, c, cmd("MULTI"), "+OK\r\n")
	roundtrip(t, c, cmd("FLUSHALL"), "+QUEUED\r\n")
	roundtrip(t, c, cmd("EXEC"), "*1\r\n-ERR command not allowed in transaction\r\n")
}

func TestDiscardDropsQueuedCommands(t *testing.T) {
	c := newHarness(t).connect()
	roundtrip(t, c, cmd("MULTI"), "+OK\r\n")
	roundtrip(t, c, cmd("SET", "gone", "1"), "+QUEUED\r\n")
	roundtrip(t, c, cmd("DISCARD"), "+OK\r\n")
	roundtrip(t, c, cmd("GET", "gone"), "$-1\r\n")
}

func TestUnknownCommand(t *testing.T) {
	c := newHarness(t).connect()
	roundtrip(t, c, cmd("FLUSHALL"), "-ERR Unknown command\r\n")
}

func TestWrongTypeError(t *testing.T) {
	c := newHarness(t).connect()
	roundtrip(t, c, cmd("RPUSH", "L", "a"), ":1\r\n")
	roundtrip(t, c, cmd("GET", "L"), "-ERR WRONGTYPE Operation against a key holding the wrong kind of value\r\n")
}

func TestConfigGet(t *testing.T) {
	c := newHarness(t).connect()
	roundtrip(t, c, cmd("CONFIG", "GET", "dir"), "*2\r\n$3\r\ndir\r\n$4\r\n/tmp\r\n")
	roundtrip(t, c, cmd("CONFIG", "GET", "nope"), "-ERR Unknown CONFIG key\r\n")
}

func TestKeysStarOnly(t *testing.T) {
	c := newHarness(t).connect()
	roundtrip(t, c, cmd("SET", "k", "v"), "+OK\r\n")
	roundtrip(t, c, cmd("KEYS", "*"), "*1\r\n$1\r\nk\r\n")
	roundtrip(t, c, cmd("KEYS", "k*"), "-ERR Only KEYS * is supported\r\n")
}

func TestInfoReplication(t *testing.T) {
	h := newHarness(t)
	c := h.connect()
	body := fmt.Sprintf("role:master\r\nmaster_replid:%s\r\nmaster_repl_offset:0", h.identity.ReplID)
	roundtrip(t, c, cmd("INFO", "replication"), fmt.Sprintf("$%d\r\n%s\r\n", len(body), body))
	roundtrip(t, c, cmd("INFO"), "$0\r\n\r\n")
}

func TestReplconfAlwaysOK(t *testing.T) {
	c := newHarness(t).connect()
	roundtrip(t, c, cmd("REPLCONF", "listening-port", "6380"), "+OK\r\n")
}

func TestBlpopTimeout(t *testing.T) {
	c := newHarness(t).connect()
	start := time.Now()
	roundtrip(t, c, cmd("BLPOP", "q", "0.1"), "$-1\r\n")
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestBlpopWokenByPush(t *testing.T) {
	h := newHarness(t)
	waiter := h.connect()
	pusher := h.connect()

	send(t, waiter, cmd("BLPOP", "q", "0"))
	// Let the waiter park before the push happens.
	time.Sleep(20 * time.Millisecond)
	roundtrip(t, pusher, cmd("RPUSH", "q", "job"), ":1\r\n")

	assert.Equal(t, "*2\r\n$1\r\nq\r\n$3\r\njob\r\n", recv(t, waiter, len("*2\r\n$1\r\nq\r\n$3\r\njob\r\n")))
}

func TestBlpopImmediateWhenNonEmpty(t *testing.T) {
	h := newHarness(t)
	c := h.connect()
	roundtrip(t, c, cmd("RPUSH", "q", "ready"), ":1\r\n")
	roundtrip(t, c, cmd("BLPOP", "q", "0"), "*2\r\n$1\r\nq\r\n$5\r\nready\r\n")
}

func TestBlpopBadTimeout(t *testing.T) {
	c := newHarness(t).connect()
	roundtrip(t, c, cmd("BLPOP", "q", "abc"), "-ERR timeout is not a float or out of range\r\n")
}

func TestPsyncPropagatesSet(t *testing.T) {
	h := newHarness(t)
	rep := h.connect()
	client := h.connect()

	send(t, rep, cmd("PSYNC", "?", "-1"))
	want := fmt.Sprintf("+FULLRESYNC %s 0\r\n", h.identity.ReplID)
	assert.Equal(t, want, recv(t, rep, len(want)))

	dump := rdb.EmptyDump()
	header := fmt.Sprintf("$%d\r\n", len(dump))
	assert.Equal(t, header, recv(t, rep, len(header)))
	assert.Equal(t, string(dump), recv(t, rep, len(dump)))

	// The registry add races the propagate below only if the replica
	// had not finished its handshake; wait for registration.
	require.Eventually(t, func() bool { return h.replicas.Count() == 1 }, time.Second, 5*time.Millisecond)

	roundtrip(t, client, cmd("SET", "k", "v"), "+OK\r\n")
	assert.Equal(t, "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n", recv(t, rep, len("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n")))
}

func TestPsyncRejectsPartialResync(t *testing.T) {
	c := newHarness(t).connect()
	roundtrip(t, c, cmd("PSYNC", "some-id", "42"), "-ERR PSYNC not supported\r\n")
	// The connection stays usable after the rejected upgrade.
	roundtrip(t, c, cmd("PING"), "+PONG\r\n")
}

func TestErrorsDoNotPropagate(t *testing.T) {
	h := newHarness(t)
	rep := h.connect()
	client := h.connect()

	send(t, rep, cmd("PSYNC", "?", "-1"))
	handshakeLen := len(fmt.Sprintf("+FULLRESYNC %s 0\r\n", h.identity.ReplID)) +
		len(fmt.Sprintf("$%d\r\n", len(rdb.EmptyDump()))) + len(rdb.EmptyDump())
	recv(t, rep, handshakeLen)
	require.Eventually(t, func() bool { return h.replicas.Count() == 1 }, time.Second, 5*time.Millisecond)

	// A failing INCR must not reach the replica; the following SET must.
	roundtrip(t, client, cmd("SET", "s", "text"), "+OK\r\n")
	roundtrip(t, client, cmd("INCR", "s"), "-ERR value is not an integer or out of range\r\n")
	roundtrip(t, client, cmd("SET", "t", "1"), "+OK\r\n")

	recv(t, rep, len(cmd("SET", "s", "text")))
	assert.Equal(t, cmd("SET", "t", "1"), recv(t, rep, len(cmd("SET", "t", "1"))))
}

func TestMalformedRequestIsIgnored(t *testing.T) {
	c := newHarness(t).connect()
	// An inline junk line decodes to nothing; the next well-formed
	// request on the same connection still works.
	send(t, c, "garbage\r\n")
	roundtrip(t, c, cmd("PING"), "+PONG\r\n")
}
