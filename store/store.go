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

// Package store is the in-memory data engine: a keyed map from byte
// string to an entry holding either a byte-string value or an
// ordered list of byte strings, with optional absolute expiry.
package store

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/starlingdb/starling/blocking"
	"github.com/starlingdb/starling/common/math"
)

// ErrWrongType is returned when an operation that requires a
// specific value shape is applied to an entry of the other shape.
// The store never mutates the entry in this case.
var ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// ErrNotInteger is returned by INCR when the existing value cannot be
// parsed as a signed 64-bit integer.
var ErrNotInteger = errors.New("value is not an integer or out of range")

type kind uint8

const (
	kindString kind = iota
	kindList
)

// entry is the tagged value variant from the data model: exactly one
// of str or list is meaningful, selected by k. expiresAt is unix
// milliseconds; zero means no expiry (wall-clock time is never
// legitimately zero over this process's lifetime, so a sentinel zero
// value avoids a second bool field or a pointer).
type entry struct {
	k         kind
	str       []byte
	list      [][]byte
	expiresAt int64
}

func (e *entry) expired(nowMs int64) bool {
	return e.expiresAt != 0 && e.expiresAt <= nowMs
}

// Stats are cumulative operation counters, updated under the same
// lock as the keyspace they describe. They back the Prometheus
// counters the bootstrap process exposes; nothing in this package
// reads them except for tests and the metrics exporter.
type Stats struct {
	Gets        uint64
	Sets        uint64
	Incrs       uint64
	ListPushes  uint64
	ListPops    uint64
	ExpiredKeys uint64
}

// Ops is the command set a connection handler needs from the data
// engine. *Store implements it by taking the store lock once per
// call; *Tx implements it by assuming the lock is already held for
// the whole transaction, which is what lets EXEC run its queued
// commands as a single atomic unit instead of one lock acquisition
// per queued command.
type Ops interface {
	Set(key string, value []byte)
	SetTTL(key string, value []byte, ttlMs int64)
	Get(key string) ([]byte, bool, error)
	Keys() []string
	Incr(key string) (int64, error)
	RPush(key string, elements ...[]byte) (int, error)
	LPush(key string, elements ...[]byte) (int, error)
	LPop(key string) ([]byte, bool, error)
	LPopCount(key string, count int) ([][]byte, error)
	LLen(key string) (int, error)
	LRange(key string, start, stop int) ([][]byte, error)
}

// Store is the keyed entry map. A single RWMutex guards the whole
// keyspace; per-key locking would be a valid refinement but a single
// mutex makes the store-then-notifier lock ordering trivially
// correct.
type Store struct {
	mu    sync.RWMutex
	data  map[string]*entry
	stats Stats

	notifier *blocking.Notifier
	now      func() time.Time // overridable for tests
}

var _ Ops = (*Store)(nil)

// New creates an empty store. notifier may be nil for tests that do
// not exercise list pushes or BLPOP; production callers always
// provide one so RPUSH/LPUSH can wake parked BLPOP callers.
func New(notifier *blocking.Notifier) *Store {
	return &Store{
		data:     make(map[string]*entry),
		notifier: notifier,
		now:      time.Now,
	}
}

func (s *Store) nowMs() int64 {
	return s.now().UnixMilli()
}

// Exec runs fn with exclusive access to the keyspace for fn's entire
// duration, via a *Tx that performs the same operations as Store but
// without re-acquiring the lock per call. This is what gives EXEC its
// atomicity: every queued command in one transaction observes (and
// is observed by) the rest of the system as a single indivisible
// step.
func (s *Store) Exec(fn func(tx *Tx)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&Tx{s: s})
}

// Set implements SET key value, clearing any prior expiry.
func (s *Store) Set(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, value)
}

func (s *Store) setLocked(key string, value []byte) {
	s.data[key] = &entry{k: kindString, str: value}
	s.stats.Sets++
}

// SetTTL implements SET key value PX ttlMs: deadline = now + ttl.
func (s *Store) SetTTL(key string, value []byte, ttlMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setTTLLocked(key, value, ttlMs)
}

func (s *Store) setTTLLocked(key string, value []byte, ttlMs int64) {
	s.data[key] = &entry{k: kindString, str: value, expiresAt: s.nowMs() + ttlMs}
	s.stats.Sets++
}

// SetAbsolute implements the snapshot-load form of SET: deadline =
// now + max(0, absMs - wallNowMs). Used only by the bootstrap loader
// feeding entries read from an RDB-format snapshot.
func (s *Store) SetAbsolute(key string, value []byte, absMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := s.nowMs()
	ttl := absMs - nowMs
	if ttl < 0 {
		ttl = 0
	}
	s.data[key] = &entry{k: kindString, str: value, expiresAt: nowMs + ttl}
	s.stats.Sets++
}

// Get implements GET key. It returns (nil, false) for an absent or
// expired key, and ErrWrongType if the entry holds a list.
func (s *Store) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key)
}

func (s *Store) getLocked(key string) ([]byte, bool, error) {
	s.stats.Gets++

	nowMs := s.nowMs()
	e, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(nowMs) {
		delete(s.data, key)
		s.stats.ExpiredKeys++
		return nil, false, nil
	}
	if e.k != kindString {
		return nil, false, ErrWrongType
	}
	return e.str, true, nil
}

// Keys implements KEYS *: purges every expired entry as a side
// effect and returns the remaining keys in unspecified order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keysLocked()
}

func (s *Store) keysLocked() []string {
	nowMs := s.nowMs()
	keys := make([]string, 0, len(s.data))
	for k, e := range s.data {
		if e.expired(nowMs) {
			delete(s.data, k)
			s.stats.ExpiredKeys++
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// Incr implements INCR key. A missing or expired key is treated as
// "0" and then incremented, so the result is 1, not an error. This
// keeps a replicated INCR deterministic on a replica that never saw
// a prior SET for the key.
func (s *Store) Incr(key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrLocked(key)
}

func (s *Store) incrLocked(key string) (int64, error) {
	s.stats.Incrs++

	nowMs := s.nowMs()
	e, ok := s.data[key]
	if ok && e.expired(nowMs) {
		delete(s.data, key)
		s.stats.ExpiredKeys++
		ok = false
	}

	var cur int64
	if ok {
		if e.k != kindString {
			return 0, ErrWrongType
		}
		v, parsed := math.ParseInt64(string(e.str))
		if !parsed {
			return 0, ErrNotInteger
		}
		cur = v
	}

	next, overflow := math.SafeIncrInt64(cur)
	if overflow {
		return 0, ErrNotInteger
	}
	s.data[key] = &entry{k: kindString, str: []byte(strconv.FormatInt(next, 10))}
	return next, nil
}

// Len returns the number of live entries, purging expired ones.
// Exposed for tests; not part of the wire protocol.
func (s *Store) Len() int {
	return len(s.Keys())
}

// Stats returns a snapshot of the cumulative operation counters,
// backing the Prometheus counters cmd/starling-server exposes on
// /metrics. Not part of the wire protocol.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Tx is the locked view of the store handed to the function passed
// to Exec. Its method set mirrors Store's so a connection handler can
// be written once against the Ops interface and run identically
// inside or outside a transaction.
type Tx struct {
	s *Store
}

var _ Ops = (*Tx)(nil)

func (t *Tx) Set(key string, value []byte)                 { t.s.setLocked(key, value) }
func (t *Tx) SetTTL(key string, value []byte, ttlMs int64) { t.s.setTTLLocked(key, value, ttlMs) }
func (t *Tx) Get(key string) ([]byte, bool, error)         { return t.s.getLocked(key) }
func (t *Tx) Keys() []string                               { return t.s.keysLocked() }
func (t *Tx) Incr(key string) (int64, error)               { return t.s.incrLocked(key) }
func (t *Tx) RPush(key string, elements ...[]byte) (int, error) {
	return t.s.rpushLocked(key, elements)
}
func (t *Tx) LPush(key string, elements ...[]byte) (int, error) {
	return t.s.lpushLocked(key, elements)
}
func (t *Tx) LPop(key string) ([]byte, bool, error)             { return t.s.lpopLocked(key) }
func (t *Tx) LPopCount(key string, count int) ([][]byte, error) { return t.s.lpopNLocked(key, count) }
func (t *Tx) LLen(key string) (int, error)                      { return t.s.llenLocked(key) }
func (t *Tx) LRange(key string, start, stop int) ([][]byte, error) {
	return t.s.lrangeLocked(key, start, stop)
}
