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

// Package replica is the replication propagator: a registry of
// per-replica outbound channels and a fan-out call that sends a
// pre-encoded command to all of them, dropping any that are broken.
// It is fire-and-forget — no acknowledgement or offset tracking.
package replica

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultBufferSize is the channel buffer given to each replica
// stream. It exists so a replica that is momentarily slower than the
// primary's dispatch loop does not stall that loop; once the buffer
// is full the next propagate treats the replica as broken and drops
// it, same as a closed channel.
const DefaultBufferSize = 1024

var replicasConnected = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "starling_replicas_connected",
	Help: "Number of replica streams currently attached to the propagator.",
})

// Registry is the set of attached replicas' outbound channels.
type Registry struct {
	mu       sync.Mutex
	channels []chan []byte
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

// Add registers a fresh outbound channel and returns it; the caller
// (the PSYNC upgrade path) owns the receive side and drains it onto
// the replica's socket.
func (r *Registry) Add() <-chan []byte {
	ch := make(chan []byte, DefaultBufferSize)
	r.mu.Lock()
	r.channels = append(r.channels, ch)
	replicasConnected.Set(float64(len(r.channels)))
	r.mu.Unlock()
	return ch
}

// Propagate fans cmd out to every registered replica, retaining only
// those whose send succeeded. cmd is treated as an opaque, already
// wire-encoded payload.
func (r *Registry) Propagate(cmd []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	live := r.channels[:0]
	for _, ch := range r.channels {
		select {
		case ch <- cmd:
			live = append(live, ch)
		default:
			// Full buffer or nobody receiving: treat as broken and drop.
		}
	}
	r.channels = live
	replicasConnected.Set(float64(len(r.channels)))
}

// Count reports the number of currently attached replicas. The
// starling_replicas_connected gauge is set by Add and Propagate, not
// through Count.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}
