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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "starling_connections_accepted_total",
		Help: "Total number of client connections accepted.",
	})
	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "starling_connections_active",
		Help: "Number of client connections currently being served.",
	})
)
