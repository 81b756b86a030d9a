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

// Package config is the optional on-disk configuration surface: a
// TOML file that supplements, and is always overridden by, the
// command-line flags cmd/starling-server parses. Nothing in this
// package touches a socket, a store, or the wire protocol.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// File is the recognized shape of an overlay config file. Every field
// is optional; a zero value means "not set in the file," letting the
// caller apply CLI-flags-always-win precedence field by field.
type File struct {
	Dir           string `toml:"dir"`
	DBFilename    string `toml:"dbfilename"`
	Port          int    `toml:"port"`
	ReplicaOfHost string `toml:"replica_of_host"`
	ReplicaOfPort int    `toml:"replica_of_port"`
	MetricsPort   int    `toml:"metrics_port"`
}

// FromFile reads and parses a TOML config file at path. A missing
// file is not an error — an empty File is returned so the caller's
// merge logic sees every field as unset.
func FromFile(path string) (File, error) {
	var f File
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return f, errors.Wrapf(err, "config: reading %s", path)
	}
	if err := toml.Unmarshal(b, &f); err != nil {
		return f, errors.Wrapf(err, "config: parsing %s", path)
	}
	return f, nil
}
