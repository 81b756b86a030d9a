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

// Package math holds the small integer helpers shared by the data
// engine and the command handlers.
package math

import "strconv"

// ParseInt64 parses s as a signed decimal integer. Leading zeros are
// accepted; hex, floats and the empty string are not.
func ParseInt64(s string) (int64, bool) {
	v, err := strconv.ParseInt(s, 10, 64)
	return v, err == nil
}

// SafeAddInt64 returns x+y and reports whether the sum overflowed.
func SafeAddInt64(x, y int64) (int64, bool) {
	sum := x + y
	if (y > 0 && sum < x) || (y < 0 && sum > x) {
		return 0, true
	}
	return sum, false
}

// SafeIncrInt64 returns x+1 and reports whether x was already MaxInt64.
func SafeIncrInt64(x int64) (int64, bool) {
	return SafeAddInt64(x, 1)
}
