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

// Package rdb parses the compact binary snapshot format used to
// bootstrap the data engine at startup. It reads, never writes.
package rdb

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// header is the fixed nine-byte magic every dump must begin with.
var header = []byte("REDIS0011")

const (
	opAux         = 0xFA
	opSelectDB    = 0xFE
	opResizeDB    = 0xFB
	opExpireSec   = 0xFD
	opExpireMs    = 0xFC
	opString      = 0x00
	opEOF         = 0xFF
	lenEnc6Bit    = 0b00
	lenEnc14Bit   = 0b01
	lenEnc32Bit   = 0b10
	lenEncSpecial = 0b11
	specialInt8   = 0xC0
	specialInt16  = 0xC1
	specialInt32  = 0xC2
)

// UnsupportedEncodingError is returned when the dump uses a string
// encoding this reader does not implement — compressed strings using
// an encoding byte other than the three fixed-width integer forms.
type UnsupportedEncodingError struct {
	Encoding byte
	Offset   int64
}

func (e *UnsupportedEncodingError) Error() string {
	return "rdb: unsupported string encoding 0x" + strconvFormatByte(e.Encoding) + " at offset " + strconv.FormatInt(e.Offset, 10)
}

func strconvFormatByte(b byte) string {
	return strconv.FormatUint(uint64(b), 16)
}

// Value is the decoded payload for one key: always a byte string at
// the RDB layer. Only the string-typed entry (opcode 0x00) exists in
// the dumps this reader accepts; list and other value types never
// appear in a compatible snapshot.
type Value []byte

// Visit is called once per decoded key, in file order. expiresAtMs is
// 0 when the key has no staged expiry.
type Visit func(key string, value Value, expiresAtMs int64) error

// Read opens path on fs and decodes it, calling visit once per
// string-typed entry. A missing file is not an error; the caller's
// engine is simply left empty.
func Read(fs afero.Fs, path string, visit Visit) error {
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "rdb: open %s", path)
	}
	defer f.Close()

	r := &countingReader{r: bufio.NewReader(f)}
	return decode(r, visit)
}

// EmptyDump returns a minimal, header-complete dump with no keys,
// used as the synthetic PSYNC full-resync payload. Read(fs, ...)
// would accept this byte-for-byte, which is the point: the writer and
// reader of this one artifact are deliberately coupled.
func EmptyDump() []byte {
	return append(append([]byte{}, header...), opEOF)
}

func decode(r *countingReader, visit Visit) error {
	magic := make([]byte, len(header))
	if _, err := io.ReadFull(r, magic); err != nil {
		return errors.Wrap(err, "rdb: reading header")
	}
	if string(magic) != string(header) {
		return errors.New("rdb: bad header magic")
	}

	var stagedExpiryMs int64

	for {
		op, err := r.readByte()
		if err != nil {
			return errors.Wrap(err, "rdb: reading opcode")
		}

		switch op {
		case opEOF:
			return nil

		case opAux:
			if _, err := readString(r); err != nil {
				return errors.Wrap(err, "rdb: skipping aux key")
			}
			if _, err := readString(r); err != nil {
				return errors.Wrap(err, "rdb: skipping aux value")
			}

		case opSelectDB:
			if _, err := readLength(r); err != nil {
				return errors.Wrap(err, "rdb: reading db selector")
			}

		case opResizeDB:
			if _, err := readLength(r); err != nil {
				return errors.Wrap(err, "rdb: reading resizedb hash size")
			}
			if _, err := readLength(r); err != nil {
				return errors.Wrap(err, "rdb: reading resizedb expire size")
			}

		case opExpireSec:
			buf := make([]byte, 4)
			if _, err := io.ReadFull(r, buf); err != nil {
				return errors.Wrap(err, "rdb: reading seconds expiry")
			}
			stagedExpiryMs = int64(binary.LittleEndian.Uint32(buf)) * 1000

		case opExpireMs:
			buf := make([]byte, 8)
			if _, err := io.ReadFull(r, buf); err != nil {
				return errors.Wrap(err, "rdb: reading ms expiry")
			}
			stagedExpiryMs = int64(binary.LittleEndian.Uint64(buf))

		case opString:
			key, err := readString(r)
			if err != nil {
				return errors.Wrap(err, "rdb: reading key")
			}
			value, err := readString(r)
			if err != nil {
				return errors.Wrap(err, "rdb: reading value")
			}
			if err := visit(string(key), Value(value), stagedExpiryMs); err != nil {
				return err
			}
			stagedExpiryMs = 0

		default:
			return errors.Errorf("rdb: unrecognized opcode 0x%02x at offset %d", op, r.n-1)
		}
	}
}

// countingReader wraps a *bufio.Reader to track the byte offset for
// error messages, without changing any read semantics.
type countingReader struct {
	r *bufio.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReader) readByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}
