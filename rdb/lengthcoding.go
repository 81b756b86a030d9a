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

package rdb

import (
	"encoding/binary"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// readLength decodes a plain length-encoded integer: the leading
// byte's top two bits select 6-bit inline, 14-bit (with one more
// byte), or 32-bit big-endian (with four more bytes). This is used
// for the FE/FB skip fields, which are never string-encoded and so
// never use the special top-bits-11 forms.
func readLength(r *countingReader) (uint32, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, err
	}
	switch b >> 6 {
	case lenEnc6Bit:
		return uint32(b & 0x3F), nil
	case lenEnc14Bit:
		next, err := r.readByte()
		if err != nil {
			return 0, err
		}
		return uint32(b&0x3F)<<8 | uint32(next), nil
	case lenEnc32Bit:
		buf := make([]byte, 4)
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, err
		}
		return binary.BigEndian.Uint32(buf), nil
	default:
		return 0, errors.Errorf("rdb: length field used special string encoding 0x%02x", b)
	}
}

// readString decodes a length-encoded string, or one of the three
// supported special integer encodings rendered as its decimal text
// form. Any other top-bits-11 byte value is an unsupported
// (compressed) encoding and returns *UnsupportedEncodingError.
func readString(r *countingReader) ([]byte, error) {
	b, err := r.readByte()
	if err != nil {
		return nil, err
	}

	if b>>6 == lenEncSpecial {
		return readSpecialInt(r, b)
	}

	// Put the length byte back into the same decoding readLength uses,
	// by decoding the length from b directly (readLength would
	// otherwise re-read a byte we've already consumed).
	var n uint32
	switch b >> 6 {
	case lenEnc6Bit:
		n = uint32(b & 0x3F)
	case lenEnc14Bit:
		next, err := r.readByte()
		if err != nil {
			return nil, err
		}
		n = uint32(b&0x3F)<<8 | uint32(next)
	case lenEnc32Bit:
		buf := make([]byte, 4)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		n = binary.BigEndian.Uint32(buf)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readSpecialInt(r *countingReader, b byte) ([]byte, error) {
	switch b {
	case specialInt8:
		v, err := r.readByte()
		if err != nil {
			return nil, err
		}
		return []byte(strconv.FormatInt(int64(int8(v)), 10)), nil

	case specialInt16:
		buf := make([]byte, 2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		v := int16(binary.LittleEndian.Uint16(buf))
		return []byte(strconv.FormatInt(int64(v), 10)), nil

	case specialInt32:
		buf := make([]byte, 4)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		v := int32(binary.LittleEndian.Uint32(buf))
		return []byte(strconv.FormatInt(int64(v), 10)), nil

	default:
		return nil, &UnsupportedEncodingError{Encoding: b, Offset: r.n - 1}
	}
}
