/*
 *    Copyright 2021 chenquan
 *
 *    Licensed under the Apache License, Version 2.0 (the "License");
 *    you may not use this file except in compliance with the License.
 *    You may obtain a copy of the License at
 *
 *        http://www.apache.org/licenses/LICENSE-2.0
 *
 *    Unless required by applicable law or agreed to in writing, software
 *    distributed under the License is distributed on an "AS IS" BASIS,
 *    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *    See the License for the specific language governing permissions and
 *    limitations under the License.
 */

// Package binary provides the low-level big-endian read/write helpers the
// packet codec builds on: fixed-width bool/uint16/uint32, length-prefixed
// strings, and the variable-length "remaining length" integer.
package binary

import (
	"encoding/binary"
	"io"
	"unicode/utf8"

	"github.com/yunqi/beaconmq/internal/xerror"
)

// ReadBool reads a single byte and reports it as a bool (non-zero is true).
func ReadBool(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

// WriteBool writes b as a single 0x00/0x01 byte.
func WriteBool(w io.Writer, b bool) error {
	var v byte
	if b {
		v = 1
	}
	_, err := w.Write([]byte{v})
	return err
}

// ReadUint16 reads a 2-byte big-endian unsigned integer.
func ReadUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

// WriteUint16 writes v as a 2-byte big-endian unsigned integer.
func WriteUint16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// ReadUint32 reads a 4-byte big-endian unsigned integer.
func ReadUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// WriteUint32 writes v as a 4-byte big-endian unsigned integer.
func WriteUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// WriteString writes p as a 2-byte length prefix followed by the raw
// bytes. It is used for both UTF-8 strings and opaque binary fields.
func WriteString(w io.Writer, p []byte) error {
	if err := WriteUint16(w, uint16(len(p))); err != nil {
		return err
	}
	_, err := w.Write(p)
	return err
}

// ReadString reads a 2-byte length prefix followed by that many raw
// bytes. No UTF-8 validation is performed here; callers that need
// MQTT-valid text use ReadUTF8String.
func ReadString(r io.Reader) (string, error) {
	n, err := ReadUint16(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// ReadUTF8String reads a length-prefixed string and validates it per
// MQTT-1.5.3: well-formed UTF-8, no embedded NUL, no unpaired surrogates.
func ReadUTF8String(r io.Reader) (string, error) {
	s, err := ReadString(r)
	if err != nil {
		return "", err
	}
	if !ValidUTF8(s) {
		return "", xerror.ErrUTF8
	}
	return s, nil
}

// ValidUTF8 reports whether s is well-formed UTF-8 and contains no NUL
// code point, per MQTT's text field rule (MQTT-1.5.3). utf8.ValidString
// already rejects any byte sequence that would decode to an unpaired
// surrogate half, since surrogates are not valid UTF-8 scalar values.
func ValidUTF8(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if r == 0 {
			return false
		}
	}
	return true
}

const (
	// MaxRemainingLength is the largest value the 4-byte variable length
	// integer can encode: 128^4 - 1.
	MaxRemainingLength = 128*128*128*128 - 1
	continuationBit    = 0x80
)

// WriteRemainingLength encodes n as the MQTT variable-length integer used
// for the fixed header's "remaining length" field.
func WriteRemainingLength(w io.Writer, n int) error {
	if n < 0 || n > MaxRemainingLength {
		return xerror.ErrMalformedLength
	}
	var buf []byte
	for {
		b := byte(n % 128)
		n /= 128
		if n > 0 {
			b |= continuationBit
		}
		buf = append(buf, b)
		if n == 0 {
			break
		}
	}
	_, err := w.Write(buf)
	return err
}

// ReadRemainingLength decodes the MQTT variable-length integer, failing
// with xerror.ErrMalformedLength if more than 4 bytes are consumed or the
// fourth byte still carries the continuation bit.
func ReadRemainingLength(r io.Reader) (int, error) {
	var (
		value      int
		multiplier = 1
		b          [1]byte
	)
	for i := 0; i < 4; i++ {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		value += int(b[0]&0x7f) * multiplier
		if b[0]&continuationBit == 0 {
			return value, nil
		}
		multiplier *= 128
	}
	return 0, xerror.ErrMalformedLength
}

// RemainingLengthSize returns the number of bytes WriteRemainingLength
// would use to encode n: ceil(log128(n+1)), 1 byte for n<128, and so on.
func RemainingLengthSize(n int) int {
	size := 1
	for n >= 128 {
		n /= 128
		size++
	}
	return size
}
