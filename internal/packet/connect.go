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

package packet

import (
	"bytes"
	"io"

	xbinary "github.com/yunqi/beaconmq/internal/binary"
	"github.com/yunqi/beaconmq/internal/qos"
	"github.com/yunqi/beaconmq/internal/xerror"
)

// ProtocolLevel311 is the MQTT 3.1.1 protocol level byte. This broker
// only accepts this level; see [4.1].
const ProtocolLevel311 = 4

// Connect represents the CONNECT packet.
type Connect struct {
	ProtocolName  string
	ProtocolLevel byte

	CleanSession bool
	WillFlag     bool
	WillQoS      qos.Level
	WillRetain   bool
	PasswordFlag bool
	UsernameFlag bool

	KeepAlive uint16

	ClientID string

	WillTopic   string
	WillMessage []byte

	Username string
	Password []byte
}

func (c *Connect) Type() Type { return CONNECT }

const (
	connectFlagCleanSession = 1 << 1
	connectFlagWill         = 1 << 2
	connectFlagWillQoSShift = 3
	connectFlagWillQoSMask  = 0x03
	connectFlagWillRetain   = 1 << 5
	connectFlagPassword     = 1 << 6
	connectFlagUsername     = 1 << 7
)

func (c *Connect) Encode(w io.Writer) error {
	body := &bytes.Buffer{}
	if err := xbinary.WriteString(body, []byte(c.ProtocolName)); err != nil {
		return err
	}
	body.WriteByte(c.ProtocolLevel)

	var flags byte
	if c.CleanSession {
		flags |= connectFlagCleanSession
	}
	if c.WillFlag {
		flags |= connectFlagWill
		flags |= byte(c.WillQoS&connectFlagWillQoSMask) << connectFlagWillQoSShift
		if c.WillRetain {
			flags |= connectFlagWillRetain
		}
	}
	if c.UsernameFlag {
		flags |= connectFlagUsername
	}
	if c.PasswordFlag {
		flags |= connectFlagPassword
	}
	body.WriteByte(flags)

	if err := xbinary.WriteUint16(body, c.KeepAlive); err != nil {
		return err
	}
	if err := xbinary.WriteString(body, []byte(c.ClientID)); err != nil {
		return err
	}
	if c.WillFlag {
		if err := xbinary.WriteString(body, []byte(c.WillTopic)); err != nil {
			return err
		}
		if err := xbinary.WriteString(body, c.WillMessage); err != nil {
			return err
		}
	}
	if c.UsernameFlag {
		if err := xbinary.WriteString(body, []byte(c.Username)); err != nil {
			return err
		}
	}
	if c.PasswordFlag {
		if err := xbinary.WriteString(body, c.Password); err != nil {
			return err
		}
	}
	return encodeFixedHeader(w, CONNECT, reservedFlags[CONNECT], body.Bytes())
}

func decodeConnect(fh *FixedHeader, r io.Reader) (*Connect, error) {
	if fh.Flags != 0 {
		return nil, xerror.ErrFlagBits
	}
	body, err := readBody(fh, r)
	if err != nil {
		return nil, err
	}

	protocolName, err := xbinary.ReadUTF8String(body)
	if err != nil {
		return nil, err
	}
	if protocolName != "MQTT" {
		return nil, xerror.ErrInvalidProtocol
	}

	level, err := body.ReadByte()
	if err != nil {
		return nil, xerror.ErrMalformed
	}
	if level != ProtocolLevel311 {
		return nil, xerror.ErrV3UnacceptableProtocolVersion
	}

	flags, err := body.ReadByte()
	if err != nil {
		return nil, xerror.ErrMalformed
	}
	if flags&0x01 != 0 { // reserved bit 0 must be 0 [MQTT-3.1.2-3]
		return nil, xerror.ErrMalformed
	}

	c := &Connect{ProtocolName: protocolName, ProtocolLevel: level}
	c.CleanSession = flags&connectFlagCleanSession != 0
	c.WillFlag = flags&connectFlagWill != 0
	c.WillQoS = qos.Level((flags >> connectFlagWillQoSShift) & connectFlagWillQoSMask)
	c.WillRetain = flags&connectFlagWillRetain != 0
	c.PasswordFlag = flags&connectFlagPassword != 0
	c.UsernameFlag = flags&connectFlagUsername != 0

	if !c.WillFlag && (c.WillQoS != qos.AtMostOnce || c.WillRetain) { // [MQTT-3.1.2-11]
		return nil, xerror.ErrMalformed
	}
	if c.WillQoS == 3 {
		return nil, xerror.ErrWillQoS
	}
	if c.PasswordFlag && !c.UsernameFlag {
		return nil, xerror.ErrMalformed
	}

	c.KeepAlive, err = xbinary.ReadUint16(body)
	if err != nil {
		return nil, err
	}

	c.ClientID, err = xbinary.ReadUTF8String(body)
	if err != nil {
		return nil, err
	}
	if c.ClientID == "" && !c.CleanSession { // [MQTT-3.1.3-7], [MQTT-3.1.3-8]
		return nil, xerror.ErrV3IdentifierRejected
	}

	if c.WillFlag {
		c.WillTopic, err = xbinary.ReadUTF8String(body)
		if err != nil {
			return nil, err
		}
		c.WillMessage, err = readBinary(body)
		if err != nil {
			return nil, err
		}
	}
	if c.UsernameFlag {
		c.Username, err = xbinary.ReadUTF8String(body)
		if err != nil {
			return nil, err
		}
	}
	if c.PasswordFlag {
		c.Password, err = readBinary(body)
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// readBinary reads a length-prefixed opaque byte string (no UTF-8
// validation), used for the will message and password fields.
func readBinary(r *bytes.Reader) ([]byte, error) {
	n, err := xbinary.ReadUint16(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
