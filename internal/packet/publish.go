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

// Publish represents the PUBLISH packet. Its flag nibble is variable,
// carrying DUP, QoS and RETAIN rather than a fixed reserved value.
type Publish struct {
	Dup    bool
	QoS    qos.Level
	Retain bool

	TopicName string
	// PacketID is only meaningful when QoS > 0.
	PacketID PacketID
	Payload  []byte
}

func (p *Publish) Type() Type { return PUBLISH }

func publishFlags(p *Publish) byte {
	var f byte
	if p.Dup {
		f |= 0x08
	}
	f |= byte(p.QoS&0x03) << 1
	if p.Retain {
		f |= 0x01
	}
	return f
}

func (p *Publish) Encode(w io.Writer) error {
	body := &bytes.Buffer{}
	if err := xbinary.WriteString(body, []byte(p.TopicName)); err != nil {
		return err
	}
	if p.QoS > qos.AtMostOnce {
		if err := xbinary.WriteUint16(body, uint16(p.PacketID)); err != nil {
			return err
		}
	}
	body.Write(p.Payload)
	return encodeFixedHeader(w, PUBLISH, publishFlags(p), body.Bytes())
}

func decodePublish(fh *FixedHeader, r io.Reader) (*Publish, error) {
	p := &Publish{
		Dup:    fh.Flags&0x08 != 0,
		QoS:    qos.Level((fh.Flags >> 1) & 0x03),
		Retain: fh.Flags&0x01 != 0,
	}
	if !p.QoS.Valid() {
		return nil, xerror.ErrFlagBits
	}

	body, err := readBody(fh, r)
	if err != nil {
		return nil, err
	}
	p.TopicName, err = xbinary.ReadUTF8String(body)
	if err != nil {
		return nil, err
	}
	if p.QoS > qos.AtMostOnce {
		id, err := xbinary.ReadUint16(body)
		if err != nil {
			return nil, err
		}
		p.PacketID = PacketID(id)
	}
	p.Payload = make([]byte, body.Len())
	if _, err := io.ReadFull(body, p.Payload); err != nil {
		return nil, err
	}
	return p, nil
}
