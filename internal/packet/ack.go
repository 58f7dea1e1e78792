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
	"io"

	xbinary "github.com/yunqi/beaconmq/internal/binary"
	"github.com/yunqi/beaconmq/internal/xerror"
)

// PUBACK, PUBREC, PUBREL and PUBCOMP all share the same body shape: a
// bare 2-byte packet id. encodeIDOnly/decodeIDOnly factor that out; each
// type still gets its own Go type so the dispatch switch in the
// connection runtime stays exhaustive and type-safe.

func encodeIDOnly(w io.Writer, t Type, flags byte, id PacketID) error {
	body := make([]byte, 2)
	body[0] = byte(id >> 8)
	body[1] = byte(id)
	return encodeFixedHeader(w, t, flags, body)
}

func decodeIDOnly(fh *FixedHeader, r io.Reader) (PacketID, error) {
	body, err := readBody(fh, r)
	if err != nil {
		return 0, err
	}
	if body.Len() != 2 {
		return 0, xerror.ErrMalformed
	}
	id, err := xbinary.ReadUint16(body)
	if err != nil {
		return 0, err
	}
	return PacketID(id), nil
}

// PubAck represents the PUBACK packet (QoS 1 sender-side acknowledgment).
type PubAck struct{ PacketID PacketID }

func (p *PubAck) Type() Type              { return PUBACK }
func (p *PubAck) Encode(w io.Writer) error { return encodeIDOnly(w, PUBACK, reservedFlags[PUBACK], p.PacketID) }

func decodePubAck(fh *FixedHeader, r io.Reader) (*PubAck, error) {
	id, err := decodeIDOnly(fh, r)
	if err != nil {
		return nil, err
	}
	return &PubAck{PacketID: id}, nil
}

// PubRec represents the PUBREC packet (QoS 2, step 2).
type PubRec struct{ PacketID PacketID }

func (p *PubRec) Type() Type              { return PUBREC }
func (p *PubRec) Encode(w io.Writer) error { return encodeIDOnly(w, PUBREC, reservedFlags[PUBREC], p.PacketID) }

func decodePubRec(fh *FixedHeader, r io.Reader) (*PubRec, error) {
	id, err := decodeIDOnly(fh, r)
	if err != nil {
		return nil, err
	}
	return &PubRec{PacketID: id}, nil
}

// PubRel represents the PUBREL packet (QoS 2, step 3). Its flag nibble
// must equal 2.
type PubRel struct{ PacketID PacketID }

func (p *PubRel) Type() Type              { return PUBREL }
func (p *PubRel) Encode(w io.Writer) error { return encodeIDOnly(w, PUBREL, reservedFlags[PUBREL], p.PacketID) }

func decodePubRel(fh *FixedHeader, r io.Reader) (*PubRel, error) {
	id, err := decodeIDOnly(fh, r)
	if err != nil {
		return nil, err
	}
	return &PubRel{PacketID: id}, nil
}

// PubComp represents the PUBCOMP packet (QoS 2, step 4).
type PubComp struct{ PacketID PacketID }

func (p *PubComp) Type() Type              { return PUBCOMP }
func (p *PubComp) Encode(w io.Writer) error { return encodeIDOnly(w, PUBCOMP, reservedFlags[PUBCOMP], p.PacketID) }

func decodePubComp(fh *FixedHeader, r io.Reader) (*PubComp, error) {
	id, err := decodeIDOnly(fh, r)
	if err != nil {
		return nil, err
	}
	return &PubComp{PacketID: id}, nil
}

// UnsubAck represents the UNSUBACK packet.
type UnsubAck struct{ PacketID PacketID }

func (u *UnsubAck) Type() Type { return UNSUBACK }
func (u *UnsubAck) Encode(w io.Writer) error {
	return encodeIDOnly(w, UNSUBACK, reservedFlags[UNSUBACK], u.PacketID)
}

func decodeUnsuback(fh *FixedHeader, r io.Reader) (*UnsubAck, error) {
	id, err := decodeIDOnly(fh, r)
	if err != nil {
		return nil, err
	}
	return &UnsubAck{PacketID: id}, nil
}
