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
	"github.com/yunqi/beaconmq/internal/code"
	"github.com/yunqi/beaconmq/internal/qos"
	"github.com/yunqi/beaconmq/internal/xerror"
)

// SubscribeRequest is one {topic filter, requested QoS} pair in a
// SUBSCRIBE packet's payload.
type SubscribeRequest struct {
	TopicFilter string
	QoS         qos.Level
}

// Subscribe represents the SUBSCRIBE packet.
type Subscribe struct {
	PacketID PacketID
	Requests []SubscribeRequest
}

func (s *Subscribe) Type() Type { return SUBSCRIBE }

func (s *Subscribe) Encode(w io.Writer) error {
	body := &bytes.Buffer{}
	if err := xbinary.WriteUint16(body, uint16(s.PacketID)); err != nil {
		return err
	}
	for _, req := range s.Requests {
		if err := xbinary.WriteString(body, []byte(req.TopicFilter)); err != nil {
			return err
		}
		body.WriteByte(byte(req.QoS))
	}
	return encodeFixedHeader(w, SUBSCRIBE, reservedFlags[SUBSCRIBE], body.Bytes())
}

func decodeSubscribe(fh *FixedHeader, r io.Reader) (*Subscribe, error) {
	body, err := readBody(fh, r)
	if err != nil {
		return nil, err
	}
	id, err := xbinary.ReadUint16(body)
	if err != nil {
		return nil, err
	}
	s := &Subscribe{PacketID: PacketID(id)}
	for body.Len() > 0 {
		filter, err := xbinary.ReadUTF8String(body)
		if err != nil {
			return nil, err
		}
		qosByte, err := body.ReadByte()
		if err != nil {
			return nil, xerror.ErrMalformed
		}
		level := qos.Level(qosByte)
		if !level.Valid() {
			return nil, xerror.ErrFlagBits
		}
		s.Requests = append(s.Requests, SubscribeRequest{TopicFilter: filter, QoS: level})
	}
	if len(s.Requests) == 0 { // payload must be non-empty
		return nil, xerror.ErrMalformed
	}
	return s, nil
}

// Suback represents the SUBACK packet: one result byte per requested
// filter, in request order.
type Suback struct {
	PacketID PacketID
	Codes    []code.SubscribeCode
}

func (s *Suback) Type() Type { return SUBACK }

func (s *Suback) Encode(w io.Writer) error {
	body := &bytes.Buffer{}
	if err := xbinary.WriteUint16(body, uint16(s.PacketID)); err != nil {
		return err
	}
	for _, c := range s.Codes {
		body.WriteByte(byte(c))
	}
	return encodeFixedHeader(w, SUBACK, reservedFlags[SUBACK], body.Bytes())
}

func decodeSuback(fh *FixedHeader, r io.Reader) (*Suback, error) {
	body, err := readBody(fh, r)
	if err != nil {
		return nil, err
	}
	id, err := xbinary.ReadUint16(body)
	if err != nil {
		return nil, err
	}
	s := &Suback{PacketID: PacketID(id)}
	for body.Len() > 0 {
		b, _ := body.ReadByte()
		c := code.SubscribeCode(b)
		if c != code.SubscribeQoS0 && c != code.SubscribeQoS1 && c != code.SubscribeQoS2 && c != code.SubscribeFailure {
			return nil, xerror.ErrInvalidReturnCode
		}
		s.Codes = append(s.Codes, c)
	}
	return s, nil
}

// Unsubscribe represents the UNSUBSCRIBE packet.
type Unsubscribe struct {
	PacketID     PacketID
	TopicFilters []string
}

func (u *Unsubscribe) Type() Type { return UNSUBSCRIBE }

func (u *Unsubscribe) Encode(w io.Writer) error {
	body := &bytes.Buffer{}
	if err := xbinary.WriteUint16(body, uint16(u.PacketID)); err != nil {
		return err
	}
	for _, f := range u.TopicFilters {
		if err := xbinary.WriteString(body, []byte(f)); err != nil {
			return err
		}
	}
	return encodeFixedHeader(w, UNSUBSCRIBE, reservedFlags[UNSUBSCRIBE], body.Bytes())
}

func decodeUnsubscribe(fh *FixedHeader, r io.Reader) (*Unsubscribe, error) {
	body, err := readBody(fh, r)
	if err != nil {
		return nil, err
	}
	id, err := xbinary.ReadUint16(body)
	if err != nil {
		return nil, err
	}
	u := &Unsubscribe{PacketID: PacketID(id)}
	for body.Len() > 0 {
		filter, err := xbinary.ReadUTF8String(body)
		if err != nil {
			return nil, err
		}
		u.TopicFilters = append(u.TopicFilters, filter)
	}
	if len(u.TopicFilters) == 0 {
		return nil, xerror.ErrMalformed
	}
	return u, nil
}
