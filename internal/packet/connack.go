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

	"github.com/yunqi/beaconmq/internal/code"
	"github.com/yunqi/beaconmq/internal/xerror"
)

// Connack represents the CONNACK packet sent in response to CONNECT.
type Connack struct {
	SessionPresent bool
	Code           code.Code
}

func (c *Connack) Type() Type { return CONNACK }

func (c *Connack) Encode(w io.Writer) error {
	var ack byte
	if c.SessionPresent {
		ack = 1
	}
	body := []byte{ack, byte(c.Code)}
	return encodeFixedHeader(w, CONNACK, reservedFlags[CONNACK], body)
}

func decodeConnack(fh *FixedHeader, r io.Reader) (*Connack, error) {
	body, err := readBody(fh, r)
	if err != nil {
		return nil, err
	}
	if body.Len() != 2 {
		return nil, xerror.ErrMalformed
	}
	ack, _ := body.ReadByte()
	if ack&^0x01 != 0 {
		return nil, xerror.ErrMalformed
	}
	rc, _ := body.ReadByte()
	c := &Connack{SessionPresent: ack == 1, Code: code.Code(rc)}
	if !c.Code.Valid() {
		return nil, xerror.ErrInvalidReturnCode
	}
	return c, nil
}
