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

	"github.com/yunqi/beaconmq/internal/xerror"
)

// PINGREQ, PINGRESP and DISCONNECT all have a zero-length remaining
// length; encodeEmpty/decodeEmpty factor that out.

func encodeEmpty(w io.Writer, t Type, flags byte) error {
	return encodeFixedHeader(w, t, flags, nil)
}

func decodeEmpty(fh *FixedHeader) error {
	if fh.RemainingLength != 0 {
		return xerror.ErrMalformed
	}
	return nil
}

// PingReq represents the PINGREQ packet, a keep-alive liveness probe.
type PingReq struct{}

func (p *PingReq) Type() Type              { return PINGREQ }
func (p *PingReq) Encode(w io.Writer) error { return encodeEmpty(w, PINGREQ, reservedFlags[PINGREQ]) }

func decodePingReq(fh *FixedHeader, _ io.Reader) (*PingReq, error) {
	if err := decodeEmpty(fh); err != nil {
		return nil, err
	}
	return &PingReq{}, nil
}

// PingResp represents the PINGRESP packet.
type PingResp struct{}

func (p *PingResp) Type() Type              { return PINGRESP }
func (p *PingResp) Encode(w io.Writer) error { return encodeEmpty(w, PINGRESP, reservedFlags[PINGRESP]) }

func decodePingResp(fh *FixedHeader, _ io.Reader) (*PingResp, error) {
	if err := decodeEmpty(fh); err != nil {
		return nil, err
	}
	return &PingResp{}, nil
}

// Disconnect represents the DISCONNECT packet: the client's orderly
// goodbye, which suppresses the will.
type Disconnect struct{}

func (d *Disconnect) Type() Type              { return DISCONNECT }
func (d *Disconnect) Encode(w io.Writer) error { return encodeEmpty(w, DISCONNECT, reservedFlags[DISCONNECT]) }

func decodeDisconnect(fh *FixedHeader, _ io.Reader) (*Disconnect, error) {
	if err := decodeEmpty(fh); err != nil {
		return nil, err
	}
	return &Disconnect{}, nil
}
