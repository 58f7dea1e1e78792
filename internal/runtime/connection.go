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

package runtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yunqi/beaconmq/internal/packet"
	"github.com/yunqi/beaconmq/internal/persistence/session"
	"github.com/yunqi/beaconmq/internal/qos"
	"github.com/yunqi/beaconmq/internal/registry"
	"github.com/yunqi/beaconmq/internal/transport"
	"github.com/yunqi/beaconmq/internal/xerror"
	"github.com/yunqi/beaconmq/internal/xlog"
)

// Authenticator validates CONNECT credentials. The user-credential
// database behind it lives outside this module.
type Authenticator interface {
	Authenticate(user string, pass []byte) error
}

// Config bundles the broker-wide settings a Connection needs, sourced
// from the loaded config.toml.
type Config struct {
	RequireAuth      bool
	MaxQueueMessages int
	DefaultQoS       qos.Level
	HousekeepInterval time.Duration
}

// Connection drives one accepted transport stream end to end: handshake,
// event loop, and termination. Exactly one goroutine ever calls Run for
// a given Connection.
type Connection struct {
	stream transport.Stream
	cfg    Config

	registry     *registry.Registry
	sessionStore session.Store
	active       *ActiveRegistry
	auth         Authenticator

	log *zap.Logger

	session *Session

	closeOnce sync.Once
	closeCh   chan struct{}

	// runCtx and delivery are set for the lifetime of Run and let
	// dispatch wire a freshly subscribed topic's fan-out channel into
	// the event loop immediately instead of only at startup.
	runCtx   context.Context
	delivery chan *registry.Published
}

// NewConnection wraps an accepted stream. Call Run to drive it.
func NewConnection(stream transport.Stream, reg *registry.Registry, store session.Store, active *ActiveRegistry, auth Authenticator, cfg Config) *Connection {
	return &Connection{
		stream:       stream,
		cfg:          cfg,
		registry:     reg,
		sessionStore: store,
		active:       active,
		auth:         auth,
		log:          xlog.LoggerModule("connection"),
		closeCh:      make(chan struct{}),
	}
}

// RequestClose asynchronously stops Run at its next suspension point,
// used by handleConnect to close the connection ActiveRegistry.TakeOver
// displaced, without firing its will (the takeover is treated like the peer sent
// DISCONNECT).
func (c *Connection) RequestClose() {
	c.closeOnce.Do(func() { close(c.closeCh) })
}

type inboundFrame struct {
	pkt packet.Packet
	err error
}

// Run executes the full connection lifecycle and returns once the
// connection has terminated and any will/session-persistence work is
// done.
func (c *Connection) Run(ctx context.Context) {
	defer c.stream.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !c.handshake(ctx) {
		return
	}

	inbound := make(chan inboundFrame, 16)
	go c.readLoop(inbound)

	c.runCtx = ctx
	c.delivery = make(chan *registry.Published, c.cfg.MaxQueueMessages)
	delivery := c.delivery
	c.fanInSubscriptions(ctx, delivery)

	interval := c.cfg.HousekeepInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	suppressWill := false
	for {
		select {
		case <-ctx.Done():
			c.terminate(suppressWill)
			return
		case <-c.closeCh:
			// Displaced by a reconnect taking over this client id: no
			// will, and the active-registry entry already points at the
			// new connection so we must not remove it on exit.
			c.unsubscribeAll()
			c.persistOrDrop()
			return
		case frame := <-inbound:
			if frame.err != nil {
				c.log.Debug("read error, closing", zap.Error(frame.err))
				c.terminate(suppressWill)
				return
			}
			if c.cfg.HousekeepInterval >= 0 && c.session.KeepAlive != 0 {
				deadline := time.Duration(float64(c.session.KeepAlive)*1.5) * time.Second
				if time.Since(c.session.LastRead) > deadline {
					c.log.Debug("keep-alive timeout", zap.String("client_id", c.session.ClientID))
					c.terminate(suppressWill)
					return
				}
			}
			c.session.LastRead = time.Now()
			if disc, err := c.dispatch(frame.pkt); err != nil {
				c.log.Debug("protocol error, closing", zap.Error(err))
				c.terminate(suppressWill)
				return
			} else if disc {
				suppressWill = true
				c.terminate(suppressWill)
				return
			}
		case pub := <-delivery:
			c.forward(pub)
		case <-ticker.C:
			if c.session.KeepAlive != 0 {
				deadline := time.Duration(float64(c.session.KeepAlive)*1.5) * time.Second
				if time.Since(c.session.LastRead) > deadline {
					c.log.Debug("keep-alive timeout", zap.String("client_id", c.session.ClientID))
					c.terminate(suppressWill)
					return
				}
			}
			c.housekeep()
		}
	}
}

func (c *Connection) readLoop(out chan<- inboundFrame) {
	for {
		pkt, err := packet.Decode(c.stream)
		if err != nil {
			out <- inboundFrame{err: xerror.NewTransport(err)}
			return
		}
		out <- inboundFrame{pkt: pkt}
	}
}

func (c *Connection) send(p packet.Packet) error {
	return p.Encode(c.writer())
}

// writer returns the stream itself; factored out so tests can swap in a
// buffering wrapper without changing call sites.
func (c *Connection) writer() transport.Stream { return c.stream }
