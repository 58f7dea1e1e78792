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

// Package listener binds the broker's configured TCP/TLS/WebSocket
// listeners and runs their accept loops concurrently, dispatching each
// accepted Stream to the connection runtime through the goroutine pool.
//
// Grounded on internal/server/server.go's ServeTCP: the same
// temporary-error backoff loop (5ms doubling to a 1s ceiling) and the
// same goroutine.Go(func(){ c.listen() }) dispatch pattern, generalized
// from a single TCP accept loop to N concurrent ones joined by
// golang.org/x/sync/errgroup so one listener's fatal failure cancels the
// others (§11.3).
package listener

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yunqi/beaconmq/internal/goroutine"
	"github.com/yunqi/beaconmq/internal/persistence/session"
	"github.com/yunqi/beaconmq/internal/registry"
	"github.com/yunqi/beaconmq/internal/runtime"
	"github.com/yunqi/beaconmq/internal/transport"
	"github.com/yunqi/beaconmq/internal/xlog"
)

// Config bundles the addresses/paths to bind. A zero-value field for a
// given transport leaves that transport disabled.
type Config struct {
	TCPAddr string

	TLSAddr     string
	TLSCertFile string
	TLSKeyFile  string

	WebSocketAddr string
	WebSocketPath string

	// SweepInterval governs how often the disconnected-session registry
	// is swept for expired entries while listeners are idle between
	// accepts; each accept loop also sweeps opportunistically before
	// blocking on its next Accept.
	SweepInterval time.Duration
}

// Broker is the set of shared broker-wide components a freshly accepted
// connection is wired against.
type Broker struct {
	Registry     *registry.Registry
	SessionStore session.Store
	Active       *runtime.ActiveRegistry
	Auth         runtime.Authenticator
	ConnConfig   runtime.Config
}

var log = xlog.LoggerModule("listener")

// Run binds every transport named in cfg and serves until ctx is
// canceled or one listener fails fatally, at which point the others are
// stopped and the first error is returned.
func Run(ctx context.Context, cfg Config, broker Broker) error {
	var listeners []transport.Listener

	if cfg.TCPAddr != "" {
		ln, err := transport.ListenTCP(cfg.TCPAddr)
		if err != nil {
			return err
		}
		log.Info("tcp listening", zapString("addr", cfg.TCPAddr))
		listeners = append(listeners, ln)
	}
	if cfg.TLSAddr != "" {
		ln, err := transport.ListenTLS(cfg.TLSAddr, cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return err
		}
		log.Info("tls listening", zapString("addr", cfg.TLSAddr))
		listeners = append(listeners, ln)
	}
	if cfg.WebSocketAddr != "" {
		ln, err := transport.ListenWebSocket(cfg.WebSocketAddr, cfg.WebSocketPath)
		if err != nil {
			return err
		}
		log.Info("websocket listening", zapString("addr", cfg.WebSocketAddr))
		listeners = append(listeners, ln)
	}

	group, gctx := errgroup.WithContext(ctx)
	for _, ln := range listeners {
		ln := ln
		group.Go(func() error {
			return serve(gctx, ln, broker)
		})
	}

	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Second
	}
	group.Go(func() error {
		sweepLoop(gctx, broker.SessionStore, sweepInterval)
		return nil
	})

	<-gctx.Done()
	for _, ln := range listeners {
		_ = ln.Close()
	}
	return group.Wait()
}

// serve runs one listener's accept loop: sweep expired sessions, accept,
// dispatch to the goroutine pool, repeat. Temporary accept errors back
// off exponentially from 5ms to a 1s ceiling rather than busy-looping or
// failing the whole listener, mirroring the teacher's ServeTCP.
func serve(ctx context.Context, ln transport.Listener, broker Broker) error {
	defer ln.Close()

	var tempDelay time.Duration
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if _, err := broker.SessionStore.SweepExpired(); err != nil {
			log.Warn("sweep expired sessions", zapString("error", err.Error()))
		}

		stream, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := time.Second; tempDelay > max {
					tempDelay = max
				}
				time.Sleep(tempDelay)
				continue
			}
			return err
		}
		tempDelay = 0

		conn := runtime.NewConnection(stream, broker.Registry, broker.SessionStore, broker.Active, broker.Auth, broker.ConnConfig)
		goroutine.Go(func() {
			conn.Run(ctx)
		})
	}
}

func sweepLoop(ctx context.Context, store session.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := store.SweepExpired(); err != nil {
				log.Warn("sweep expired sessions", zapString("error", err.Error()))
			}
		}
	}
}
