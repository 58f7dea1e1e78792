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

// Command beaconmq starts the broker process: load config.toml, wire the
// shared registries, and run every configured listener until signaled to
// stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/yunqi/beaconmq/config"
	"github.com/yunqi/beaconmq/internal/goroutine"
	"github.com/yunqi/beaconmq/internal/listener"
	"github.com/yunqi/beaconmq/internal/persistence/session"
	"github.com/yunqi/beaconmq/internal/persistence/session/memory"
	"github.com/yunqi/beaconmq/internal/persistence/session/redisstore"
	"github.com/yunqi/beaconmq/internal/qos"
	"github.com/yunqi/beaconmq/internal/registry"
	"github.com/yunqi/beaconmq/internal/runtime"
	"github.com/yunqi/beaconmq/internal/xlog"
	"github.com/yunqi/beaconmq/internal/xtrace"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "beaconmq: load config:", err)
		os.Exit(1)
	}

	xlog.Init(xlog.Options{
		Console: cfg.Logger.Console,
		File:    cfg.Logger.File,
		Level:   xlog.Level(cfg.Logger.Level),
	})
	log := xlog.LoggerModule("main")

	if err := xtrace.Init(xtrace.Options{
		Enabled:  cfg.Tracing.Enabled,
		Exporter: xtrace.Exporter(cfg.Tracing.Exporter),
		Endpoint: cfg.Tracing.Endpoint,
	}); err != nil {
		log.Error("tracer init failed, continuing without tracing", zap.Error(err))
	}

	if err := goroutine.Init(0); err != nil {
		log.Error("goroutine pool init failed, falling back to raw goroutines", zap.Error(err))
	}

	store, err := sessionStore(cfg)
	if err != nil {
		log.Fatal("session store init failed", zap.Error(err))
	}

	reg := registry.New(cfg.Broker.MaxQueueMessages)
	active := runtime.NewActiveRegistry()

	broker := listener.Broker{
		Registry:     reg,
		SessionStore: store,
		Active:       active,
		Auth:         authenticator(cfg),
		ConnConfig: runtime.Config{
			RequireAuth:      cfg.Users.Authenticate,
			MaxQueueMessages: cfg.Broker.MaxQueueMessages,
			DefaultQoS:       qos.Level(cfg.Broker.DefaultQoS),
		},
	}

	lnCfg := listener.Config{
		TCPAddr:       fmt.Sprintf("%s:%d", cfg.Connection.IP, cfg.Connection.Port),
		SweepInterval: cfg.Broker.SessionExpiryCheckInterval,
	}
	if cfg.Connection.TLS {
		certFile, keyFile := "tls/cert.pem", "tls/key.pem"
		if _, err := os.Stat(certFile); err != nil {
			log.Error("tls enabled but cert.pem missing, TLS listener disabled", zap.String("path", certFile))
		} else {
			lnCfg.TLSAddr = fmt.Sprintf("%s:%d", cfg.Connection.IP, cfg.Connection.TLSPort)
			lnCfg.TLSCertFile = certFile
			lnCfg.TLSKeyFile = keyFile
		}
	}
	if cfg.Connection.Websocket {
		lnCfg.WebSocketAddr = fmt.Sprintf("%s:%d", cfg.Connection.IP, cfg.Connection.WebsocketPort)
		lnCfg.WebSocketPath = "/mqtt"
	}
	if cfg.Connection.TLS && cfg.Connection.Port == 8883 {
		log.Warn("plaintext port matches the conventional TLS port", zap.Uint16("port", cfg.Connection.Port))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("beaconmq starting",
		zap.String("tcp", lnCfg.TCPAddr),
		zap.String("tls", lnCfg.TLSAddr),
		zap.String("websocket", lnCfg.WebSocketAddr),
	)
	if err := listener.Run(ctx, lnCfg, broker); err != nil && ctx.Err() == nil {
		log.Fatal("listener.Run", zap.Error(err))
	}
	log.Info("beaconmq stopped")
}

// sessionStore builds the persistent-session backend named by
// config.toml's [session_store] block.
func sessionStore(cfg *config.Config) (session.Store, error) {
	switch cfg.SessionStore.Backend {
	case "redis":
		return redisstore.New(cfg.SessionStore.RedisAddr), nil
	case "memory", "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("beaconmq: unknown session_store.backend %q", cfg.SessionStore.Backend)
	}
}

// allowAllAuthenticator is the stand-in for the out-of-scope
// user-credential database: per SPEC_FULL.md §1 the core only ever
// consumes a boolean authenticate(username, password) -> Ok | Err
// collaborator. A real deployment wires this to the credential DB and
// admin CLI described there instead.
type allowAllAuthenticator struct{}

func (allowAllAuthenticator) Authenticate(user string, pass []byte) error {
	return nil
}

func authenticator(cfg *config.Config) runtime.Authenticator {
	if !cfg.Users.Authenticate {
		return nil
	}
	return allowAllAuthenticator{}
}
