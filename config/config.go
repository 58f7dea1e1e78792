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

// Package config loads and validates the broker's config.toml. A missing
// file is not an error: Load writes one out populated with defaults and
// continues with those defaults, mirroring the on-disk generation
// behavior of the logging/TLS setup it sits alongside.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

type Configuration interface {
	// Validate validates the configuration.
	// If it returns an error, the broker must not start.
	Validate() error
}

// Config is the root of config.toml.
type Config struct {
	Connection   Connection   `toml:"connection"`
	Users        Users        `toml:"users"`
	Logger       Logger       `toml:"logger"`
	Broker       Broker       `toml:"broker"`
	Tracing      Tracing      `toml:"tracing"`
	SessionStore SessionStore `toml:"session_store"`
}

type Connection struct {
	TLS           bool   `toml:"tls"`
	IP            string `toml:"ip" validate:"ip"`
	Port          uint16 `toml:"port"`
	Websocket     bool   `toml:"websocket"`
	WebsocketPort uint16 `toml:"websocket_port"`
	TLSPort       uint16 `toml:"tls_port"`
	DBConnection  string `toml:"db_connection"`
}

type Users struct {
	Authenticate bool `toml:"authenticate"`
}

type Logger struct {
	Console bool   `toml:"console"`
	File    bool   `toml:"file"`
	Level   string `toml:"level" validate:"oneof=off error warn info debug trace"`
}

type Broker struct {
	MaxQueueMessages           int           `toml:"max_queued_messages" validate:"gte=1"`
	DefaultQoS                 uint8         `toml:"default_qos" validate:"lte=2"`
	SessionExpiryCheckInterval time.Duration `toml:"session_expiry_check_interval"`
}

type Tracing struct {
	Enabled  bool   `toml:"enabled"`
	Exporter string `toml:"exporter" validate:"oneof=none jaeger zipkin"`
	Endpoint string `toml:"endpoint"`
}

type SessionStore struct {
	Backend   string `toml:"backend" validate:"oneof=memory redis"`
	RedisAddr string `toml:"redis_addr"`
}

// Default returns the configuration written out the first time the
// broker runs with no config.toml present.
func Default() *Config {
	return &Config{
		Connection: Connection{
			IP:            "0.0.0.0",
			Port:          1883,
			WebsocketPort: 8080,
			TLSPort:       8883,
			DBConnection:  "user.db",
		},
		Logger: Logger{
			Console: true,
			File:    true,
			Level:   "trace",
		},
		Broker: Broker{
			MaxQueueMessages:           128,
			DefaultQoS:                 2,
			SessionExpiryCheckInterval: 30 * time.Second,
		},
		Tracing: Tracing{
			Exporter: "none",
		},
		SessionStore: SessionStore{
			Backend:   "memory",
			RedisAddr: "127.0.0.1:6379",
		},
	}
}

// Validate checks every struct tag across the config tree.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// Load reads path, validates it, and returns the result. If path does not
// exist, it is created populated with Default() and the defaults are
// returned instead of failing startup.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := toml.NewEncoder(f).Encode(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
