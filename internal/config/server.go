package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type ServerConfig struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	PostgresDSN string `env:"POSTGRES_DSN"`

	HeartbeatIntervalMS int `env:"HEARTBEAT_INTERVAL_MS" envDefault:"500"`
	HeartbeatTimeoutMS  int `env:"HEARTBEAT_TIMEOUT_MS" envDefault:"4000"`
	ReconnectGraceSecs  int `env:"RECONNECT_GRACE_SECONDS" envDefault:"30"`
	DefaultCapacity     int `env:"DEFAULT_CAPACITY" envDefault:"4"`
	ListenerSendBuffer  int `env:"LISTENER_SEND_BUFFER" envDefault:"32"`
	EventBufferCapacity int `env:"EVENT_BUFFER_CAPACITY" envDefault:"500"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}

func (c ServerConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMS) * time.Millisecond
}

func (c ServerConfig) HeartbeatTimeout() time.Duration {
	return time.Duration(c.HeartbeatTimeoutMS) * time.Millisecond
}

func (c ServerConfig) ReconnectGrace() time.Duration {
	return time.Duration(c.ReconnectGraceSecs) * time.Second
}
