/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package c2s

import (
	"fmt"
	"os"
	"time"
)

const (
	defaultPort           = 5222
	defaultConnectTimeout = 5
	defaultKeepAlive      = 120
	defaultMaxStanzaSize  = 32768
)

// Config represents C2S server configuration.
type Config struct {
	Domain         string
	BindAddress    string
	Port           int
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
	MaxStanzaSize  int
}

type configProxy struct {
	Domain         string `yaml:"domain"`
	BindAddress    string `yaml:"bind_addr"`
	Port           int    `yaml:"port"`
	ConnectTimeout int    `yaml:"connect_timeout"`
	KeepAlive      int    `yaml:"keep_alive"`
	MaxStanzaSize  int    `yaml:"max_stanza_size"`
}

// UnmarshalYAML satisfies Unmarshaler interface.
func (cfg *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	p := configProxy{}
	if err := unmarshal(&p); err != nil {
		return err
	}
	if p.Port < 0 || p.Port > 65535 {
		return fmt.Errorf("c2s.Config: invalid port: %d", p.Port)
	}
	cfg.Domain = p.Domain
	if len(cfg.Domain) == 0 {
		cfg.Domain, _ = os.Hostname()
	}
	cfg.BindAddress = p.BindAddress
	cfg.Port = p.Port
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	cfg.ConnectTimeout = time.Duration(p.ConnectTimeout) * time.Second
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout * time.Second
	}
	cfg.KeepAlive = time.Duration(p.KeepAlive) * time.Second
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = defaultKeepAlive * time.Second
	}
	cfg.MaxStanzaSize = p.MaxStanzaSize
	if cfg.MaxStanzaSize == 0 {
		cfg.MaxStanzaSize = defaultMaxStanzaSize
	}
	return nil
}
