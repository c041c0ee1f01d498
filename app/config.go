/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package app

import (
	"bytes"
	"io/ioutil"

	"gopkg.in/yaml.v2"

	"github.com/wren-im/wren/auth"
	"github.com/wren-im/wren/c2s"
	"github.com/wren-im/wren/log"
	"github.com/wren-im/wren/module"
	"github.com/wren-im/wren/storage"
)

// Config represents a global configuration.
type Config struct {
	PIDFile string         `yaml:"pid_path"`
	Logger  log.Config     `yaml:"logger"`
	Storage storage.Config `yaml:"storage"`
	Auth    auth.Config    `yaml:"auth"`
	Modules module.Config  `yaml:"modules"`
	C2S     c2s.Config     `yaml:"c2s"`
}

// FromFile loads default global configuration from
// a specified file.
func (cfg *Config) FromFile(configFile string) error {
	b, err := ioutil.ReadFile(configFile)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, cfg)
}

// FromBuffer loads default global configuration from
// a specified byte buffer.
func (cfg *Config) FromBuffer(buf *bytes.Buffer) error {
	return yaml.Unmarshal(buf.Bytes(), cfg)
}
