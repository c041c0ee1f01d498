/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package offline

import "fmt"

const httpGatewayType = "http"

// Config represents offline gateway configuration.
type Config struct {
	Gateway Gateway
}

type configProxy struct {
	Gateway *struct {
		Type string `yaml:"type"`
		URL  string `yaml:"url"`
		Pass string `yaml:"pass"`
	} `yaml:"gateway"`
}

// UnmarshalYAML satisfies Unmarshaler interface.
func (cfg *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	p := configProxy{}
	if err := unmarshal(&p); err != nil {
		return err
	}
	if p.Gateway != nil {
		switch p.Gateway.Type {
		case httpGatewayType:
			cfg.Gateway = newHTTPGateway(p.Gateway.URL, p.Gateway.Pass)
		default:
			return fmt.Errorf("offline.Config: unrecognized gateway type: %s", p.Gateway.Type)
		}
	}
	return nil
}
