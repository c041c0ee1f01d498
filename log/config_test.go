/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package log

import (
	"testing"

	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v2"
)

func TestConfig(t *testing.T) {
	cfg := Config{}

	err := yaml.Unmarshal([]byte("{level: debug, log_path: wren.log}"), &cfg)
	require.Nil(t, err)
	require.Equal(t, DebugLevel, cfg.Level)
	require.Equal(t, "wren.log", cfg.LogPath)

	err = yaml.Unmarshal([]byte("{}"), &cfg)
	require.Nil(t, err)
	require.Equal(t, InfoLevel, cfg.Level)

	err = yaml.Unmarshal([]byte("{level: verbose}"), &cfg)
	require.NotNil(t, err)
}
