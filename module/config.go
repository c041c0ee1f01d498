/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package module

import (
	"github.com/wren-im/wren/module/offline"
)

// Config represents modules configuration.
type Config struct {
	Offline offline.Config `yaml:"mod_offline"`
}
