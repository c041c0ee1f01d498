/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package storage

import (
	"fmt"

	"github.com/wren-im/wren/storage/memstorage"
	"github.com/wren-im/wren/storage/mysql"
	"github.com/wren-im/wren/storage/pgsql"
	"github.com/wren-im/wren/storage/repository"
)

// New initializes the repository container associated to a storage configuration.
func New(cfg *Config) (repository.Container, error) {
	switch cfg.Type {
	case Memory:
		return memstorage.New(), nil
	case MySQL:
		return mysql.New(cfg.MySQL)
	case PostgreSQL:
		return pgsql.New(cfg.PgSQL)
	default:
		return nil, fmt.Errorf("storage.New: unrecognized storage type: %d", cfg.Type)
	}
}
