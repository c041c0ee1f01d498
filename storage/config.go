/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package storage

import (
	"errors"
	"fmt"

	"github.com/wren-im/wren/storage/mysql"
	"github.com/wren-im/wren/storage/pgsql"
)

const defaultSQLPoolSize = 16

// Type represents a repository storage type.
type Type int

const (
	// Memory represents an in-memory storage type.
	Memory Type = iota

	// MySQL represents a MySQL storage type.
	MySQL

	// PostgreSQL represents a PostgreSQL storage type.
	PostgreSQL
)

// String returns Type string representation.
func (t Type) String() string {
	switch t {
	case Memory:
		return "memory"
	case MySQL:
		return "mysql"
	case PostgreSQL:
		return "pgsql"
	}
	return ""
}

// Config represents a storage manager configuration.
type Config struct {
	Type  Type
	MySQL *mysql.Config
	PgSQL *pgsql.Config
}

type storageProxyType struct {
	Type  string        `yaml:"type"`
	MySQL *mysql.Config `yaml:"mysql"`
	PgSQL *pgsql.Config `yaml:"pgsql"`
}

// UnmarshalYAML satisfies Unmarshaler interface.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	p := storageProxyType{}
	if err := unmarshal(&p); err != nil {
		return err
	}
	switch p.Type {
	case "mysql":
		if p.MySQL == nil {
			return errors.New("storage.Config: couldn't read MySQL configuration")
		}
		c.Type = MySQL

		c.MySQL = p.MySQL
		if c.MySQL.PoolSize == 0 {
			c.MySQL.PoolSize = defaultSQLPoolSize
		}

	case "pgsql":
		if p.PgSQL == nil {
			return errors.New("storage.Config: couldn't read PostgreSQL configuration")
		}
		c.Type = PostgreSQL

		c.PgSQL = p.PgSQL
		if c.PgSQL.PoolSize == 0 {
			c.PgSQL.PoolSize = defaultSQLPoolSize
		}
		if len(c.PgSQL.SSLMode) == 0 {
			c.PgSQL.SSLMode = "disable"
		}

	case "memory", "":
		c.Type = Memory

	default:
		return fmt.Errorf("storage.Config: unrecognized storage type: %s", p.Type)
	}
	return nil
}
