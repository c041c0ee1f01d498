/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // SQL driver
	"github.com/wren-im/wren/log"
	"github.com/wren-im/wren/storage/repository"
)

// Config represents MySQL storage configuration.
type Config struct {
	Host     string `yaml:"host"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	PoolSize int    `yaml:"pool_size"`
}

type mySQLContainer struct {
	user *mySQLUser

	h      *sql.DB
	doneCh chan chan bool
}

// New initializes MySQL storage and returns associated container.
func New(cfg *Config) (repository.Container, error) {
	var err error
	c := &mySQLContainer{doneCh: make(chan chan bool, 1)}

	dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true", cfg.User, cfg.Password, cfg.Host, cfg.Database)
	c.h, err = sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	c.h.SetMaxOpenConns(cfg.PoolSize) // set max opened connection count

	if err := c.h.Ping(); err != nil {
		return nil, err
	}
	go c.loop()

	c.user = newUser(c.h)
	return c, nil
}

func (c *mySQLContainer) User() repository.User { return c.user }

func (c *mySQLContainer) Close(ctx context.Context) error {
	ch := make(chan bool)
	c.doneCh <- ch
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *mySQLContainer) loop() {
	tc := time.NewTicker(time.Second * 15)
	defer tc.Stop()

	for {
		select {
		case <-tc.C:
			if err := c.h.Ping(); err != nil {
				log.Error(err)
			}
		case ch := <-c.doneCh:
			if err := c.h.Close(); err != nil {
				log.Error(err)
			}
			close(ch)
			return
		}
	}
}
