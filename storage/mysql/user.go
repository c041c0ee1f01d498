/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package mysql

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/wren-im/wren/model"
)

var nowExpr = sq.Expr("NOW()")

type mySQLUser struct {
	db *sql.DB
}

func newUser(db *sql.DB) *mySQLUser {
	return &mySQLUser{db: db}
}

func (u *mySQLUser) UpsertUser(ctx context.Context, usr *model.User) error {
	q := sq.Insert("users").
		Columns("username", "password", "updated_at", "created_at").
		Values(usr.Username, usr.Password, nowExpr, nowExpr).
		Suffix("ON DUPLICATE KEY UPDATE password = ?, updated_at = NOW()", usr.Password)

	_, err := q.RunWith(u.db).ExecContext(ctx)
	return err
}

func (u *mySQLUser) FetchUser(ctx context.Context, username string) (*model.User, error) {
	q := sq.Select("username", "password").
		From("users").
		Where(sq.Eq{"username": username})

	var usr model.User
	err := q.RunWith(u.db).
		QueryRowContext(ctx).
		Scan(&usr.Username, &usr.Password)
	switch err {
	case nil:
		return &usr, nil
	case sql.ErrNoRows:
		return nil, nil
	default:
		return nil, err
	}
}

func (u *mySQLUser) DeleteUser(ctx context.Context, username string) error {
	_, err := sq.Delete("users").
		Where(sq.Eq{"username": username}).
		RunWith(u.db).ExecContext(ctx)
	return err
}

func (u *mySQLUser) UserExists(ctx context.Context, username string) (bool, error) {
	q := sq.Select("COUNT(*)").
		From("users").
		Where(sq.Eq{"username": username})

	var count int
	err := q.RunWith(u.db).QueryRowContext(ctx).Scan(&count)
	switch err {
	case nil:
		return count > 0, nil
	default:
		return false, err
	}
}
