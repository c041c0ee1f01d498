/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package pgsql

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/wren-im/wren/model"
)

type pgSQLUser struct {
	db *sql.DB
}

func newUser(db *sql.DB) *pgSQLUser {
	return &pgSQLUser{db: db}
}

func (u *pgSQLUser) UpsertUser(ctx context.Context, usr *model.User) error {
	q := sb.Insert("users").
		Columns("username", "password", "updated_at", "created_at").
		Values(usr.Username, usr.Password, sq.Expr("NOW()"), sq.Expr("NOW()")).
		Suffix("ON CONFLICT (username) DO UPDATE SET password = $2, updated_at = NOW()")

	_, err := q.RunWith(u.db).ExecContext(ctx)
	return err
}

func (u *pgSQLUser) FetchUser(ctx context.Context, username string) (*model.User, error) {
	q := sb.Select("username", "password").
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

func (u *pgSQLUser) DeleteUser(ctx context.Context, username string) error {
	_, err := sb.Delete("users").
		Where(sq.Eq{"username": username}).
		RunWith(u.db).ExecContext(ctx)
	return err
}

func (u *pgSQLUser) UserExists(ctx context.Context, username string) (bool, error) {
	q := sb.Select("COUNT(*)").
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
