/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package pgsql

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/wren-im/wren/model"
)

var errMocked = errors.New("pgsql: storage error")

func newUserMock() (*pgSQLUser, sqlmock.Sqlmock) {
	db, mock, _ := sqlmock.New()
	return newUser(db), mock
}

func TestPgSQLUpsertUser(t *testing.T) {
	user := model.User{Username: "ortuman", Password: "1234"}

	s, mock := newUserMock()
	mock.ExpectExec("INSERT INTO users (.+) ON CONFLICT (.+) DO UPDATE SET (.+)").
		WithArgs("ortuman", "1234").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.UpsertUser(context.Background(), &user)
	require.Nil(t, mock.ExpectationsWereMet())
	require.Nil(t, err)
}

func TestPgSQLFetchUser(t *testing.T) {
	var userColumns = []string{"username", "password"}

	s, mock := newUserMock()
	mock.ExpectQuery("SELECT (.+) FROM users (.+)").
		WithArgs("ortuman").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow("ortuman", "1234"))

	usr, err := s.FetchUser(context.Background(), "ortuman")
	require.Nil(t, mock.ExpectationsWereMet())
	require.Nil(t, err)
	require.NotNil(t, usr)
	require.Equal(t, "ortuman", usr.Username)

	s, mock = newUserMock()
	mock.ExpectQuery("SELECT (.+) FROM users (.+)").
		WithArgs("romeo").
		WillReturnRows(sqlmock.NewRows(userColumns))

	usr, err = s.FetchUser(context.Background(), "romeo")
	require.Nil(t, mock.ExpectationsWereMet())
	require.Nil(t, err)
	require.Nil(t, usr)
}

func TestPgSQLDeleteUser(t *testing.T) {
	s, mock := newUserMock()
	mock.ExpectExec("DELETE FROM users (.+)").
		WithArgs("ortuman").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.DeleteUser(context.Background(), "ortuman")
	require.Nil(t, mock.ExpectationsWereMet())
	require.Nil(t, err)
}

func TestPgSQLUserExists(t *testing.T) {
	countCols := []string{"count"}

	s, mock := newUserMock()
	mock.ExpectQuery("SELECT COUNT(.+) FROM users (.+)").
		WithArgs("ortuman").
		WillReturnRows(sqlmock.NewRows(countCols).AddRow(0))

	ok, err := s.UserExists(context.Background(), "ortuman")
	require.Nil(t, mock.ExpectationsWereMet())
	require.Nil(t, err)
	require.False(t, ok)

	s, mock = newUserMock()
	mock.ExpectQuery("SELECT COUNT(.+) FROM users (.+)").
		WithArgs("ortuman").
		WillReturnError(errMocked)

	_, err = s.UserExists(context.Background(), "ortuman")
	require.Nil(t, mock.ExpectationsWereMet())
	require.Equal(t, errMocked, err)
}
