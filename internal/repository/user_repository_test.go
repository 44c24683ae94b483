package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storelens/storelens/internal/domain"
)

func TestUserCreateAssignsID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "owner@shop.test", "hash").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	repo := NewPostgresUserRepository(db, nil)
	user := &domain.User{Email: "owner@shop.test", PasswordHash: "hash"}
	require.NoError(t, repo.Create(context.Background(), user))

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, now, user.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	repo := NewPostgresUserRepository(db, nil)
	err = repo.Create(context.Background(), &domain.User{Email: "owner@shop.test", PasswordHash: "hash"})

	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestUserGetByEmailNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs("ghost@shop.test").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at", "updated_at"}))

	repo := NewPostgresUserRepository(db, nil)
	_, err = repo.GetByEmail(context.Background(), "ghost@shop.test")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUserUpdatePasswordMissingUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE users").
		WithArgs("newhash", "u-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPostgresUserRepository(db, nil)
	err = repo.UpdatePassword(context.Background(), "u-1", "newhash")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}
