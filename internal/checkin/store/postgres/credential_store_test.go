package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sio2000/gymUI-sub000/internal/checkin/store"
)

var allColumns = []string{
	"credential_id", "token", "subject_id", "category", "status",
	"expires_at", "claimable", "claimed_by", "claimed_at", "issued_at",
}

func TestCredentialStore_FindActiveByToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cs := NewCredentialStore(db)
	ctx := context.Background()
	issued := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	expires := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(allColumns).
		AddRow("c1", "A1B2C3", "u-42", "free_gym", "active", expires, false, nil, nil, issued)
	mock.ExpectQuery(regexp.QuoteMeta("FROM issued_credentials WHERE token = $1 AND status = 'active'")).
		WithArgs("A1B2C3").
		WillReturnRows(rows)

	c, err := cs.FindActiveByToken(ctx, "A1B2C3")
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)
	assert.Equal(t, "u-42", c.SubjectID)
	assert.Equal(t, store.StatusActive, c.Status)
	require.NotNil(t, c.ExpiresAt)
	assert.True(t, c.ExpiresAt.Equal(expires))
	assert.Nil(t, c.ClaimedAt)
	assert.Empty(t, c.ClaimedBy)

	// Not found: empty result set.
	mock.ExpectQuery(regexp.QuoteMeta("FROM issued_credentials WHERE token = $1")).
		WithArgs("NOPE00").
		WillReturnRows(sqlmock.NewRows(allColumns))

	_, err = cs.FindActiveByToken(ctx, "NOPE00")
	assert.ErrorIs(t, err, store.ErrCredentialNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialStore_FindActiveByFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cs := NewCredentialStore(db)
	claimed := time.Date(2026, 1, 11, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(allColumns).
		AddRow("c2", "tok", "u-42", "Pilates", "active", nil, true, "u-42", claimed, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("WHERE subject_id = $1 AND lower(category) = lower($2) AND status = 'active' ORDER BY issued_at DESC LIMIT 1")).
		WithArgs("u-42", "pilates").
		WillReturnRows(rows)

	c, err := cs.FindActiveByFields(context.Background(), "u-42", "pilates")
	require.NoError(t, err)
	assert.Equal(t, "c2", c.ID)
	assert.Nil(t, c.ExpiresAt)
	assert.True(t, c.Claimable)
	assert.Equal(t, "u-42", c.ClaimedBy)
	require.NotNil(t, c.ClaimedAt)
	assert.True(t, c.ClaimedAt.Equal(claimed))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialStore_QueryErrorIsWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("connection reset")
	mock.ExpectQuery(regexp.QuoteMeta("FROM issued_credentials WHERE credential_id = $1")).
		WithArgs("c1").
		WillReturnError(boom)

	_, err = NewCredentialStore(db).GetByID(context.Background(), "c1")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, store.ErrCredentialNotFound)
}

func TestCredentialStore_ClaimIfUnclaimed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cs := NewCredentialStore(db)
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	claimSQL := regexp.QuoteMeta("UPDATE issued_credentials SET claimed_by = $1, claimed_at = $2 WHERE credential_id = $3 AND claimed_by IS NULL")

	mock.ExpectExec(claimSQL).
		WithArgs("u-1", at, "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(claimSQL).
		WithArgs("u-2", at, "c1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := cs.ClaimIfUnclaimed(context.Background(), "c1", "u-1", at)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = cs.ClaimIfUnclaimed(context.Background(), "c1", "u-2", at)
	require.NoError(t, err)
	assert.False(t, won)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectDirectory_DisplayName(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := NewSubjectDirectory(db)
	q := regexp.QuoteMeta("SELECT display_name FROM subjects WHERE subject_id = $1")

	mock.ExpectQuery(q).WithArgs("u-42").
		WillReturnRows(sqlmock.NewRows([]string{"display_name"}).AddRow("Demo Member"))
	mock.ExpectQuery(q).WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"display_name"}))

	name, err := dir.DisplayName(context.Background(), "u-42")
	require.NoError(t, err)
	assert.Equal(t, "Demo Member", name)

	_, err = dir.DisplayName(context.Background(), "nobody")
	assert.ErrorIs(t, err, store.ErrSubjectNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS subjects").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, EnsureSchema(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
