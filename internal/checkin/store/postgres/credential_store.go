// Package postgres serves issued credentials and the subject directory from
// the gym's central PostgreSQL database, for deployments where issuance is
// owned by another system and check-in only reads (and claims) from it.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sio2000/gymUI-sub000/internal/checkin/store"
)

const credentialColumns = `credential_id, token, subject_id, category, status, expires_at, claimable, claimed_by, claimed_at, issued_at`

const schema = `
CREATE TABLE IF NOT EXISTS subjects (
  subject_id    TEXT PRIMARY KEY,
  display_name  TEXT NOT NULL,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS issued_credentials (
  credential_id  TEXT PRIMARY KEY,
  token          TEXT NOT NULL UNIQUE,
  subject_id     TEXT NOT NULL,
  category       TEXT NOT NULL,
  status         TEXT NOT NULL CHECK (status IN ('active', 'inactive')),
  expires_at     TIMESTAMPTZ,
  claimable      BOOLEAN NOT NULL DEFAULT FALSE,
  claimed_by     TEXT,
  claimed_at     TIMESTAMPTZ,
  issued_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_issued_credentials_subject_category
  ON issued_credentials (subject_id, lower(category), status);
`

// EnsureSchema creates the tables check-in reads if they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure postgres schema: %w", err)
	}
	return nil
}

// CredentialStore implements store.CredentialStore on PostgreSQL.
type CredentialStore struct {
	db *sql.DB
}

func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

func (s *CredentialStore) FindActiveByToken(ctx context.Context, token string) (*store.IssuedCredential, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+credentialColumns+" FROM issued_credentials WHERE token = $1 AND status = 'active'",
		token)
	return scanCredential(row)
}

// FindActiveByFields matches category case-insensitively and prefers the
// most recently issued credential.
func (s *CredentialStore) FindActiveByFields(ctx context.Context, subjectID, category string) (*store.IssuedCredential, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+credentialColumns+" FROM issued_credentials WHERE subject_id = $1 AND lower(category) = lower($2) AND status = 'active' ORDER BY issued_at DESC LIMIT 1",
		subjectID, category)
	return scanCredential(row)
}

func (s *CredentialStore) GetByID(ctx context.Context, credentialID string) (*store.IssuedCredential, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+credentialColumns+" FROM issued_credentials WHERE credential_id = $1",
		credentialID)
	return scanCredential(row)
}

func (s *CredentialStore) ClaimIfUnclaimed(ctx context.Context, credentialID, subjectID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE issued_credentials SET claimed_by = $1, claimed_at = $2 WHERE credential_id = $3 AND claimed_by IS NULL",
		subjectID, at.UTC(), credentialID)
	if err != nil {
		return false, fmt.Errorf("failed to claim credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim credential: %w", err)
	}
	return n == 1, nil
}

func scanCredential(row *sql.Row) (*store.IssuedCredential, error) {
	var (
		c         store.IssuedCredential
		status    string
		expiresAt sql.NullTime
		claimedBy sql.NullString
		claimedAt sql.NullTime
	)
	err := row.Scan(&c.ID, &c.Token, &c.SubjectID, &c.Category, &status, &expiresAt,
		&c.Claimable, &claimedBy, &claimedAt, &c.IssuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}

	c.Status = store.CredentialStatus(status)
	c.ClaimedBy = claimedBy.String
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		c.ExpiresAt = &t
	}
	if claimedAt.Valid {
		t := claimedAt.Time.UTC()
		c.ClaimedAt = &t
	}
	c.IssuedAt = c.IssuedAt.UTC()
	return &c, nil
}
