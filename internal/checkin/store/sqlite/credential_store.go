package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sio2000/gymUI-sub000/internal/checkin/store"
	dbpkg "github.com/sio2000/gymUI-sub000/internal/db"
)

// CredentialStore is the SQLite issuance store used in dev and by
// single-site deployments that manage credentials locally.
type CredentialStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewCredentialStore(db *sql.DB, writer *dbpkg.Worker) *CredentialStore {
	return &CredentialStore{db: db, writer: writer}
}

const credentialColumns = `
  credential_id, token, subject_id, category, status, expires_at_ms,
  claimable, claimed_by, claimed_at_ms, issued_at_ms`

func (s *CredentialStore) FindActiveByToken(ctx context.Context, token string) (*store.IssuedCredential, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT`+credentialColumns+`
FROM issued_credentials
WHERE token = ? AND status = 'active';
`, token)
	c, err := scanCredential(row)
	if err != nil {
		return nil, fmt.Errorf("FindActiveByToken: %w", err)
	}
	return c, nil
}

func (s *CredentialStore) FindActiveByFields(ctx context.Context, subjectID, category string) (*store.IssuedCredential, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT`+credentialColumns+`
FROM issued_credentials
WHERE subject_id = ? AND category = ? COLLATE NOCASE AND status = 'active'
ORDER BY issued_at_ms DESC
LIMIT 1;
`, subjectID, category)
	c, err := scanCredential(row)
	if err != nil {
		return nil, fmt.Errorf("FindActiveByFields: %w", err)
	}
	return c, nil
}

func (s *CredentialStore) GetByID(ctx context.Context, credentialID string) (*store.IssuedCredential, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT`+credentialColumns+`
FROM issued_credentials
WHERE credential_id = ?;
`, credentialID)
	c, err := scanCredential(row)
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return c, nil
}

// ClaimIfUnclaimed is a single conditional UPDATE, so two racing scans
// cannot both observe a successful claim.
func (s *CredentialStore) ClaimIfUnclaimed(ctx context.Context, credentialID, subjectID string, at time.Time) (bool, error) {
	var won bool
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE issued_credentials
SET claimed_by = ?, claimed_at_ms = ?
WHERE credential_id = ? AND claimed_by IS NULL;
`, subjectID, at.UTC().UnixMilli(), credentialID)
		if err != nil {
			return fmt.Errorf("ClaimIfUnclaimed update: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("ClaimIfUnclaimed rows: %w", err)
		}
		won = n == 1
		return nil
	})
	return won, err
}

// Issue inserts a credential.  Empty ID gets a UUID, empty status is
// active and a zero IssuedAt is now.
func (s *CredentialStore) Issue(ctx context.Context, c store.IssuedCredential) (store.IssuedCredential, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = store.StatusActive
	}
	if c.IssuedAt.IsZero() {
		c.IssuedAt = time.Now().UTC()
	}

	var claimedBy any
	if c.ClaimedBy != "" {
		claimedBy = c.ClaimedBy
	}
	claimable := 0
	if c.Claimable {
		claimable = 1
	}

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO issued_credentials(`+credentialColumns+`
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			c.ID, c.Token, c.SubjectID, c.Category, string(c.Status), msOrNil(c.ExpiresAt),
			claimable, claimedBy, msOrNil(c.ClaimedAt), c.IssuedAt.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("Issue insert: %w", err)
		}
		return nil
	})
	return c, err
}

// Revoke marks a credential inactive.
func (s *CredentialStore) Revoke(ctx context.Context, credentialID string) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE issued_credentials SET status = 'inactive' WHERE credential_id = ?;`, credentialID)
		if err != nil {
			return fmt.Errorf("Revoke update: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrCredentialNotFound
		}
		return nil
	})
}

func scanCredential(row *sql.Row) (*store.IssuedCredential, error) {
	var (
		c                  store.IssuedCredential
		status             string
		expiresMs, claimMs sql.NullInt64
		claimable          int
		claimedBy          sql.NullString
		issuedMs           int64
	)
	err := row.Scan(
		&c.ID, &c.Token, &c.SubjectID, &c.Category, &status, &expiresMs,
		&claimable, &claimedBy, &claimMs, &issuedMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}

	c.Status = store.CredentialStatus(status)
	c.ExpiresAt = timeOrNil(expiresMs)
	c.Claimable = claimable == 1
	c.ClaimedBy = claimedBy.String
	c.ClaimedAt = timeOrNil(claimMs)
	c.IssuedAt = time.UnixMilli(issuedMs).UTC()
	return &c, nil
}

func msOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().UnixMilli()
}

func timeOrNil(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := time.UnixMilli(ms.Int64).UTC()
	return &t
}
