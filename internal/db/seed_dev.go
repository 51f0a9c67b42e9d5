package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type SeedDevOptions struct {
	// KnownStations are commissioned and enabled in dev.
	KnownStations []string
}

// SeedDev creates a front desk station, a demo member and a demo
// non-expiring credential (token "A1B2C3") so a fresh dev database can be
// scanned against right away.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	now := time.Now().UTC().UnixMilli()

	stations := append([]string{"front-desk"}, opt.KnownStations...)
	if err := CommissionStations(ctx, db, stations); err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO subjects(subject_id, display_name, created_at_ms)
VALUES ('u-42', 'Demo Member', ?);`, now); err != nil {
		return fmt.Errorf("seed subjects: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO issued_credentials(
  credential_id, token, subject_id, category, status, issued_at_ms
) VALUES ('dev-cred-1', 'A1B2C3', 'u-42', 'free_gym', 'active', ?);`, now); err != nil {
		return fmt.Errorf("seed credentials: %w", err)
	}

	return nil
}
