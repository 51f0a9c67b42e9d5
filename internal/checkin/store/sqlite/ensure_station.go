package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// ensureStation guarantees a stations row exists for the given stationID so
// that foreign-key constraints from scan_events are satisfied.
//
// New rows start disabled and uncommissioned; only an admin action (or the
// dev seeder) should enable a station.
//
// Must be called inside an existing transaction.
func ensureStation(ctx context.Context, tx *sql.Tx, stationID string, nowMs int64) error {
	if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO stations(
  station_id, enabled, created_at_ms, updated_at_ms
) VALUES (?, 0, ?, ?);
`, stationID, nowMs, nowMs); err != nil {
		return fmt.Errorf("ensureStation %s: %w", stationID, err)
	}
	return nil
}
