package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CommissionStations enables the given stations, creating rows as needed.
// A station revoked earlier stays revoked.
func CommissionStations(ctx context.Context, db *sql.DB, stationIDs []string) error {
	now := time.Now().UTC().UnixMilli()

	for _, sid := range stationIDs {
		sid = strings.TrimSpace(sid)
		if sid == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, `
INSERT INTO stations(
  station_id, display_name, enabled, commissioned_at_ms, created_at_ms, updated_at_ms
) VALUES (?, ?, 1, ?, ?, ?)
ON CONFLICT(station_id) DO UPDATE SET
  enabled = 1,
  commissioned_at_ms = COALESCE(stations.commissioned_at_ms, excluded.commissioned_at_ms),
  updated_at_ms = excluded.updated_at_ms;
`, sid, sid, now, now, now); err != nil {
			return fmt.Errorf("commission station %s: %w", sid, err)
		}
	}
	return nil
}
