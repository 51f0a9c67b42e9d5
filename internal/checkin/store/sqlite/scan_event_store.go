package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sio2000/gymUI-sub000/internal/checkin/store"
	dbpkg "github.com/sio2000/gymUI-sub000/internal/db"
)

type ScanEventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewScanEventStore(db *sql.DB, writer *dbpkg.Worker) *ScanEventStore {
	return &ScanEventStore{db: db, writer: writer}
}

func (s *ScanEventStore) RecordEvent(ctx context.Context, rec store.ScanEventRecord) error {
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	if rec.DecidedAt.IsZero() {
		rec.DecidedAt = time.Now().UTC()
	}

	var tokenHash any
	if len(rec.TokenHash) == 32 {
		tokenHash = rec.TokenHash
	}
	var granted int
	if rec.Granted {
		granted = 1
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureStation(ctx, tx, rec.StationID, rec.ReceivedAt.UTC().UnixMilli()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO scan_events(
  station_id, operator_id, token_hash, token_shape, subject_id, category,
  credential_id, granted, reason, received_at_ms, scanned_at_ms, decided_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.StationID, nullString(rec.OperatorID), tokenHash, rec.TokenShape,
			nullString(rec.SubjectID), nullString(rec.Category), nullString(rec.CredentialID),
			granted, nullString(rec.Reason),
			rec.ReceivedAt.UTC().UnixMilli(), msOrNil(rec.ScannedAt), rec.DecidedAt.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("RecordEvent insert: %w", err)
		}
		return nil
	})
}

func (s *ScanEventStore) ListRecent(ctx context.Context, stationID string, limit int) ([]store.ScanEventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT station_id, operator_id, token_hash, token_shape, subject_id, category,
       credential_id, granted, reason, received_at_ms, scanned_at_ms, decided_at_ms
FROM scan_events
WHERE station_id = ?
ORDER BY decided_at_ms DESC, event_id DESC
LIMIT ?;
`, stationID, limit)
	if err != nil {
		return nil, fmt.Errorf("ListRecent query: %w", err)
	}
	defer rows.Close()

	var out []store.ScanEventRecord
	for rows.Next() {
		var (
			rec                                 store.ScanEventRecord
			operator, subject, category, credID sql.NullString
			reason                              sql.NullString
			granted                             int
			receivedMs, decidedMs               int64
			scannedMs                           sql.NullInt64
		)
		if err := rows.Scan(
			&rec.StationID, &operator, &rec.TokenHash, &rec.TokenShape, &subject, &category,
			&credID, &granted, &reason, &receivedMs, &scannedMs, &decidedMs,
		); err != nil {
			return nil, fmt.Errorf("ListRecent scan: %w", err)
		}
		rec.OperatorID = operator.String
		rec.SubjectID = subject.String
		rec.Category = category.String
		rec.CredentialID = credID.String
		rec.Reason = reason.String
		rec.Granted = granted == 1
		rec.ReceivedAt = time.UnixMilli(receivedMs).UTC()
		rec.ScannedAt = timeOrNil(scannedMs)
		rec.DecidedAt = time.UnixMilli(decidedMs).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListRecent rows: %w", err)
	}
	return out, nil
}

func (s *ScanEventStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM scan_events WHERE decided_at_ms < ?;`, cutoff.UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("PruneOlderThan delete: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
