package store

import (
	"context"
	"time"
)

// ScanEventRecord captures one admission decision for the audit log.  The
// raw scanned string is never stored, only its SHA-256.
type ScanEventRecord struct {
	StationID    string
	OperatorID   string
	TokenHash    []byte
	TokenShape   string
	SubjectID    string
	Category     string
	CredentialID string
	Granted      bool
	Reason       string
	ReceivedAt   time.Time
	ScannedAt    *time.Time // optional station-reported timestamp
	DecidedAt    time.Time
}

// ScanEventStore persists scan decisions as an append-only audit log.
type ScanEventStore interface {
	RecordEvent(ctx context.Context, rec ScanEventRecord) error
	// ListRecent returns the newest events for a station, newest first.
	ListRecent(ctx context.Context, stationID string, limit int) ([]ScanEventRecord, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
