package service

import (
	"context"
	"strings"
	"time"

	"github.com/sio2000/gymUI-sub000/internal/checkin/store"
)

type StationRegistry struct {
	store        store.StationStore
	allowUnknown bool
}

// NewStationRegistry wraps a station store.  With allowUnknown set, any
// station may scan; it is still recorded as unknown.
func NewStationRegistry(st store.StationStore, allowUnknown bool) *StationRegistry {
	return &StationRegistry{store: st, allowUnknown: allowUnknown}
}

func (r *StationRegistry) IsKnown(ctx context.Context, stationID string) (bool, error) {
	stationID = strings.TrimSpace(stationID)
	if stationID == "" {
		return false, nil
	}
	return r.store.IsKnown(ctx, stationID)
}

// Admits reports whether a station with the given known-ness may scan.
func (r *StationRegistry) Admits(known bool) bool {
	return known || r.allowUnknown
}

func (r *StationRegistry) NoteSeen(ctx context.Context, stationID string, known bool) error {
	stationID = strings.TrimSpace(stationID)
	if stationID == "" {
		return nil
	}
	return r.store.MarkSeen(ctx, stationID, known, time.Now().UTC())
}
