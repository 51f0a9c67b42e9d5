package service

import (
	"context"
	"crypto/sha256"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sio2000/gymUI-sub000/internal/checkin/store"
	"github.com/sio2000/gymUI-sub000/internal/checkin/token"
	"github.com/sio2000/gymUI-sub000/internal/checkin/types"
)

var (
	ErrInvalidStationID = errors.New("station_id is required")
	ErrUnknownStation   = errors.New("station is not registered")
)

const (
	defaultAuditTimeout = 2 * time.Second
	maxRecentScans      = 200
)

// CheckinService runs one scan through classification, validation and
// audit.  Scans from the same station are serialized: a station has at most
// one scan in flight.
type CheckinService struct {
	registry     *StationRegistry
	interpreter  *token.Interpreter
	validator    *AdmissionValidator
	eventStore   store.ScanEventStore
	logger       *zap.Logger
	auditTimeout time.Duration
	now          func() time.Time

	mu    sync.Mutex
	slots map[string]chan struct{}
}

type CheckinDeps struct {
	Registry    *StationRegistry
	Interpreter *token.Interpreter
	Validator   *AdmissionValidator
	EventStore  store.ScanEventStore
	Logger      *zap.Logger

	// AuditTimeout bounds each audit write.  Defaults to 2s.
	AuditTimeout time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

func NewCheckinService(d CheckinDeps) *CheckinService {
	s := &CheckinService{
		registry:     d.Registry,
		interpreter:  d.Interpreter,
		validator:    d.Validator,
		eventStore:   d.EventStore,
		logger:       d.Logger,
		auditTimeout: d.AuditTimeout,
		now:          d.Now,
		slots:        make(map[string]chan struct{}),
	}
	if s.interpreter == nil {
		s.interpreter = token.NewInterpreter(token.LegacyByFields)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.auditTimeout <= 0 {
		s.auditTimeout = defaultAuditTimeout
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Scan decides one scanned candidate.  A denial is a normal response, not
// an error; errors are reserved for malformed requests, unknown stations
// and cancellation while waiting for the station's previous scan.
func (s *CheckinService) Scan(ctx context.Context, req types.ScanRequest, operatorID string) (types.ScanResponse, error) {
	stationID := strings.TrimSpace(req.StationID)
	if stationID == "" {
		return types.ScanResponse{}, ErrInvalidStationID
	}

	known, err := s.registry.IsKnown(ctx, stationID)
	if err != nil {
		return types.ScanResponse{}, err
	}
	_ = s.registry.NoteSeen(ctx, stationID, known)

	if !s.registry.Admits(known) {
		return types.ScanResponse{
			OK:         false,
			Known:      false,
			Outcome:    string(types.OutcomeDeny),
			Reason:     "unknown_station",
			StationID:  stationID,
			ServerTime: s.now().Format(time.RFC3339Nano),
		}, ErrUnknownStation
	}

	release, err := s.acquire(ctx, stationID)
	if err != nil {
		return types.ScanResponse{}, err
	}
	defer release()

	receivedAt := s.now()
	parsed := s.interpreter.Classify(req.Raw)

	var d types.Decision
	if parsed.Recognized() {
		d = s.validator.Validate(ctx, parsed, receivedAt, strings.TrimSpace(req.ClaimantID))
	} else {
		d = types.Deny(types.ReasonUnparseable, receivedAt)
	}

	s.recordEvent(ctx, stationID, operatorID, req, parsed, d, receivedAt)
	s.logDecision(stationID, operatorID, parsed, d)

	return types.ScanResponse{
		OK:          true,
		Known:       known,
		Outcome:     string(d.Outcome),
		Reason:      string(d.Reason),
		Shape:       string(parsed.Shape),
		SubjectID:   d.SubjectID,
		DisplayName: d.DisplayName,
		Category:    d.Category,
		StationID:   stationID,
		ServerTime:  d.DecidedAt.Format(time.RFC3339Nano),
	}, nil
}

// RecentScans lists the newest audited scans for a station.
func (s *CheckinService) RecentScans(ctx context.Context, stationID string, limit int) ([]types.ScanEvent, error) {
	stationID = strings.TrimSpace(stationID)
	if stationID == "" {
		return nil, ErrInvalidStationID
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > maxRecentScans {
		limit = maxRecentScans
	}

	recs, err := s.eventStore.ListRecent(ctx, stationID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.ScanEvent, 0, len(recs))
	for _, r := range recs {
		ev := types.ScanEvent{
			StationID:  r.StationID,
			OperatorID: r.OperatorID,
			Shape:      r.TokenShape,
			Outcome:    string(types.OutcomeDeny),
			Reason:     r.Reason,
			SubjectID:  r.SubjectID,
			Category:   r.Category,
			DecidedAt:  r.DecidedAt.UTC().Format(time.RFC3339Nano),
		}
		if r.Granted {
			ev.Outcome = string(types.OutcomeGrant)
		}
		out = append(out, ev)
	}
	return out, nil
}

// acquire takes the station's single scan slot, giving up if ctx ends first.
func (s *CheckinService) acquire(ctx context.Context, stationID string) (func(), error) {
	s.mu.Lock()
	slot, ok := s.slots[stationID]
	if !ok {
		slot = make(chan struct{}, 1)
		s.slots[stationID] = slot
	}
	s.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// recordEvent offers the decision to the audit log.  Errors are logged and
// swallowed: a failed audit write never blocks or reverses an admission.
// The write runs on a context detached from the caller so an operator who
// gives up on the response does not lose the audit row.
func (s *CheckinService) recordEvent(
	ctx context.Context,
	stationID, operatorID string,
	req types.ScanRequest,
	parsed token.Parsed,
	d types.Decision,
	receivedAt time.Time,
) {
	if s.eventStore == nil {
		return
	}

	sum := sha256.Sum256([]byte(req.Raw))
	rec := store.ScanEventRecord{
		StationID:    stationID,
		OperatorID:   operatorID,
		TokenHash:    sum[:],
		TokenShape:   string(parsed.Shape),
		SubjectID:    d.SubjectID,
		Category:     d.Category,
		CredentialID: d.CredentialID,
		Granted:      d.Granted(),
		Reason:       string(d.Reason),
		ReceivedAt:   receivedAt,
		ScannedAt:    parseOptionalTimestamp(req.ScannedAt),
		DecidedAt:    d.DecidedAt,
	}

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.auditTimeout)
	defer cancel()

	if err := s.eventStore.RecordEvent(auditCtx, rec); err != nil {
		s.logger.Warn("scan audit write failed",
			zap.String("station_id", stationID),
			zap.Error(err),
		)
	}
}

func (s *CheckinService) logDecision(stationID, operatorID string, parsed token.Parsed, d types.Decision) {
	fields := []zap.Field{
		zap.String("station_id", stationID),
		zap.String("shape", string(parsed.Shape)),
		zap.String("outcome", string(d.Outcome)),
	}
	if operatorID != "" {
		fields = append(fields, zap.String("operator_id", operatorID))
	}
	if d.Reason != types.ReasonNone {
		fields = append(fields, zap.String("reason", string(d.Reason)))
	}
	if d.SubjectID != "" {
		fields = append(fields, zap.String("subject_id", d.SubjectID))
	}
	if d.Category != "" {
		fields = append(fields, zap.String("category", d.Category))
	}
	if d.Claimed {
		fields = append(fields, zap.Bool("claimed", true))
	}
	s.logger.Info("scan decided", fields...)
}

// parseOptionalTimestamp attempts to parse a station-reported timestamp.
// Returns nil if the string is empty or unparseable.
func parseOptionalTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		u := t.UTC()
		return &u
	}
	return nil
}
