package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sio2000/gymUI-sub000/internal/checkin/store"
	"github.com/sio2000/gymUI-sub000/internal/checkin/token"
	"github.com/sio2000/gymUI-sub000/internal/checkin/types"
)

const (
	DefaultLookupTimeout = 3 * time.Second

	// UnknownDisplayName is shown when the directory cannot name a subject.
	UnknownDisplayName = "Unknown member"
)

// AdmissionValidator turns a parsed token into an admission decision.  It
// consults the issuance store once per scan and never caches validity:
// expiry and revocation are re-checked every time.
type AdmissionValidator struct {
	credentials   store.CredentialStore
	directory     store.SubjectDirectory
	lookupTimeout time.Duration
	logger        *zap.Logger
}

type ValidatorConfig struct {
	// LookupTimeout bounds every store call.  Defaults to DefaultLookupTimeout.
	LookupTimeout time.Duration
}

func NewAdmissionValidator(cs store.CredentialStore, dir store.SubjectDirectory, cfg ValidatorConfig, logger *zap.Logger) *AdmissionValidator {
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdmissionValidator{
		credentials:   cs,
		directory:     dir,
		lookupTimeout: cfg.LookupTimeout,
		logger:        logger,
	}
}

// Validate never returns an error.  Store failures and timeouts become
// deny(lookup-failed); the underlying error is only logged.
//
// claimantID is the subject a claimable, unclaimed credential is bound to.
// An empty claimantID skips the claim step.
func (v *AdmissionValidator) Validate(ctx context.Context, parsed token.Parsed, now time.Time, claimantID string) types.Decision {
	if !parsed.Recognized() {
		return types.Deny(types.ReasonUnparseable, now)
	}

	cred, err := v.lookup(ctx, parsed)
	switch {
	case errors.Is(err, store.ErrCredentialNotFound):
		if parsed.Mode == token.LookupExternalTolerant {
			return types.Decision{
				Outcome:   types.OutcomeGrant,
				Reason:    types.ReasonExternalUnrecognized,
				Category:  types.ExternalCategory,
				DecidedAt: now,
			}
		}
		return types.Deny(types.ReasonNotFound, now)
	case err != nil:
		v.logger.Warn("credential lookup failed",
			zap.String("shape", string(parsed.Shape)),
			zap.Stringer("mode", parsed.Mode),
			zap.Error(err),
		)
		return types.Deny(types.ReasonLookupFailed, now)
	}

	deny := types.Deny(types.ReasonNone, now)
	deny.CredentialID = cred.ID
	deny.SubjectID = cred.SubjectID
	deny.Category = cred.Category
	if cred.Status != store.StatusActive {
		deny.Reason = types.ReasonInactive
		return deny
	}
	if !cred.ValidAt(now) {
		deny.Reason = types.ReasonExpired
		return deny
	}

	d := types.Decision{
		Outcome:      types.OutcomeGrant,
		SubjectID:    cred.SubjectID,
		DisplayName:  v.displayName(ctx, cred.SubjectID),
		Category:     cred.Category,
		CredentialID: cred.ID,
		DecidedAt:    now,
	}

	// The claim is the last step, after every validity check has passed,
	// so a cancelled scan never leaves a half-claimed credential behind.
	d.Claimed = v.claim(ctx, cred, claimantID, now)
	return d
}

func (v *AdmissionValidator) lookup(ctx context.Context, parsed token.Parsed) (*store.IssuedCredential, error) {
	ctx, cancel := context.WithTimeout(ctx, v.lookupTimeout)
	defer cancel()

	var (
		cred *store.IssuedCredential
		err  error
	)
	switch parsed.Mode {
	case token.LookupByToken, token.LookupExternalTolerant:
		cred, err = v.credentials.FindActiveByToken(ctx, parsed.LookupKey())
	case token.LookupByFields:
		cred, err = v.credentials.FindActiveByFields(ctx, parsed.SubjectID, parsed.Category)
	default:
		return nil, store.ErrCredentialNotFound
	}
	if err == nil && cred == nil {
		err = store.ErrCredentialNotFound
	}
	return cred, err
}

func (v *AdmissionValidator) displayName(ctx context.Context, subjectID string) string {
	if v.directory == nil || subjectID == "" {
		return UnknownDisplayName
	}
	ctx, cancel := context.WithTimeout(ctx, v.lookupTimeout)
	defer cancel()

	name, err := v.directory.DisplayName(ctx, subjectID)
	if err != nil || name == "" {
		if err != nil && !errors.Is(err, store.ErrSubjectNotFound) {
			v.logger.Warn("display name lookup failed", zap.String("subject_id", subjectID), zap.Error(err))
		}
		return UnknownDisplayName
	}
	return name
}

// claim binds a pre-issued credential on first use.  A lost race or a store
// error is informational only: the grant stands either way.
func (v *AdmissionValidator) claim(ctx context.Context, cred *store.IssuedCredential, claimantID string, now time.Time) bool {
	if !cred.Claimable || claimantID == "" || cred.ClaimedBy != "" {
		if cred.Claimable && cred.ClaimedBy != "" && claimantID != "" && cred.ClaimedBy != claimantID {
			v.logger.Info("credential already claimed by another subject",
				zap.String("credential_id", cred.ID),
				zap.String("claimed_by", cred.ClaimedBy),
				zap.String("claimant_id", claimantID),
			)
		}
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, v.lookupTimeout)
	defer cancel()

	won, err := v.credentials.ClaimIfUnclaimed(ctx, cred.ID, claimantID, now)
	if err != nil {
		v.logger.Warn("credential claim failed", zap.String("credential_id", cred.ID), zap.Error(err))
		return false
	}
	if won {
		return true
	}

	// Someone else got there first.  Re-read to see who.
	current, err := v.credentials.GetByID(ctx, cred.ID)
	if err != nil {
		v.logger.Warn("credential re-read after claim failed", zap.String("credential_id", cred.ID), zap.Error(err))
		return false
	}
	if current.ClaimedBy != claimantID {
		v.logger.Info("credential claim lost to another subject",
			zap.String("credential_id", cred.ID),
			zap.String("claimed_by", current.ClaimedBy),
			zap.String("claimant_id", claimantID),
		)
	}
	return false
}
