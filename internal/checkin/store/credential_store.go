package store

import (
	"context"
	"errors"
	"time"
)

var ErrCredentialNotFound = errors.New("credential not found")

type CredentialStatus string

const (
	StatusActive   CredentialStatus = "active"
	StatusInactive CredentialStatus = "inactive"
)

// IssuedCredential is a QR grant owned by the issuance store.  The check-in
// core only reads it, apart from the one-time claim.
type IssuedCredential struct {
	ID        string
	Token     string
	SubjectID string
	Category  string
	Status    CredentialStatus
	ExpiresAt *time.Time // nil = never expires
	IssuedAt  time.Time

	// Pre-issued credentials are bound to a subject on first redemption.
	Claimable bool
	ClaimedBy string
	ClaimedAt *time.Time
}

// ValidAt reports whether the credential grants access at now.
func (c IssuedCredential) ValidAt(now time.Time) bool {
	if c.Status != StatusActive {
		return false
	}
	return c.ExpiresAt == nil || c.ExpiresAt.After(now)
}

// CredentialStore is the issuance store as seen by the validator.  Lookups
// return ErrCredentialNotFound when nothing active matches.
type CredentialStore interface {
	FindActiveByToken(ctx context.Context, token string) (*IssuedCredential, error)
	// FindActiveByFields compares category case-insensitively and returns
	// the most recently issued match.
	FindActiveByFields(ctx context.Context, subjectID, category string) (*IssuedCredential, error)
	// ClaimIfUnclaimed binds the credential to subjectID only if nobody has
	// claimed it yet.  It reports whether this call performed the claim.
	ClaimIfUnclaimed(ctx context.Context, credentialID, subjectID string, at time.Time) (bool, error)
	GetByID(ctx context.Context, credentialID string) (*IssuedCredential, error)
}
