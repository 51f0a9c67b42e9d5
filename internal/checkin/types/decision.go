package types

import "time"

type Outcome string

const (
	OutcomeGrant Outcome = "grant"
	OutcomeDeny  Outcome = "deny"
)

// ReasonCode explains a decision to the operator.  A plain grant carries no
// reason; ReasonExternalUnrecognized is the only reason attached to a grant.
type ReasonCode string

const (
	ReasonNone                 ReasonCode = ""
	ReasonNotFound             ReasonCode = "not-found"
	ReasonInactive             ReasonCode = "inactive"
	ReasonExpired              ReasonCode = "expired"
	ReasonUnparseable          ReasonCode = "unparseable"
	ReasonLookupFailed         ReasonCode = "lookup-failed"
	ReasonExternalUnrecognized ReasonCode = "external-unrecognized"
)

// ExternalCategory is reported for URL-shaped codes that are not ours.
const ExternalCategory = "external"

// Decision is the per-scan admission result.  It is produced, surfaced and
// discarded; only its audit copy outlives the scan.
type Decision struct {
	Outcome      Outcome
	Reason       ReasonCode
	SubjectID    string
	DisplayName  string
	Category     string
	CredentialID string
	Claimed      bool // this scan performed the first-use claim
	DecidedAt    time.Time
}

func (d Decision) Granted() bool { return d.Outcome == OutcomeGrant }

func Deny(reason ReasonCode, at time.Time) Decision {
	return Decision{Outcome: OutcomeDeny, Reason: reason, DecidedAt: at}
}
