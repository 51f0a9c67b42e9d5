package types

// ScanRequest is posted by a scanning station for every decoded candidate.
type ScanRequest struct {
	StationID  string `json:"station_id"`
	Raw        string `json:"raw"`
	ClaimantID string `json:"claimant_id,omitempty"` // subject a claimable credential is bound to
	ScannedAt  string `json:"scanned_at,omitempty"`  // optional station timestamp
}

type ScanResponse struct {
	OK          bool   `json:"ok"`
	Known       bool   `json:"known"`
	Outcome     string `json:"outcome"`
	Reason      string `json:"reason,omitempty"`
	Shape       string `json:"shape,omitempty"`
	SubjectID   string `json:"subject_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Category    string `json:"category,omitempty"`
	StationID   string `json:"station_id"`
	ServerTime  string `json:"server_time"`
}

// ScanEvent is the operator-facing view of one audited scan.
type ScanEvent struct {
	StationID  string `json:"station_id"`
	OperatorID string `json:"operator_id,omitempty"`
	Shape      string `json:"shape"`
	Outcome    string `json:"outcome"`
	Reason     string `json:"reason,omitempty"`
	SubjectID  string `json:"subject_id,omitempty"`
	Category   string `json:"category,omitempty"`
	DecidedAt  string `json:"decided_at"`
}
