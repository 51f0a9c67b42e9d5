// Package token classifies raw scanned strings into the QR token shapes the
// gym has issued over time.  Classification is a pure function of the input.
package token

import (
	"strings"
)

type Shape string

const (
	ShapeOpaque                    Shape = "opaque"
	ShapeCompositeDoubleUnderscore Shape = "composite_double_underscore"
	ShapeCompositeUnderscore       Shape = "composite_underscore"
	ShapeCompositeHyphen           Shape = "composite_hyphen"
	ShapeCompositeColon            Shape = "composite_colon"
	ShapeURL                       Shape = "url"
	ShapeUnrecognized              Shape = "unrecognized"
)

// LookupMode tells the validator which store query a parsed token needs.
type LookupMode int

const (
	LookupNone LookupMode = iota
	LookupByToken
	LookupByFields
	LookupExternalTolerant
)

func (m LookupMode) String() string {
	switch m {
	case LookupByToken:
		return "by_token"
	case LookupByFields:
		return "by_fields"
	case LookupExternalTolerant:
		return "external_tolerant"
	default:
		return "none"
	}
}

// LegacyLookup selects how composite (legacy) tokens are looked up.
type LegacyLookup string

const (
	// LegacyByFields looks composite tokens up by subject + category.
	LegacyByFields LegacyLookup = "fields"
	// LegacyByRaw looks composite tokens up by the full raw string, for
	// stores that index legacy credentials that way.
	LegacyByRaw LegacyLookup = "raw"
)

const (
	opaqueMinLen    = 6
	opaqueMaxLen    = 64
	compositeMinLen = 36 // exclusive; a UUID subject alone is 36 chars
	colonMinLen     = 50 // exclusive
	colonFields     = 5
	urlPrefix       = "https://"
)

// Parsed is the result of classifying one raw string.
type Parsed struct {
	Raw   string
	Shape Shape
	Mode  LookupMode

	// Legacy composite fields.  Timestamp and Signature are informational;
	// the colon signature is not verified.
	SubjectID string
	Category  string
	Timestamp string
	Signature string
}

func (p Parsed) Recognized() bool { return p.Shape != ShapeUnrecognized }

// LookupKey is the token value used for token-mode lookups.
func (p Parsed) LookupKey() string { return p.Raw }

type rule struct {
	shape   Shape
	match   func(raw string) bool
	extract func(raw string) Parsed
}

// rules is evaluated in order; first match wins.  Later composite rules are
// looser than earlier ones, so the order is load-bearing.
var rules = []rule{
	{shape: ShapeOpaque, match: isOpaque, extract: extractOpaque},
	{shape: ShapeCompositeDoubleUnderscore, match: isDoubleUnderscore, extract: extractDoubleUnderscore},
	{shape: ShapeCompositeUnderscore, match: isUnderscore, extract: extractUnderscore},
	{shape: ShapeCompositeHyphen, match: isHyphen, extract: extractHyphen},
	{shape: ShapeCompositeColon, match: isColon, extract: extractColon},
	{shape: ShapeURL, match: isURL, extract: extractURL},
}

// Interpreter classifies raw strings.  The zero value looks legacy tokens up
// by fields.
type Interpreter struct {
	legacy LegacyLookup
}

func NewInterpreter(legacy LegacyLookup) *Interpreter {
	if legacy != LegacyByRaw {
		legacy = LegacyByFields
	}
	return &Interpreter{legacy: legacy}
}

// Classify maps raw to exactly one shape.  It never fails: anything that
// matches no rule comes back as ShapeUnrecognized with LookupNone.
func (in *Interpreter) Classify(raw string) Parsed {
	for _, r := range rules {
		if !r.match(raw) {
			continue
		}
		p := r.extract(raw)
		p.Raw = raw
		p.Shape = r.shape
		if p.Mode == LookupByFields && in != nil && in.legacy == LegacyByRaw {
			p.Mode = LookupByToken
		}
		return p
	}
	return Parsed{Raw: raw, Shape: ShapeUnrecognized, Mode: LookupNone}
}

// Classify uses the default interpreter.
func Classify(raw string) Parsed {
	return (*Interpreter)(nil).Classify(raw)
}

// ── Rule 1: opaque ───────────────────────────────────────────────────────────

func isOpaque(raw string) bool {
	if len(raw) < opaqueMinLen || len(raw) > opaqueMaxLen {
		return false
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}

func extractOpaque(string) Parsed { return Parsed{Mode: LookupByToken} }

// ── Rule 2: subject__category__timestamp ─────────────────────────────────────

func isDoubleUnderscore(raw string) bool {
	if isURL(raw) || !strings.Contains(raw, "__") {
		return false
	}
	parts := strings.SplitN(raw, "__", 3)
	return len(parts) >= 2 && parts[0] != "" && parts[1] != ""
}

func extractDoubleUnderscore(raw string) Parsed {
	parts := strings.SplitN(raw, "__", 3)
	p := Parsed{Mode: LookupByFields, SubjectID: parts[0], Category: parts[1]}
	if len(parts) == 3 {
		p.Timestamp = parts[2]
	}
	return p
}

// ── Rule 3: subject_category_timestamp ───────────────────────────────────────
// Categories may themselves contain underscores (free_gym), subjects never do.
// Colon tokens are left to rule 5: their base64url signatures carry '_' and '-'.

func isUnderscore(raw string) bool {
	if isURL(raw) || hasColon(raw) || len(raw) <= compositeMinLen || !strings.Contains(raw, "_") {
		return false
	}
	parts := strings.Split(raw, "_")
	return len(parts) >= 3 && parts[0] != "" && parts[len(parts)-1] != "" &&
		strings.Join(parts[1:len(parts)-1], "_") != ""
}

func extractUnderscore(raw string) Parsed {
	parts := strings.Split(raw, "_")
	return Parsed{
		Mode:      LookupByFields,
		SubjectID: parts[0],
		Category:  strings.Join(parts[1:len(parts)-1], "_"),
		Timestamp: parts[len(parts)-1],
	}
}

// ── Rule 4: subject-category-timestamp ───────────────────────────────────────
// Subjects are UUIDs and carry hyphens, so fields are taken from the right.

func isHyphen(raw string) bool {
	if isURL(raw) || hasColon(raw) || len(raw) <= compositeMinLen || !strings.Contains(raw, "-") {
		return false
	}
	parts := strings.Split(raw, "-")
	n := len(parts)
	return n >= 3 && parts[n-1] != "" && parts[n-2] != "" &&
		strings.Join(parts[:n-2], "-") != ""
}

func extractHyphen(raw string) Parsed {
	parts := strings.Split(raw, "-")
	n := len(parts)
	return Parsed{
		Mode:      LookupByFields,
		SubjectID: strings.Join(parts[:n-2], "-"),
		Category:  parts[n-2],
		Timestamp: parts[n-1],
	}
}

// ── Rule 5: id:subject:category:timestamp:signature ──────────────────────────

func isColon(raw string) bool {
	if isURL(raw) || len(raw) <= colonMinLen || !strings.Contains(raw, ":") {
		return false
	}
	parts := strings.Split(raw, ":")
	if len(parts) != colonFields {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

func extractColon(raw string) Parsed {
	parts := strings.Split(raw, ":")
	return Parsed{
		Mode:      LookupByFields,
		SubjectID: parts[1],
		Category:  parts[2],
		Timestamp: parts[3],
		Signature: parts[4],
	}
}

// ── Rule 6: URL ──────────────────────────────────────────────────────────────

func isURL(raw string) bool { return strings.HasPrefix(raw, urlPrefix) }

func hasColon(raw string) bool { return strings.Contains(raw, ":") }

func extractURL(string) Parsed { return Parsed{Mode: LookupExternalTolerant} }
