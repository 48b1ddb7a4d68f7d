package analytics

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxIMSIs bounds the number of subscriber identifiers in one query.
const MaxIMSIs = 100

var (
	periodPattern   = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)
	customerPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	imsiPattern     = regexp.MustCompile(`^\d{15}$`)
)

// Query selects usage data for a reporting period, a customer and a set of subscribers.
type Query struct {
	// Period is the reporting month, YYYY-MM.
	Period string `json:"period"`
	// CustomerID identifies the billing customer.
	CustomerID string `json:"customerId"`
	// IMSIs lists 15-digit subscriber identifiers.
	IMSIs []string `json:"imsis"`
}

// ValidationError reports the first field of a Query that failed its format check.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("analytics: invalid %s: %s", e.Field, e.Reason)
}

// Normalize trims every field and removes duplicate and empty IMSIs, keeping
// the first occurrence order.
func (q Query) Normalize() Query {
	out := Query{
		Period:     strings.TrimSpace(q.Period),
		CustomerID: strings.TrimSpace(q.CustomerID),
	}

	seen := make(map[string]struct{}, len(q.IMSIs))
	for _, imsi := range q.IMSIs {
		imsi = strings.TrimSpace(imsi)
		if imsi == "" {
			continue
		}
		if _, dup := seen[imsi]; dup {
			continue
		}
		seen[imsi] = struct{}{}
		out.IMSIs = append(out.IMSIs, imsi)
	}

	return out
}

// Validate checks q as-is and returns a *ValidationError for the first violation.
// Call Normalize first to accept padded or repeated input.
func (q Query) Validate() error {
	if !periodPattern.MatchString(q.Period) {
		return &ValidationError{Field: "period", Reason: "expected YYYY-MM"}
	}
	if !customerPattern.MatchString(q.CustomerID) {
		return &ValidationError{Field: "customerId", Reason: "expected 1-64 letters, digits, '-' or '_'"}
	}
	if len(q.IMSIs) == 0 {
		return &ValidationError{Field: "imsis", Reason: "at least one IMSI is required"}
	}
	if len(q.IMSIs) > MaxIMSIs {
		return &ValidationError{Field: "imsis", Reason: fmt.Sprintf("at most %d IMSIs are allowed", MaxIMSIs)}
	}
	for i, imsi := range q.IMSIs {
		if !imsiPattern.MatchString(imsi) {
			return &ValidationError{Field: fmt.Sprintf("imsis[%d]", i), Reason: "expected 15 digits"}
		}
	}
	return nil
}
