// Package attestation evaluates client tax-reduction certificates.
//
// A client holding a valid attestation (agricultural or forestry use) buys
// tracked fuel at the reduced statutory rate; everyone else pays the
// standard rate. Validity is a pure function of the certificate fields and
// the evaluation date — it is never frozen on the movement.
package attestation

import (
	"fmt"
	"time"

	"gnrtax/internal/core/types"
)

// ValidityYears is the statutory attestation validity window.
const ValidityYears = 3

// expiryWarning is how long before expiry a certificate is flagged.
const expiryWarning = 3 * 30 * 24 * time.Hour

// Status categorizes a client's attestation for human-facing warnings.
// Rate computation only uses the validity boolean.
type Status int

const (
	StatusNone Status = iota
	StatusExpired
	StatusExpiringSoon
	StatusValid
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusExpired:
		return "expired"
	case StatusExpiringSoon:
		return "expiring_soon"
	case StatusValid:
		return "valid"
	}
	return "unknown"
}

// Certificate is the attestation data carried on the client master.
type Certificate struct {
	DossierNumber string
	DepositDate   *time.Time
}

// Evaluator decides which of the two statutory rates applies to a client.
type Evaluator struct {
	reduced  types.Rate
	standard types.Rate
}

// NewEvaluator creates an evaluator with the given statutory rates (EUR/L).
func NewEvaluator(reduced, standard types.Rate) *Evaluator {
	return &Evaluator{reduced: reduced, standard: standard}
}

// ExpiryDate returns the certificate expiry date, or zero time if the
// certificate has no deposit date.
func (c Certificate) ExpiryDate() time.Time {
	if c.DepositDate == nil {
		return time.Time{}
	}
	return c.DepositDate.AddDate(ValidityYears, 0, 0)
}

// IsValid reports whether the certificate entitles the client to the
// reduced rate as of the given date. Valid iff the dossier number is
// non-empty, the deposit date is present, and deposit + 3 years >= asOf.
// The boundary day itself is still valid.
func (e *Evaluator) IsValid(c Certificate, asOf time.Time) bool {
	if c.DossierNumber == "" || c.DepositDate == nil {
		return false
	}
	expiry := truncateToDay(c.ExpiryDate())
	return !truncateToDay(asOf).After(expiry)
}

// ApplicableRate returns the reduced rate when the certificate is valid,
// the standard rate otherwise.
func (e *Evaluator) ApplicableRate(c Certificate, asOf time.Time) types.Rate {
	if e.IsValid(c, asOf) {
		return e.reduced
	}
	return e.standard
}

// ReducedRate returns the configured reduced statutory rate.
func (e *Evaluator) ReducedRate() types.Rate { return e.reduced }

// StandardRate returns the configured standard statutory rate.
func (e *Evaluator) StandardRate() types.Rate { return e.standard }

// Evaluate categorizes the certificate and returns a human-facing message.
func (e *Evaluator) Evaluate(c Certificate, asOf time.Time) (Status, string) {
	if c.DossierNumber == "" || c.DepositDate == nil {
		return StatusNone, "No attestation on file: standard rate applies"
	}

	expiry := c.ExpiryDate()
	if truncateToDay(asOf).After(truncateToDay(expiry)) {
		return StatusExpired, fmt.Sprintf(
			"Attestation %s expired on %s: standard rate applies",
			c.DossierNumber, expiry.Format("2006-01-02"))
	}

	if expiry.Sub(asOf) <= expiryWarning {
		return StatusExpiringSoon, fmt.Sprintf(
			"Attestation %s expires on %s: renewal needed",
			c.DossierNumber, expiry.Format("2006-01-02"))
	}

	return StatusValid, fmt.Sprintf(
		"Attestation %s valid until %s: reduced rate applies",
		c.DossierNumber, expiry.Format("2006-01-02"))
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
