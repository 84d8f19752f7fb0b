package wizard

import "math"

// Commission tiers for the advance fee, each inclusive of the 12% tax
// surcharge. Amounts below the minimum carry no commission and are rejected
// before any disbursement is attempted.
const (
	MinAdvanceAmount = 100.0

	tier1Max  = 250.0
	tier1Flat = 15.0

	tier2Max  = 700.0
	tier2Rate = 0.065

	tier3Rate = 0.075

	taxSurcharge = 1.12
)

// Commission returns the fee for a requested amount, rounded to cents. The
// same value feeds both the live display and the disbursement call, so the
// rounding here is the single authoritative one.
func Commission(amount float64) float64 {
	switch {
	case amount < MinAdvanceAmount:
		return 0
	case amount <= tier1Max:
		return roundCents(tier1Flat * taxSurcharge)
	case amount <= tier2Max:
		return roundCents(amount * tier2Rate * taxSurcharge)
	default:
		return roundCents(amount * tier3Rate * taxSurcharge)
	}
}

// DisbursementAmount is the requested amount minus its commission.
func DisbursementAmount(amount float64) float64 {
	if amount < MinAdvanceAmount {
		return 0
	}
	return roundCents(amount - Commission(amount))
}

// ValidAdvanceAmount reports whether an amount can be requested at all.
func ValidAdvanceAmount(amount, approved float64) bool {
	return amount >= MinAdvanceAmount && amount <= approved
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
