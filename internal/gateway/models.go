package gateway

// Status is the closed set of outcomes a remote call can be classified into.
// The orchestrator branches on Status, never on raw return codes.
type Status int

const (
	StatusOK Status = iota
	StatusOKWithWarning
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusOKWithWarning:
		return "ok_with_warning"
	default:
		return "failed"
	}
}

// Outcome is the normalized result of one remote operation: the classified
// status plus the raw code and human-readable message from the service.
type Outcome struct {
	Status  Status
	Code    string
	Message string
}

// Succeeded reports whether the operation counts as success, including the
// warning codes (5, 24, 34) the legacy service treats as success-with-info.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusOK || o.Status == StatusOKWithWarning
}

// ClientRecord is the client profile as returned by Consulta_Cliente, with
// the service's Spanish field names mapped to English at this boundary.
type ClientRecord struct {
	ID                   string
	Status               string
	IdentificationNumber string
	FullName             string
	Phone                string
	Email                string
	TaxID                string
	StartDate            string
	MonthlySalary        string
	PaymentFrequency     string
	Dispersions          string
	AvgDispersionAmount  string
	AcceptsTerms         string
	EndDate              string
}

// Complete reports whether every field the profile form requires is present.
func (c *ClientRecord) Complete() bool {
	if c == nil {
		return false
	}
	return c.IdentificationNumber != "" &&
		c.FullName != "" &&
		c.Email != "" &&
		c.TaxID != "" &&
		c.StartDate != "" &&
		c.MonthlySalary != "" &&
		c.PaymentFrequency != ""
}

// LookupResult is the normalized Consulta_Cliente response. Incomplete marks
// code 5: the client exists but profile fields must be treated as absent.
type LookupResult struct {
	Outcome    Outcome
	Client     *ClientRecord
	ClientID   string
	Incomplete bool
}

// TokenSendResult is the normalized Envia_Token_TyC response. TermsAccepted
// marks code 24: the client already accepted terms, OTP entry must be skipped.
type TokenSendResult struct {
	Outcome       Outcome
	TermsAccepted bool
}

// TokenValidateResult is the normalized Valida_Token_TyC response.
type TokenValidateResult struct {
	Outcome Outcome
}

// CreditResult is the normalized valida_cupo response.
type CreditResult struct {
	Outcome            Outcome
	RequestID          string
	Phone              string
	ApprovedAmount     float64
	CommissionOnLimit  float64
	CommissionPct      float64
	Band1MaxLimit      float64
	Band1MinCommission float64
	Band2MaxLimit      float64
	Band2MinCommission float64
}

// DisbursementResult is the normalized Ejecuta_Desembolso response.
// CommissionIssue marks code 34: funds disbursed but commission collection
// failed; callers surface it as a non-blocking warning.
type DisbursementResult struct {
	Outcome         Outcome
	CommissionIssue bool
}

// MutationResult is the normalized Registra_Cliente / Edita_Cliente response.
type MutationResult struct {
	Outcome  Outcome
	ClientID string
}
