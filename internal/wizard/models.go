package wizard

import (
	"strings"
	"time"

	"advance-wizard/internal/common/errors"
	"advance-wizard/internal/gateway"
)

// Intent selects what the profile step does with the submitted data.
type Intent string

const (
	IntentCreate   Intent = "create"
	IntentEdit     Intent = "edit"
	IntentContinue Intent = "continue"
)

// StepResult is the uniform outcome every step entry point returns. A result
// is either Success or carries an Error plus the routing ErrorType; no step
// ever propagates a Go error to the caller.
type StepResult struct {
	Success   bool             `json:"success"`
	Error     string           `json:"error,omitempty"`
	ErrorType errors.ErrorType `json:"errorType,omitempty"`

	// Step 0 payload.
	Client   *ClientData `json:"client,omitempty"`
	ClientID string      `json:"clientId,omitempty"`

	// Credit-check payload (step 2, or step 1 when OTP is bypassed).
	ApprovedAmount float64 `json:"approvedAmount,omitempty"`
	RequestID      string  `json:"idSolicitud,omitempty"`
	SkipOTP        bool    `json:"skipStep2,omitempty"`

	// Step 3 payload.
	CommissionIssue bool `json:"hasCommissionIssue,omitempty"`
}

func failure(msg string, et errors.ErrorType) StepResult {
	return StepResult{Success: false, Error: msg, ErrorType: et}
}

// ClientData is the client record in the shape the wizard forms consume:
// English field names, display date format, spelled-out pay frequency.
type ClientData struct {
	Identification   string `json:"identification"`
	FullName         string `json:"fullName"`
	Phone            string `json:"phoneNumber"`
	Email            string `json:"email"`
	TaxID            string `json:"taxId"`
	StartDate        string `json:"startDate"`
	MonthlySalary    string `json:"monthlySalary"`
	PaymentFrequency string `json:"paymentFrequency"`
}

// Complete reports whether the record carries every field the profile form
// needs, i.e. whether the form can be skipped entirely.
func (c *ClientData) Complete() bool {
	return c != nil &&
		c.Identification != "" &&
		c.FullName != "" &&
		c.Phone != "" &&
		c.Email != "" &&
		c.TaxID != "" &&
		c.StartDate != "" &&
		c.MonthlySalary != "" &&
		c.PaymentFrequency != ""
}

// ProfileForm is the step-1 input.
type ProfileForm struct {
	Identification   string  `json:"identification"`
	FullName         string  `json:"fullName"`
	Phone            string  `json:"phoneNumber"`
	Email            string  `json:"email"`
	TaxID            string  `json:"taxId"`
	StartDate        string  `json:"startDate"`
	MonthlySalary    float64 `json:"monthlySalary"`
	PaymentFrequency string  `json:"paymentFrequency"`
}

// DisbursementRequest is the step-3 input. Commission is computed by the
// caller from the requested amount before this call.
type DisbursementRequest struct {
	Phone         string  `json:"phoneNumber"`
	RequestID     string  `json:"idSolicitud"`
	Amount        float64 `json:"amount"`
	Commission    float64 `json:"commission"`
	Authorization string  `json:"autorizacion"`
}

// frequencyNames maps the service's single-letter pay-frequency codes to the
// wizard's spelled-out values (M = monthly, Q = quincenal, S = semanal).
var frequencyNames = map[string]string{
	"M": "monthly",
	"Q": "biweekly",
	"S": "weekly",
}

var frequencyCodes = map[string]string{
	"monthly":  "M",
	"biweekly": "Q",
	"weekly":   "S",
}

func frequencyName(code string) string {
	if name, ok := frequencyNames[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return name
	}
	return code
}

func frequencyCode(name string) string {
	if code, ok := frequencyCodes[strings.ToLower(strings.TrimSpace(name))]; ok {
		return code
	}
	return name
}

// displayDate reformats the service's ISO dates into dd-mm-yyyy. Values that
// do not parse pass through unchanged.
func displayDate(iso string) string {
	s := strings.TrimSpace(iso)
	if s == "" {
		return ""
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("02-01-2006")
		}
	}
	return s
}

// mapClient converts the gateway record into form-ready client data.
func mapClient(rec *gateway.ClientRecord) *ClientData {
	if rec == nil {
		return nil
	}
	return &ClientData{
		Identification:   rec.IdentificationNumber,
		FullName:         rec.FullName,
		Phone:            rec.Phone,
		Email:            rec.Email,
		TaxID:            rec.TaxID,
		StartDate:        displayDate(rec.StartDate),
		MonthlySalary:    rec.MonthlySalary,
		PaymentFrequency: frequencyName(rec.PaymentFrequency),
	}
}
