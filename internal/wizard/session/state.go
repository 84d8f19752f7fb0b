// Package session holds the wizard view-state: an explicit step machine with
// a pure reducer, a dispatching store, and pluggable persistence. All step
// transitions flow through Reduce so they stay independently testable.
package session

import (
	"time"

	"advance-wizard/internal/common/errors"
	"advance-wizard/internal/wizard"
)

// Step is the wizard position. The flow may jump non-sequentially (a complete
// profile skips straight past the form, a code-24 OTP send skips OTP entry).
type Step int

const (
	StepPhone    Step = 0 // phone intake
	StepProfile  Step = 1 // personal and financial data form
	StepOTP      Step = 2 // token entry
	StepOffer    Step = 3 // credit offer and amount selection
	StepReceipt  Step = 4 // disbursement result
	StepFallback Step = 5 // terminal error state with retry
)

// FormData accumulates the applicant profile across steps 0-1. Lives only for
// the duration of one session.
type FormData struct {
	PhoneNumber      string  `json:"phoneNumber"`
	Identification   string  `json:"identification"`
	FullName         string  `json:"fullName"`
	Email            string  `json:"email"`
	TaxID            string  `json:"taxId"`
	StartDate        string  `json:"startDate"`
	MonthlySalary    float64 `json:"monthlySalary"`
	PaymentFrequency string  `json:"paymentFrequency"`
	ClientID         string  `json:"clientId"`
}

// Offer is the credit offer produced by the credit-limit check. Requested
// defaults to the approved amount; the disbursement figure is recomputed on
// every amount change through the commission schedule.
type Offer struct {
	ApprovedAmount     float64 `json:"approvedAmount"`
	RequestedAmount    float64 `json:"requestedAmount"`
	Commission         float64 `json:"commission"`
	DisbursementAmount float64 `json:"disbursementAmount"`
	RequestID          string  `json:"idSolicitud"`
	CommissionIssue    bool    `json:"hasCommissionIssue"`
}

// StepError is the last failure, kept for the fallback screen and retry.
type StepError struct {
	Message string           `json:"message"`
	Type    errors.ErrorType `json:"type"`
	Origin  Step             `json:"origin"`
}

// State is one wizard session. Authorization is generated at session start
// and never changes afterwards.
type State struct {
	SessionID     string     `json:"sessionId"`
	Authorization string     `json:"autorizacion"`
	Step          Step       `json:"step"`
	IsLoading     bool       `json:"isLoading"`
	Form          FormData   `json:"form"`
	Offer         Offer      `json:"offer"`
	LastError     *StepError `json:"lastError,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Event is a view-state transition request.
type Event interface{ isEvent() }

// Started initializes a fresh session.
type Started struct {
	SessionID     string
	Authorization string
	Now           time.Time
}

// Loading marks the beginning of an async step transition.
type Loading struct{}

// FormUpdated merges submitted form fields into the accumulated data. Empty
// string fields leave the existing value untouched.
type FormUpdated struct {
	Form FormData
}

// Succeeded completes a step transition: clears loading, moves to Target and
// merges the step payload.
type Succeeded struct {
	Target          Step
	Client          *wizard.ClientData
	ClientID        string
	ApprovedAmount  float64
	RequestID       string
	CommissionIssue bool
}

// Failed routes to the fallback state. Cupo failures wipe all accumulated
// form data; the origin step decides where retry lands.
type Failed struct {
	Origin  Step
	Type    errors.ErrorType
	Message string
}

// AmountChanged updates the requested amount. Out-of-range amounts are
// ignored; valid ones recompute commission and disbursement.
type AmountChanged struct {
	Requested float64
}

// Retry returns from fallback to the recorded origin step.
type Retry struct{}

// Reset wipes everything except the session identity.
type Reset struct{}

func (Started) isEvent()       {}
func (Loading) isEvent()       {}
func (FormUpdated) isEvent()   {}
func (Succeeded) isEvent()     {}
func (Failed) isEvent()        {}
func (AmountChanged) isEvent() {}
func (Retry) isEvent()         {}
func (Reset) isEvent()         {}

// Reduce applies one event to a state and returns the next state. Pure: no
// I/O, no clock reads except the timestamp carried by Started.
func Reduce(s State, ev Event) State {
	switch e := ev.(type) {
	case Started:
		return State{
			SessionID:     e.SessionID,
			Authorization: e.Authorization,
			Step:          StepPhone,
			CreatedAt:     e.Now,
			UpdatedAt:     e.Now,
		}

	case Loading:
		s.IsLoading = true
		return s

	case FormUpdated:
		s.Form = mergeForm(s.Form, e.Form)
		return s

	case Succeeded:
		s.IsLoading = false
		s.LastError = nil
		s.Step = e.Target
		if e.Client != nil {
			s.Form = mergeForm(s.Form, FormData{
				PhoneNumber:      e.Client.Phone,
				Identification:   e.Client.Identification,
				FullName:         e.Client.FullName,
				Email:            e.Client.Email,
				TaxID:            e.Client.TaxID,
				StartDate:        e.Client.StartDate,
				PaymentFrequency: e.Client.PaymentFrequency,
			})
		}
		if e.ClientID != "" {
			s.Form.ClientID = e.ClientID
		}
		if e.ApprovedAmount > 0 {
			s.Offer = newOffer(e.ApprovedAmount, e.RequestID)
		}
		if e.CommissionIssue {
			s.Offer.CommissionIssue = true
		}
		return s

	case Failed:
		s.IsLoading = false
		err := &StepError{Message: e.Message, Type: e.Type, Origin: e.Origin}
		switch e.Type {
		case errors.ErrorTypeCupo:
			// A credit-limit rejection invalidates everything entered so
			// far; retry restarts the whole flow.
			s.Form = FormData{}
			s.Offer = Offer{}
			err.Origin = StepPhone
		case errors.ErrorTypePhoneNumber:
			err.Origin = StepPhone
		}
		s.LastError = err
		s.Step = StepFallback
		return s

	case AmountChanged:
		if !wizard.ValidAdvanceAmount(e.Requested, s.Offer.ApprovedAmount) {
			return s
		}
		s.Offer.RequestedAmount = e.Requested
		s.Offer.Commission = wizard.Commission(e.Requested)
		s.Offer.DisbursementAmount = wizard.DisbursementAmount(e.Requested)
		return s

	case Retry:
		origin := StepPhone
		if s.LastError != nil {
			origin = s.LastError.Origin
		}
		s.Step = origin
		s.LastError = nil
		s.IsLoading = false
		return s

	case Reset:
		return State{
			SessionID:     s.SessionID,
			Authorization: s.Authorization,
			Step:          StepPhone,
			CreatedAt:     s.CreatedAt,
			UpdatedAt:     s.UpdatedAt,
		}

	default:
		return s
	}
}

// newOffer initializes the offer with requested defaulting to approved.
func newOffer(approved float64, requestID string) Offer {
	return Offer{
		ApprovedAmount:     approved,
		RequestedAmount:    approved,
		Commission:         wizard.Commission(approved),
		DisbursementAmount: wizard.DisbursementAmount(approved),
		RequestID:          requestID,
	}
}

func mergeForm(base, in FormData) FormData {
	if in.PhoneNumber != "" {
		base.PhoneNumber = in.PhoneNumber
	}
	if in.Identification != "" {
		base.Identification = in.Identification
	}
	if in.FullName != "" {
		base.FullName = in.FullName
	}
	if in.Email != "" {
		base.Email = in.Email
	}
	if in.TaxID != "" {
		base.TaxID = in.TaxID
	}
	if in.StartDate != "" {
		base.StartDate = in.StartDate
	}
	if in.MonthlySalary > 0 {
		base.MonthlySalary = in.MonthlySalary
	}
	if in.PaymentFrequency != "" {
		base.PaymentFrequency = in.PaymentFrequency
	}
	if in.ClientID != "" {
		base.ClientID = in.ClientID
	}
	return base
}
