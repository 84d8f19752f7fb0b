package wizard

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"advance-wizard/internal/common/config"
	"advance-wizard/internal/common/errors"
	"advance-wizard/internal/common/logger"
	"advance-wizard/internal/gateway"
	"advance-wizard/internal/notify"
)

// ==========================
// Mocks
// ==========================

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) LookupClient(ctx context.Context, phone string) (*gateway.LookupResult, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.LookupResult), args.Error(1)
}

func (m *mockGateway) SendOTP(ctx context.Context, phone string) (*gateway.TokenSendResult, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.TokenSendResult), args.Error(1)
}

func (m *mockGateway) ValidateOTP(ctx context.Context, phone, token string) (*gateway.TokenValidateResult, error) {
	args := m.Called(ctx, phone, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.TokenValidateResult), args.Error(1)
}

func (m *mockGateway) CheckCreditLimit(ctx context.Context, phone string) (*gateway.CreditResult, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.CreditResult), args.Error(1)
}

func (m *mockGateway) ExecuteDisbursement(ctx context.Context, phone, requestID string, amount, commission float64, authorization string) (*gateway.DisbursementResult, error) {
	args := m.Called(ctx, phone, requestID, amount, commission, authorization)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.DisbursementResult), args.Error(1)
}

func (m *mockGateway) RegisterClient(ctx context.Context, p gateway.ClientProfile) (*gateway.MutationResult, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.MutationResult), args.Error(1)
}

func (m *mockGateway) EditClient(ctx context.Context, p gateway.ClientProfile, status string) (*gateway.MutationResult, error) {
	args := m.Called(ctx, p, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.MutationResult), args.Error(1)
}

// recordingNotifier captures sink events synchronously for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) StepCompleted(ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingNotifier) all() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

func ok() gateway.Outcome {
	return gateway.Outcome{Status: gateway.StatusOK, Code: "0", Message: "OK"}
}

func warning(code, msg string) gateway.Outcome {
	return gateway.Outcome{Status: gateway.StatusOKWithWarning, Code: code, Message: msg}
}

func failed(code, msg string) gateway.Outcome {
	return gateway.Outcome{Status: gateway.StatusFailed, Code: code, Message: msg}
}

func newOrchestrator(t *testing.T, gw Gateway) (*Orchestrator, *recordingNotifier) {
	t.Helper()
	sink := &recordingNotifier{}
	return NewOrchestrator(gw, sink, config.BypassConfig{}, logger.NewTestLogger(t)), sink
}

func completeRecord() *gateway.ClientRecord {
	return &gateway.ClientRecord{
		ID:                   "77",
		IdentificationNumber: "2547896540101",
		FullName:             "Maria Lopez",
		Phone:                "50502180",
		Email:                "maria@example.com",
		TaxID:                "1234567-8",
		StartDate:            "2023-05-01T00:00:00",
		MonthlySalary:        "4500",
		PaymentFrequency:     "M",
	}
}

func profileForm() ProfileForm {
	return ProfileForm{
		Identification:   "2547896540101",
		FullName:         "Maria Lopez",
		Phone:            "50502180",
		Email:            "maria@example.com",
		TaxID:            "1234567-8",
		StartDate:        "01-05-2023",
		MonthlySalary:    4500,
		PaymentFrequency: "monthly",
	}
}

// ==========================
// Step 0 Tests
// ==========================

func TestSubmitPhone_CompleteProfile(t *testing.T) {
	gw := &mockGateway{}
	gw.On("LookupClient", mock.Anything, "50502180").Return(&gateway.LookupResult{
		Outcome:  ok(),
		Client:   completeRecord(),
		ClientID: "77",
	}, nil)
	o, _ := newOrchestrator(t, gw)

	res := o.SubmitPhone(context.Background(), "5050 2180")

	assert.True(t, res.Success)
	assert.Equal(t, "77", res.ClientID)
	require.NotNil(t, res.Client)
	assert.Equal(t, "Maria Lopez", res.Client.FullName)
	assert.Equal(t, "01-05-2023", res.Client.StartDate, "ISO date reformatted for display")
	assert.Equal(t, "monthly", res.Client.PaymentFrequency)
	gw.AssertExpectations(t)
}

func TestSubmitPhone_IncompleteProfileReturnsPhoneOnly(t *testing.T) {
	gw := &mockGateway{}
	partial := &gateway.ClientRecord{ID: "42", Phone: "50502180", FullName: "Maria"}
	gw.On("LookupClient", mock.Anything, "50502180").Return(&gateway.LookupResult{
		Outcome:    warning("5", "perfil incompleto"),
		Client:     partial,
		ClientID:   "42",
		Incomplete: true,
	}, nil)
	o, _ := newOrchestrator(t, gw)

	res := o.SubmitPhone(context.Background(), "50502180")

	assert.True(t, res.Success)
	assert.Equal(t, "42", res.ClientID, "client id survives so the caller picks edit")
	require.NotNil(t, res.Client)
	assert.Equal(t, "50502180", res.Client.Phone)
	assert.Empty(t, res.Client.FullName, "partial fields treated as absent")
}

func TestSubmitPhone_RemoteFailure(t *testing.T) {
	gw := &mockGateway{}
	gw.On("LookupClient", mock.Anything, "50502180").Return(&gateway.LookupResult{
		Outcome: failed("2", "cliente no existe"),
	}, nil)
	o, _ := newOrchestrator(t, gw)

	res := o.SubmitPhone(context.Background(), "50502180")

	assert.False(t, res.Success)
	assert.Equal(t, errors.ErrorTypePhoneNumber, res.ErrorType)
	assert.Equal(t, "cliente no existe", res.Error)
}

func TestSubmitPhone_ErrorNeverEscapes(t *testing.T) {
	gw := &mockGateway{}
	gw.On("LookupClient", mock.Anything, "50502180").
		Return(nil, errors.NewConnectionError("Consulta_Cliente", assert.AnError))
	o, _ := newOrchestrator(t, gw)

	res := o.SubmitPhone(context.Background(), "50502180")

	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, errors.ErrorTypePhoneNumber, res.ErrorType)
}

func TestSubmitPhone_InvalidPhoneSkipsNetwork(t *testing.T) {
	gw := &mockGateway{}
	o, _ := newOrchestrator(t, gw)

	res := o.SubmitPhone(context.Background(), "123")

	assert.False(t, res.Success)
	assert.Equal(t, errors.ErrorTypePhoneNumber, res.ErrorType)
	gw.AssertNotCalled(t, "LookupClient")
}

// ==========================
// Step 1 Tests
// ==========================

func TestSubmitProfile_ContinuePassThrough(t *testing.T) {
	gw := &mockGateway{}
	gw.On("SendOTP", mock.Anything, "50502180").Return(&gateway.TokenSendResult{Outcome: ok()}, nil)
	o, sink := newOrchestrator(t, gw)

	res := o.SubmitProfile(context.Background(), profileForm(), IntentContinue, "auth-1")

	assert.True(t, res.Success)
	assert.False(t, res.SkipOTP)
	gw.AssertNotCalled(t, "RegisterClient")
	gw.AssertNotCalled(t, "EditClient")

	// pass-through still notifies the sink
	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].Step)
	assert.True(t, events[0].Success)
	assert.Equal(t, "auth-1", events[0].Authorization)
	assert.Equal(t, "50502180", events[0].FormData["phoneNumber"])
}

func TestSubmitProfile_CreateIntent(t *testing.T) {
	gw := &mockGateway{}
	gw.On("RegisterClient", mock.Anything, mock.MatchedBy(func(p gateway.ClientProfile) bool {
		return p.PaymentFrequency == "M" && p.Phone == "50502180"
	})).Return(&gateway.MutationResult{Outcome: ok(), ClientID: "88"}, nil)
	gw.On("SendOTP", mock.Anything, "50502180").Return(&gateway.TokenSendResult{Outcome: ok()}, nil)
	o, _ := newOrchestrator(t, gw)

	res := o.SubmitProfile(context.Background(), profileForm(), IntentCreate, "auth-1")

	assert.True(t, res.Success)
	gw.AssertExpectations(t)
}

func TestSubmitProfile_EditIntentUsesActiveStatus(t *testing.T) {
	gw := &mockGateway{}
	gw.On("EditClient", mock.Anything, mock.Anything, "A").
		Return(&gateway.MutationResult{Outcome: ok()}, nil)
	gw.On("SendOTP", mock.Anything, "50502180").Return(&gateway.TokenSendResult{Outcome: ok()}, nil)
	o, _ := newOrchestrator(t, gw)

	res := o.SubmitProfile(context.Background(), profileForm(), IntentEdit, "auth-1")

	assert.True(t, res.Success)
	gw.AssertExpectations(t)
}

func TestSubmitProfile_MutationFailureNotifiesAndStops(t *testing.T) {
	gw := &mockGateway{}
	gw.On("RegisterClient", mock.Anything, mock.Anything).
		Return(&gateway.MutationResult{Outcome: failed("9", "nit invalido")}, nil)
	o, sink := newOrchestrator(t, gw)

	res := o.SubmitProfile(context.Background(), profileForm(), IntentCreate, "auth-1")

	assert.False(t, res.Success)
	assert.Equal(t, errors.ErrorTypeGeneral, res.ErrorType)
	gw.AssertNotCalled(t, "SendOTP")

	events := sink.all()
	require.Len(t, events, 1)
	assert.False(t, events[0].Success)
	assert.Equal(t, "nit invalido", events[0].Result)
}

func TestSubmitProfile_Code24SkipsOTPAndChecksCredit(t *testing.T) {
	gw := &mockGateway{}
	gw.On("SendOTP", mock.Anything, "50502180").Return(&gateway.TokenSendResult{
		Outcome:       warning("24", "terminos ya aceptados"),
		TermsAccepted: true,
	}, nil)
	gw.On("CheckCreditLimit", mock.Anything, "50502180").Return(&gateway.CreditResult{
		Outcome:        ok(),
		ApprovedAmount: 500,
		RequestID:      "SOL-9001",
	}, nil)
	o, _ := newOrchestrator(t, gw)

	res := o.SubmitProfile(context.Background(), profileForm(), IntentContinue, "auth-1")

	assert.True(t, res.Success)
	assert.True(t, res.SkipOTP)
	assert.InDelta(t, 500.0, res.ApprovedAmount, 0.001)
	assert.Equal(t, "SOL-9001", res.RequestID)
	gw.AssertExpectations(t)
}

func TestSubmitProfile_SendFailureIsTokenError(t *testing.T) {
	gw := &mockGateway{}
	gw.On("SendOTP", mock.Anything, "50502180").Return(&gateway.TokenSendResult{
		Outcome: failed("26", "no se pudo enviar"),
	}, nil)
	o, _ := newOrchestrator(t, gw)

	res := o.SubmitProfile(context.Background(), profileForm(), IntentContinue, "auth-1")

	assert.False(t, res.Success)
	assert.Equal(t, errors.ErrorTypeToken, res.ErrorType)
	assert.Contains(t, res.Error, "26", "remote code surfaces in the message")
}

func TestSubmitProfile_MissingFields(t *testing.T) {
	tests := []struct {
		name  string
		blank func(f *ProfileForm)
	}{
		{"empty email", func(f *ProfileForm) { f.Email = "" }},
		{"empty identification", func(f *ProfileForm) { f.Identification = "" }},
		{"empty start date", func(f *ProfileForm) { f.StartDate = "" }},
		{"zero salary", func(f *ProfileForm) { f.MonthlySalary = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &mockGateway{}
			o, _ := newOrchestrator(t, gw)

			form := profileForm()
			tt.blank(&form)
			res := o.SubmitProfile(context.Background(), form, IntentContinue, "auth-1")

			assert.False(t, res.Success, "incomplete profile must be rejected")
			assert.Equal(t, errors.ErrorTypeGeneral, res.ErrorType)
			gw.AssertNotCalled(t, "SendOTP")
		})
	}
}

// Round-trip: a complete lookup fed through the pass-through path reaches
// OTP-send with every client-visible field intact.
func TestProfileRoundTrip_PassThroughMutatesNothing(t *testing.T) {
	gw := &mockGateway{}
	gw.On("LookupClient", mock.Anything, "50502180").Return(&gateway.LookupResult{
		Outcome: ok(), Client: completeRecord(), ClientID: "77",
	}, nil)
	gw.On("SendOTP", mock.Anything, "50502180").Return(&gateway.TokenSendResult{Outcome: ok()}, nil)
	o, sink := newOrchestrator(t, gw)

	lookup := o.SubmitPhone(context.Background(), "50502180")
	require.True(t, lookup.Success)

	form := ProfileForm{
		Identification:   lookup.Client.Identification,
		FullName:         lookup.Client.FullName,
		Phone:            lookup.Client.Phone,
		Email:            lookup.Client.Email,
		TaxID:            lookup.Client.TaxID,
		StartDate:        lookup.Client.StartDate,
		MonthlySalary:    4500,
		PaymentFrequency: lookup.Client.PaymentFrequency,
	}
	res := o.SubmitProfile(context.Background(), form, IntentContinue, "auth-1")
	require.True(t, res.Success)

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, "Maria Lopez", events[0].FormData["fullName"])
	assert.Equal(t, "maria@example.com", events[0].FormData["email"])
	assert.Equal(t, "01-05-2023", events[0].FormData["startDate"])
	assert.Equal(t, "monthly", events[0].FormData["paymentFrequency"])
}

// ==========================
// Step 2 Tests
// ==========================

func TestSubmitOTP_ValidTokenThenCredit(t *testing.T) {
	gw := &mockGateway{}
	gw.On("ValidateOTP", mock.Anything, "50502180", "AB12CD").
		Return(&gateway.TokenValidateResult{Outcome: ok()}, nil)
	gw.On("CheckCreditLimit", mock.Anything, "50502180").Return(&gateway.CreditResult{
		Outcome: ok(), ApprovedAmount: 750, RequestID: "SOL-7",
	}, nil)
	o, _ := newOrchestrator(t, gw)

	res := o.SubmitOTP(context.Background(), "50502180", "ab12cd")

	assert.True(t, res.Success)
	assert.InDelta(t, 750.0, res.ApprovedAmount, 0.001)
	assert.Equal(t, "SOL-7", res.RequestID)
	gw.AssertExpectations(t)
}

func TestSubmitOTP_WrongToken(t *testing.T) {
	gw := &mockGateway{}
	gw.On("ValidateOTP", mock.Anything, "50502180", "999999").
		Return(&gateway.TokenValidateResult{Outcome: failed("7", "token invalido")}, nil)
	o, _ := newOrchestrator(t, gw)

	res := o.SubmitOTP(context.Background(), "50502180", "999999")

	assert.False(t, res.Success)
	assert.Equal(t, errors.ErrorTypeToken, res.ErrorType)
	gw.AssertNotCalled(t, "CheckCreditLimit")
}

func TestSubmitOTP_CreditFailureIsCupoError(t *testing.T) {
	gw := &mockGateway{}
	gw.On("ValidateOTP", mock.Anything, "50502180", "222333").
		Return(&gateway.TokenValidateResult{Outcome: ok()}, nil)
	gw.On("CheckCreditLimit", mock.Anything, "50502180").Return(&gateway.CreditResult{
		Outcome: failed("12", "sin cupo disponible"),
	}, nil)
	o, _ := newOrchestrator(t, gw)

	res := o.SubmitOTP(context.Background(), "50502180", "222333")

	assert.False(t, res.Success)
	assert.Equal(t, errors.ErrorTypeCupo, res.ErrorType)
}

func TestSubmitOTP_BypassTokenSkipsValidation(t *testing.T) {
	gw := &mockGateway{}
	gw.On("CheckCreditLimit", mock.Anything, "50502180").Return(&gateway.CreditResult{
		Outcome: ok(), ApprovedAmount: 500, RequestID: "SOL-1",
	}, nil)
	sink := &recordingNotifier{}
	o := NewOrchestrator(gw, sink, config.BypassConfig{
		Enabled: true,
		Token:   "222222",
	}, logger.NewTestLogger(t))

	res := o.SubmitOTP(context.Background(), "50502180", "222222")

	assert.True(t, res.Success)
	gw.AssertNotCalled(t, "ValidateOTP")
}

func TestSubmitOTP_TokenLength(t *testing.T) {
	gw := &mockGateway{}
	o, _ := newOrchestrator(t, gw)

	res := o.SubmitOTP(context.Background(), "50502180", "12345")

	assert.False(t, res.Success)
	assert.Equal(t, errors.ErrorTypeToken, res.ErrorType)
	gw.AssertNotCalled(t, "ValidateOTP")
}

// ==========================
// Resend Tests
// ==========================

func TestResendOTP_PlainSuccessOnly(t *testing.T) {
	tests := []struct {
		name    string
		outcome gateway.Outcome
		terms   bool
		want    bool
	}{
		{"code 0 resends", ok(), false, true},
		{"code 24 is not a resend", warning("24", "terminos ya aceptados"), true, false},
		{"failure", failed("26", "no se pudo enviar"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &mockGateway{}
			gw.On("SendOTP", mock.Anything, "50502180").Return(&gateway.TokenSendResult{
				Outcome:       tt.outcome,
				TermsAccepted: tt.terms,
			}, nil)
			o, _ := newOrchestrator(t, gw)

			res := o.ResendOTP(context.Background(), "50502180")

			assert.Equal(t, tt.want, res.Success)
			if !tt.want {
				assert.Equal(t, errors.ErrorTypeToken, res.ErrorType)
			}
		})
	}
}

// ==========================
// Step 3 Tests
// ==========================

func TestSubmitDisbursement_Success(t *testing.T) {
	gw := &mockGateway{}
	gw.On("ExecuteDisbursement", mock.Anything, "50502180", "SOL-9001", 500.0, 36.40, "auth-1").
		Return(&gateway.DisbursementResult{Outcome: ok()}, nil)
	o, sink := newOrchestrator(t, gw)

	res := o.SubmitDisbursement(context.Background(), DisbursementRequest{
		Phone: "50502180", RequestID: "SOL-9001", Amount: 500, Commission: 36.40, Authorization: "auth-1",
	})

	assert.True(t, res.Success)
	assert.False(t, res.CommissionIssue)

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, 3, events[0].Step)
	assert.True(t, events[0].Success)
}

func TestSubmitDisbursement_Code34IsSuccessWithWarning(t *testing.T) {
	gw := &mockGateway{}
	gw.On("ExecuteDisbursement", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&gateway.DisbursementResult{
			Outcome:         warning("34", "comision pendiente"),
			CommissionIssue: true,
		}, nil)
	o, _ := newOrchestrator(t, gw)

	res := o.SubmitDisbursement(context.Background(), DisbursementRequest{
		Phone: "50502180", RequestID: "SOL-9001", Amount: 500, Commission: 36.40, Authorization: "auth-1",
	})

	assert.True(t, res.Success)
	assert.True(t, res.CommissionIssue)
}

func TestSubmitDisbursement_RemoteErrorNeverEscapes(t *testing.T) {
	gw := &mockGateway{}
	gw.On("ExecuteDisbursement", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.NewConnectionError("Ejecuta_Desembolso", assert.AnError))
	o, sink := newOrchestrator(t, gw)

	res := o.SubmitDisbursement(context.Background(), DisbursementRequest{
		Phone: "50502180", RequestID: "SOL-9001", Amount: 500, Commission: 36.40, Authorization: "auth-1",
	})

	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, errors.ErrorTypeDisbursement, res.ErrorType)

	events := sink.all()
	require.Len(t, events, 1)
	assert.False(t, events[0].Success)
}

// ==========================
// Test Bypass Tests
// ==========================

func TestBypassPhone_ShortCircuitsEveryStep(t *testing.T) {
	gw := &mockGateway{}
	sink := &recordingNotifier{}
	o := NewOrchestrator(gw, sink, config.BypassConfig{
		Enabled:        true,
		Phone:          "50502180",
		Token:          "222222",
		ApprovedAmount: 3500,
		RequestID:      "TEST-001",
	}, logger.NewTestLogger(t))

	phone := o.SubmitPhone(context.Background(), "50502180")
	assert.True(t, phone.Success)

	profile := o.SubmitProfile(context.Background(), profileForm(), IntentContinue, "auth-1")
	assert.True(t, profile.Success)

	otp := o.SubmitOTP(context.Background(), "50502180", "222222")
	assert.True(t, otp.Success)
	assert.InDelta(t, 3500.0, otp.ApprovedAmount, 0.001)
	assert.Equal(t, "TEST-001", otp.RequestID)

	disb := o.SubmitDisbursement(context.Background(), DisbursementRequest{
		Phone: "50502180", RequestID: "TEST-001", Amount: 500, Commission: 36.40, Authorization: "auth-1",
	})
	assert.True(t, disb.Success)

	gw.AssertNotCalled(t, "LookupClient")
	gw.AssertNotCalled(t, "SendOTP")
	gw.AssertNotCalled(t, "ValidateOTP")
	gw.AssertNotCalled(t, "CheckCreditLimit")
	gw.AssertNotCalled(t, "ExecuteDisbursement")
}

func TestBypassDisabled_TestPhoneGoesToNetwork(t *testing.T) {
	gw := &mockGateway{}
	gw.On("LookupClient", mock.Anything, "50502180").Return(&gateway.LookupResult{Outcome: ok()}, nil)
	o, _ := newOrchestrator(t, gw)

	res := o.SubmitPhone(context.Background(), "50502180")

	assert.True(t, res.Success)
	gw.AssertCalled(t, "LookupClient", mock.Anything, "50502180")
}
