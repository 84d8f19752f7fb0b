package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"advance-wizard/internal/common/logger"
	"advance-wizard/internal/common/validation"
	"advance-wizard/internal/wizard"
	"advance-wizard/internal/wizard/session"
)

// StepRunner is the orchestrator surface the handlers need. Satisfied by
// *wizard.Orchestrator.
type StepRunner interface {
	SubmitPhone(ctx context.Context, phone string) wizard.StepResult
	SubmitProfile(ctx context.Context, form wizard.ProfileForm, intent wizard.Intent, authorization string) wizard.StepResult
	SubmitOTP(ctx context.Context, phone, token string) wizard.StepResult
	ResendOTP(ctx context.Context, phone string) wizard.StepResult
	SubmitDisbursement(ctx context.Context, req wizard.DisbursementRequest) wizard.StepResult
}

// Handlers binds the HTTP surface to the session store and the orchestrator.
type Handlers struct {
	store *session.Store
	orch  StepRunner
	log   logger.Logger
}

func NewHandlers(store *session.Store, orch StepRunner, log logger.Logger) *Handlers {
	return &Handlers{store: store, orch: orch, log: log}
}

type stepResponse struct {
	Result wizard.StepResult `json:"result"`
	State  session.State     `json:"state"`
}

// createSession starts a fresh wizard session.
func (h *Handlers) createSession(c *gin.Context) {
	state, err := h.store.Start(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("failed to start session", nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start session"})
		return
	}
	c.JSON(http.StatusCreated, state)
}

// getSession returns the current view-state.
func (h *Handlers) getSession(c *gin.Context) {
	state, ok := h.loadSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, state)
}

// submitPhone is step 0. A lookup that returns a complete profile chains
// straight into the step-1 pass-through, landing on OTP entry, or on the
// credit offer when the OTP send reports terms already accepted.
func (h *Handlers) submitPhone(c *gin.Context) {
	state, ok := h.loadSession(c)
	if !ok {
		return
	}
	body, ok := h.bindValidated(c, phoneSchema)
	if !ok {
		return
	}
	phone, _ := body["phoneNumber"].(string)
	ctx := c.Request.Context()

	if _, err := h.store.Dispatch(ctx, state.SessionID, session.Loading{}); err != nil {
		h.storeError(c, err)
		return
	}

	res := h.orch.SubmitPhone(ctx, phone)
	if !res.Success {
		h.finishFailed(c, state.SessionID, session.StepPhone, res)
		return
	}

	if res.Client.Complete() {
		h.chainCompleteProfile(c, state, res)
		return
	}

	next, err := h.store.Dispatch(ctx, state.SessionID, session.Succeeded{
		Target:   session.StepProfile,
		Client:   res.Client,
		ClientID: res.ClientID,
	})
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stepResponse{Result: res, State: next})
}

// chainCompleteProfile runs the programmatic step-1 pass-through after a
// complete lookup: the client sees neither the form nor, with code 24, the
// OTP screen.
func (h *Handlers) chainCompleteProfile(c *gin.Context, state session.State, lookup wizard.StepResult) {
	ctx := c.Request.Context()

	salary, err := strconv.ParseFloat(lookup.Client.MonthlySalary, 64)
	if err != nil || salary <= 0 {
		// Record claims completeness but the salary is unusable; fall back
		// to the manual form.
		next, derr := h.store.Dispatch(ctx, state.SessionID, session.Succeeded{
			Target:   session.StepProfile,
			Client:   lookup.Client,
			ClientID: lookup.ClientID,
		})
		if derr != nil {
			h.storeError(c, derr)
			return
		}
		c.JSON(http.StatusOK, stepResponse{Result: lookup, State: next})
		return
	}

	form := wizard.ProfileForm{
		Identification:   lookup.Client.Identification,
		FullName:         lookup.Client.FullName,
		Phone:            lookup.Client.Phone,
		Email:            lookup.Client.Email,
		TaxID:            lookup.Client.TaxID,
		StartDate:        lookup.Client.StartDate,
		MonthlySalary:    salary,
		PaymentFrequency: lookup.Client.PaymentFrequency,
	}

	res := h.orch.SubmitProfile(ctx, form, wizard.IntentContinue, state.Authorization)
	if !res.Success {
		h.finishFailed(c, state.SessionID, session.StepProfile, res)
		return
	}

	target := session.StepOTP
	if res.SkipOTP {
		target = session.StepOffer
	}
	res.Client = lookup.Client
	res.ClientID = lookup.ClientID

	next, err := h.store.Dispatch(ctx, state.SessionID, session.Succeeded{
		Target:         target,
		Client:         lookup.Client,
		ClientID:       lookup.ClientID,
		ApprovedAmount: res.ApprovedAmount,
		RequestID:      res.RequestID,
	})
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stepResponse{Result: res, State: next})
}

// submitProfile is step 1 for clients who filled the form manually.
func (h *Handlers) submitProfile(c *gin.Context) {
	state, ok := h.loadSession(c)
	if !ok {
		return
	}
	body, ok := h.bindValidated(c, profileSchema)
	if !ok {
		return
	}

	var form wizard.ProfileForm
	raw, _ := json.Marshal(body)
	if err := json.Unmarshal(raw, &form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed profile payload"})
		return
	}

	intent := wizard.IntentContinue
	if v, okv := body["intent"].(string); okv && v != "" {
		intent = wizard.Intent(v)
	}

	ctx := c.Request.Context()
	if _, err := h.store.Dispatch(ctx, state.SessionID,
		session.Loading{},
		session.FormUpdated{Form: session.FormData{
			PhoneNumber:      form.Phone,
			Identification:   form.Identification,
			FullName:         form.FullName,
			Email:            form.Email,
			TaxID:            form.TaxID,
			StartDate:        form.StartDate,
			MonthlySalary:    form.MonthlySalary,
			PaymentFrequency: form.PaymentFrequency,
		}},
	); err != nil {
		h.storeError(c, err)
		return
	}

	res := h.orch.SubmitProfile(ctx, form, intent, state.Authorization)
	if !res.Success {
		h.finishFailed(c, state.SessionID, session.StepProfile, res)
		return
	}

	target := session.StepOTP
	if res.SkipOTP {
		target = session.StepOffer
	}
	next, err := h.store.Dispatch(ctx, state.SessionID, session.Succeeded{
		Target:         target,
		ClientID:       res.ClientID,
		ApprovedAmount: res.ApprovedAmount,
		RequestID:      res.RequestID,
	})
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stepResponse{Result: res, State: next})
}

// submitOTP is step 2: token validation followed by the credit check.
func (h *Handlers) submitOTP(c *gin.Context) {
	state, ok := h.loadSession(c)
	if !ok {
		return
	}
	body, ok := h.bindValidated(c, otpSchema)
	if !ok {
		return
	}
	token, _ := body["token"].(string)
	ctx := c.Request.Context()

	if _, err := h.store.Dispatch(ctx, state.SessionID, session.Loading{}); err != nil {
		h.storeError(c, err)
		return
	}

	res := h.orch.SubmitOTP(ctx, state.Form.PhoneNumber, token)
	if !res.Success {
		h.finishFailed(c, state.SessionID, session.StepOTP, res)
		return
	}

	next, err := h.store.Dispatch(ctx, state.SessionID, session.Succeeded{
		Target:         session.StepOffer,
		ApprovedAmount: res.ApprovedAmount,
		RequestID:      res.RequestID,
	})
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stepResponse{Result: res, State: next})
}

// resendOTP re-sends the token without moving the wizard.
func (h *Handlers) resendOTP(c *gin.Context) {
	state, ok := h.loadSession(c)
	if !ok {
		return
	}

	res := h.orch.ResendOTP(c.Request.Context(), state.Form.PhoneNumber)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, stepResponse{Result: res, State: state})
}

// submitDisbursement is step 3: executes the transfer with the session's
// offer figures. The commission sent is the same one shown to the user.
func (h *Handlers) submitDisbursement(c *gin.Context) {
	state, ok := h.loadSession(c)
	if !ok {
		return
	}
	if state.Offer.RequestID == "" || state.Offer.RequestedAmount <= 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "no credit offer in this session"})
		return
	}
	ctx := c.Request.Context()

	if _, err := h.store.Dispatch(ctx, state.SessionID, session.Loading{}); err != nil {
		h.storeError(c, err)
		return
	}

	res := h.orch.SubmitDisbursement(ctx, wizard.DisbursementRequest{
		Phone:         state.Form.PhoneNumber,
		RequestID:     state.Offer.RequestID,
		Amount:        state.Offer.RequestedAmount,
		Commission:    state.Offer.Commission,
		Authorization: state.Authorization,
	})
	if !res.Success {
		h.finishFailed(c, state.SessionID, session.StepOffer, res)
		return
	}

	next, err := h.store.Dispatch(ctx, state.SessionID, session.Succeeded{
		Target:          session.StepReceipt,
		CommissionIssue: res.CommissionIssue,
	})
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stepResponse{Result: res, State: next})
}

// changeAmount updates the requested amount and recomputes the disbursement.
func (h *Handlers) changeAmount(c *gin.Context) {
	state, ok := h.loadSession(c)
	if !ok {
		return
	}
	body, ok := h.bindValidated(c, amountSchema)
	if !ok {
		return
	}
	amount, _ := body["amount"].(float64)

	if !wizard.ValidAdvanceAmount(amount, state.Offer.ApprovedAmount) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "amount out of range",
			"min":   wizard.MinAdvanceAmount,
			"max":   state.Offer.ApprovedAmount,
		})
		return
	}

	next, err := h.store.Dispatch(c.Request.Context(), state.SessionID, session.AmountChanged{Requested: amount})
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, next)
}

// retry returns from the fallback state to the recorded origin step.
func (h *Handlers) retry(c *gin.Context) {
	h.dispatchSimple(c, session.Retry{})
}

// reset wipes the session back to phone intake.
func (h *Handlers) reset(c *gin.Context) {
	h.dispatchSimple(c, session.Reset{})
}

func (h *Handlers) dispatchSimple(c *gin.Context, ev session.Event) {
	state, ok := h.loadSession(c)
	if !ok {
		return
	}
	next, err := h.store.Dispatch(c.Request.Context(), state.SessionID, ev)
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, next)
}

// finishFailed records a step failure and responds with the fallback state.
func (h *Handlers) finishFailed(c *gin.Context, sessionID string, origin session.Step, res wizard.StepResult) {
	next, err := h.store.Dispatch(c.Request.Context(), sessionID, session.Failed{
		Origin:  origin,
		Type:    res.ErrorType,
		Message: res.Error,
	})
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stepResponse{Result: res, State: next})
}

func (h *Handlers) loadSession(c *gin.Context) (session.State, bool) {
	state, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.storeError(c, err)
		return session.State{}, false
	}
	return state, true
}

func (h *Handlers) storeError(c *gin.Context, err error) {
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found or expired"})
		return
	}
	h.log.WithError(err).Error("session store failure", nil)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "session store unavailable"})
}

// bindValidated decodes the request body and checks it against the schema.
func (h *Handlers) bindValidated(c *gin.Context, schema validation.JSONSchema) (map[string]interface{}, bool) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
		return nil, false
	}

	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
		return nil, false
	}

	violations, err := validation.ValidateInput(body, schema)
	if err != nil {
		h.log.WithError(err).Error("schema validation failed to run", nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "validation unavailable"})
		return nil, false
	}
	if len(violations) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Describe(violations)})
		return nil, false
	}
	return body, true
}
