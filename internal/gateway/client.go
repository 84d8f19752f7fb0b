// Package gateway is the boundary to the legacy PAQ SOAP web service. It
// builds the envelopes for the seven wizard operations and normalizes the
// service's heterogeneous responses into tagged outcomes.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"advance-wizard/internal/common/config"
	"advance-wizard/internal/common/errors"
	"advance-wizard/internal/common/logger"
	"advance-wizard/internal/common/metrics"
)

// Client talks to the PAQ salary-advance web service.
type Client struct {
	url        string
	username   string
	password   string
	httpClient *http.Client
	log        logger.Logger
}

func NewClient(cfg config.SOAPConfig, log logger.Logger) *Client {
	return &Client{
		url:      cfg.URL,
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Millisecond,
		},
		log: log.WithFields(map[string]interface{}{"component": "gateway"}),
	}
}

// checkCredentials runs before any network attempt.
func (c *Client) checkCredentials() error {
	if c.username == "" || c.password == "" {
		return errors.NewConfigurationError(
			"SOAP credentials not configured, check SOAP_USERNAME and SOAP_PASSWORD_URL_ENCODE")
	}
	return nil
}

// CleanPhone strips whitespace and validates the 8-digit requirement shared
// by every operation.
func CleanPhone(phone string) (string, error) {
	clean := strings.ReplaceAll(phone, " ", "")
	if len(clean) != 8 {
		return "", errors.NewValidationError("phone number must have 8 digits")
	}
	for _, r := range clean {
		if r < '0' || r > '9' {
			return "", errors.NewValidationError("phone number must contain only digits")
		}
	}
	return clean, nil
}

// call posts one SOAP envelope and returns the raw response body.
func (c *Client) call(ctx context.Context, operation, envelope string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(envelope))
	if err != nil {
		return nil, errors.NewConnectionError(operation, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapNamespace+operation)
	req.Header.Set("Accept", "text/xml; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RemoteCalls.WithLabelValues(operation, "connection_error").Inc()
		return nil, errors.NewConnectionError(operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RemoteCalls.WithLabelValues(operation, "connection_error").Inc()
		return nil, errors.NewConnectionError(operation, err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.RemoteCalls.WithLabelValues(operation, "connection_error").Inc()
		return nil, errors.NewConnectionError(operation,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	return body, nil
}

// invoke runs the full call-extract-decode pipeline for one operation.
func (c *Client) invoke(ctx context.Context, operation string, params []param) (rawResult, error) {
	envelope := buildEnvelope(operation, params)

	body, err := c.call(ctx, operation, envelope)
	if err != nil {
		return rawResult{}, err
	}

	text, children, err := extractResultNode(body, operation)
	if err != nil {
		metrics.RemoteCalls.WithLabelValues(operation, "protocol_error").Inc()
		return rawResult{}, err
	}

	raw := c.decodeResult(operation, text, children)
	return raw, nil
}

func (c *Client) finish(operation string, out Outcome) {
	metrics.RemoteCalls.WithLabelValues(operation, out.Status.String()).Inc()
	if out.Succeeded() {
		c.log.Debug("remote call succeeded", map[string]interface{}{
			"operation": operation,
			"code":      out.Code,
		})
	} else {
		c.log.Warn("remote call failed", map[string]interface{}{
			"operation": operation,
			"code":      out.Code,
			"message":   out.Message,
		})
	}
}

// LookupClient queries a client by phone number (Consulta_Cliente).
func (c *Client) LookupClient(ctx context.Context, phone string) (*LookupResult, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}
	clean, err := CleanPhone(phone)
	if err != nil {
		return nil, err
	}

	raw, err := c.invoke(ctx, opLookupClient, credParams(c.username, c.password,
		param{"CELULAR", clean},
	))
	if err != nil {
		return nil, err
	}

	out := classify(opLookupClient, raw.code, raw.message)
	c.finish(opLookupClient, out)

	res := &LookupResult{
		Outcome:    out,
		Incomplete: raw.code == "5",
	}
	if client := mapClientRecord(raw.fields["cliente"]); client != nil {
		res.ClientID = client.ID
		res.Client = client
	}
	return res, nil
}

// SendOTP sends the terms-and-conditions OTP via SMS (Envia_Token_TyC).
func (c *Client) SendOTP(ctx context.Context, phone string) (*TokenSendResult, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}
	clean, err := CleanPhone(phone)
	if err != nil {
		return nil, err
	}

	raw, err := c.invoke(ctx, opSendToken, credParams(c.username, c.password,
		param{"CELULAR", clean},
	))
	if err != nil {
		return nil, err
	}

	out := classify(opSendToken, raw.code, raw.message)
	c.finish(opSendToken, out)

	return &TokenSendResult{
		Outcome:       out,
		TermsAccepted: raw.code == "24",
	}, nil
}

// ValidateOTP checks the token the client received (Valida_Token_TyC).
func (c *Client) ValidateOTP(ctx context.Context, phone, token string) (*TokenValidateResult, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}
	clean, err := CleanPhone(phone)
	if err != nil {
		return nil, err
	}
	cleanToken := strings.ReplaceAll(token, " ", "")
	if len(cleanToken) != 6 {
		return nil, errors.NewValidationError("token must have 6 characters")
	}

	raw, err := c.invoke(ctx, opValidateToken, credParams(c.username, c.password,
		param{"CELULAR", clean},
		param{"TOKEN", cleanToken},
	))
	if err != nil {
		return nil, err
	}

	out := classify(opValidateToken, raw.code, raw.message)
	c.finish(opValidateToken, out)
	return &TokenValidateResult{Outcome: out}, nil
}

// CheckCreditLimit validates the available advance amount (valida_cupo).
func (c *Client) CheckCreditLimit(ctx context.Context, phone string) (*CreditResult, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}
	clean, err := CleanPhone(phone)
	if err != nil {
		return nil, err
	}

	raw, err := c.invoke(ctx, opValidateCupo, credParams(c.username, c.password,
		param{"CELULAR", clean},
	))
	if err != nil {
		return nil, err
	}

	out := classify(opValidateCupo, raw.code, raw.message)
	c.finish(opValidateCupo, out)

	return &CreditResult{
		Outcome:            out,
		RequestID:          stringField(raw.fields, "id_solicitud", ""),
		Phone:              stringField(raw.fields, "celular", ""),
		ApprovedAmount:     floatField(raw.fields, "cupo_autorizado"),
		CommissionOnLimit:  floatField(raw.fields, "comision_sobre_cupo"),
		CommissionPct:      floatField(raw.fields, "porc_comision"),
		Band1MaxLimit:      floatField(raw.fields, "limMaxComBanda1"),
		Band1MinCommission: floatField(raw.fields, "comMinBanda1"),
		Band2MaxLimit:      floatField(raw.fields, "limMaxComBanda2"),
		Band2MinCommission: floatField(raw.fields, "comMinBanda2"),
	}, nil
}

// ExecuteDisbursement transfers the approved funds (Ejecuta_Desembolso).
func (c *Client) ExecuteDisbursement(ctx context.Context, phone, requestID string, amount, commission float64, authorization string) (*DisbursementResult, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}
	clean, err := CleanPhone(phone)
	if err != nil {
		return nil, err
	}
	if requestID == "" {
		return nil, errors.NewValidationError("request id is required")
	}
	if amount <= 0 {
		return nil, errors.NewValidationError("amount must be positive")
	}
	if commission < 0 {
		return nil, errors.NewValidationError("commission must not be negative")
	}
	if authorization == "" {
		return nil, errors.NewValidationError("authorization is required")
	}

	raw, err := c.invoke(ctx, opDisburse, credParams(c.username, c.password,
		param{"CELULAR", clean},
		param{"ID_SOLICITUD", requestID},
		param{"MONTO", formatAmount(amount)},
		param{"COMISION", formatAmount(commission)},
		param{"AUTORIZACION", authorization},
	))
	if err != nil {
		return nil, err
	}

	out := classify(opDisburse, raw.code, raw.message)
	c.finish(opDisburse, out)

	return &DisbursementResult{
		Outcome:         out,
		CommissionIssue: raw.code == "34",
	}, nil
}

// RegisterClient creates a new client profile (Registra_Cliente).
func (c *Client) RegisterClient(ctx context.Context, p ClientProfile) (*MutationResult, error) {
	return c.mutateClient(ctx, opRegisterClient, p, "")
}

// EditClient updates an existing client profile (Edita_Cliente). Status "A"
// marks the profile active.
func (c *Client) EditClient(ctx context.Context, p ClientProfile, status string) (*MutationResult, error) {
	return c.mutateClient(ctx, opEditClient, p, status)
}

// ClientProfile carries the fields Registra_Cliente / Edita_Cliente expect.
type ClientProfile struct {
	Identification   string
	FullName         string
	Phone            string
	Email            string
	TaxID            string
	MonthlySalary    float64
	PaymentFrequency string
}

func (c *Client) mutateClient(ctx context.Context, operation string, p ClientProfile, status string) (*MutationResult, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}
	clean, err := CleanPhone(p.Phone)
	if err != nil {
		return nil, err
	}
	if p.Identification == "" || p.FullName == "" || p.Email == "" || p.TaxID == "" || p.PaymentFrequency == "" {
		return nil, errors.NewValidationError("all profile fields are required")
	}

	params := credParams(c.username, c.password,
		param{"NUMERO_IDENTIFICACION", p.Identification},
		param{"NOMBRE_COMPLETO", p.FullName},
		param{"CELULAR", clean},
		param{"EMAIL", p.Email},
		param{"NIT", p.TaxID},
		param{"SALARIO_MENSUAL", formatAmount(p.MonthlySalary)},
		param{"FRECUENCIA_PAGO", p.PaymentFrequency},
	)
	if operation == opEditClient {
		params = append(params, param{"STATUS", status})
	}

	raw, err := c.invoke(ctx, operation, params)
	if err != nil {
		return nil, err
	}

	out := classify(operation, raw.code, raw.message)
	c.finish(operation, out)

	return &MutationResult{
		Outcome:  out,
		ClientID: stringField(raw.fields, "idCliente", ""),
	}, nil
}

func formatAmount(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", f), "0"), ".")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
