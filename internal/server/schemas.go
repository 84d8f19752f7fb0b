package server

import "advance-wizard/internal/common/validation"

// Request schemas per step endpoint, validated before the orchestrator runs.
// Phone numbers allow embedded spaces here; the gateway strips and re-checks.

var phoneSchema = validation.JSONSchema{
	Type: "object",
	Properties: map[string]validation.Property{
		"phoneNumber": {Type: "string", Pattern: `^[0-9 ]{8,12}$`},
	},
	Required: []string{"phoneNumber"},
}

var profileSchema = validation.JSONSchema{
	Type: "object",
	Properties: map[string]validation.Property{
		"identification":   {Type: "string", MinLength: validation.IntPtr(1)},
		"fullName":         {Type: "string", MinLength: validation.IntPtr(1)},
		"phoneNumber":      {Type: "string", Pattern: `^[0-9 ]{8,12}$`},
		"email":            {Type: "string", Pattern: `^[^@\s]+@[^@\s]+\.[^@\s]+$`},
		"taxId":            {Type: "string", MinLength: validation.IntPtr(1)},
		"startDate":        {Type: "string", MinLength: validation.IntPtr(1)},
		"monthlySalary":    {Type: "number", Minimum: validation.FloatPtr(0.01)},
		"paymentFrequency": {Type: "string", Enum: []string{"monthly", "biweekly", "weekly"}},
		"intent":           {Type: "string", Enum: []string{"create", "edit", "continue"}},
	},
	Required: []string{"identification", "fullName", "phoneNumber", "email", "taxId", "startDate", "monthlySalary", "paymentFrequency"},
}

var otpSchema = validation.JSONSchema{
	Type: "object",
	Properties: map[string]validation.Property{
		"token": {Type: "string", MinLength: validation.IntPtr(6), MaxLength: validation.IntPtr(8)},
	},
	Required: []string{"token"},
}

var amountSchema = validation.JSONSchema{
	Type: "object",
	Properties: map[string]validation.Property{
		"amount": {Type: "number", Minimum: validation.FloatPtr(1)},
	},
	Required: []string{"amount"},
}
