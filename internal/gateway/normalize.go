package gateway

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"advance-wizard/internal/common/errors"
	"advance-wizard/internal/common/metrics"
)

// opSuccessCodes lists, per operation, every return code the flow must treat
// as success. Codes beyond the literal 0 are quirks inherited from the remote
// service and are preserved exactly; see opWarningCodes for their meaning.
var opSuccessCodes = map[string][]string{
	opLookupClient:   {"0", "5"},
	opSendToken:      {"0", "24"},
	opValidateToken:  {"0"},
	opValidateCupo:   {"0"},
	opDisburse:       {"0", "34"},
	opRegisterClient: {"0"},
	opEditClient:     {"0"},
}

// opWarningCodes are successes that carry side information:
// 5 = client found but profile incomplete, 24 = terms already accepted,
// 34 = disbursed but commission collection failed.
var opWarningCodes = map[string][]string{
	opLookupClient: {"5"},
	opSendToken:    {"24"},
	opDisburse:     {"34"},
}

func classify(operation, code, message string) Outcome {
	out := Outcome{Status: StatusFailed, Code: code, Message: message}
	for _, c := range opSuccessCodes[operation] {
		if c == code {
			out.Status = StatusOK
			break
		}
	}
	if out.Status == StatusOK {
		for _, c := range opWarningCodes[operation] {
			if c == code {
				out.Status = StatusOKWithWarning
				break
			}
		}
	}
	return out
}

// rawResult is the service's inner result after decoding: the envelope fields
// common to all operations plus any operation-specific extras.
type rawResult struct {
	code    string
	message string
	fields  map[string]interface{}
}

// extractResultNode walks the response XML and returns the inner text and the
// child elements of the <X_Result> node for the given operation. The result
// may be a plain (often JSON-encoded) string or a structured element; nested
// children such as <cliente> decode into nested maps, mirroring what the
// JSON path produces.
func extractResultNode(body []byte, operation string) (string, map[string]interface{}, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	resultName := operation + "Result"

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", nil, errors.NewProtocolError(operation, "result node not found in response")
		}
		if err != nil {
			return "", nil, errors.NewProtocolError(operation, fmt.Sprintf("malformed XML: %v", err))
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != resultName {
			continue
		}

		text, children, err := collectElement(dec, resultName)
		if err != nil {
			return "", nil, errors.NewProtocolError(operation, err.Error())
		}
		return text, children, nil
	}
}

// collectElement consumes tokens until the named element closes. A leaf
// element yields its trimmed text with no children; an element with nested
// elements yields them as a map, recursively.
func collectElement(dec *xml.Decoder, name string) (string, map[string]interface{}, error) {
	var b strings.Builder
	var children map[string]interface{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", nil, fmt.Errorf("truncated element %s: %v", name, err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.StartElement:
			childText, grandchildren, err := collectElement(dec, t.Name.Local)
			if err != nil {
				return "", nil, err
			}
			if children == nil {
				children = map[string]interface{}{}
			}
			if len(grandchildren) > 0 {
				children[t.Name.Local] = grandchildren
			} else {
				children[t.Name.Local] = childText
			}
		case xml.EndElement:
			if t.Name.Local == name {
				return strings.TrimSpace(b.String()), children, nil
			}
		}
	}
}

// decodeResult applies the dual-path normalization rule: structured children
// first, then a JSON decode of the string form, and as a last resort the
// whole string kept as the message with code "0". The fallback never errors;
// it is logged and counted so operators can see how often the lossy path fires.
func (c *Client) decodeResult(operation, text string, children map[string]interface{}) rawResult {
	if len(children) > 0 {
		return rawResult{
			code:    stringField(children, "codret", "0"),
			message: stringField(children, "mensaje", ""),
			fields:  children,
		}
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(text), &parsed); err == nil && parsed != nil {
		return rawResult{
			code:    stringField(parsed, "codret", "0"),
			message: stringField(parsed, "mensaje", text),
			fields:  parsed,
		}
	}

	c.log.Warn("result string is not JSON, keeping it as plain message", map[string]interface{}{
		"operation": operation,
	})
	metrics.DecodeFallbacks.WithLabelValues(operation).Inc()
	return rawResult{code: "0", message: text, fields: map[string]interface{}{}}
}

// stringField coerces a possibly numeric JSON value into its string form.
func stringField(fields map[string]interface{}, key, fallback string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return fallback
	}
	switch val := v.(type) {
	case string:
		if val == "" {
			return fallback
		}
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func floatField(fields map[string]interface{}, key string) float64 {
	v, ok := fields[key]
	if !ok || v == nil {
		return 0
	}
	switch val := v.(type) {
	case float64:
		return val
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.ReplaceAll(val, ",", ""), "%g", &f); err == nil {
			return f
		}
		return 0
	default:
		return 0
	}
}

// mapClientRecord turns the service's cliente payload (a nested object or a
// JSON-encoded string) into a ClientRecord. Undecodable payloads yield nil,
// never an error, matching the tolerant behavior of the legacy consumers.
func mapClientRecord(v interface{}) *ClientRecord {
	if v == nil {
		return nil
	}

	var obj map[string]interface{}
	switch val := v.(type) {
	case map[string]interface{}:
		obj = val
	case string:
		if val == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(val), &obj); err != nil {
			return nil
		}
	default:
		return nil
	}

	return &ClientRecord{
		ID:                   stringField(obj, "ID", ""),
		Status:               stringField(obj, "STATUS", ""),
		IdentificationNumber: stringField(obj, "NUMERO_IDENTIFICACION", ""),
		FullName:             stringField(obj, "NOMBRE_COMPLETO", ""),
		Phone:                stringField(obj, "CELULAR", ""),
		Email:                stringField(obj, "EMAIL", ""),
		TaxID:                stringField(obj, "NIT", ""),
		StartDate:            stringField(obj, "FECHA_ALTA", ""),
		MonthlySalary:        stringField(obj, "SALARIO_MENSUAL", ""),
		PaymentFrequency:     stringField(obj, "FRECUENCIA_PAGO", ""),
		Dispersions:          stringField(obj, "NUMERO_DISPERSIONES", ""),
		AvgDispersionAmount:  stringField(obj, "MONTO_PROMEDIO_DISPERSION", ""),
		AcceptsTerms:         stringField(obj, "ACEPTA_TERMINOS", ""),
		EndDate:              stringField(obj, "FECHA_BAJA", ""),
	}
}
