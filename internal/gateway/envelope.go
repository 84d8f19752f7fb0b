package gateway

import (
	"fmt"
	"strings"
)

// SOAP operation names on the legacy PAQ service. valida_cupo really is
// lowercase on the remote WSDL.
const (
	opLookupClient     = "Consulta_Cliente"
	opSendToken        = "Envia_Token_TyC"
	opValidateToken    = "Valida_Token_TyC"
	opValidateCupo     = "valida_cupo"
	opDisburse         = "Ejecuta_Desembolso"
	opRegisterClient   = "Registra_Cliente"
	opEditClient       = "Edita_Cliente"
)

const soapNamespace = "http://www.paq.com.gt/"

type param struct {
	name  string
	value string
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	`"`, "&quot;",
)

// buildEnvelope renders the SOAP 1.1 envelope for one operation. Parameter
// order matters to the legacy service, hence the slice.
func buildEnvelope(operation string, params []param) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	b.WriteString(`<soap:Envelope xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">` + "\n")
	b.WriteString("  <soap:Body>\n")
	fmt.Fprintf(&b, "    <%s xmlns=%q>\n", operation, soapNamespace)
	for _, p := range params {
		fmt.Fprintf(&b, "      <%s>%s</%s>\n", p.name, xmlEscaper.Replace(p.value), p.name)
	}
	fmt.Fprintf(&b, "    </%s>\n", operation)
	b.WriteString("  </soap:Body>\n")
	b.WriteString("</soap:Envelope>")
	return b.String()
}

// credParams prefixes the credential pair every operation requires.
func credParams(username, password string, rest ...param) []param {
	params := []param{
		{"USERNAME", username},
		{"PASSWORD", password},
	}
	return append(params, rest...)
}
