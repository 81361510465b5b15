package extract

import (
	"strings"
	"time"
)

// Keys from the Autoridade Tributária invoice QR schema that we read. The
// payload is a *-joined list of key:value segments; any key not listed here is
// ignored so newer schema revisions keep parsing.
const (
	keyCustomerTaxID = "B"
	keyInvoiceDate   = "F"
	keyInvoiceNumber = "G"
	keyTotalPaid     = "O"
)

const compactDateLayout = "20060102"

// FromPayload parses a decoded structured invoice code. Amounts use the
// comma-decimal convention ("55,20"), dates are 8 compact digits. A payload
// where neither the total nor the invoice number resolve is treated as
// corrupted and re-scanned with the free-text heuristics, so partially
// readable codes still yield partial records. FromPayload never fails.
func FromPayload(payload string) Fields {
	// The AT schema is euro-denominated; currency only varies on the
	// free-text pathway.
	fields := Fields{Method: MethodQRCode, Currency: "EUR"}

	for _, segment := range strings.Split(payload, "*") {
		key, value, ok := strings.Cut(segment, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch strings.TrimSpace(key) {
		case keyCustomerTaxID:
			fields.CustomerTaxID = value
		case keyInvoiceDate:
			if date, err := time.Parse(compactDateLayout, value); err == nil {
				fields.InvoiceDate = date.Format("2006-01-02")
			}
		case keyInvoiceNumber:
			fields.InvoiceNumber = value
		case keyTotalPaid:
			if amount, ok := parseAmount(value); ok {
				fields.TotalValue = amount
			}
		}
	}

	if fields.TotalValue == 0 && fields.InvoiceNumber == "" {
		fallback := FromText(payload)
		fields.TotalValue = fallback.TotalValue
		fields.InvoiceNumber = fallback.InvoiceNumber
	}

	return fields
}
