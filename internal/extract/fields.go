package extract

// Method identifies which extraction pathway produced the field values.
type Method string

const (
	// MethodQRCode means the fields came from a decoded invoice QR payload.
	MethodQRCode Method = "qrcode"
	// MethodText means the fields came from free-text heuristics over OCR output.
	MethodText Method = "text"
	// MethodNone means no pathway produced any values.
	MethodNone Method = "none"
)

// Fields holds the values extracted from one invoice document. Every field is
// independently optional: a zero value means the field was not found. A record
// with nothing but a Method is still valid and is reported downstream as-is.
type Fields struct {
	TotalValue    float64 `json:"total_value,omitempty"`
	InvoiceNumber string  `json:"invoice_number,omitempty"`
	SupplierName  string  `json:"supplier_name,omitempty"`
	CustomerTaxID string  `json:"customer_tax_id,omitempty"`
	InvoiceDate   string  `json:"invoice_date,omitempty"` // ISO 8601 (YYYY-MM-DD)
	Currency      string  `json:"currency,omitempty"`     // ISO 4217 code
	Method        Method  `json:"method"`
}

// Empty reports whether no field at all was extracted.
func (f Fields) Empty() bool {
	return f.TotalValue == 0 &&
		f.InvoiceNumber == "" &&
		f.SupplierName == "" &&
		f.CustomerTaxID == "" &&
		f.InvoiceDate == ""
}
