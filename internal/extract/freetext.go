package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// amountGroup matches a money amount with exactly two decimals in either the
// European ("1.234,56") or anglophone ("1,234.56") convention.
const amountGroup = `((?:\d{1,3}(?:[ .,]\d{3})+|\d+)[.,]\d{2})`

// amountPatterns are tried in order; the first match wins. Earlier patterns
// anchor on stronger context (label plus currency) and later ones get
// progressively more permissive, down to "a decimal near the end of the text".
var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:total|montante|valor|importância)[^\d€$£\n]{0,24}(?:€|eur(?:os?)?)\s*` + amountGroup),
	regexp.MustCompile(`(?i)(?:€|\$|£|eur|usd|gbp)\s*` + amountGroup),
	regexp.MustCompile(`(?i)(?:total(?:\s+amount)?(?:\s+due)?|total\s+a\s+pagar|valor\s+total|montante\s+total)\s*[:\-]?\s*` + amountGroup),
	regexp.MustCompile(`\b(?:FT|FR|FS|ND|NC)\b[^\n]{0,40}?\s` + amountGroup),
	regexp.MustCompile(amountGroup + `\s*\S{0,12}\s*$`),
}

// currencyPatterns map currency markers to ISO codes. R$ is checked before the
// bare dollar sign so Brazilian amounts do not read as USD.
var currencyPatterns = []struct {
	re   *regexp.Regexp
	code string
}{
	{regexp.MustCompile(`R\$|(?i)\bbrl\b|\breais\b`), "BRL"},
	{regexp.MustCompile(`€|(?i)\beur(?:os?)?\b`), "EUR"},
	{regexp.MustCompile(`\$|(?i)\busd\b|\bdollars?\b`), "USD"},
	{regexp.MustCompile(`£|(?i)\bgbp\b|\bpounds?\b`), "GBP"},
}

// invoicePatterns extract a document identifier. Series-prefixed forms
// ("FT 2025/123", the AT document-type prefixes) are preferred over generic
// label forms, which exist in Portuguese, Spanish and English variants.
var invoicePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b((?:FT|FR|FS|ND|NC|FA)[A-Z]?\s?[A-Z0-9]*[/ ]?\d+(?:/\d+)?)\b`),
	regexp.MustCompile(`(?i)(?:fatura|factura|invoice|recibo)\s*(?:n[oº°]?\.?|number|#)?\s*[:\-]?\s*([A-Z]{0,4}[\s-]?\d[\dA-Z/\-.]{1,23})`),
	regexp.MustCompile(`(?i)(?:n[º°]|no\.?|#)\s*[:\-]?\s*(\d[\dA-Z/\-]{2,20})`),
}

// supplierMarker matches a line carrying the supplier name followed by a tax
// ID or address marker, used when the first line of the document is unusable.
var supplierMarker = regexp.MustCompile(`(?i)^(.{3,60}?)\s*[-–,]?\s*(?:NIF|NIPC|Contribuinte|VAT|Rua\s|Av\.|Avenida\s)`)

var whitespaceRun = regexp.MustCompile(`[ \t\r]+`)

// FromText extracts fields from a plain-text rendition of the document. Each
// field is located independently; missing fields stay at their zero value and
// FromText never fails.
func FromText(text string) Fields {
	fields := Fields{Method: MethodText}
	flat := normalizeWhitespace(text)

	for _, re := range amountPatterns {
		if m := re.FindStringSubmatch(flat); m != nil {
			if amount, ok := parseAmount(m[1]); ok {
				fields.TotalValue = amount
				break
			}
		}
	}

	for _, candidate := range currencyPatterns {
		if candidate.re.MatchString(flat) {
			fields.Currency = candidate.code
			break
		}
	}

	for _, re := range invoicePatterns {
		if m := re.FindStringSubmatch(flat); m != nil {
			fields.InvoiceNumber = strings.TrimSpace(m[1])
			break
		}
	}

	fields.SupplierName = supplierName(text)
	return fields
}

// supplierName takes the first non-empty line when its length is plausible for
// a business name, falling back to the text preceding a tax-ID or address
// marker anywhere in the document.
func supplierName(text string) string {
	lines := strings.Split(text, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) >= 3 && len(line) <= 60 {
			return line
		}
		break
	}
	for _, line := range lines {
		if m := supplierMarker.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			if name := strings.TrimSpace(m[1]); len(name) >= 3 {
				return name
			}
		}
	}
	return ""
}

// normalizeWhitespace collapses runs of spaces and tabs so label patterns
// survive ragged OCR spacing. Newlines are kept for the end-of-text anchor.
func normalizeWhitespace(text string) string {
	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// parseAmount normalizes a matched amount to a positive float. The decimal
// convention is decided by the relative position of the last comma and the
// last period: "1.234,56" is comma-decimal, "1,234.56" is period-decimal.
func parseAmount(raw string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == ',' || r == '.' {
			return r
		}
		return -1
	}, raw)
	if cleaned == "" {
		return 0, false
	}
	if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	} else {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}
