package model

// Field names a result attribute of a CompanyRecord.
type Field string

const (
	FieldPhone       Field = "phone"
	FieldAddress     Field = "address"
	FieldRepName     Field = "rep_name"
	FieldDescription Field = "description"
	FieldListing     Field = "listing"
	FieldCapital     Field = "capital"
	FieldRevenue     Field = "revenue"
	FieldProfit      Field = "profit"
	FieldFiscalMonth Field = "fiscal_month"
	FieldFoundedYear Field = "founded_year"
)

// AllFields returns every extractable field in a stable order.
func AllFields() []Field {
	return []Field{
		FieldPhone,
		FieldAddress,
		FieldRepName,
		FieldDescription,
		FieldListing,
		FieldCapital,
		FieldRevenue,
		FieldProfit,
		FieldFiscalMonth,
		FieldFoundedYear,
	}
}

// ParseField returns the Field named s.
func ParseField(s string) (Field, bool) {
	for _, f := range AllFields() {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// Method records how a value was obtained.
type Method string

const (
	MethodRule Method = "rule"
	MethodAI   Method = "ai"
)

// ExtractedField is a candidate value produced by an extractor.
type ExtractedField struct {
	Field      Field   `json:"field"`
	Value      string  `json:"value"`
	SourceURL  string  `json:"source_url"`
	Method     Method  `json:"method"`
	Confidence float64 `json:"confidence"`
	// Evidence is the label or region the value came from, e.g. "本社所在地".
	Evidence string `json:"evidence,omitempty"`
}

// FieldProvenance is the persisted provenance of one result field.
type FieldProvenance struct {
	SourceURL  string  `json:"source_url"`
	Method     Method  `json:"method"`
	Confidence float64 `json:"confidence"`
	Verified   bool    `json:"verified"`
	Evidence   string  `json:"evidence,omitempty"`
}
