// Package normalize holds the idempotent field normalizers applied before
// values are persisted. Every rule satisfies f(f(x)) == f(x) and returns ""
// when the input cannot be normalized.
package normalize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Normalizer applies the per-field rules and drops values carrying known
// lead-list vendor boilerplate.
type Normalizer struct {
	markers []string
}

// New creates a Normalizer with the given invalid-data markers.
func New(invalidMarkers []string) *Normalizer {
	m := make([]string, 0, len(invalidMarkers))
	for _, s := range invalidMarkers {
		if s = strings.TrimSpace(s); s != "" {
			m = append(m, strings.ToLower(fold(s)))
		}
	}
	return &Normalizer{markers: m}
}

// Invalid reports whether value contains a vendor marker, ignoring case
// and width.
func (n *Normalizer) Invalid(value string) bool {
	v := strings.ToLower(fold(value))
	for _, m := range n.markers {
		if strings.Contains(v, m) {
			return true
		}
	}
	return false
}

// Field normalizes value for field f.
func (n *Normalizer) Field(f model.Field, value string) string {
	if n.Invalid(value) {
		return ""
	}
	switch f {
	case model.FieldPhone:
		return Phone(value)
	case model.FieldAddress:
		return Address(value)
	case model.FieldRepName:
		return RepName(value)
	case model.FieldDescription:
		return Description(value)
	case model.FieldListing:
		return Listing(value)
	case model.FieldCapital, model.FieldRevenue, model.FieldProfit:
		return Amount(value)
	case model.FieldFiscalMonth:
		return FiscalMonth(value)
	case model.FieldFoundedYear:
		return FoundedYear(value)
	default:
		return clean(value)
	}
}

// Record normalizes every result field of rec in place. Provenance for
// fields that normalize to "" is removed.
func (n *Normalizer) Record(rec *model.CompanyRecord) {
	for _, f := range model.AllFields() {
		v := rec.Get(f)
		if v == "" {
			continue
		}
		nv := n.Field(f, v)
		rec.Set(f, nv)
		if nv == "" && rec.Provenance != nil {
			delete(rec.Provenance, f)
		}
	}
}

var (
	spaceRun = regexp.MustCompile(`[\s\x{3000}]+`)
	dashes   = strings.NewReplacer(
		"‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-", "―", "-",
		"−", "-", "－", "-",
	)
)

// digitDashes replaces the prolonged sound mark between digits, a common
// typo for a hyphen in addresses and phone numbers.
func digitDashes(s string) string {
	r := []rune(s)
	for i := 1; i+1 < len(r); i++ {
		if r[i] == 'ー' && isDigit(r[i-1]) && isDigit(r[i+1]) {
			r[i] = '-'
		}
	}
	return string(r)
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

// fold applies NFKC and narrows full-width forms.
func fold(s string) string {
	return width.Fold.String(norm.NFKC.String(s))
}

// clean folds s, collapses whitespace and trims.
func clean(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(fold(s), " "))
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func truncateRunes(s string, n int) string {
	if runeLen(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
