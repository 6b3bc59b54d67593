// Package verify cross-checks extracted phone numbers and addresses against
// the pages they were read from.
package verify

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/sells-group/enrich-cli/internal/budget"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/normalize"
)

// ConfidenceUnverified replaces the confidence of a rule value that failed
// verification.
const ConfidenceUnverified = 0.3

var postal = regexp.MustCompile(`(\d{3})-?(\d{4})`)

// Input is one verification pass.
type Input struct {
	Fields   map[model.Field]model.ExtractedField
	Homepage *model.Page
	// Sources maps SourceURL to the page the value came from.
	Sources  map[string]*model.Page
	Deadline *budget.Deadline
}

// Result is the verified field set.
type Result struct {
	Fields map[model.Field]model.ExtractedField
	// Verified lists fields that were checked and matched.
	Verified   map[model.Field]bool
	Downgraded []model.Field
	Cleared    []model.Field
	Skipped    bool
}

// Verifier checks phone and address values. It holds no state.
type Verifier struct{}

// New creates a Verifier.
func New() *Verifier { return &Verifier{} }

// Verify checks phone and address against the homepage and the source page.
// On a mismatch a rule value keeps its value at ConfidenceUnverified and an
// AI value is dropped. Nothing is checked once the deadline has passed.
func (v *Verifier) Verify(in Input) Result {
	res := Result{
		Fields:   make(map[model.Field]model.ExtractedField, len(in.Fields)),
		Verified: map[model.Field]bool{},
	}
	for f, ef := range in.Fields {
		res.Fields[f] = ef
	}
	if in.Deadline.Exceeded() {
		res.Skipped = true
		return res
	}

	for _, f := range []model.Field{model.FieldPhone, model.FieldAddress} {
		ef, ok := res.Fields[f]
		if !ok {
			continue
		}
		texts := pageTexts(in.Homepage, in.Sources[ef.SourceURL])
		var match bool
		if f == model.FieldPhone {
			match = PhoneMatches(ef.Value, texts...)
		} else {
			match = AddressMatches(ef.Value, texts...)
		}
		if match {
			res.Verified[f] = true
			continue
		}

		log := zap.L().With(zap.String("field", string(f)), zap.String("source_url", ef.SourceURL))
		if ef.Method == model.MethodAI {
			log.Info("verify: ai value not found on page, cleared")
			delete(res.Fields, f)
			res.Cleared = append(res.Cleared, f)
			continue
		}
		log.Info("verify: rule value not found on page, downgraded")
		ef.Confidence = ConfidenceUnverified
		res.Fields[f] = ef
		res.Downgraded = append(res.Downgraded, f)
	}
	return res
}

// PhoneMatches reports whether the digits of phone occur in the digit stream
// of any text. The +81 international form of the number also matches.
func PhoneMatches(phone string, texts ...string) bool {
	d := digits(phone)
	if len(d) < 9 {
		return false
	}
	intl := ""
	if strings.HasPrefix(d, "0") {
		intl = "81" + d[1:]
	}
	for _, t := range texts {
		stream := digits(t)
		if strings.Contains(stream, d) || (intl != "" && strings.Contains(stream, intl)) {
			return true
		}
	}
	return false
}

// AddressMatches reports whether the postal code of addr occurs in any
// text, or, without a postal code, whether its prefecture and municipality
// both occur in the same text.
func AddressMatches(addr string, texts ...string) bool {
	a := fold(addr)
	if m := postal.FindStringSubmatch(a); m != nil {
		code := m[1] + m[2]
		for _, t := range texts {
			if strings.Contains(digits(t), code) {
				return true
			}
		}
		return false
	}
	pref, city := normalize.Region(a)
	if pref == "" && city == "" {
		return false
	}
	for _, t := range texts {
		ft := fold(t)
		if (pref == "" || strings.Contains(ft, pref)) && (city == "" || strings.Contains(ft, city)) {
			return true
		}
	}
	return false
}

func pageTexts(pages ...*model.Page) []string {
	var out []string
	for _, p := range pages {
		if p == nil {
			continue
		}
		if p.Text != "" {
			out = append(out, p.Text)
		}
		if p.HTML != "" {
			out = append(out, p.HTML)
		}
	}
	return out
}

func fold(s string) string {
	return width.Fold.String(norm.NFKC.String(s))
}

func digits(s string) string {
	s = fold(s)
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
