package normalize

import (
	"strings"
	"unicode"
)

// CorporateSuffixes are legal-entity designators stripped when comparing
// company names.
var CorporateSuffixes = []string{
	"特定非営利活動法人", "一般社団法人", "一般財団法人", "公益社団法人", "公益財団法人",
	"独立行政法人", "社会福祉法人", "株式会社", "有限会社", "合同会社", "合資会社",
	"合名会社", "医療法人", "学校法人", "宗教法人", "NPO法人",
	"(株)", "(有)", "(同)", "㈱", "㈲",
}

// CompanyCore reduces a company name to its distinctive part: NFKC folded,
// lowercased, without legal suffixes, whitespace or punctuation.
func CompanyCore(name string) string {
	t := fold(name)
	for _, sfx := range CorporateSuffixes {
		t = strings.ReplaceAll(t, fold(sfx), "")
	}
	var b strings.Builder
	for _, r := range strings.ToLower(t) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Compact folds s for substring comparison: lowercased, no whitespace or
// symbols.
func Compact(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(fold(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LatinTokens returns the lowercase ASCII words of length >= 2 in s, used
// to match a name against host labels.
func LatinTokens(s string) []string {
	t := strings.ToLower(fold(s))
	for _, sfx := range []string{"co., ltd.", "co.,ltd.", "co.ltd", "inc.", "corp.", "ltd.", "llc", "k.k."} {
		t = strings.ReplaceAll(t, sfx, " ")
	}
	words := strings.FieldsFunc(t, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	out := words[:0]
	seen := map[string]bool{}
	for _, w := range words {
		if len(w) >= 2 && !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}
