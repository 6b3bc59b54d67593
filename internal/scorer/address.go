package scorer

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/enrich-cli/internal/normalize"
)

var postalPattern = regexp.MustCompile(`(\d{3})-?(\d{4})`)

// AddressMatch reports whether page text corroborates the input address:
// the same postal code, or both the same prefecture and city/ward token.
func AddressMatch(inputAddress, pageText string) bool {
	if strings.TrimSpace(inputAddress) == "" || pageText == "" {
		return false
	}
	in := norm.NFKC.String(inputAddress)
	text := norm.NFKC.String(pageText)

	if m := postalPattern.FindStringSubmatch(in); m != nil {
		if strings.Contains(text, m[1]+"-"+m[2]) || strings.Contains(text, "〒"+m[1]+m[2]) {
			return true
		}
	}
	pref, city := normalize.Region(in)
	if pref == "" || city == "" {
		return false
	}
	return strings.Contains(text, pref) && strings.Contains(text, city)
}
