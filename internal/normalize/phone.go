package normalize

import (
	"regexp"
	"strings"
)

var (
	phoneCountry = regexp.MustCompile(`\+81[\s\-()]*(?:0[)\s]*)?`)
	phoneGrouped = regexp.MustCompile(`(?:^|[^\d])(0\d{1,4})[\s\-().]{1,3}(\d{1,4})[\s\-().]{1,3}(\d{3,4})(?:$|[^\d])`)
	phoneDigits  = regexp.MustCompile(`(?:^|[^\d])(0\d{9,10})(?:$|[^\d])`)
)

// Phone returns a Japanese phone number in hyphenated form, e.g. 03-1234-5678.
// Input grouping is kept when present; bare digit runs are split by number
// class. Dummy numbers such as 0000000000 are rejected.
func Phone(s string) string {
	t := digitDashes(dashes.Replace(fold(s)))
	t = phoneCountry.ReplaceAllString(t, "0")

	if m := phoneGrouped.FindStringSubmatch(t); m != nil {
		d := m[1] + m[2] + m[3]
		if validPhone(d) {
			return m[1] + "-" + m[2] + "-" + m[3]
		}
	}
	if m := phoneDigits.FindStringSubmatch(t); m != nil && validPhone(m[1]) {
		return splitPhone(m[1])
	}
	return ""
}

func validPhone(d string) bool {
	if len(d) != 10 && len(d) != 11 {
		return false
	}
	if d[0] != '0' || d[1] == '0' {
		return false
	}
	if len(d) == 11 && !isElevenDigitPrefix(d) {
		return false
	}
	if strings.Count(d, d[1:2]) == len(d)-1 {
		return false
	}
	switch d {
	case "0123456789", "01234567890":
		return false
	}
	return true
}

func isElevenDigitPrefix(d string) bool {
	switch d[:3] {
	case "070", "080", "090", "050", "020":
		return true
	}
	return strings.HasPrefix(d, "0800")
}

// splitPhone groups a bare 10 or 11 digit number by its prefix class.
func splitPhone(d string) string {
	switch {
	case len(d) == 11:
		if strings.HasPrefix(d, "0800") {
			return d[:4] + "-" + d[4:7] + "-" + d[7:]
		}
		return d[:3] + "-" + d[3:7] + "-" + d[7:]
	case strings.HasPrefix(d, "0120"), strings.HasPrefix(d, "0570"):
		return d[:4] + "-" + d[4:7] + "-" + d[7:]
	case strings.HasPrefix(d, "03"), strings.HasPrefix(d, "06"):
		return d[:2] + "-" + d[2:6] + "-" + d[6:]
	default:
		return d[:3] + "-" + d[3:6] + "-" + d[6:]
	}
}
