package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	parenthetical = regexp.MustCompile(`\([^)]*\)`)
	amountPattern = regexp.MustCompile(`\d[\d,.]*(?:(?:兆|億|万|千)\d[\d,.]*)*(?:兆|億|万|千)?円`)

	listingLabel    = regexp.MustCompile(`^(?:上場区分|上場市場|市場)\s*[:：]?\s*`)
	listingExchange = regexp.MustCompile(`(東証|名証|福証|札証|東京証券取引所|名古屋証券取引所)\s*(?:第)?\s*(プライム|スタンダード|グロース|一部|二部|マザーズ|JASDAQ|ジャスダック|セントレックス|ネクスト|メイン)?`)
	listingSegment  = regexp.MustCompile(`プライム|スタンダード|グロース|マザーズ|JASDAQ`)

	monthPattern    = regexp.MustCompile(`(?:^|[^\d])(\d{1,2})\s*月`)
	monthSlash      = regexp.MustCompile(`(?:^|[^\d])(\d{1,2})\s*/\s*(?:\d{1,2}|末)`)
	monthTerm       = regexp.MustCompile(`(?:^|[^\d])(\d{1,2})\s*(?:期|末)`)
	quarterPattern  = regexp.MustCompile(`^[Qq]\s*([1-4])$`)
	westernYear     = regexp.MustCompile(`(?:^|[^\d])((?:18|19|20)\d{2})(?:$|[^\d])`)
	eraYear         = regexp.MustCompile(`(明治|大正|昭和|平成|令和)\s*(元|\d{1,2})\s*年`)
	eraAbbreviation = regexp.MustCompile(`(?:^|[^A-Za-z])([MTSHR])\s*(\d{1,2})(?:$|[^\d])`)
)

var eraBase = map[string]int{
	"明治": 1868, "大正": 1912, "昭和": 1926, "平成": 1989, "令和": 2019,
	"M": 1868, "T": 1912, "S": 1926, "H": 1989, "R": 2019,
}

// Amount extracts a yen amount such as 1億5,000万円 or 300000000円 (from
// 三億円). Counts in other units, e.g. employees, are rejected.
func Amount(s string) string {
	t := ReplaceKanjiNumbers(clean(s))
	t = parenthetical.ReplaceAllString(t, "")
	t = strings.ReplaceAll(t, " ", "")
	m := amountPattern.FindString(t)
	if m == "" || runeLen(m) > 40 {
		return ""
	}
	return m
}

// Listing returns the exchange and segment a company is listed on, or
// 非上場 for unlisted companies.
func Listing(s string) string {
	t := listingLabel.ReplaceAllString(clean(s), "")
	switch {
	case t == "":
		return ""
	case strings.Contains(t, "非上場") || strings.Contains(t, "未上場"):
		return "非上場"
	}
	if m := listingExchange.FindStringSubmatch(t); m != nil {
		ex := m[1]
		switch ex {
		case "東京証券取引所":
			ex = "東証"
		case "名古屋証券取引所":
			ex = "名証"
		}
		seg := m[2]
		if seg == "ジャスダック" {
			seg = "JASDAQ"
		}
		return ex + seg
	}
	if m := listingSegment.FindString(t); m != "" {
		return "東証" + m
	}
	if t == "上場" {
		return t
	}
	return ""
}

// FiscalMonth returns the closing month as 3月 from forms like 3月決算,
// 毎年三月末日, 3/31, 3期 or 12末. A bare quarter Q1..Q4 closes in
// 3, 6, 9 or 12月.
func FiscalMonth(s string) string {
	t := ReplaceKanjiNumbers(clean(s))
	if m := quarterPattern.FindStringSubmatch(strings.ReplaceAll(t, " ", "")); m != nil {
		q, _ := strconv.Atoi(m[1])
		return strconv.Itoa(q*3) + "月"
	}
	for _, re := range []*regexp.Regexp{monthPattern, monthSlash, monthTerm} {
		for _, m := range re.FindAllStringSubmatch(t, -1) {
			if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= 12 {
				return strconv.Itoa(n) + "月"
			}
		}
	}
	return ""
}

// FoundedYear returns a four-digit western year. Japanese era years,
// including 元年 and S45 style abbreviations, are converted.
func FoundedYear(s string) string {
	t := ReplaceKanjiNumbers(clean(s))
	if m := westernYear.FindStringSubmatch(t); m != nil {
		return m[1]
	}
	if m := eraYear.FindStringSubmatch(t); m != nil {
		return eraToWestern(m[1], m[2])
	}
	if m := eraAbbreviation.FindStringSubmatch(t); m != nil {
		return eraToWestern(m[1], m[2])
	}
	return ""
}

func eraToWestern(era, year string) string {
	n := 1
	if year != "元" {
		v, err := strconv.Atoi(year)
		if err != nil || v < 1 {
			return ""
		}
		n = v
	}
	return strconv.Itoa(eraBase[era] + n - 1)
}
