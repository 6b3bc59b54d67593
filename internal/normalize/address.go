package normalize

import (
	"regexp"
	"strings"
)

// Prefectures lists the 47 Japanese prefectures.
var Prefectures = []string{
	"北海道", "青森県", "岩手県", "宮城県", "秋田県", "山形県", "福島県",
	"茨城県", "栃木県", "群馬県", "埼玉県", "千葉県", "東京都", "神奈川県",
	"新潟県", "富山県", "石川県", "福井県", "山梨県", "長野県", "岐阜県",
	"静岡県", "愛知県", "三重県", "滋賀県", "京都府", "大阪府", "兵庫県",
	"奈良県", "和歌山県", "鳥取県", "島根県", "岡山県", "広島県", "山口県",
	"徳島県", "香川県", "愛媛県", "高知県", "福岡県", "佐賀県", "長崎県",
	"熊本県", "大分県", "宮崎県", "鹿児島県", "沖縄県",
}

var (
	addressLabel = regexp.MustCompile(`^(?:本社所在地|本店所在地|本社住所|所在地|住所|本社|本店|address)\s*[:：]?\s*`)
	postalCode   = regexp.MustCompile(`〒?\s*(\d{3})\s*-?\s*(\d{4})\s*`)
	cityToken    = regexp.MustCompile(`^(.+?(?:市|区|町|村|郡))`)

	// Text that follows the address on contact blocks.
	addressStops = []string{
		"TEL", "Tel", "tel", "電話", "FAX", "Fax", "fax", "E-mail", "Email", "MAIL", "Mail",
		"地図", "Google", "アクセス", "MAP", "Map", "最寄", "徒歩", "→", "【", "営業時間", "受付時間",
	}
	// Form placeholders and help text scraped from inquiry pages.
	addressJunk = []string{"必須", "入力してください", "選択してください", "番地以降", "例)", "例:", "市区町村"}
	// Fragments typical of Shift_JIS bytes decoded as UTF-8.
	mojibake = []string{"�", "縺", "繧", "繝", "譁", "蜷"}
)

// Address cleans a postal address: labels and trailing contact text are
// cut, the postal code is rewritten as 〒123-4567, and values without a
// postal code or a municipality are rejected.
func Address(s string) string {
	t := clean(digitDashes(dashes.Replace(fold(s))))
	t = addressLabel.ReplaceAllString(t, "")
	for _, j := range addressJunk {
		if strings.Contains(t, j) {
			return ""
		}
	}
	for _, m := range mojibake {
		if strings.Contains(t, m) {
			return ""
		}
	}
	for _, stop := range addressStops {
		if i := strings.Index(t, stop); i >= 0 {
			t = t[:i]
		}
	}
	t = strings.Trim(t, " ,、。・/|")

	postal := ""
	if loc := postalCode.FindStringSubmatchIndex(t); loc != nil && loc[0] == 0 {
		postal = "〒" + t[loc[2]:loc[3]] + "-" + t[loc[4]:loc[5]]
		t = strings.TrimSpace(t[loc[1]:])
	}
	t = strings.Trim(t, " ,、。・/|")
	t = truncateRunes(t, 120)

	if postal == "" && !hasRegion(t) {
		return ""
	}
	if t == "" {
		return postal
	}
	if postal == "" {
		return t
	}
	return postal + " " + t
}

func hasRegion(s string) bool {
	if Prefecture(s) != "" {
		return true
	}
	return cityToken.MatchString(s) && runeLen(s) >= 4
}

// Prefecture returns the first prefecture named in s, or "".
func Prefecture(s string) string {
	t := fold(s)
	best, bestAt := "", -1
	for _, p := range Prefectures {
		if i := strings.Index(t, p); i >= 0 && (bestAt < 0 || i < bestAt) {
			best, bestAt = p, i
		}
	}
	return best
}

// Region splits an address into its prefecture and municipality, e.g.
// 大阪府大阪市北区梅田 gives 大阪府 and 大阪市.
func Region(addr string) (pref, city string) {
	t := postalCode.ReplaceAllString(fold(addr), "")
	t = strings.TrimSpace(t)
	pref = Prefecture(t)
	if pref != "" {
		t = t[strings.Index(t, pref)+len(pref):]
	}
	if m := cityToken.FindStringSubmatch(strings.TrimSpace(t)); m != nil {
		city = m[1]
	}
	return pref, city
}
