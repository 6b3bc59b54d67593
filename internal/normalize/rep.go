package normalize

import (
	"regexp"
	"strings"
)

var (
	repLabel = regexp.MustCompile(`^(?:代表者名|代表者|代表|氏名|名前)\s*[:：]\s*`)
	repParen = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)

	// Longest first so compound titles are removed whole.
	repTitles = []string{
		"代表取締役会長兼社長", "代表取締役社長執行役員", "代表取締役社長兼CEO",
		"代表取締役社長", "代表取締役会長", "代表取締役専務", "代表取締役副社長",
		"代表執行役社長", "代表取締役", "取締役社長", "執行役員社長", "代表執行役",
		"代表理事長", "代表理事", "代表社員", "理事長", "代表者", "代表",
		"社長", "会長", "院長", "園長", "学長", "所長", "組合長", "CEO", "President",
	}
	repHonorifics = []string{"様", "氏", "殿"}
	repGeneric    = []string{"取締役", "役員", "未定", "非公開", "不明", "担当", "会社", "株式"}
	repRejectChar = regexp.MustCompile(`[0-9@/:。、!?]`)
)

// RepName strips labels, titles and honorifics from a representative's
// name. Values that still look like prose or contain digits are rejected.
func RepName(s string) string {
	t := clean(s)
	t = repLabel.ReplaceAllString(t, "")
	t = clean(repParen.ReplaceAllString(t, " "))
	for changed := true; changed; {
		changed = false
		for _, title := range repTitles {
			if strings.HasPrefix(t, title) {
				t = strings.TrimSpace(strings.TrimPrefix(t, title))
				changed = true
			}
		}
		for _, h := range repHonorifics {
			if strings.HasSuffix(t, h) {
				t = strings.TrimSpace(strings.TrimSuffix(t, h))
				changed = true
			}
		}
		if tt := strings.Trim(t, " :：・,"); tt != t {
			t, changed = tt, true
		}
	}
	if t == "" || runeLen(t) > 20 || repRejectChar.MatchString(t) {
		return ""
	}
	for _, g := range repGeneric {
		if strings.Contains(t, g) {
			return ""
		}
	}
	return t
}
