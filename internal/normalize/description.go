package normalize

import (
	"html"
	"regexp"
	"strings"
)

const (
	descriptionMinRunes = 15
	descriptionMaxRunes = 120
)

var (
	htmlTag        = regexp.MustCompile(`<[^>]+>`)
	sentenceEnd    = regexp.MustCompile(`[^。!?\n]+[。!?]?`)
	descURL        = regexp.MustCompile(`https?://|www\.|[\w.+-]+@[\w-]+\.[\w.]+`)
	descPhoneLike  = regexp.MustCompile(`0\d{1,4}-\d{1,4}-\d{3,4}|〒\s*\d{3}-\d{4}`)
	descExclusions = []string{
		"お問い合わせ", "お問合せ", "問い合わせ", "採用", "求人", "募集", "Copyright", "copyright",
		"All Rights Reserved", "cookie", "Cookie", "クッキー", "プライバシー",
		"企業理念", "経営理念", "ビジョン", "ミッション", "社是", "ご挨拶", "ごあいさつ",
		"会社概要", "アクセス", "サイトマップ", "ログイン",
	}
	descBusinessHints = []string{
		"事業", "製造", "販売", "提供", "開発", "運営", "サービス", "施工", "設計",
		"建設", "卸", "輸入", "輸出", "企画", "支援", "取り扱", "取扱", "専門",
		"手がけ", "手掛け", "展開", "行って", "営んで", "加工", "管理", "コンサルティング",
	}
)

// Description picks the first sentence that describes the business and
// appends following sentences while they fit within the length cap.
func Description(s string) string {
	t := html.UnescapeString(fold(s))
	t = htmlTag.ReplaceAllString(t, " ")
	t = strings.ReplaceAll(t, "\r", "")

	var parts []string
	for _, sent := range sentenceEnd.FindAllString(t, -1) {
		sent = strings.TrimSpace(spaceRun.ReplaceAllString(sent, " "))
		if sent != "" {
			parts = append(parts, sent)
		}
	}

	for i, sent := range parts {
		first := truncateRunes(sent, descriptionMaxRunes)
		if runeLen(first) < descriptionMinRunes || excludedSentence(first) || !businessSentence(first) {
			continue
		}
		out := first
		for _, next := range parts[i+1:] {
			if !strings.ContainsAny(lastRune(out), "。!?") || excludedSentence(next) ||
				runeLen(out)+runeLen(next) > descriptionMaxRunes {
				break
			}
			out += next
		}
		return out
	}
	return ""
}

func excludedSentence(s string) bool {
	if descURL.MatchString(s) || descPhoneLike.MatchString(s) {
		return true
	}
	for _, x := range descExclusions {
		if strings.Contains(s, x) {
			return true
		}
	}
	return false
}

func businessSentence(s string) bool {
	for _, h := range descBusinessHints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}

func lastRune(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return ""
	}
	return string(r[len(r)-1])
}
