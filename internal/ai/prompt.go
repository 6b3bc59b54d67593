package ai

import (
	"fmt"
	"strings"

	"github.com/sells-group/enrich-cli/internal/model"
)

const judgeSystem = "あなたは日本企業の公式ウェブサイトを判定する専門家です。" +
	"与えられたページが対象企業自身の公式サイトかどうかを判断してください。" +
	"企業データベース、求人サイト、ポータル、ニュース記事、同名の別会社のサイトは公式サイトではありません。" +
	"出力は説明なしでJSONのみとしてください。"

const extractSystem = "あなたは日本企業情報抽出の専門家です。" +
	"与えられたテキストと添付のスクリーンショットから、指定された項目のみを正確に抽出してください。" +
	"テキストに存在しない情報を推測で補ってはいけません。" +
	"出力は説明なしでJSONのみとしてください。"

var fieldInstructions = map[model.Field]string{
	model.FieldPhone:       "代表電話番号。部署直通やFAX番号は除外し、「03-1234-5678」のようにハイフン区切りの半角数字で出力",
	model.FieldAddress:     "本社所在地。郵便番号があれば含め、都道府県から番地まで。建物名と階数があれば含める",
	model.FieldRepName:     "代表者の氏名のみ。役職名や敬称は含めない",
	model.FieldDescription: "事業内容を表す1〜2文の説明。企業理念やスローガンは除外",
	model.FieldListing:     "上場区分（例: 東証プライム、非上場）",
	model.FieldCapital:     "資本金（例: 1億円、5,000万円）",
	model.FieldRevenue:     "売上高（例: 120億円）",
	model.FieldProfit:      "利益（例: 3億円）",
	model.FieldFiscalMonth: "決算月（例: 3月）",
	model.FieldFoundedYear: "設立年（西暦4桁、例: 1985）",
}

// JudgePrompt builds the user turn for an official-site judgement.
func JudgePrompt(c CandidateContext) string {
	var b strings.Builder
	b.WriteString("# 対象企業\n")
	fmt.Fprintf(&b, "企業名: %s\n", c.CompanyName)
	if c.InputAddress != "" {
		fmt.Fprintf(&b, "住所: %s\n", c.InputAddress)
	}
	b.WriteString("\n# 候補ページ\n")
	fmt.Fprintf(&b, "URL: %s\n", c.URL)
	if c.Title != "" {
		fmt.Fprintf(&b, "タイトル: %s\n", c.Title)
	}
	fmt.Fprintf(&b, "ドメイン一致スコア: %d\n", c.DomainScore)
	fmt.Fprintf(&b, "住所一致: %s\n", yesNo(c.AddressMatch))
	fmt.Fprintf(&b, "企業名の記載: %s\n", yesNo(c.NamePresence))
	if c.Image != nil {
		b.WriteString("スクリーンショット: 添付画像参照\n")
	}
	b.WriteString("\n# ページ本文\n")
	b.WriteString(c.Text)
	b.WriteString("\n\n【出力形式】\n")
	b.WriteString(`{"is_official": true または false, "confidence": 0.0〜1.0, "reason": "判断理由（1文）"}`)
	return b.String()
}

// ExtractPrompt builds the user turn for field extraction. Only the requested
// fields are listed.
func ExtractPrompt(req ExtractRequest) string {
	var b strings.Builder
	b.WriteString("# 対象企業\n")
	fmt.Fprintf(&b, "企業名: %s\n", req.CompanyName)
	if req.InputAddress != "" {
		fmt.Fprintf(&b, "登録住所: %s\n", req.InputAddress)
	}
	if req.URL != "" {
		fmt.Fprintf(&b, "公式サイト: %s\n", req.URL)
	}

	b.WriteString("\n# 抽出項目\n")
	for _, f := range req.Fields {
		fmt.Fprintf(&b, "・%s: %s\n", f, fieldInstructions[f])
	}
	b.WriteString("\n# ルール\n")
	b.WriteString("・情報が存在しない場合は null を出力してください（空文字は禁止）。\n")
	b.WriteString("・複数候補がある場合は本社・代表のものを選んでください。\n")
	b.WriteString("・FAX番号、E-mail、URLは出力しないでください。\n")
	if req.Image != nil {
		b.WriteString("・スクリーンショットは添付画像を参照してください。\n")
	}

	b.WriteString("\n# テキスト\n")
	b.WriteString(req.Text)

	b.WriteString("\n\n【出力形式】\n{")
	for i, f := range req.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: \"...\" または null", string(f))
	}
	b.WriteString("}")
	return b.String()
}

// Truncate caps s at limit runes. limit <= 0 means no cap.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

func yesNo(b bool) string {
	if b {
		return "あり"
	}
	return "なし"
}
