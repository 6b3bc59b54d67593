package extract

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/normalize"
)

// Rule confidences.
const (
	ConfidenceStructured = 0.9
	ConfidenceFreeText   = 0.6
)

type label struct {
	word  string
	field model.Field
}

// labels maps profile-table labels to fields. Longer labels are matched
// first so 本社所在地 wins over 本社.
var labels = sortLabels([]label{
	{"電話番号", model.FieldPhone}, {"代表電話", model.FieldPhone}, {"tel", model.FieldPhone}, {"電話", model.FieldPhone},
	{"本社所在地", model.FieldAddress}, {"本店所在地", model.FieldAddress}, {"所在地", model.FieldAddress},
	{"本社住所", model.FieldAddress}, {"住所", model.FieldAddress}, {"本社", model.FieldAddress}, {"本店", model.FieldAddress},
	{"代表者名", model.FieldRepName}, {"代表者", model.FieldRepName}, {"代表取締役", model.FieldRepName}, {"代表", model.FieldRepName},
	{"理事長", model.FieldRepName}, {"院長", model.FieldRepName},
	{"事業内容", model.FieldDescription}, {"事業概要", model.FieldDescription}, {"業務内容", model.FieldDescription},
	{"上場区分", model.FieldListing}, {"上場市場", model.FieldListing}, {"株式上場", model.FieldListing}, {"上場", model.FieldListing},
	{"資本金", model.FieldCapital},
	{"売上高", model.FieldRevenue}, {"年商", model.FieldRevenue}, {"売上", model.FieldRevenue},
	{"経常利益", model.FieldProfit}, {"営業利益", model.FieldProfit}, {"当期純利益", model.FieldProfit}, {"純利益", model.FieldProfit},
	{"決算期", model.FieldFiscalMonth}, {"決算月", model.FieldFiscalMonth}, {"決算", model.FieldFiscalMonth},
	{"設立", model.FieldFoundedYear}, {"創業", model.FieldFoundedYear}, {"創立", model.FieldFoundedYear},
})

func sortLabels(ls []label) []label {
	sort.SliceStable(ls, func(i, j int) bool {
		return len([]rune(ls[i].word)) > len([]rune(ls[j].word))
	})
	return ls
}

var (
	labelSeparators = " \t　:：|｜/／・-ー"
	freePhone       = regexp.MustCompile(`(?i)(?:tel|電話|代表)[^0-9０-９]{0,6}([0-9０-９][0-9０-９\-‐－ー()（） ]{8,16}[0-9０-９])`)
	freeAddress     = regexp.MustCompile(`〒\s*[0-9０-９]{3}[-－ー]?[0-9０-９]{4}[^\n]{4,80}`)
	faxLabel        = regexp.MustCompile(`(?i)fax|ファックス|ファクス`)
	branchLabel     = regexp.MustCompile(`^[^:：\s]{0,6}(?:工場|支店|支社|営業所|事業所|店舗|出張所|センター)`)
	titleStart      = regexp.MustCompile(`^(?:取締役|社長|会長|理事|執行役)`)
	labelSuffixes   = []string{"年月日", "年月", "年", "日", "氏名", "名", "区分"}
)

// Rules extracts field values from a page with deterministic rules. It
// prefers JSON-LD, then th/td rows, then dt/dd pairs, then labeled text lines,
// then free-text patterns; the first valid value per field wins.
type Rules struct {
	norm *normalize.Normalizer
}

// NewRules creates the rule extractor.
func NewRules(n *normalize.Normalizer) *Rules {
	return &Rules{norm: n}
}

// Extract runs every rule over page and returns one value per field found.
func (r *Rules) Extract(page *model.Page) map[model.Field]model.ExtractedField {
	out := map[model.Field]model.ExtractedField{}
	if page == nil {
		return out
	}
	src := page.FinalURL
	if src == "" {
		src = page.URL
	}
	add := func(f model.Field, raw, evidence string, conf float64) {
		if _, ok := out[f]; ok {
			return
		}
		v := r.norm.Field(f, raw)
		if v == "" {
			return
		}
		out[f] = model.ExtractedField{
			Field:      f,
			Value:      v,
			SourceURL:  src,
			Method:     model.MethodRule,
			Confidence: conf,
			Evidence:   evidence,
		}
	}

	if page.HTML != "" {
		if doc, err := html.Parse(strings.NewReader(page.HTML)); err == nil {
			for _, kv := range jsonLD(doc) {
				add(kv.field, kv.value, "json-ld", ConfidenceStructured)
			}
			for _, kv := range rowPairs(doc) {
				if f, ok := matchLabel(kv.label); ok {
					add(f, kv.value, kv.label, ConfidenceStructured)
				}
			}
			for _, kv := range listPairs(doc) {
				if f, ok := matchLabel(kv.label); ok {
					add(f, kv.value, kv.label, ConfidenceStructured)
				}
			}
		}
	}

	lines := strings.Split(page.Text, "\n")
	for i, line := range lines {
		f, lbl, rest, ok := labeledLine(line)
		if !ok {
			continue
		}
		if rest == "" && i+1 < len(lines) {
			rest = strings.TrimSpace(lines[i+1])
		}
		add(f, rest, lbl, ConfidenceStructured)
	}

	for _, m := range freePhone.FindAllStringSubmatchIndex(page.Text, -1) {
		if faxLabel.MatchString(page.Text[m[0]:m[2]]) {
			continue
		}
		add(model.FieldPhone, page.Text[m[2]:m[3]], "text", ConfidenceFreeText)
	}
	if m := freeAddress.FindString(page.Text); m != "" {
		add(model.FieldAddress, m, "text", ConfidenceFreeText)
	}
	return out
}

type pair struct {
	label string
	value string
}

// rowPairs reads th/td rows, and two-cell td/td rows whose first cell is a
// label.
func rowPairs(doc *html.Node) []pair {
	var out []pair
	each(doc, "tr", func(tr *html.Node) {
		var cells []*html.Node
		for c := tr.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.Data == "th" || c.Data == "td") {
				cells = append(cells, c)
			}
		}
		if len(cells) < 2 {
			return
		}
		if cells[0].Data == "th" || len(cells) == 2 {
			out = append(out, pair{label: collapse(textContent(cells[0])), value: strings.TrimSpace(textContent(cells[1]))})
		}
	})
	return out
}

// listPairs reads dt/dd pairs, including dt/dd wrapped in a div.
func listPairs(doc *html.Node) []pair {
	var out []pair
	each(doc, "dl", func(dl *html.Node) {
		var pending string
		var have bool
		var visit func(*html.Node)
		visit = func(n *html.Node) {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type != html.ElementNode {
					continue
				}
				switch c.Data {
				case "dt":
					pending, have = collapse(textContent(c)), true
				case "dd":
					if have {
						out = append(out, pair{label: pending, value: strings.TrimSpace(textContent(c))})
						have = false
					}
				case "div":
					visit(c)
				}
			}
		}
		visit(dl)
	})
	return out
}

// each calls fn for every element named tag.
func each(n *html.Node, tag string, fn func(*html.Node)) {
	if n.Type == html.ElementNode && n.Data == tag {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		each(c, tag, fn)
	}
}

type ldValue struct {
	field model.Field
	value string
}

var orgTypes = map[string]bool{
	"organization": true, "corporation": true, "localbusiness": true, "store": true,
	"professionalservice": true, "medicalorganization": true, "educationalorganization": true,
}

// jsonLD reads Organization-like objects from ld+json scripts.
func jsonLD(doc *html.Node) []ldValue {
	var out []ldValue
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" && strings.Contains(strings.ToLower(attr(n, "type")), "ld+json") && n.FirstChild != nil {
			var v any
			if err := json.Unmarshal([]byte(n.FirstChild.Data), &v); err == nil {
				out = append(out, ldObjects(v)...)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func ldObjects(v any) []ldValue {
	var out []ldValue
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			out = append(out, ldObjects(e)...)
		}
	case map[string]any:
		if g, ok := t["@graph"]; ok {
			out = append(out, ldObjects(g)...)
		}
		if !isOrg(t["@type"]) {
			return out
		}
		if s := ldString(t["telephone"]); s != "" {
			out = append(out, ldValue{model.FieldPhone, s})
		}
		if s := ldAddress(t["address"]); s != "" {
			out = append(out, ldValue{model.FieldAddress, s})
		}
		if s := ldString(t["founder"]); s != "" {
			out = append(out, ldValue{model.FieldRepName, s})
		}
		if s := ldString(t["foundingDate"]); s != "" {
			out = append(out, ldValue{model.FieldFoundedYear, s})
		}
		if s := ldString(t["description"]); s != "" {
			out = append(out, ldValue{model.FieldDescription, s})
		}
	}
	return out
}

func isOrg(v any) bool {
	switch t := v.(type) {
	case string:
		return orgTypes[strings.ToLower(t)]
	case []any:
		for _, e := range t {
			if isOrg(e) {
				return true
			}
		}
	}
	return false
}

func ldString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		return ldString(t["name"])
	case []any:
		if len(t) > 0 {
			return ldString(t[0])
		}
	}
	return ""
}

func ldAddress(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ldString(v)
	}
	var b strings.Builder
	if pc := ldString(m["postalCode"]); pc != "" {
		b.WriteString("〒" + pc + " ")
	}
	for _, k := range []string{"addressRegion", "addressLocality", "streetAddress"} {
		b.WriteString(ldString(m[k]))
	}
	return b.String()
}

// matchLabel maps a table or list label to a field.
func matchLabel(s string) (model.Field, bool) {
	key := labelKey(s)
	if key == "" || len([]rune(key)) > 12 {
		return "", false
	}
	if faxLabel.MatchString(key) && !strings.Contains(key, "tel") && !strings.Contains(key, "電話") {
		return "", false
	}
	if branchLabel.MatchString(key) {
		return "", false
	}
	for _, l := range labels {
		if strings.HasPrefix(key, l.word) {
			return l.field, true
		}
	}
	return "", false
}

// labeledLine splits "資本金：1億円" style lines. rest is "" when the value
// sits on the next line.
func labeledLine(line string) (f model.Field, lbl, rest string, ok bool) {
	folded := strings.ToLower(width.Fold.String(norm.NFKC.String(strings.TrimSpace(line))))
	if folded == "" || branchLabel.MatchString(folded[:min(len(folded), 30)]) {
		return "", "", "", false
	}
	for _, l := range labels {
		if !strings.HasPrefix(folded, l.word) {
			continue
		}
		after := folded[len(l.word):]
		for _, suf := range labelSuffixes {
			if strings.HasPrefix(after, suf) {
				after = after[len(suf):]
				break
			}
		}
		trimmed := strings.TrimLeft(after, labelSeparators)
		// A bare prefix of a longer word ("本社工場", "代表的な") is not a
		// label, except before a title ("代表取締役社長 山田太郎").
		if trimmed != "" && trimmed == after && !(l.field == model.FieldRepName && titleStart.MatchString(after)) {
			return "", "", "", false
		}
		return l.field, l.word, trimmed, true
	}
	return "", "", "", false
}

func labelKey(s string) string {
	s = strings.ToLower(width.Fold.String(norm.NFKC.String(s)))
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(labelSeparators, r) || r == ' ' {
			return -1
		}
		return r
	}, s)
}
