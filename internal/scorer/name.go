package scorer

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/normalize"
)

const bodyHeadRunes = 240

var (
	titleSeparators = regexp.MustCompile(`\s*(?://|\||｜|/|-|–|—|:|：)\s*`)
	nameMetaKeys    = map[string]bool{
		"og:site_name":     true,
		"og:title":         true,
		"application-name": true,
	}
)

// NameSignals collects the page regions where a company names itself:
// title, h1, site-name meta tags and the head of the body text.
func NameSignals(page *model.Page) []string {
	if page == nil {
		return nil
	}
	var out []string
	if page.Title != "" {
		out = append(out, page.Title)
	}
	if page.HTML != "" {
		if doc, err := html.Parse(strings.NewReader(page.HTML)); err == nil {
			out = append(out, htmlSignals(doc)...)
		}
	}
	if page.Text != "" {
		r := []rune(page.Text)
		if len(r) > bodyHeadRunes {
			r = r[:bodyHeadRunes]
		}
		out = append(out, string(r))
	}
	return out
}

func htmlSignals(root *html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title", "h1":
				if t := strings.TrimSpace(textOf(n)); t != "" {
					out = append(out, t)
				}
			case "meta":
				key := strings.ToLower(attr(n, "property"))
				if key == "" {
					key = strings.ToLower(attr(n, "name"))
				}
				if nameMetaKeys[key] {
					if c := strings.TrimSpace(attr(n, "content")); c != "" {
						out = append(out, c)
					}
				}
			case "script", "style", "noscript":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

// NamePresent reports whether the normalized company name appears in any
// signal. Titles are also compared segment by segment so "Home | ACME"
// matches ACME exactly.
func NamePresent(name string, signals []string) bool {
	core := normalize.CompanyCore(name)
	if core == "" {
		return false
	}
	short := len([]rune(core)) < 2
	for _, s := range signals {
		for _, seg := range append(titleSeparators.Split(s, -1), s) {
			c := normalize.CompanyCore(seg)
			if c == "" {
				continue
			}
			if c == core || (!short && strings.Contains(c, core)) {
				return true
			}
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
