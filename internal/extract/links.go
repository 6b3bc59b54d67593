package extract

import (
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/sells-group/enrich-cli/internal/fetch"
	"github.com/sells-group/enrich-cli/internal/model"
)

// Link is an anchor found on a page.
type Link struct {
	URL  string
	Text string
}

type keyword struct {
	word   string
	weight int
}

// Path and anchor-text keywords that point at profile data, strongest first.
var (
	pathKeywords = []keyword{
		{"gaiyou", 3}, {"gaiyo", 3}, {"profile", 3}, {"outline", 3}, {"overview", 3},
		{"company", 2}, {"about", 2}, {"corporate", 2}, {"kaisya", 2}, {"kaisha", 2},
		{"access", 1}, {"history", 1}, {"enkaku", 1}, {"message", 1}, {"greeting", 1},
	}
	textKeywords = []keyword{
		{"会社概要", 3}, {"企業概要", 3}, {"会社情報", 3}, {"会社案内", 3},
		{"企業情報", 2}, {"会社紹介", 2}, {"私たちについて", 2}, {"当社について", 2},
		{"代表挨拶", 1}, {"ごあいさつ", 1}, {"沿革", 1}, {"アクセス", 1}, {"事業内容", 1},
	}
)

// ParseLinks returns the distinct same-site http(s) links of page, resolved
// against its final URL.
func ParseLinks(page *model.Page) []Link {
	if page == nil || page.HTML == "" {
		return nil
	}
	baseURL := page.FinalURL
	if baseURL == "" {
		baseURL = page.URL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	doc, err := html.Parse(strings.NewReader(page.HTML))
	if err != nil {
		return nil
	}

	var out []Link
	seen := map[string]bool{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href := strings.TrimSpace(attr(n, "href")); href != "" && !strings.HasPrefix(href, "#") {
				if ref, err := url.Parse(href); err == nil {
					abs := base.ResolveReference(ref)
					abs.Fragment = ""
					s := abs.String()
					key, kerr := fetch.URLKey(s)
					if kerr == nil && !seen[key] && fetch.SameSite(s, baseURL) {
						seen[key] = true
						out = append(out, Link{URL: s, Text: collapse(textContent(n))})
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

// Priority scores a link by how likely it leads to profile data. Zero means
// the link is not worth crawling.
func Priority(l Link) int {
	u, err := url.Parse(l.URL)
	if err != nil {
		return 0
	}
	p := strings.ToLower(u.Path)
	best := 0
	for _, k := range pathKeywords {
		if strings.Contains(p, k.word) && k.weight > best {
			best = k.weight
		}
	}
	for _, k := range textKeywords {
		if strings.Contains(l.Text, k.word) && k.weight > best {
			best = k.weight
		}
	}
	return best
}

// RankLinks keeps crawlable priority links, best first. Excluded paths and
// contact, recruit and news pages are dropped.
func RankLinks(links []Link, matcher *PathMatcher) []Link {
	type scored struct {
		Link
		score int
		order int
	}
	var ranked []scored
	for i, l := range links {
		if matcher != nil && matcher.IsExcluded(l.URL) {
			continue
		}
		if u, err := url.Parse(l.URL); err == nil {
			switch model.ClassifyPath(u.Path) {
			case model.PageTypeContact, model.PageTypeRecruit, model.PageTypeNews, model.PageTypeHomepage:
				continue
			}
		}
		if s := Priority(l); s > 0 {
			ranked = append(ranked, scored{Link: l, score: s, order: i})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].order < ranked[j].order
	})
	out := make([]Link, len(ranked))
	for i, r := range ranked {
		out[i] = r.Link
	}
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style"):
			return
		case n.Type == html.ElementNode && n.Data == "br":
			b.WriteString("\n")
		case n.Type == html.ElementNode && n.Data == "img":
			b.WriteString(attr(n, "alt"))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
