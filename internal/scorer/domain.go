package scorer

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/sells-group/enrich-cli/internal/fetch"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/normalize"
)

// Domain scores a URL against a company name from the host and path alone.
// It is the prior used to order discovery results; Score adds the page
// signals on top.
func (s *Scorer) Domain(name, rawURL string) (int, []string) {
	u, err := fetch.Parse(rawURL)
	if err != nil {
		return 0, []string{"invalid url"}
	}
	host := fetch.NormalizeHost(u.Host)
	labels := s.hostLabels(host)

	var score int
	var why []string

	tokens := s.nameTokens(name)
	compact := strings.Join(normalize.LatinTokens(name), "")
	exact := false
	for _, l := range labels {
		if len(compact) >= 3 && strings.Contains(l, compact) {
			exact = true
		}
		for _, t := range tokens {
			if l == t {
				exact = true
			}
		}
	}
	if exact {
		score += 4
		why = append(why, "+4 host matches name")
	} else {
		for _, t := range tokens {
			if len(t) < 3 {
				continue
			}
			for _, l := range labels {
				if strings.Contains(l, t) {
					score += 2
					why = append(why, fmt.Sprintf("+2 host contains %q", t))
					break
				}
			}
		}
	}

	if tld := s.officialTLD(host); tld != "" {
		score += 2
		why = append(why, "+2 official tld ."+tld)
	}

	switch pt := model.ClassifyPath(u.Path); {
	case pt == model.PageTypeNews || pt == model.PageTypeRecruit:
		score -= 3
		why = append(why, "-3 "+string(pt)+" path")
	case pathDepth(u) > 3:
		score -= 3
		why = append(why, "-3 deep path")
	case pt == model.PageTypeHomepage || pt == model.PageTypeProfile:
		score++
		why = append(why, "+1 "+string(pt)+" path")
	}
	return score, why
}

// nameTokens returns the lowercase ASCII tokens of name plus its aliases.
func (s *Scorer) nameTokens(name string) []string {
	tokens := normalize.LatinTokens(name)
	for _, key := range []string{name, normalize.CompanyCore(name)} {
		for _, alias := range s.aliases[key] {
			tokens = append(tokens, normalize.LatinTokens(alias)...)
			if c := strings.Join(normalize.LatinTokens(alias), ""); c != "" {
				tokens = append(tokens, c)
			}
		}
	}
	return dedupe(tokens)
}

// hostLabels returns the host's labels left of its public suffix, with
// hyphenated labels also split into parts.
func (s *Scorer) hostLabels(host string) []string {
	rest := host
	if tld := s.officialTLD(host); tld != "" {
		rest = strings.TrimSuffix(host, "."+tld)
	} else if i := strings.LastIndexByte(host, '.'); i > 0 {
		rest = host[:i]
	}
	var out []string
	for _, l := range strings.Split(rest, ".") {
		out = append(out, l)
		if strings.Contains(l, "-") {
			out = append(out, strings.Split(l, "-")...)
			out = append(out, strings.ReplaceAll(l, "-", ""))
		}
	}
	return dedupe(out)
}

// officialTLD returns the longest official suffix host ends with.
func (s *Scorer) officialTLD(host string) string {
	for _, tld := range s.tlds {
		if strings.HasSuffix(host, "."+tld) {
			return tld
		}
	}
	return ""
}

func pathDepth(u *url.URL) int {
	n := 0
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			n++
		}
	}
	return n
}

func sortedByLength(list []string) []string {
	out := append([]string(nil), list...)
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
