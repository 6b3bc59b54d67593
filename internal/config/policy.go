package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Policy holds domain lists that tune discovery and scoring. The file is
// optional; its entries extend the built-in defaults.
type Policy struct {
	Blocklist      []string            `yaml:"blocklist"`
	OfficialTLDs   []string            `yaml:"official_tlds"`
	AmbiguousNames []string            `yaml:"ambiguous_names"`
	NameAliases    map[string][]string `yaml:"name_aliases"`
	InvalidMarkers []string            `yaml:"invalid_markers"`
}

// DefaultBlocklist lists host suffixes that are never official homepages:
// directories, job boards, maps, social and review sites.
var DefaultBlocklist = []string{
	"facebook.com", "twitter.com", "x.com", "instagram.com", "youtube.com",
	"linkedin.com", "tiktok.com", "note.com", "ameblo.jp", "line.me",
	"maps.google.com", "google.com", "goo.gl", "mapion.co.jp", "navitime.co.jp",
	"itp.ne.jp", "ekiten.jp", "hotpepper.jp", "tabelog.com", "minkabu.jp",
	"indeed.com", "jp.indeed.com", "doda.jp", "rikunabi.com", "mynavi.jp",
	"en-japan.com", "baitoru.com", "townwork.net", "hellowork.mhlw.go.jp",
	"openwork.jp", "en-hyouban.com", "kaisharesearch.com",
	"baseconnect.in", "houjin.jp", "houjin-bangou.nta.go.jp", "salesnow.jp",
	"alarmbox.jp", "listoss.com", "musubu.in", "biz.stayway.jp",
	"wikipedia.org", "nikkei.com", "prtimes.jp", "yahoo.co.jp", "amazon.co.jp",
	"rakuten.co.jp",
}

// DefaultOfficialTLDs lists suffixes that boost domain scores.
var DefaultOfficialTLDs = []string{"co.jp", "or.jp", "ac.jp", "go.jp", "lg.jp", "ed.jp", "ne.jp", "jp"}

// DefaultInvalidMarkers are lead-list vendor strings that poison a value.
var DefaultInvalidMarkers = []string{
	"listoss.com",
	"ftj-g.co.jp/form",
	"本法人データはリストスが提供しています",
	"御社のテレアポ代行します",
	"お問い合わせフォーム送信代行",
}

// LoadPolicy reads the policy file at path and merges it over the defaults.
// An empty path returns the defaults.
func LoadPolicy(path string) (*Policy, error) {
	p := &Policy{NameAliases: map[string][]string{}}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "config: read policy %s", path)
		}
		if err := yaml.Unmarshal(data, p); err != nil {
			return nil, eris.Wrap(err, "config: parse policy")
		}
		if p.NameAliases == nil {
			p.NameAliases = map[string][]string{}
		}
	}
	p.Blocklist = mergeUnique(DefaultBlocklist, p.Blocklist)
	p.OfficialTLDs = mergeUnique(DefaultOfficialTLDs, p.OfficialTLDs)
	p.InvalidMarkers = mergeUnique(DefaultInvalidMarkers, p.InvalidMarkers)
	return p, nil
}

func mergeUnique(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, s := range list {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
