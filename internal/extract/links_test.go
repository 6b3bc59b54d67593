package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
)

const linksHTML = `<html><body>
<nav>
  <a href="/">ホーム</a>
  <a href="/company/">会社概要</a>
  <a href="company">会社概要</a>
  <a href="/about/history.html">沿革</a>
  <a href="/products/">製品情報</a>
  <a href="/recruit/">採用情報</a>
  <a href="#top">ページトップ</a>
  <a href="https://other.co.jp/about/">関連会社</a>
  <a href="/contact/"><img src="c.png" alt="お問い合わせ"></a>
</nav>
</body></html>`

func TestParseLinks(t *testing.T) {
	page := &model.Page{URL: "https://www.test.co.jp/", FinalURL: "https://www.test.co.jp/", HTML: linksHTML}
	links := ParseLinks(page)

	var urls []string
	for _, l := range links {
		urls = append(urls, l.URL)
	}
	assert.Equal(t, []string{
		"https://www.test.co.jp/",
		"https://www.test.co.jp/company/",
		"https://www.test.co.jp/about/history.html",
		"https://www.test.co.jp/products/",
		"https://www.test.co.jp/recruit/",
		"https://www.test.co.jp/contact/",
	}, urls)
	assert.Equal(t, "会社概要", links[1].Text)
	assert.Equal(t, "お問い合わせ", links[5].Text)
}

func TestParseLinks_Empty(t *testing.T) {
	assert.Nil(t, ParseLinks(nil))
	assert.Nil(t, ParseLinks(&model.Page{URL: "https://www.test.co.jp/"}))
}

func TestPriority(t *testing.T) {
	assert.Equal(t, 3, Priority(Link{URL: "https://test.co.jp/gaiyou.html"}))
	assert.Equal(t, 3, Priority(Link{URL: "https://test.co.jp/c/", Text: "会社概要"}))
	assert.Equal(t, 2, Priority(Link{URL: "https://test.co.jp/about/"}))
	assert.Equal(t, 1, Priority(Link{URL: "https://test.co.jp/x/", Text: "アクセス"}))
	assert.Equal(t, 0, Priority(Link{URL: "https://test.co.jp/products/", Text: "製品情報"}))
}

func TestRankLinks(t *testing.T) {
	page := &model.Page{URL: "https://www.test.co.jp/", HTML: linksHTML}
	ranked := RankLinks(ParseLinks(page), NewPathMatcher(nil))

	require.Len(t, ranked, 2)
	assert.Equal(t, "https://www.test.co.jp/company/", ranked[0].URL)
	assert.Equal(t, "https://www.test.co.jp/about/history.html", ranked[1].URL)
}

func TestRankLinks_StableOnTies(t *testing.T) {
	links := []Link{
		{URL: "https://test.co.jp/about/"},
		{URL: "https://test.co.jp/corporate/"},
		{URL: "https://test.co.jp/outline/"},
	}
	ranked := RankLinks(links, nil)
	require.Len(t, ranked, 3)
	assert.Equal(t, "https://test.co.jp/outline/", ranked[0].URL)
	assert.Equal(t, "https://test.co.jp/about/", ranked[1].URL)
	assert.Equal(t, "https://test.co.jp/corporate/", ranked[2].URL)
}
