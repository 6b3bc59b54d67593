package discovery

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/pkg/duckduckgo"
	"github.com/sells-group/enrich-cli/pkg/google"
	"github.com/sells-group/enrich-cli/pkg/jina"
)

// DuckDuckGo adapts the DuckDuckGo HTML client to Searcher.
type DuckDuckGo struct {
	Client duckduckgo.Client
}

// Search implements Searcher.
func (s DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]string, error) {
	results, err := s.Client.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(results))
	for _, r := range results {
		urls = append(urls, r.URL)
	}
	return urls, nil
}

// Jina adapts the Jina search client to Searcher.
type Jina struct {
	Client jina.Client
}

// Search implements Searcher.
func (s Jina) Search(ctx context.Context, query string, limit int) ([]string, error) {
	resp, err := s.Client.Search(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: jina search")
	}
	var urls []string
	for _, r := range resp.Data {
		if limit > 0 && len(urls) >= limit {
			break
		}
		if r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	return urls, nil
}

// Places adapts Google Places text search to Searcher. Each place's listed
// website is a result; places without one are skipped.
type Places struct {
	Client google.Client
}

// Search implements Searcher.
func (s Places) Search(ctx context.Context, query string, limit int) ([]string, error) {
	resp, err := s.Client.TextSearch(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: places search")
	}
	var urls []string
	for _, p := range resp.Places {
		if limit > 0 && len(urls) >= limit {
			break
		}
		if p.WebsiteURI != "" {
			urls = append(urls, p.WebsiteURI)
		}
	}
	return urls, nil
}
