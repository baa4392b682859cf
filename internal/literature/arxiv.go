package literature

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/liliang-cn/paperchat/internal/domain"
)

// DefaultArxivURL is the arXiv query endpoint
const DefaultArxivURL = "https://export.arxiv.org/api/query"

// Arxiv searches the arXiv Atom feed
type Arxiv struct {
	endpoint string
	http     *httpClient
}

// NewArxiv creates an arXiv source
func NewArxiv(endpoint string, opts ...ClientOption) *Arxiv {
	if endpoint == "" {
		endpoint = DefaultArxivURL
	}
	return &Arxiv{
		endpoint: endpoint,
		http:     newHTTPClient(domain.SourceArxiv, opts),
	}
}

// Name returns the source name
func (a *Arxiv) Name() string {
	return domain.SourceArxiv
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Links []struct {
		Href string `xml:"href,attr"`
		Rel  string `xml:"rel,attr"`
		Type string `xml:"type,attr"`
	} `xml:"link"`
}

// Search returns up to limit papers matching query, by relevance
func (a *Arxiv) Search(ctx context.Context, query string, limit int) ([]domain.LiteraturePaper, error) {
	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(limit))
	params.Set("sortBy", "relevance")
	params.Set("sortOrder", "descending")

	body, err := a.http.get(ctx, a.endpoint, params, "application/atom+xml")
	if err != nil {
		return nil, err
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to decode arxiv feed: %w", err)
	}

	papers := make([]domain.LiteraturePaper, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		title := collapseSpace(e.Title)
		link := abstractLink(e)
		if title == "" || link == "" {
			continue
		}

		authors := make([]string, 0, len(e.Authors))
		for _, au := range e.Authors {
			if name := strings.TrimSpace(au.Name); name != "" {
				authors = append(authors, name)
			}
		}

		papers = append(papers, domain.LiteraturePaper{
			Title:    title,
			Authors:  authors,
			Abstract: collapseSpace(e.Summary),
			Year:     publishedYear(e.Published),
			URL:      link,
			Source:   domain.SourceArxiv,
		})
	}

	return papers, nil
}

func abstractLink(e atomEntry) string {
	for _, l := range e.Links {
		if strings.Contains(l.Href, "arxiv.org/abs/") {
			return strings.Replace(l.Href, "http://", "https://", 1)
		}
	}
	if strings.Contains(e.ID, "arxiv.org/abs/") {
		return strings.Replace(strings.TrimSpace(e.ID), "http://", "https://", 1)
	}
	return ""
}

func publishedYear(published string) *int {
	published = strings.TrimSpace(published)
	if len(published) < 4 {
		return nil
	}
	year, err := strconv.Atoi(published[:4])
	if err != nil || year == 0 {
		return nil
	}
	return &year
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
