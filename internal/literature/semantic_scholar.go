package literature

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/liliang-cn/paperchat/internal/domain"
)

// DefaultSemanticScholarURL is the Semantic Scholar graph API root
const DefaultSemanticScholarURL = "https://api.semanticscholar.org/graph/v1"

const semanticScholarFields = "title,authors,abstract,year,citationCount,venue,url,externalIds"

// SemanticScholar searches the Semantic Scholar paper index
type SemanticScholar struct {
	baseURL string
	http    *httpClient
}

// NewSemanticScholar creates a Semantic Scholar source
func NewSemanticScholar(baseURL string, opts ...ClientOption) *SemanticScholar {
	if baseURL == "" {
		baseURL = DefaultSemanticScholarURL
	}
	return &SemanticScholar{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(domain.SourceSemanticScholar, opts),
	}
}

// Name returns the source name
func (s *SemanticScholar) Name() string {
	return domain.SourceSemanticScholar
}

type s2SearchResponse struct {
	Data []s2Paper `json:"data"`
}

type s2Paper struct {
	Title         string `json:"title"`
	Abstract      string `json:"abstract"`
	Year          *int   `json:"year"`
	CitationCount *int   `json:"citationCount"`
	Venue         string `json:"venue"`
	URL           string `json:"url"`
	Authors       []struct {
		Name string `json:"name"`
	} `json:"authors"`
	ExternalIDs map[string]any `json:"externalIds"`
}

// Search returns up to limit papers matching query
func (s *SemanticScholar) Search(ctx context.Context, query string, limit int) ([]domain.LiteraturePaper, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("fields", semanticScholarFields)

	body, err := s.http.get(ctx, s.baseURL+"/paper/search", params, "application/json")
	if err != nil {
		return nil, err
	}

	var resp s2SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode semantic scholar response: %w", err)
	}

	papers := make([]domain.LiteraturePaper, 0, len(resp.Data))
	for _, p := range resp.Data {
		authors := make([]string, 0, len(p.Authors))
		for _, a := range p.Authors {
			if a.Name != "" {
				authors = append(authors, a.Name)
			}
		}

		title := strings.TrimSpace(p.Title)
		if title == "" {
			title = "Untitled"
		}

		link := p.URL
		if link == "" {
			if doi, ok := p.ExternalIDs["DOI"].(string); ok && doi != "" {
				link = "https://doi.org/" + doi
			}
		}

		year := p.Year
		if year != nil && *year == 0 {
			year = nil
		}

		papers = append(papers, domain.LiteraturePaper{
			Title:         title,
			Authors:       authors,
			Abstract:      p.Abstract,
			Year:          year,
			CitationCount: p.CitationCount,
			Venue:         p.Venue,
			URL:           link,
			Source:        domain.SourceSemanticScholar,
		})
	}

	return papers, nil
}
