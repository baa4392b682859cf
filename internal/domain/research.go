package domain

// Literature sources
const (
	SourceSemanticScholar = "semantic_scholar"
	SourceArxiv           = "arxiv"
	SourceHuggingFace     = "huggingface"
)

// LiteraturePaper is one record returned by a literature search source
type LiteraturePaper struct {
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Abstract      string   `json:"abstract,omitempty"`
	Year          *int     `json:"year,omitempty"`
	CitationCount *int     `json:"citation_count,omitempty"`
	Venue         string   `json:"venue,omitempty"`
	URL           string   `json:"url,omitempty"`
	Source        string   `json:"source"`
}

// Dataset is a dataset suggestion from a dataset hub
type Dataset struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Downloads   int    `json:"downloads"`
	URL         string `json:"url"`
}

// ProjectIdea is a generated research direction
type ProjectIdea struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Methodology string `json:"methodology,omitempty"`
}

// OutlineSection is one section of a suggested paper
type OutlineSection struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Outline is a suggested paper structure
type Outline struct {
	Sections []OutlineSection `json:"sections"`
}

// Library is a suggested software library
type Library struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url,omitempty"`
}

// ResearchRequest is a literature search query
type ResearchRequest struct {
	Query string `json:"query" binding:"required"`
}

// ResearchResult is the research assistant aggregate
type ResearchResult struct {
	Topic        string            `json:"topic"`
	Papers       []LiteraturePaper `json:"papers"`
	ProjectIdeas []ProjectIdea     `json:"project_ideas"`
	Outline      Outline           `json:"outline"`
	Datasets     []Dataset         `json:"datasets"`
	Libraries    []Library         `json:"libraries"`
}

// Aggregate is the deduplicated, ranked output of all sources
type Aggregate struct {
	Papers   []LiteraturePaper `json:"papers"`
	Datasets []Dataset         `json:"datasets"`
}
