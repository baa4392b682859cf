package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/liliang-cn/paperchat/internal/domain"
	"github.com/liliang-cn/paperchat/internal/llm"
	"go.uber.org/zap"
)

const researchSystemPrompt = `You are a research advisor helping generate project ideas and paper outlines. You must respond with valid JSON only, no markdown or explanations.`

const promptPapers = 5

// LiteratureSearcher returns deduplicated, ranked papers and datasets for a query
type LiteratureSearcher interface {
	Search(ctx context.Context, query string) (*domain.Aggregate, error)
}

// ResearchService builds the research assistant payload for a topic
type ResearchService struct {
	literature LiteratureSearcher
	generator  llm.Generator
	logger     *zap.Logger
}

// NewResearchService creates a new research service
func NewResearchService(literature LiteratureSearcher, generator llm.Generator, logger *zap.Logger) *ResearchService {
	return &ResearchService{
		literature: literature,
		generator:  generator,
		logger:     logger.Named("research"),
	}
}

type researchPlan struct {
	ProjectIdeas []domain.ProjectIdea `json:"project_ideas"`
	Outline      domain.Outline       `json:"outline"`
	Libraries    []domain.Library     `json:"libraries"`
}

// Research aggregates literature for query and generates ideas, an outline and
// library suggestions. Generation problems fall back to a static plan.
func (s *ResearchService) Research(ctx context.Context, query string) (*domain.ResearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrInvalidRequest)
	}

	agg, err := s.literature.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	var plan researchPlan
	if err := llm.GenerateJSON(ctx, s.generator, llm.UserPrompt(researchSystemPrompt, researchPrompt(query, agg)), &plan); err != nil {
		s.logger.Warn("research plan generation failed, using fallback", zap.String("query", query), zap.Error(err))
		plan = fallbackPlan(query)
	}
	if plan.ProjectIdeas == nil {
		plan.ProjectIdeas = []domain.ProjectIdea{}
	}
	if plan.Outline.Sections == nil {
		plan.Outline.Sections = []domain.OutlineSection{}
	}
	if plan.Libraries == nil {
		plan.Libraries = []domain.Library{}
	}

	return &domain.ResearchResult{
		Topic:        query,
		Papers:       agg.Papers,
		ProjectIdeas: plan.ProjectIdeas,
		Outline:      plan.Outline,
		Datasets:     agg.Datasets,
		Libraries:    plan.Libraries,
	}, nil
}

func researchPrompt(query string, agg *domain.Aggregate) string {
	var papers strings.Builder
	for i, p := range agg.Papers {
		if i == promptPapers {
			break
		}
		year := "n.d."
		if p.Year != nil {
			year = fmt.Sprint(*p.Year)
		}
		fmt.Fprintf(&papers, "- %q (%s): %s...\n", p.Title, year, truncate(p.Abstract, 200))
	}
	if papers.Len() == 0 {
		papers.WriteString("No papers found yet.\n")
	}

	var datasets strings.Builder
	for i, d := range agg.Datasets {
		if i == promptPapers {
			break
		}
		fmt.Fprintf(&datasets, "- %s: %s...\n", d.Name, truncate(d.Description, 100))
	}
	if datasets.Len() == 0 {
		datasets.WriteString("No specific datasets found.\n")
	}

	return fmt.Sprintf(`Based on the research topic: %q

Here are relevant papers found:
%s
Here are relevant datasets:
%s
Generate a JSON response with:
1. "project_ideas": Array of 3-4 specific, actionable research project ideas. Each has "title", "description" (2-3 sentences) and "methodology".
2. "outline": A paper outline with a "sections" array of 6-8 sections. Each section has "title" and "description".
3. "libraries": Array of 4-6 relevant Python/ML libraries and tools. Each has "name", "description" and "url".

Respond ONLY with valid JSON, no markdown code blocks.`, query, papers.String(), datasets.String())
}

func fallbackPlan(query string) researchPlan {
	return researchPlan{
		ProjectIdeas: []domain.ProjectIdea{
			{
				Title:       "Novel Approach to " + query,
				Description: "Explore innovative methods combining recent advances in the field. Focus on addressing current limitations identified in the literature.",
				Methodology: "Literature review, prototype development, empirical evaluation",
			},
			{
				Title:       "Benchmark Study for " + query,
				Description: "Create a comprehensive benchmark comparing existing approaches. Identify gaps and propose improvements.",
				Methodology: "Systematic comparison, statistical analysis, ablation studies",
			},
		},
		Outline: domain.Outline{Sections: []domain.OutlineSection{
			{Title: "Introduction", Description: "Background, motivation, and research questions"},
			{Title: "Related Work", Description: "Survey of existing approaches and their limitations"},
			{Title: "Methodology", Description: "Proposed approach and technical details"},
			{Title: "Experiments", Description: "Experimental setup, datasets, and evaluation metrics"},
			{Title: "Results", Description: "Quantitative and qualitative results"},
			{Title: "Discussion", Description: "Analysis of findings and implications"},
			{Title: "Conclusion", Description: "Summary and future directions"},
		}},
		Libraries: []domain.Library{
			{Name: "PyTorch", Description: "Deep learning framework for building neural networks", URL: "https://pytorch.org"},
			{Name: "Hugging Face Transformers", Description: "State-of-the-art NLP models and tools", URL: "https://huggingface.co/transformers"},
			{Name: "scikit-learn", Description: "Machine learning library for classical algorithms", URL: "https://scikit-learn.org"},
		},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
