package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/liliang-cn/paperchat/internal/domain"
	"github.com/liliang-cn/paperchat/internal/llm"
	"go.uber.org/zap"
)

// Score component ceilings
const (
	MaxKeywordScore   = 40
	MaxSkillsScore    = 30
	MaxProximityScore = 20
	MaxLLMScore       = 10
)

// FallbackMatchReason explains a keyword-only score
const FallbackMatchReason = "Score is based on keyword overlap only; a detailed fit assessment was unavailable."

// MatchService scores how well a researcher profile fits an opportunity post
type MatchService struct {
	generator llm.Generator
	logger    *zap.Logger
}

// NewMatchService creates a new match service
func NewMatchService(generator llm.Generator, logger *zap.Logger) *MatchService {
	return &MatchService{
		generator: generator,
		logger:    logger.Named("match"),
	}
}

type llmMatch struct {
	SkillsScore    float64 `json:"skills_score"`
	ProximityScore float64 `json:"proximity_score"`
	LLMScore       float64 `json:"llm_score"`
	Reason         string  `json:"reason"`
}

// Score computes the keyword component locally and asks the model for the
// rest. If generation fails the score is keyword-only.
func (s *MatchService) Score(ctx context.Context, profile domain.ProfileFields, post domain.PostFields) (*domain.MatchScore, error) {
	keyword := ScoreKeywords(profile, post)

	prompt, err := matchPrompt(profile, post, keyword)
	if err != nil {
		return nil, err
	}

	var judged llmMatch
	if err := llm.GenerateJSON(ctx, s.generator, llm.UserPrompt(matchSystemPrompt(keyword), prompt), &judged); err != nil {
		s.logger.Warn("match scoring generation failed, using keyword score only", zap.Error(err))
		return &domain.MatchScore{
			KeywordScore: keyword,
			OverallScore: clamp(keyword, 0, 100),
			Reason:       FallbackMatchReason,
		}, nil
	}

	score := &domain.MatchScore{
		KeywordScore:   keyword,
		SkillsScore:    clamp(roundInt(judged.SkillsScore), 0, MaxSkillsScore),
		ProximityScore: clamp(roundInt(judged.ProximityScore), 0, MaxProximityScore),
		LLMScore:       clamp(roundInt(judged.LLMScore), 0, MaxLLMScore),
		Reason:         strings.TrimSpace(judged.Reason),
	}
	score.OverallScore = clamp(score.KeywordScore+score.SkillsScore+score.ProximityScore+score.LLMScore, 0, 100)
	return score, nil
}

// ScoreKeywords is research fields x20, methods x10 and tools x10, each scaled
// by the share of the post's items the profile also lists. A post with no
// items in a category awards that category in full.
func ScoreKeywords(profile domain.ProfileFields, post domain.PostFields) int {
	fields := overlap(profile.ResearchFields, post.Tags) * 20
	methods := overlap(profile.Methods, post.Methods) * 10
	tools := overlap(profile.Tools, post.Tools) * 10
	return roundInt(fields + methods + tools)
}

func overlap(have, want []string) float64 {
	if len(want) == 0 {
		return 1
	}
	if len(have) == 0 {
		return 0
	}

	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}

	matches := 0
	for _, w := range want {
		if _, ok := set[strings.ToLower(strings.TrimSpace(w))]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(want))
}

func matchSystemPrompt(keyword int) string {
	return fmt.Sprintf(`You are an academic research matching assistant. Given a researcher's profile and a lab post, score the fit and explain it briefly.

A keyword overlap score has already been calculated: %d/%d.

Evaluate the remaining components:
1. Skills match (0-%d): the researcher's bio, degree status and skills against the post's description and requirements.
2. Proximity and alignment (0-%d): institution, location, remote work and career stage.
3. Overall synthesis (0-%d): nuanced fit not captured above.

Respond with JSON only:
{"skills_score": number, "proximity_score": number, "llm_score": number, "reason": string}`,
		keyword, MaxKeywordScore, MaxSkillsScore, MaxProximityScore, MaxLLMScore)
}

func matchPrompt(profile domain.ProfileFields, post domain.PostFields, keyword int) (string, error) {
	p, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return "", err
	}
	q, err := json.MarshalIndent(post, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Profile: %s\nPost: %s\n\nThe keyword overlap score is already %d/%d. Score the remaining components and explain the fit.",
		p, q, keyword, MaxKeywordScore), nil
}

func roundInt(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(math.Round(f))
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
