package literature

import (
	"sort"
	"strings"
	"unicode"

	"github.com/liliang-cn/paperchat/internal/domain"
)

// MaxPapers is the length of a ranked result list
const MaxPapers = 10

// NormalizeTitle lowercases title and drops everything but letters and digits
func NormalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Dedupe keeps one record per normalized title. A later duplicate wins only
// with a strictly higher citation count, where a missing count loses to any
// present one. Survivors keep the position of their key's first occurrence.
func Dedupe(papers []domain.LiteraturePaper) []domain.LiteraturePaper {
	index := make(map[string]int, len(papers))
	out := make([]domain.LiteraturePaper, 0, len(papers))

	for _, p := range papers {
		key := NormalizeTitle(p.Title)
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, p)
			continue
		}
		if moreCited(p, out[i]) {
			out[i] = p
		}
	}

	return out
}

// Rank sorts papers with a citation count first, by count then year, followed
// by uncounted papers by year, and keeps the first MaxPapers.
func Rank(papers []domain.LiteraturePaper) []domain.LiteraturePaper {
	ranked := append([]domain.LiteraturePaper(nil), papers...)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		ac, bc := a.CitationCount != nil, b.CitationCount != nil
		if ac != bc {
			return ac
		}
		if ac && *a.CitationCount != *b.CitationCount {
			return *a.CitationCount > *b.CitationCount
		}
		return yearOf(a) > yearOf(b)
	})

	if len(ranked) > MaxPapers {
		ranked = ranked[:MaxPapers]
	}
	return ranked
}

func moreCited(candidate, existing domain.LiteraturePaper) bool {
	if candidate.CitationCount == nil {
		return false
	}
	return existing.CitationCount == nil || *candidate.CitationCount > *existing.CitationCount
}

func yearOf(p domain.LiteraturePaper) int {
	if p.Year == nil {
		return 0
	}
	return *p.Year
}
