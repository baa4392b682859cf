package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/liliang-cn/paperchat/internal/domain"
)

const (
	metadataScanChars = 3000
	maxAbstractChars  = 1500
	minTitleChars     = 10
	maxTitleChars     = 250
)

var lineBreaks = regexp.MustCompile(`\n+`)

// Metadata holds fields guessed from the opening text of a paper
type Metadata struct {
	Title    string
	Abstract string
}

// ExtractMetadata scans the first 3000 characters line by line. The title is
// the first line of 11 to 249 characters that does not start with a digit.
// The scan stops at the first line starting with "abstract"; everything after
// it, joined with spaces and capped at 1500 characters, is the abstract.
func ExtractMetadata(fullText string) Metadata {
	head := truncateRunes(fullText, metadataScanChars)

	var lines []string
	for _, l := range lineBreaks.Split(head, -1) {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}

	var md Metadata
	for i, l := range lines {
		n := len([]rune(l))
		if md.Title == "" && n > minTitleChars && n < maxTitleChars && !startsWithDigit(l) {
			md.Title = l
		}
		if strings.HasPrefix(strings.ToLower(l), "abstract") {
			md.Abstract = truncateRunes(strings.Join(lines[i+1:], " "), maxAbstractChars)
			break
		}
	}

	return md
}

// Fields returns the non-empty metadata as a map for merging
func (m Metadata) Fields() map[string]any {
	out := make(map[string]any)
	if m.Title != "" {
		out[domain.MetadataKeyTitle] = m.Title
	}
	if m.Abstract != "" {
		out[domain.MetadataKeyAbstract] = m.Abstract
	}
	return out
}

func startsWithDigit(s string) bool {
	for _, r := range s {
		return unicode.IsDigit(r)
	}
	return false
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
