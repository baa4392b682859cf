// Package chunker splits page text into overlapping, bounded-size segments.
package chunker

import (
	"strings"
	"unicode"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 2400

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Segment is one chunk of a page.
//
// Start and End are rune offsets of the raw window into the input text;
// Text is that window with surrounding whitespace trimmed.
type Segment struct {
	Index      int
	Text       string
	PageNumber *int
	Start      int
	End        int
}

// Page is the text of one page.
type Page struct {
	Number int
	Text   string
}

// Chunker splits text into overlapping windows.
type Chunker struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}

	return c
}

// ChunkSize returns the configured maximum chunk length.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split cuts text into segments of at most chunkSize runes. A window that
// does not reach the end of the text is shortened to end just after its last
// whitespace; a window without whitespace is cut hard at the limit. The next
// window starts overlap runes before the previous end, or at the previous end
// when that would not advance.
func (c *Chunker) Split(text string, page *int) []Segment {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var segments []Segment
	start := 0
	for start < n {
		end := start + c.chunkSize
		if end < n {
			for i := end - 1; i > start; i-- {
				if unicode.IsSpace(runes[i]) {
					end = i + 1
					break
				}
			}
		} else {
			end = n
		}

		if trimmed := strings.TrimSpace(string(runes[start:end])); trimmed != "" {
			segments = append(segments, Segment{
				Index:      len(segments),
				Text:       trimmed,
				PageNumber: copyPage(page),
				Start:      start,
				End:        end,
			})
		}

		if end >= n {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return segments
}

// SplitPages chunks every page in order and numbers the segments across the
// whole document starting at zero.
func (c *Chunker) SplitPages(pages []Page) []Segment {
	var all []Segment
	for _, p := range pages {
		num := p.Number
		for _, seg := range c.Split(p.Text, &num) {
			seg.Index = len(all)
			all = append(all, seg)
		}
	}
	return all
}

func copyPage(page *int) *int {
	if page == nil {
		return nil
	}
	n := *page
	return &n
}
