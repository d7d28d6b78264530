package loader

import (
	"strings"

	"github.com/xxxsen/paperqa/internal/pkg/tokens"
)

const maxHeadingTrail = 3

type chunk struct {
	Text       string
	Page       int
	Heading    string
	Headings   []string
	TokenCount int
}

type chunker struct {
	target  int
	overlap int
}

// split cuts sections into chunks of roughly target tokens. Consecutive chunks
// of one section share up to overlap tokens of trailing paragraphs.
func (c chunker) split(sections []section) []chunk {
	var out []chunk
	var trail []string
	for _, sec := range sections {
		if sec.Heading != "" {
			trail = append(trail, sec.Heading)
			if len(trail) > maxHeadingTrail {
				trail = trail[len(trail)-maxHeadingTrail:]
			}
		}
		var parts []string
		size := 0
		fresh := false
		flush := func() {
			if !fresh {
				return
			}
			body := strings.Join(parts, "\n\n")
			if sec.Heading != "" {
				body = "Heading: " + sec.Heading + "\n" + body
			}
			out = append(out, chunk{
				Text:       body,
				Page:       sec.Page,
				Heading:    sec.Heading,
				Headings:   append([]string(nil), trail...),
				TokenCount: tokens.Estimate(body),
			})
			parts, size = c.carry(parts)
			fresh = false
		}
		for _, block := range sec.Blocks {
			for _, piece := range c.fit(block) {
				n := tokens.Estimate(piece)
				if size+n > c.target {
					flush()
					if size+n > c.target {
						parts, size = nil, 0
					}
				}
				parts = append(parts, piece)
				size += n
				fresh = true
			}
		}
		flush()
	}
	return out
}

func (c chunker) carry(parts []string) ([]string, int) {
	if c.overlap <= 0 || len(parts) < 2 {
		return nil, 0
	}
	size := 0
	start := len(parts)
	for i := len(parts) - 1; i > 0; i-- {
		n := tokens.Estimate(parts[i])
		if size+n > c.overlap {
			break
		}
		size += n
		start = i
	}
	return append([]string(nil), parts[start:]...), size
}

// fit splits a paragraph longer than the target on word boundaries.
func (c chunker) fit(block string) []string {
	if tokens.Estimate(block) <= c.target {
		return []string{block}
	}
	words := strings.Fields(block)
	var out []string
	var cur []string
	size := 0
	for _, w := range words {
		n := tokens.Estimate(w)
		if size+n > c.target && len(cur) > 0 {
			out = append(out, strings.Join(cur, " "))
			cur, size = nil, 0
		}
		cur = append(cur, w)
		size += n
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}
