package loader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/paperqa/internal/pkg/tokens"
)

func words(n int, w string) string {
	return strings.TrimSpace(strings.Repeat(w+" ", n))
}

func TestChunker_RespectsTargetAndOverlap(t *testing.T) {
	c := chunker{target: 10, overlap: 4}
	chunks := c.split([]section{{Blocks: []string{
		words(3, "a"), words(3, "b"), words(3, "c"), words(3, "d"), words(3, "e"),
	}}})
	require.Len(t, chunks, 2)
	require.Equal(t, "a a a\n\nb b b\n\nc c c", chunks[0].Text)
	require.Equal(t, "c c c\n\nd d d\n\ne e e", chunks[1].Text)
	for _, ch := range chunks {
		require.LessOrEqual(t, ch.TokenCount, 10)
	}
}

func TestChunker_SplitsLongParagraph(t *testing.T) {
	c := chunker{target: 5, overlap: 0}
	chunks := c.split([]section{{Page: 2, Blocks: []string{words(12, "x")}}})
	require.Len(t, chunks, 3)
	require.Equal(t, 2, chunks[0].Page)
	require.Equal(t, 2, tokens.Estimate(chunks[2].Text))
}

func TestChunker_SectionsDoNotShareChunks(t *testing.T) {
	c := chunker{target: 100, overlap: 10}
	chunks := c.split([]section{
		{Heading: "Intro", Blocks: []string{"first"}},
		{Heading: "Method", Blocks: []string{"second"}},
	})
	require.Len(t, chunks, 2)
	require.Equal(t, "Heading: Intro\nfirst", chunks[0].Text)
	require.Equal(t, "Method", chunks[1].Heading)
	require.Equal(t, []string{"Intro", "Method"}, chunks[1].Headings)
}

func TestChunker_Empty(t *testing.T) {
	require.Empty(t, chunker{target: 10}.split(nil))
	require.Empty(t, chunker{target: 10}.split([]section{{Heading: "only"}}))
}
