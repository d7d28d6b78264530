package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xxxsen/paperqa/internal/ai"
	"github.com/xxxsen/paperqa/internal/metrics"
	"github.com/xxxsen/paperqa/internal/model"
)

const (
	RetrievalToolName = "retrieve_context"
	noPaperMessage    = "No papers found in this session. Please load a paper first using the select-paper endpoint."
)

type Retriever struct {
	index    IPassageIndex
	embedder ai.IEmbedder
}

func NewRetriever(index IPassageIndex, embedder ai.IEmbedder) *Retriever {
	return &Retriever{index: index, embedder: embedder}
}

// Search returns the k passages of the session closest to query. A session
// without a loaded document yields an empty result.
func (r *Retriever) Search(ctx context.Context, sessionID, query string, k int) ([]model.Passage, error) {
	vec, err := r.embedder.Embed(ctx, query, ai.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return r.index.SimilaritySearch(ctx, sessionID, vec, k)
}

// RetrievalTool is the retrieval capability handed to the chat model for a
// single session.
type RetrievalTool struct {
	retriever *Retriever
	sessionID string
	defaultK  int
	last      string
}

func NewRetrievalTool(r *Retriever, sessionID string, defaultK int) *RetrievalTool {
	if defaultK <= 0 {
		defaultK = 5
	}
	return &RetrievalTool{retriever: r, sessionID: sessionID, defaultK: defaultK}
}

func (t *RetrievalTool) Spec() ai.ToolSpec {
	return ai.ToolSpec{
		Name:        RetrievalToolName,
		Description: "Retrieve relevant context from the research paper loaded in this session.",
		Params: []ai.ToolParam{
			{Name: "query", Type: "string", Description: "What to look for in the paper.", Required: true},
			{Name: "k", Type: "integer", Description: "Number of passages to return (default 5)."},
		},
	}
}

// Retrieve serializes the hits as source tagged blocks separated by blank
// lines, or returns the no-paper notice when nothing matched.
func (t *RetrievalTool) Retrieve(ctx context.Context, query string, k int) (string, error) {
	if k <= 0 {
		k = t.defaultK
	}
	hits, err := t.retriever.Search(ctx, t.sessionID, query, k)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		t.last = noPaperMessage
		return t.last, nil
	}
	blocks := make([]string, 0, len(hits))
	for _, h := range hits {
		meta, err := json.Marshal(h.Metadata)
		if err != nil {
			return "", fmt.Errorf("encode passage metadata: %w", err)
		}
		blocks = append(blocks, fmt.Sprintf("Source: %s\nContent: %s", meta, h.Text))
	}
	out := strings.Join(blocks, "\n\n")
	t.last = out
	return out, nil
}

type retrievalArgs struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

// Call runs the tool with model supplied JSON arguments.
func (t *RetrievalTool) Call(ctx context.Context, arguments string) (string, error) {
	metrics.ToolCalls.WithLabelValues(RetrievalToolName).Inc()
	var args retrievalArgs
	if strings.TrimSpace(arguments) != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return fmt.Sprintf("invalid arguments: %v", err), nil
		}
	}
	if strings.TrimSpace(args.Query) == "" {
		return "invalid arguments: query is required", nil
	}
	return t.Retrieve(ctx, args.Query, args.K)
}

// LastResult is the output of the most recent retrieval.
func (t *RetrievalTool) LastResult() string {
	return t.last
}
