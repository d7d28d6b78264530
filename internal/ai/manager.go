package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/xxxsen/paperqa/internal/model"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

type ManagerConfig struct {
	Timeout int
}

type Manager struct {
	planner    IChatModel
	summarizer IGenerator
	cfg        ManagerConfig
}

func NewManager(planner IChatModel, summarizer IGenerator, cfg ManagerConfig) *Manager {
	return &Manager{
		planner:    planner,
		summarizer: summarizer,
		cfg:        cfg,
	}
}

const plannerSystemPrompt = `You are an expert research assistant.
Your task is to expand a user's research intent and generate three diverse arXiv search queries to maximize recall.
- If the user query looks like a paper title (short phrase), use it EXACTLY as query1 wrapped in quotes like: all:"exact title".
- For query2 and query3, use different terminology and perspectives. All three queries must differ.
- expanded_intent should describe what the user wants to find. If they search for a specific paper title, describe the paper's topic and contributions for better semantic reranking.
Return a single JSON object with string fields: query1, query2, query3, expanded_intent. No extra text.`

type searchPlanOutput struct {
	Query1         string `json:"query1"`
	Query2         string `json:"query2"`
	Query3         string `json:"query3"`
	ExpandedIntent string `json:"expanded_intent"`
}

// ExtractSearchPlan asks the planner model for three catalog queries and an
// expanded intent. Any malformed output is reported as a generation failure.
func (m *Manager) ExtractSearchPlan(ctx context.Context, topic string) (*model.SearchPlan, error) {
	if m.planner == nil {
		return nil, appErr.Wrapf(appErr.ErrGeneration, "planner not configured")
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	user := fmt.Sprintf("User research query: %s", topic)
	if LooksLikeTitle(topic) {
		user += "\n(This input looks like a paper title.)"
	}
	resp, err := m.planner.Chat(ctx, &ChatRequest{
		Messages: []ChatMessage{
			{Role: RoleSystem, Content: plannerSystemPrompt},
			{Role: RoleUser, Content: user},
		},
		Temperature: 0.2,
		JSONMode:    true,
	})
	if err != nil {
		return nil, appErr.Wrap(appErr.ErrGeneration, err)
	}
	plan, err := parseSearchPlan(resp.Content)
	if err != nil {
		return nil, appErr.Wrap(appErr.ErrGeneration, err)
	}
	return plan, nil
}

func parseSearchPlan(output string) (*model.SearchPlan, error) {
	clean := stripCodeFence(output)
	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start >= 0 && end > start {
		clean = clean[start : end+1]
	}
	var out searchPlanOutput
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return nil, fmt.Errorf("parse search plan: %w", err)
	}
	plan := &model.SearchPlan{
		Queries: [3]string{
			strings.TrimSpace(out.Query1),
			strings.TrimSpace(out.Query2),
			strings.TrimSpace(out.Query3),
		},
		ExpandedIntent: strings.TrimSpace(out.ExpandedIntent),
	}
	seen := make(map[string]bool, 3)
	for i, q := range plan.Queries {
		if q == "" {
			return nil, fmt.Errorf("search plan query%d is empty", i+1)
		}
		key := strings.ToLower(q)
		if seen[key] {
			return nil, fmt.Errorf("search plan query%d duplicates an earlier query", i+1)
		}
		seen[key] = true
	}
	if plan.ExpandedIntent == "" {
		return nil, fmt.Errorf("search plan expanded_intent is empty")
	}
	return plan, nil
}

// Summarize condenses an older conversation transcript into a paragraph that
// replaces it in later model context.
func (m *Manager) Summarize(ctx context.Context, transcript string) (string, error) {
	if m.summarizer == nil {
		return "", fmt.Errorf("summarizer not configured")
	}
	prompt := fmt.Sprintf(`You are a helpful assistant.
Summarize the following conversation between a user and a research assistant about an academic paper.
- Keep the questions asked, the facts established and any open points.
- Keep factual accuracy. Do not invent details.
- Output ONLY the summary text.

CONVERSATION:
%s`, transcript)
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	resp, err := m.summarizer.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
	}
	return context.WithCancel(ctx)
}

func stripCodeFence(s string) string {
	clean := strings.TrimSpace(s)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	return strings.TrimSpace(clean)
}

// LooksLikeTitle reports whether the input reads like a bare paper title:
// a short single line without question or sentence punctuation.
func LooksLikeTitle(topic string) bool {
	t := strings.TrimSpace(topic)
	if t == "" || strings.ContainsAny(t, "\n?") {
		return false
	}
	words := strings.Fields(t)
	if len(words) > 15 {
		return false
	}
	if strings.HasSuffix(t, ".") {
		return false
	}
	lower := strings.ToLower(words[0])
	switch lower {
	case "how", "what", "why", "which", "when", "where", "who", "find", "papers", "search", "show", "i", "looking":
		return false
	}
	capitalized := 0
	for _, w := range words {
		r := []rune(w)
		if unicode.IsUpper(r[0]) || unicode.IsDigit(r[0]) {
			capitalized++
		}
	}
	// Titles are usually title-cased or carry a colon subtitle.
	return strings.Contains(t, ":") || capitalized*2 >= len(words)
}
