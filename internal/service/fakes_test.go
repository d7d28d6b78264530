package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/xxxsen/paperqa/internal/ai"
	"github.com/xxxsen/paperqa/internal/model"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

type fakePlanModel struct {
	plan  *model.SearchPlan
	err   error
	calls int
}

func (f *fakePlanModel) ExtractSearchPlan(_ context.Context, _ string) (*model.SearchPlan, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p := *f.plan
	return &p, nil
}

type fakeSource struct {
	byQuery map[string][]model.CandidatePaper
	errs    map[string]error
}

func (f *fakeSource) Search(_ context.Context, query string, _ int) ([]model.CandidatePaper, error) {
	if err, ok := f.errs[query]; ok {
		return nil, err
	}
	return f.byQuery[query], nil
}

type fakeScorer struct {
	score func(doc string) float32
	err   error
	short bool
	calls int
}

func (f *fakeScorer) Score(_ context.Context, _ string, docs []string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float32, 0, len(docs))
	for _, d := range docs {
		out = append(out, f.score(d))
	}
	if f.short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

type fakeLoader struct {
	passages []model.Passage
	err      error
}

func (f *fakeLoader) Load(_ context.Context, _ string) ([]model.Passage, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Passage, len(f.passages))
	copy(out, f.passages)
	return out, nil
}

// fakeEmbedder maps text to a two dimensional vector keyed on its length.
type fakeEmbedder struct {
	mu    sync.Mutex
	err   error
	tasks []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string, taskType string) ([]float32, error) {
	f.mu.Lock()
	f.tasks = append(f.tasks, taskType)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake" }

type storedPassage struct {
	passage model.Passage
	vector  []float32
}

type memIndex struct {
	mu        sync.Mutex
	sessions  map[string][]storedPassage
	insertErr error
	deleteErr error
	dropWrite bool
	deletes   int
}

func newMemIndex() *memIndex {
	return &memIndex{sessions: make(map[string][]storedPassage)}
}

func (m *memIndex) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deletes++
	delete(m.sessions, sessionID)
	return nil
}

func (m *memIndex) Insert(_ context.Context, sessionID, documentURL string, passages []model.Passage, vectors [][]float32) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	if m.dropWrite {
		return len(passages), nil
	}
	rows := make([]storedPassage, 0, len(passages))
	for i, p := range passages {
		p.SourceDocumentURL = documentURL
		rows = append(rows, storedPassage{passage: p, vector: vectors[i]})
	}
	m.sessions[sessionID] = rows
	return len(passages), nil
}

func (m *memIndex) Count(_ context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions[sessionID]), nil
}

func (m *memIndex) SimilaritySearch(_ context.Context, sessionID string, vector []float32, k int) ([]model.Passage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := append([]storedPassage(nil), m.sessions[sessionID]...)
	sort.SliceStable(items, func(i, j int) bool {
		return ai.Cosine(vector, items[i].vector) > ai.Cosine(vector, items[j].vector)
	})
	out := make([]model.Passage, 0, k)
	for i := 0; i < len(items) && i < k; i++ {
		out = append(out, items[i].passage)
	}
	return out, nil
}

type memHistory struct {
	mu     sync.Mutex
	nextID int64
	turns  []model.ChatTurn
}

func (m *memHistory) Append(_ context.Context, sessionID string, turns ...model.ChatTurn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range turns {
		m.nextID++
		t.ID = m.nextID
		t.SessionID = sessionID
		m.turns = append(m.turns, t)
	}
	return nil
}

func (m *memHistory) ListAll(ctx context.Context, sessionID string) ([]model.ChatTurn, error) {
	return m.ListAfter(ctx, sessionID, 0)
}

func (m *memHistory) ListAfter(_ context.Context, sessionID string, afterID int64) ([]model.ChatTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ChatTurn
	for _, t := range m.turns {
		if t.SessionID == sessionID && t.ID > afterID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memHistory) DeleteBySession(_ context.Context, sessionID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.turns[:0]
	var n int64
	for _, t := range m.turns {
		if t.SessionID == sessionID {
			n++
			continue
		}
		kept = append(kept, t)
	}
	m.turns = kept
	return n, nil
}

type memSummaries struct {
	items map[string]model.ChatSummary
}

func newMemSummaries() *memSummaries {
	return &memSummaries{items: make(map[string]model.ChatSummary)}
}

func (m *memSummaries) Get(_ context.Context, sessionID string) (*model.ChatSummary, error) {
	s, ok := m.items[sessionID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &s, nil
}

func (m *memSummaries) Upsert(_ context.Context, s *model.ChatSummary) error {
	m.items[s.SessionID] = *s
	return nil
}

func (m *memSummaries) DeleteBySession(_ context.Context, sessionID string) error {
	delete(m.items, sessionID)
	return nil
}

type fakeSummarizer struct {
	reply      string
	err        error
	transcript string
	calls      int
}

func (f *fakeSummarizer) Summarize(_ context.Context, transcript string) (string, error) {
	f.calls++
	f.transcript = transcript
	return f.reply, f.err
}

// scriptedChat replays responses in order and records every request.
type scriptedChat struct {
	replies  []*ai.ChatResponse
	err      error
	requests []*ai.ChatRequest
}

func (s *scriptedChat) Chat(_ context.Context, req *ai.ChatRequest) (*ai.ChatResponse, error) {
	cp := *req
	cp.Messages = append([]ai.ChatMessage(nil), req.Messages...)
	s.requests = append(s.requests, &cp)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.requests) > len(s.replies) {
		return nil, errors.New("no scripted reply left")
	}
	return s.replies[len(s.requests)-1], nil
}
