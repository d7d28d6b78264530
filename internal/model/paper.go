package model

// CandidatePaper is one bibliographic record returned by the paper source.
// It only lives for the duration of a search request.
type CandidatePaper struct {
	StableID      string   `json:"stable_id"`
	Title         string   `json:"title"`
	Summary       string   `json:"summary"`
	DocumentURL   string   `json:"pdf_url"`
	PublishedDate string   `json:"published"`
	Authors       []string `json:"authors,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	Score         float32  `json:"score"`
}

// SearchPlan is the planner output: three search queries plus an expanded
// description of the user intent used for reranking.
type SearchPlan struct {
	Queries        [3]string `json:"queries"`
	ExpandedIntent string    `json:"expanded_intent"`
}
