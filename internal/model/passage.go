package model

// Passage is one chunk of an ingested document. Metadata values stored in the
// index are flat scalars only.
type Passage struct {
	ID                int64                  `json:"id"`
	Ordinal           int                    `json:"ordinal"`
	Text              string                 `json:"text"`
	Metadata          map[string]interface{} `json:"metadata"`
	SourceDocumentURL string                 `json:"source_document_url"`
	Distance          float64                `json:"distance"`
}

// Collection is the per-session partition of the retrieval index.
type Collection struct {
	Name         string `json:"name"`
	SessionID    string `json:"session_id"`
	DocumentURL  string `json:"document_url"`
	PassageCount int    `json:"passage_count"`
	Ctime        int64  `json:"ctime"`
	Mtime        int64  `json:"mtime"`
}
