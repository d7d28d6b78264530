package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/paperqa/internal/pkg/response"
	"github.com/xxxsen/paperqa/internal/service"
)

type IPaperSearcher interface {
	SearchPapers(ctx context.Context, topic string) (*service.SearchResult, error)
}

type IPaperIngester interface {
	Ingest(ctx context.Context, sessionID, documentURL string) (int, error)
}

type PaperHandler struct {
	search IPaperSearcher
	ingest IPaperIngester
}

func NewPaperHandler(search IPaperSearcher, ingest IPaperIngester) *PaperHandler {
	return &PaperHandler{search: search, ingest: ingest}
}

type searchPapersRequest struct {
	Topic string `json:"topic"`
}

type paperView struct {
	Title     string `json:"title"`
	PDFURL    string `json:"pdf_url"`
	Published string `json:"published"`
	Summary   string `json:"summary"`
}

type searchPapersResponse struct {
	SessionID      string      `json:"session_id"`
	Papers         []paperView `json:"papers"`
	ExpandedIntent string      `json:"expanded_intent"`
}

type selectPaperRequest struct {
	SessionID string `json:"session_id"`
	PDFURL    string `json:"pdf_url"`
}

type selectPaperResponse struct {
	SessionID   string `json:"session_id"`
	Message     string `json:"message"`
	ChunksCount int    `json:"chunks_count"`
}

func (h *PaperHandler) SearchPapers(c *gin.Context) {
	var req searchPapersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, "invalid request")
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		invalidRequest(c, "topic is required")
		return
	}
	res, err := h.search.SearchPapers(c.Request.Context(), req.Topic)
	if err != nil {
		handleError(c, err)
		return
	}
	papers := make([]paperView, 0, len(res.Papers))
	for _, p := range res.Papers {
		papers = append(papers, paperView{
			Title:     p.Title,
			PDFURL:    p.DocumentURL,
			Published: p.PublishedDate,
			Summary:   p.Summary,
		})
	}
	response.Success(c, searchPapersResponse{
		SessionID:      res.SessionID,
		Papers:         papers,
		ExpandedIntent: res.ExpandedIntent,
	})
}

func (h *PaperHandler) SelectPaper(c *gin.Context) {
	var req selectPaperRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, "invalid request")
		return
	}
	count, err := h.ingest.Ingest(c.Request.Context(), req.SessionID, req.PDFURL)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, selectPaperResponse{
		SessionID:   strings.TrimSpace(req.SessionID),
		Message:     "Paper loaded successfully",
		ChunksCount: count,
	})
}
