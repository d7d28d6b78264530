package arxiv

import (
	"encoding/xml"
	"strings"

	"github.com/xxxsen/paperqa/internal/model"
)

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID         string         `xml:"id"`
	Title      string         `xml:"title"`
	Summary    string         `xml:"summary"`
	Published  string         `xml:"published"`
	Authors    []atomAuthor   `xml:"author"`
	Links      []atomLink     `xml:"link"`
	Categories []atomCategory `xml:"category"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomLink struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

// isError reports the pseudo entry arXiv returns for a malformed query.
func (e atomEntry) isError() bool {
	return strings.Contains(e.ID, "/api/errors") || strings.EqualFold(strings.TrimSpace(e.Title), "Error")
}

func (e atomEntry) pdfURL() string {
	for _, l := range e.Links {
		if l.Title == "pdf" || l.Type == "application/pdf" {
			return strings.TrimSpace(l.Href)
		}
	}
	id := strings.TrimSpace(e.ID)
	if strings.Contains(id, "/abs/") {
		return strings.Replace(id, "/abs/", "/pdf/", 1)
	}
	return ""
}

func (e atomEntry) toPaper() model.CandidatePaper {
	p := model.CandidatePaper{
		StableID:      strings.TrimSpace(e.ID),
		Title:         collapseSpace(e.Title),
		Summary:       collapseSpace(e.Summary),
		DocumentURL:   e.pdfURL(),
		PublishedDate: strings.TrimSpace(e.Published),
	}
	for _, a := range e.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			p.Authors = append(p.Authors, name)
		}
	}
	for _, c := range e.Categories {
		if c.Term != "" {
			p.Categories = append(p.Categories, c.Term)
		}
	}
	return p
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
