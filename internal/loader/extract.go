package loader

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const (
	contentTypePDF      = "pdf"
	contentTypeHTML     = "html"
	contentTypeMarkdown = "markdown"
	contentTypeText     = "text"
)

// section is a run of paragraphs sharing one page and heading.
type section struct {
	Page    int
	Heading string
	Blocks  []string
}

func sniffContentType(data []byte, rawURL string) (string, error) {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return contentTypePDF, nil
	}
	ext := ""
	if u, err := url.Parse(rawURL); err == nil {
		ext = strings.ToLower(path.Ext(u.Path))
	}
	if ext == ".md" || ext == ".markdown" {
		return contentTypeMarkdown, nil
	}
	mime := http.DetectContentType(data)
	switch {
	case strings.HasPrefix(mime, "text/html"), strings.HasPrefix(mime, "text/xml"):
		return contentTypeHTML, nil
	case strings.HasPrefix(mime, "text/plain"):
		return contentTypeText, nil
	}
	if utf8.Valid(data) {
		return contentTypeText, nil
	}
	return "", fmt.Errorf("unsupported document type: %s", mime)
}

func extractSections(contentType string, data []byte, rawURL string) ([]section, error) {
	switch contentType {
	case contentTypePDF:
		return extractPDF(data)
	case contentTypeHTML:
		return extractHTML(data, rawURL)
	case contentTypeMarkdown:
		return extractMarkdown(data), nil
	case contentTypeText:
		return []section{{Blocks: splitParagraphs(string(data))}}, nil
	}
	return nil, fmt.Errorf("unsupported document type: %s", contentType)
}

func extractPDF(data []byte) (sections []section, err error) {
	// the pdf reader panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			sections, err = nil, fmt.Errorf("parse pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read pdf page %d: %w", i, err)
		}
		blocks := splitParagraphs(content)
		if len(blocks) == 0 {
			continue
		}
		sections = append(sections, section{Page: i, Blocks: blocks})
	}
	return sections, nil
}

func extractHTML(data []byte, rawURL string) ([]section, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err != nil {
		return nil, fmt.Errorf("extract html: %w", err)
	}
	return []section{{
		Heading: strings.TrimSpace(article.Title),
		Blocks:  splitParagraphs(article.TextContent),
	}}, nil
}

// extractMarkdown starts a new section at every heading.
func extractMarkdown(data []byte) []section {
	reader := text.NewReader(data)
	doc := goldmark.New().Parser().Parse(reader)
	source := reader.Source()

	var sections []section
	cur := section{}
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Heading:
			if len(cur.Blocks) > 0 {
				sections = append(sections, cur)
			}
			cur = section{Heading: nodeText(n, source)}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			var sb strings.Builder
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				sb.Write(line.Value(source))
			}
			if code := strings.TrimSpace(sb.String()); code != "" {
				cur.Blocks = append(cur.Blocks, code)
			}
		default:
			if txt := nodeText(n, source); txt != "" {
				cur.Blocks = append(cur.Blocks, txt)
			}
		}
	}
	if len(cur.Blocks) > 0 {
		sections = append(sections, cur)
	}
	return sections
}

func nodeText(n ast.Node, source []byte) string {
	var parts []string
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := node.(*ast.Text); ok {
			parts = append(parts, string(t.Segment.Value(source)))
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// splitParagraphs breaks text on blank lines and collapses inner whitespace.
func splitParagraphs(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(s, "\n\n") {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
