package layout

import (
	"context"
	"html"
	"strings"

	"github.com/katakuxiko/SolarScholar/internal/pdf"
)

// LocalParser — разбор без внешнего API, только текстовый слой PDF
type LocalParser struct{}

func NewLocalParser() *LocalParser { return &LocalParser{} }

func (p *LocalParser) Name() string { return "local" }

func (p *LocalParser) Parse(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	txt, err := pdf.ExtractText(req.Path)
	if err != nil {
		return "", err
	}

	if req.Format != "html" && req.Format != "" {
		return pdf.Sanitize(txt), nil
	}
	// html: по абзацу на страницу
	var sb strings.Builder
	for _, page := range strings.Split(txt, "\n") {
		page = pdf.Sanitize(page)
		if page == "" {
			continue
		}
		sb.WriteString("<p>")
		sb.WriteString(html.EscapeString(page))
		sb.WriteString("</p>\n")
	}
	return sb.String(), nil
}
