package layout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// UpstageParser — клиент Upstage Layout Analysis API
type UpstageParser struct {
	endpoint string
	client   *http.Client
}

func NewUpstageParser(endpoint string, client *http.Client) *UpstageParser {
	if client == nil {
		client = &http.Client{}
	}
	return &UpstageParser{endpoint: endpoint, client: client}
}

func (p *UpstageParser) Name() string { return "upstage" }

type formats struct {
	HTML     string `json:"html"`
	Markdown string `json:"markdown"`
	Text     string `json:"text"`
}

func (f formats) get(format string) string {
	switch format {
	case "markdown":
		return f.Markdown
	case "text":
		return f.Text
	default:
		return f.HTML
	}
}

// upstageResponse покрывает обе версии ответа: поля на верхнем уровне и content{}
type upstageResponse struct {
	formats
	Content  formats `json:"content"`
	Elements []struct {
		formats
		Category string `json:"category"`
		Page     int    `json:"page"`
	} `json:"elements"`
	Error   *upstageError `json:"error,omitempty"`
	Message string        `json:"message,omitempty"`
}

type upstageError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Parse отправляет файл как multipart (поле document) и возвращает контент в нужном формате
func (p *UpstageParser) Parse(ctx context.Context, req Request) (string, error) {
	if req.APIKey == "" {
		return "", ErrMissingAPIKey
	}
	format := req.Format
	if format == "" {
		format = "html"
	}

	body, contentType, err := buildForm(req.Path, format)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("calling layout analysis: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var out upstageResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil {
			if out.Error != nil && out.Error.Message != "" {
				msg = out.Error.Message
			} else if out.Message != "" {
				msg = out.Message
			}
		}
		return "", fmt.Errorf("layout analysis returned status %d: %s", resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decoding response: %w", decodeErr)
	}

	if s := out.formats.get(format); s != "" {
		return s, nil
	}
	if s := out.Content.get(format); s != "" {
		return s, nil
	}
	var sb strings.Builder
	for _, el := range out.Elements {
		s := el.get(format)
		if s == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}

func buildForm(path, format string) (*bytes.Buffer, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("document", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy upload: %w", err)
	}
	if err := w.WriteField("output_formats", fmt.Sprintf("[%q]", format)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
