// Package layout превращает загруженный PDF в текстовый контекст для чата.
package layout

import (
	"context"
	"errors"
)

var ErrMissingAPIKey = errors.New("api key is required for layout analysis")

// Request — что разбирать и в каком формате
type Request struct {
	Path   string
	Format string // html | markdown | text
	APIKey string
}

// Parser — hosted layout analysis или локальный разбор
type Parser interface {
	Parse(ctx context.Context, req Request) (string, error)
	Name() string
}
