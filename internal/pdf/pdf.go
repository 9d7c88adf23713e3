package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"rsc.io/pdf"
)

var ErrNotPDF = errors.New("file is not a PDF")

var magic = []byte("%PDF-")

// CheckHeader проверяет сигнатуру %PDF- и возвращает reader, который отдаёт файл целиком
func CheckHeader(r io.Reader) (io.Reader, error) {
	head := make([]byte, len(magic))
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if !bytes.Equal(head[:n], magic) {
		return nil, ErrNotPDF
	}
	return io.MultiReader(bytes.NewReader(head[:n]), r), nil
}

// ExtractText читает текст всех страниц через rsc.io/pdf
func ExtractText(path string) (text string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return "", err
	}
	r, err := pdf.NewReader(f, fi.Size())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	// rsc.io/pdf паникует на битых content stream
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("read pdf %s: %v", path, rec)
		}
	}()

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, t := range p.Content().Text {
			// Удаляем нулевые байты
			sb.WriteString(strings.ReplaceAll(t.S, "\x00", ""))
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.Join(strings.Fields(s), " ")
	return s
}
