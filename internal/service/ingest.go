package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofiber/fiber/v2/log"

	"github.com/katakuxiko/SolarScholar/internal/layout"
	"github.com/katakuxiko/SolarScholar/internal/model"
	"github.com/katakuxiko/SolarScholar/internal/pdf"
	"github.com/katakuxiko/SolarScholar/internal/store"
	"github.com/katakuxiko/SolarScholar/internal/util"
)

var (
	ErrNoUpload = errors.New("no uploaded pdf, upload a file first")
	ErrBusy     = errors.New("operation already in progress")
)

// IngestService — загрузка PDF во временный каталог (Upload) и разбор через layout API (Learn)
type IngestService struct {
	session   *store.Session
	parser    layout.Parser
	uploadDir string
	format    string

	uploadMu sync.Mutex
	learnMu  sync.Mutex

	mu      sync.Mutex
	pending string // путь к файлу, ждущему Learn
	source  string // исходное имя файла
}

func NewIngestService(session *store.Session, parser layout.Parser, uploadDir, format string) *IngestService {
	return &IngestService{
		session:   session,
		parser:    parser,
		uploadDir: uploadDir,
		format:    format,
	}
}

// Upload сохраняет один PDF во временный каталог и выставляет pdf_uploaded
func (s *IngestService) Upload(filename string, r io.Reader) (string, error) {
	if !s.uploadMu.TryLock() {
		return "", ErrBusy
	}
	defer s.uploadMu.Unlock()

	s.session.SetPDFUploaded(false)

	body, err := pdf.CheckHeader(r)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("prepare upload dir: %w", err)
	}
	savePath := filepath.Join(s.uploadDir, util.Timestamped(filename))
	if err := writeFile(savePath, body); err != nil {
		return "", err
	}

	s.mu.Lock()
	prev := s.pending
	s.pending = savePath
	s.source = util.SafeFilename(filename)
	s.mu.Unlock()

	if prev != "" && prev != savePath {
		s.removePrevious(prev)
	}

	s.session.SetPDFUploaded(true)
	log.Infof("pdf uploaded: %s", savePath)
	return savePath, nil
}

// removePrevious удаляет старый файл, если его сейчас не читает Learn.
// Иначе файл удалит сам Learn после разбора.
func (s *IngestService) removePrevious(path string) {
	if !s.learnMu.TryLock() {
		log.Infof("learn in progress, keeping %s", path)
		return
	}
	defer s.learnMu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("remove previous upload %s: %v", path, err)
	}
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write upload file: %w", err)
	}
	return f.Close()
}

// Learn разбирает загруженный файл, сохраняет результат в сессию и удаляет файл.
// Ошибка парсера возвращается как есть, файл остаётся для повтора.
func (s *IngestService) Learn(ctx context.Context) (model.Document, error) {
	if !s.learnMu.TryLock() {
		return model.Document{}, ErrBusy
	}
	defer s.learnMu.Unlock()

	s.mu.Lock()
	path, source := s.pending, s.source
	s.mu.Unlock()
	if path == "" {
		return model.Document{}, ErrNoUpload
	}

	s.session.SetDocumentReady(false)

	content, err := s.parser.Parse(ctx, layout.Request{
		Path:   path,
		Format: s.format,
		APIKey: s.session.Settings().APIKey,
	})
	if err != nil {
		s.dropIfReplaced(path)
		return model.Document{}, fmt.Errorf("%s layout analysis: %w", s.parser.Name(), err)
	}

	doc := model.Document{Source: source, Format: s.format, Content: content}
	s.session.StoreDocument(doc)

	s.mu.Lock()
	if s.pending == path {
		s.pending = ""
	}
	s.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("remove scratch file %s: %v", path, err)
	}
	s.session.SetDocumentReady(true)

	log.Infof("document learned: %s (%d bytes, %s)", source, len(content), s.parser.Name())
	return doc, nil
}

// dropIfReplaced удаляет файл, который Upload заменил во время разбора
func (s *IngestService) dropIfReplaced(path string) {
	s.mu.Lock()
	replaced := s.pending != path
	s.mu.Unlock()
	if !replaced {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("remove replaced upload %s: %v", path, err)
	}
}

// Pending — путь файла, ожидающего Learn
func (s *IngestService) Pending() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}
