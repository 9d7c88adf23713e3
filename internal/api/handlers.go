package api

import (
	"errors"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/katakuxiko/SolarScholar/internal/layout"
	"github.com/katakuxiko/SolarScholar/internal/model"
	"github.com/katakuxiko/SolarScholar/internal/pdf"
	"github.com/katakuxiko/SolarScholar/internal/service"
	"github.com/katakuxiko/SolarScholar/internal/store"
)

// Handler хранит зависимости для обработчиков
type Handler struct {
	session *store.Session
	chat    *service.ChatService
	ingest  *service.IngestService
	llm     *service.LLMClient
}

// NewHandler конструктор
func NewHandler(session *store.Session, chat *service.ChatService, ingest *service.IngestService, llm *service.LLMClient) *Handler {
	return &Handler{session: session, chat: chat, ingest: ingest, llm: llm}
}

func errJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// Health — простая проверка
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.SendString("ok")
}

// ListModels — список моделей с ключом текущей сессии
func (h *Handler) ListModels(c *fiber.Ctx) error {
	models, err := h.llm.ListModels(c.UserContext(), h.session.Settings().APIKey)
	if errors.Is(err, service.ErrMissingAPIKey) {
		return errJSON(c, fiber.StatusBadRequest, err.Error())
	}
	if err != nil {
		log.Errorf("list models error: %v", err)
		return errJSON(c, fiber.StatusBadGateway, err.Error())
	}
	return c.JSON(models)
}

// State — снимок всей сессии
func (h *Handler) State(c *fiber.Ctx) error {
	return c.JSON(h.session.Snapshot())
}

func (h *Handler) chatList(c *fiber.Ctx) error {
	convs := h.session.Conversations()
	return c.JSON(fiber.Map{
		"titles":  convs.Titles(),
		"current": convs.Current(),
	})
}

func (h *Handler) ListChats(c *fiber.Ctx) error {
	return h.chatList(c)
}

// CreateChat — новый чат становится текущим; существующее имя перезаписывается
func (h *Handler) CreateChat(c *fiber.Ctx) error {
	var req model.ChatRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		return errJSON(c, fiber.StatusBadRequest, "invalid request, expected JSON: {\"name\":\"...\"}")
	}
	h.session.CreateChat(req.Name)
	return h.chatList(c)
}

// DeleteChat удаляет текущий чат
func (h *Handler) DeleteChat(c *fiber.Ctx) error {
	h.session.DeleteChat()
	return h.chatList(c)
}

func (h *Handler) SelectChat(c *fiber.Ctx) error {
	var req model.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, fiber.StatusBadRequest, "invalid request, expected JSON: {\"name\":\"...\"}")
	}
	if err := h.session.SelectChat(req.Name); err != nil {
		return errJSON(c, fiber.StatusNotFound, err.Error())
	}
	return h.chatList(c)
}

// ChatHistory — ходы одного чата
func (h *Handler) ChatHistory(c *fiber.Ctx) error {
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil {
		return errJSON(c, fiber.StatusBadRequest, "bad chat name")
	}
	history, ok := h.session.Conversations().History(name)
	if !ok {
		return errJSON(c, fiber.StatusNotFound, store.ErrChatNotFound.Error())
	}
	return c.JSON(fiber.Map{"name": name, "turns": history})
}

// Ask — один ход чата. Фрагменты ответа идут в /api/events, здесь итог
func (h *Handler) Ask(c *fiber.Ctx) error {
	var req model.AskRequest
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, fiber.StatusBadRequest, "invalid request, expected JSON: {\"question\":\"...\"}")
	}
	qa, ok := h.chat.Ask(c.UserContext(), req.Question)
	if !ok {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(fiber.Map{
		"chat":   h.session.Conversations().Current(),
		"answer": qa,
	})
}

type settingsView struct {
	APIKey string `json:"api_key"`
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
	Valid  bool   `json:"valid"`
}

func viewSettings(s model.Settings) settingsView {
	return settingsView{APIKey: maskKey(s.APIKey), Prompt: s.Prompt, Model: s.Model, Valid: s.Valid()}
}

// maskKey оставляет видимыми последние 4 символа
func maskKey(k string) string {
	if k == "" {
		return ""
	}
	if len(k) <= 4 {
		return strings.Repeat("*", len(k))
	}
	return strings.Repeat("*", len(k)-4) + k[len(k)-4:]
}

func (h *Handler) GetSettings(c *fiber.Ctx) error {
	return c.JSON(viewSettings(h.session.Settings()))
}

func (h *Handler) UpdateSettings(c *fiber.Ctx) error {
	var patch model.SettingsPatch
	if err := c.BodyParser(&patch); err != nil {
		return errJSON(c, fiber.StatusBadRequest, "invalid settings payload")
	}
	s, err := h.session.UpdateSettings(patch)
	if err != nil {
		return errJSON(c, fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(viewSettings(s))
}

// Upload — загрузка одного PDF во временный каталог
func (h *Handler) Upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return errJSON(c, fiber.StatusBadRequest, "file is required (form field: file)")
	}
	f, err := file.Open()
	if err != nil {
		log.Errorf("open upload error: %v", err)
		return errJSON(c, fiber.StatusInternalServerError, "failed to read upload")
	}
	defer f.Close()

	if _, err := h.ingest.Upload(file.Filename, f); err != nil {
		switch {
		case errors.Is(err, pdf.ErrNotPDF):
			return errJSON(c, fiber.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrBusy):
			return errJSON(c, fiber.StatusConflict, err.Error())
		}
		log.Errorf("save upload error: %v", err)
		return errJSON(c, fiber.StatusInternalServerError, "failed to save file")
	}
	return c.JSON(fiber.Map{"status": "ok", "pdf_uploaded": true, "file": file.Filename})
}

// Learn — layout analysis загруженного файла
func (h *Handler) Learn(c *fiber.Ctx) error {
	doc, err := h.ingest.Learn(c.UserContext())
	switch {
	case errors.Is(err, service.ErrNoUpload), errors.Is(err, layout.ErrMissingAPIKey):
		return errJSON(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrBusy):
		return errJSON(c, fiber.StatusConflict, err.Error())
	case err != nil:
		log.Errorf("learn error: %v", err)
		return errJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"status":         "ok",
		"document_ready": true,
		"source":         doc.Source,
		"format":         doc.Format,
		"length":         len(doc.Content),
	})
}

func (h *Handler) Document(c *fiber.Ctx) error {
	up, ready := h.session.Flags()
	return c.JSON(fiber.Map{
		"pdf_uploaded":   up,
		"document_ready": ready,
		"document":       h.session.Document(),
	})
}
