package api

import (
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/health", h.Health)
	app.Get("/models", h.ListModels)

	api := app.Group("/api")
	api.Get("/state", h.State)
	api.Get("/events", h.Events)

	api.Get("/chats", h.ListChats)
	api.Post("/chats", h.CreateChat)
	api.Delete("/chats/current", h.DeleteChat)
	api.Put("/chats/current", h.SelectChat)
	api.Get("/chats/:name", h.ChatHistory)

	api.Post("/ask", h.Ask)

	api.Get("/settings", h.GetSettings)
	api.Put("/settings", h.UpdateSettings)

	api.Post("/upload", h.Upload)
	api.Post("/learn", h.Learn)
	api.Get("/document", h.Document)
}
