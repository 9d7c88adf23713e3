package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/valyala/fasthttp"

	"github.com/katakuxiko/SolarScholar/internal/events"
)

const pingInterval = 15 * time.Second

// Events — SSE поток дельт состояния сессии
func (h *Handler) Events(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	id, ch, cancel := h.session.Broker().Subscribe()
	log.Infof("sse subscriber %s connected", id)

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		if err := writeEvents(w, ch, ticker.C); err != nil {
			log.Infof("sse subscriber %s gone: %v", id, err)
		}
	}))
	return nil
}

// writeEvents пишет события до закрытия канала или ошибки записи (клиент ушёл)
func writeEvents(w *bufio.Writer, ch <-chan events.Event, ping <-chan time.Time) error {
	// первый flush, чтобы клиент получил заголовки сразу
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Kind, data)
		case <-ping:
			fmt.Fprint(w, ": ping\n\n")
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
}
