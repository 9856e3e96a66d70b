package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/brettboylen/linkedin-agent/events"
)

const eventTypeConnected = "connected"

// streamEvents relays broker events as server-sent events until the client goes away
func (s *Server) streamEvents(c echo.Context) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	stream, cancel := s.events.Subscribe(0)
	defer cancel()

	clientID := uuid.NewString()
	log := s.log.WithField("client", clientID)
	log.Debug("Event stream opened")
	defer log.Debug("Event stream closed")

	connected := events.Event{
		Type: eventTypeConnected,
		Data: map[string]string{"client_id": clientID},
		Time: time.Now(),
	}
	if err := writeEvent(w, connected); err != nil {
		return nil
	}

	heartbeat := time.NewTicker(s.cfg.Heartbeat)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-stream:
			if !ok {
				// dropped as a slow subscriber
				return nil
			}
			if err := writeEvent(w, event); err != nil {
				log.WithError(err).Debug("Failed to write event")
				return nil
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

func writeEvent(w *echo.Response, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}
