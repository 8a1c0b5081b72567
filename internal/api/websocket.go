package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"multiaccount-trade/internal/events"
)

const (
	wsBuffer       = 256
	wsWriteTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// parseKinds reads ?kinds=quote,order. An empty list streams every kind.
func parseKinds(raw string) ([]events.Kind, bool) {
	if strings.TrimSpace(raw) == "" {
		return events.Kinds(), true
	}
	var kinds []events.Kind
	for _, part := range strings.Split(raw, ",") {
		k, ok := events.ParseKind(strings.TrimSpace(part))
		if !ok {
			return nil, false
		}
		kinds = append(kinds, k)
	}
	return kinds, true
}

// websocket streams bus events to one client. A slow client loses events
// instead of stalling the dispatcher.
func (s *Server) websocket(c *gin.Context) {
	kinds, ok := parseKinds(c.Query("kinds"))
	if !ok {
		respondError(c, http.StatusBadRequest, "INVALID_KIND", "unknown event kind")
		return
	}

	// Subscribe before the upgrade so nothing published after the handshake is missed.
	stop := make(chan struct{})
	defer close(stop)
	merged := make(chan events.Event, wsBuffer)
	for _, kind := range kinds {
		stream, unsub := s.Engine.SubscribeEvents(kind, wsBuffer)
		defer unsub()
		go func() {
			for ev := range stream {
				select {
				case merged <- ev:
				case <-stop:
					return
				}
			}
		}()
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev := <-merged:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(wsMessage{Type: ev.Kind.String(), Data: ev.Payload}); err != nil {
				s.log.Debug().Err(err).Msg("ws write failed")
				return
			}
		}
	}
}
