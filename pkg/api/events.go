package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cuemby/nodewatch/pkg/events"
)

// keepAliveInterval spaces comment frames that keep idle streams open
var keepAliveInterval = 25 * time.Second

// EventSource hands out per-owner notification streams
type EventSource interface {
	Subscribe(owner string) events.Subscriber
	Unsubscribe(sub events.Subscriber)
}

// eventsHandler streams the caller's notifications as server-sent events
// until the client disconnects or the server shuts down
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
	if owner == "" {
		http.Error(w, "missing "+OwnerHeader+" header", http.StatusBadRequest)
		return
	}

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	sub := s.events.Subscribe(owner)
	defer s.events.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Warn().Err(err).Msg("Event stream cannot be flushed")
		return
	}
	s.logger.Debug().Str("owner", owner).Msg("Event stream opened")

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug().Str("owner", owner).Msg("Event stream closed")
			return
		case <-s.closing:
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case ev, ok := <-sub:
			if !ok {
				return
			}
			data, err := sonic.Marshal(ev)
			if err != nil {
				s.logger.Warn().Err(err).Str("event_id", ev.ID).Msg("Failed to encode event")
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
