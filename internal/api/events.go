package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/filemanager/internal/events"
	"github.com/fruitsalade/filemanager/internal/logging"
	"github.com/fruitsalade/filemanager/internal/metrics"
)

const (
	keepaliveInterval = 30 * time.Second
	defaultRecent     = 50
	maxRecent         = 500
)

// handleEvents streams domain events as Server-Sent Events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.broadcaster.Subscribe()
	metrics.SetSSEConnectionsActive(int64(s.broadcaster.Count()))
	defer func() {
		s.broadcaster.Unsubscribe(ch)
		metrics.SetSSEConnectionsActive(int64(s.broadcaster.Count()))
	}()

	log := logging.WithContext(r.Context())
	log.Debug("SSE client connected", zap.String("remote", r.RemoteAddr))

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	disk := r.URL.Query().Get("disk")
	for {
		select {
		case <-r.Context().Done():
			log.Debug("SSE client disconnected", zap.String("remote", r.RemoteAddr))
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			if disk != "" && event.Disk != disk {
				continue
			}
			data, err := events.MarshalEvent(event)
			if err != nil {
				log.Warn("marshal event failed", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecent
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.sendError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecent)
	}

	list, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		logging.WithContext(r.Context()).Error("list recent events failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if list == nil {
		list = []events.Event{}
	}
	s.writeJSON(w, http.StatusOK, list)
}
