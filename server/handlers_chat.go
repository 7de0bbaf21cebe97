package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/chatter/chat"
	"github.com/onnwee/chatter/telemetry"
)

// keepAliveInterval spaces SSE comments on an idle stream so proxies keep
// the connection open.
var keepAliveInterval = 15 * time.Second

// HandleChatStream streams live messages as Server-Sent Events. The optional
// platform query parameter is a comma separated filter ("youtube,kick").
func (h *Handlers) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	filter := map[chat.Platform]bool{}
	if raw := r.URL.Query().Get("platform"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			p, ok := chat.ParsePlatform(name)
			if !ok {
				http.Error(w, "unknown platform "+strings.TrimSpace(name), http.StatusBadRequest)
				return
			}
			filter[p] = true
		}
	}

	id, msgs, cancel := h.hub.Subscribe()
	defer cancel()
	log := telemetry.LoggerWithCorr(r.Context(), h.log).With(slog.String("client", id))
	log.Debug("stream client connected")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(": connected\n\n")); err != nil {
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug("stream client disconnected")
			return
		case <-h.ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case m, ok := <-msgs:
			if !ok {
				return
			}
			if len(filter) > 0 && !filter[m.Platform] {
				continue
			}
			b, err := json.Marshal(m)
			if err != nil {
				log.Warn("failed to encode message", slog.Any("err", err))
				continue
			}
			if _, err := w.Write([]byte("event: message\ndata: " + string(b) + "\n\n")); err != nil {
				log.Debug("stream write failed", slog.Any("err", err))
				return
			}
			flusher.Flush()
		}
	}
}
