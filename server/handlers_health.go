package server

import (
	"net/http"

	"github.com/onnwee/chatter/chat"
)

// HandleHealthz responds to liveness probes. The process is alive if it can
// answer.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready once an accounts snapshot has been applied.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		ok   func() bool
		msg  string
	}{
		{"accounts", h.agg.Loaded, "accounts snapshot not loaded"},
	}
	for _, check := range checks {
		if !check.ok() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        check.msg,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// statusResponse is the body of GET /status.
type statusResponse struct {
	Adapters      []chat.AdapterStatus `json:"adapters"`
	Counts        map[string]int       `json:"counts"`
	BusDepth      int                  `json:"bus_depth"`
	StreamClients int                  `json:"stream_clients"`
}

// HandleStatus returns every adapter with its state and the bus depth.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	adapters := h.agg.Status()
	counts := make(map[string]int)
	for _, a := range adapters {
		counts[a.State]++
	}
	resp := statusResponse{
		Adapters: adapters,
		Counts:   counts,
		BusDepth: h.bus.Len(),
	}
	if h.hub != nil {
		resp.StreamClients = h.hub.Clients()
	}
	writeJSON(w, http.StatusOK, resp)
}
