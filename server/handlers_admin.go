package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/chatter/chat"
	"github.com/onnwee/chatter/config"
	"github.com/onnwee/chatter/telemetry"
)

const maxCommandBody = 64 << 10

// accountsResponse is the body of /admin/accounts. Credentials are masked.
type accountsResponse struct {
	Accounts chat.Snapshot `json:"accounts"`
	// InSync is false when the stored accounts differ from the ones the
	// running adapters were built from.
	InSync bool `json:"in_sync"`
}

// HandleAdminAccounts shows the stored accounts (GET) or applies one
// reconfiguration command and reloads (PUT).
func (h *Handlers) HandleAdminAccounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.showAccounts(w, r)
	case http.MethodPut, http.MethodPost:
		h.applyCommand(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handlers) showAccounts(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Load(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, accountsResponse{
		Accounts: snap.Redacted(),
		InSync:   snap.Equal(h.agg.Snapshot()),
	})
}

func (h *Handlers) applyCommand(w http.ResponseWriter, r *http.Request) {
	log := telemetry.LoggerWithCorr(r.Context(), h.log)

	var cmd config.Command
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid command: "+err.Error())
		return
	}

	snap, err := config.Execute(r.Context(), h.store, cmd)
	if err != nil {
		log.Warn("admin command rejected", slog.String("command", cmd.Name), slog.Any("err", err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	log.Info("admin command applied", slog.String("command", cmd.Name), slog.String("platform", string(cmd.Platform)), slog.Int("slot", cmd.Slot))

	if err := h.agg.Reload(r.Context(), h.store); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, accountsResponse{Accounts: snap.Redacted(), InSync: true})
}

// HandleAdminReload re-reads the accounts and rebuilds every adapter.
func (h *Handlers) HandleAdminReload(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	if err := h.agg.Reload(r.Context(), h.store); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	telemetry.LoggerWithCorr(r.Context(), h.log).Info("accounts reloaded via admin endpoint")
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"adapters": h.agg.Status(),
	})
}

// statusFor maps configuration errors to 400 and everything else to 500.
func statusFor(err error) int {
	if errors.Is(err, chat.ErrConfiguration) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
