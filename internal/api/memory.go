package api

import (
	"errors"
	"net/http"

	"github.com/receiptqa/receiptqa/internal/memory"
	"github.com/receiptqa/receiptqa/internal/observability"
)

type memoryResponse struct {
	ClientID string           `json:"client_id"`
	Messages []memory.Message `json:"messages"`
}

func handleMemoryHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Memory == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "MEMORY_NOT_CONFIGURED", "memory store is not configured", false, nil)
		return
	}
	clientID := memory.NormalizeClientID(r.PathValue("client_id"))
	messages, err := deps.Memory.History(r.Context(), clientID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "MEMORY_FAILED", observability.Mask(err.Error()), true, nil)
		return
	}
	if messages == nil {
		messages = []memory.Message{}
	}
	writeJSON(w, http.StatusOK, memoryResponse{ClientID: clientID, Messages: messages})
}

func handleMemoryClear(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Memory == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "MEMORY_NOT_CONFIGURED", "memory store is not configured", false, nil)
		return
	}
	clientID := memory.NormalizeClientID(r.PathValue("client_id"))
	if err := deps.Memory.Clear(r.Context(), clientID); err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "MEMORY_NOT_FOUND", "no conversation stored for client", false, map[string]any{"client_id": clientID})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "MEMORY_FAILED", observability.Mask(err.Error()), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared", "client_id": clientID})
}

func handleMemoryClearAll(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Memory == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "MEMORY_NOT_CONFIGURED", "memory store is not configured", false, nil)
		return
	}
	if err := deps.Memory.ClearAll(r.Context()); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "MEMORY_FAILED", observability.Mask(err.Error()), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
}
