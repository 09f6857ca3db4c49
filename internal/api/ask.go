package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/receiptqa/receiptqa/internal/memory"
	"github.com/receiptqa/receiptqa/internal/observability"
	"github.com/receiptqa/receiptqa/internal/pipeline"
)

const questionRequiredMessage = "Forneça 'question' na requisição."

var validate = validator.New()

type askRequest struct {
	Question string `json:"question" validate:"required"`
	ClientID string `json:"client_id" validate:"omitempty,max=128"`
}

type askResponse struct {
	Answer   string `json:"answer"`
	SQLQuery string `json:"sql_query"`
	ClientID string `json:"client_id"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Asker == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}

	var request askRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil && !errors.Is(err, io.EOF) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	request.Question = strings.TrimSpace(request.Question)
	request.ClientID = strings.TrimSpace(request.ClientID)

	if err := validate.Struct(request); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 && fieldErrors[0].Field() == "ClientID" {
			writeError(r.Context(), w, http.StatusBadRequest, "CLIENT_ID_INVALID", "client_id must be at most 128 characters", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", questionRequiredMessage, false, nil)
		return
	}

	clientID := memory.NormalizeClientID(request.ClientID)
	observability.Annotate(r.Context(), slog.String("client_id", clientID))
	turn, err := deps.Asker.Ask(r.Context(), pipeline.Question{
		Text:     request.Question,
		ClientID: clientID,
	})
	if err != nil {
		message := observability.Mask(err.Error())
		extra := map[string]any{}
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			extra["stage"] = string(stageErr.Stage)
			observability.Annotate(r.Context(), slog.String("failed_stage", string(stageErr.Stage)))
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "PIPELINE_FAILED", "Erro interno do servidor: "+message, true, extra)
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		Answer:   turn.Answer,
		SQLQuery: turn.SQL,
		ClientID: turn.ClientID,
	})
}
