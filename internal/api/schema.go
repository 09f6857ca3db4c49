package api

import (
	"net/http"

	"github.com/receiptqa/receiptqa/internal/observability"
	"github.com/receiptqa/receiptqa/internal/query"
)

type schemaResponse struct {
	Tables   []query.Table `json:"tables"`
	Rendered string        `json:"rendered"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "query store is not configured", false, nil)
		return
	}
	schema, err := deps.Schema.DescribeSchema(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FAILED", observability.Mask(err.Error()), true, nil)
		return
	}
	tables := schema.Tables
	if tables == nil {
		tables = []query.Table{}
	}
	writeJSON(w, http.StatusOK, schemaResponse{Tables: tables, Rendered: schema.Render()})
}
