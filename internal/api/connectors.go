package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/myles1663/lancelot-sub000/internal/connector"
)

func (s *Server) handleListConnectors(w http.ResponseWriter, r *http.Request) {
	list := s.registry.List()
	out := make([]map[string]interface{}, 0, len(list))
	for _, c := range list {
		m := c.Manifest()
		out = append(out, map[string]interface{}{
			"id":         m.ID,
			"name":       m.Name,
			"version":    m.Version,
			"source":     m.Source,
			"status":     c.Status(),
			"operations": len(c.Operations()),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"connectors": out})
}

func (s *Server) handleGetConnector(w http.ResponseWriter, r *http.Request) {
	connectorID := mux.Vars(r)["connector_id"]
	c, err := s.registry.Get(connectorID)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown connector %q", connectorID)
		return
	}

	ops := c.Operations()
	opsOut := make([]map[string]interface{}, 0, len(ops))
	for i := range ops {
		op := &ops[i]
		opsOut = append(opsOut, map[string]interface{}{
			"id":         op.ID,
			"name":       op.Name,
			"capability": op.FullCapabilityID(),
			"tier":       op.DefaultTier.String(),
			"reversible": op.Reversible,
			"parameters": op.Parameters,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"manifest":   c.Manifest(),
		"status":     c.Status(),
		"operations": opsOut,
	})
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	connectorID := mux.Vars(r)["connector_id"]
	var req struct {
		Status connector.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	switch req.Status {
	case connector.StatusRegistered, connector.StatusConfigured, connector.StatusActive,
		connector.StatusSuspended, connector.StatusError:
	default:
		writeError(w, http.StatusBadRequest, "unknown status %q", req.Status)
		return
	}
	if err := s.registry.UpdateStatus(connectorID, req.Status); err != nil {
		writeError(w, http.StatusNotFound, "unknown connector %q", connectorID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"connector_id": connectorID,
		"status":       req.Status,
	})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	connectorID := vars["connector_id"]
	operationID := vars["operation_id"]

	var req struct {
		Params map[string]interface{} `json:"params"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
	}

	resp := s.governed.ExecuteGoverned(r.Context(), connectorID, operationID, req.Params)
	status := http.StatusOK
	// Upstream failures keep a 200 envelope with the upstream status in the
	// body; plane-level denials map onto the envelope itself.
	if !resp.Success && (resp.StatusCode == 0 || resp.ErrorKind == connector.KindRateLimited) {
		status = httpStatusFor(resp.ErrorKind)
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleReceipts(w http.ResponseWriter, r *http.Request) {
	if s.receipts == nil {
		writeError(w, http.StatusNotFound, "no receipt store configured")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	receipts, err := s.receipts.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Printf("reading receipts failed: %v", err)
		writeError(w, http.StatusInternalServerError, "reading receipts failed")
		return
	}
	total, _ := s.receipts.Count(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"receipts": receipts,
		"total":    total,
	})
}
