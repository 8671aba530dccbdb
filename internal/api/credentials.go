package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/myles1663/lancelot-sub000/internal/connector"
)

// Credential endpoints operate on keys the connector's manifest declares.
// Values flow in through the store endpoint only and never flow back out.

type storeCredentialRequest struct {
	VaultKey string                   `json:"vault_key"`
	Value    string                   `json:"value"`
	Type     connector.CredentialType `json:"type"`
}

func (s *Server) handleStoreCredential(w http.ResponseWriter, r *http.Request) {
	connectorID := mux.Vars(r)["connector_id"]
	c, err := s.registry.Get(connectorID)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown connector %q", connectorID)
		return
	}

	var req storeCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.VaultKey == "" || req.Value == "" {
		writeError(w, http.StatusBadRequest, "vault_key and value are required")
		return
	}

	spec, ok := declaredCredential(c, req.VaultKey)
	if !ok {
		writeError(w, http.StatusBadRequest,
			"connector %s does not declare vault key %q", connectorID, req.VaultKey)
		return
	}
	credType := req.Type
	if credType == "" {
		credType = spec.Type
	}

	if err := s.vault.Store(req.VaultKey, req.Value, credType, ""); err != nil {
		s.logger.Printf("storing credential %s failed: %v", req.VaultKey, err)
		writeError(w, http.StatusInternalServerError, "storing credential failed")
		return
	}
	s.vault.Grant(connectorID, req.VaultKey)

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"connector_id": connectorID,
		"vault_key":    req.VaultKey,
		"type":         credType,
		"stored":       true,
	})
}

func (s *Server) handleCredentialStatus(w http.ResponseWriter, r *http.Request) {
	connectorID := mux.Vars(r)["connector_id"]
	c, err := s.registry.Get(connectorID)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown connector %q", connectorID)
		return
	}

	specs := c.Manifest().RequiredCredentials
	out := make([]map[string]interface{}, 0, len(specs))
	for _, spec := range specs {
		out = append(out, map[string]interface{}{
			"name":      spec.Name,
			"vault_key": spec.VaultKey,
			"type":      spec.Type,
			"required":  spec.Required,
			"present":   s.vault.Exists(spec.VaultKey),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"connector_id": connectorID,
		"credentials":  out,
	})
}

func (s *Server) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	connectorID := vars["connector_id"]
	vaultKey := vars["vault_key"]

	if _, err := s.registry.Get(connectorID); err != nil {
		writeError(w, http.StatusNotFound, "unknown connector %q", connectorID)
		return
	}
	if err := s.vault.Delete(vaultKey, ""); err != nil {
		if connector.KindOf(err) == connector.KindKeyNotFound {
			writeError(w, http.StatusNotFound, "no credential stored under %q", vaultKey)
			return
		}
		s.logger.Printf("deleting credential %s failed: %v", vaultKey, err)
		writeError(w, http.StatusInternalServerError, "deleting credential failed")
		return
	}
	s.vault.Revoke(connectorID, vaultKey)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"connector_id": connectorID,
		"vault_key":    vaultKey,
		"deleted":      true,
	})
}

func (s *Server) handleValidateCredentials(w http.ResponseWriter, r *http.Request) {
	connectorID := mux.Vars(r)["connector_id"]
	c, err := s.registry.Get(connectorID)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown connector %q", connectorID)
		return
	}

	missing := s.vault.CheckRequirements(c.Manifest())
	if missing == nil {
		missing = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"connector_id": connectorID,
		"valid":        c.ValidateCredentials(s.vault.Exists),
		"missing":      missing,
	})
}

func declaredCredential(c connector.Connector, vaultKey string) (connector.CredentialSpec, bool) {
	for _, spec := range c.Manifest().RequiredCredentials {
		if spec.VaultKey == vaultKey {
			return spec, true
		}
	}
	return connector.CredentialSpec{}, false
}
