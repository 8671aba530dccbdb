// Package api exposes the connector plane over REST/JSON: credential
// management, the connector catalog, governed execution, and receipts.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/myles1663/lancelot-sub000/internal/connector"
	"github.com/myles1663/lancelot-sub000/internal/governance"
	"github.com/myles1663/lancelot-sub000/internal/proxy"
	"github.com/myles1663/lancelot-sub000/internal/registry"
	"github.com/myles1663/lancelot-sub000/internal/vault"
)

// Server wires the plane's components to HTTP handlers. It owns none of
// its collaborators.
type Server struct {
	registry *registry.Registry
	vault    *vault.Vault
	governed *governance.GovernedProxy
	proxy    *proxy.Proxy
	receipts governance.ReceiptStore

	logger *log.Logger
}

// NewServer builds the API surface. receipts may be nil when no receipt
// store is configured; the receipts endpoint then returns 404.
func NewServer(reg *registry.Registry, v *vault.Vault, governed *governance.GovernedProxy,
	p *proxy.Proxy, receipts governance.ReceiptStore) *Server {
	return &Server{
		registry: reg,
		vault:    v,
		governed: governed,
		proxy:    p,
		receipts: receipts,
		logger:   log.New(log.Writer(), "[API] ", log.LstdFlags),
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if req.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, req)
		})
	})

	// Credentials
	r.HandleFunc("/connectors/{connector_id}/credentials", s.handleStoreCredential).Methods("POST")
	r.HandleFunc("/connectors/{connector_id}/credentials/status", s.handleCredentialStatus).Methods("GET")
	r.HandleFunc("/connectors/{connector_id}/credentials/validate", s.handleValidateCredentials).Methods("POST")
	r.HandleFunc("/connectors/{connector_id}/credentials/{vault_key}", s.handleDeleteCredential).Methods("DELETE")

	// Catalog and execution
	r.HandleFunc("/connectors", s.handleListConnectors).Methods("GET")
	r.HandleFunc("/connectors/{connector_id}", s.handleGetConnector).Methods("GET")
	r.HandleFunc("/connectors/{connector_id}/status", s.handleUpdateStatus).Methods("PUT")
	r.HandleFunc("/connectors/{connector_id}/execute/{operation_id}", s.handleExecute).Methods("POST")

	// Observability
	r.HandleFunc("/receipts", s.handleReceipts).Methods("GET")
	r.HandleFunc("/stats", s.handleStats).Methods("GET")
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"registry": s.registry.Stats(),
		"vault":    s.vault.Stats(),
	}
	if s.proxy != nil {
		stats["proxy"] = s.proxy.Stats()
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// httpStatusFor maps an error kind from a governed execution to the HTTP
// status of the envelope carrying it.
func httpStatusFor(kind connector.Kind) int {
	switch kind {
	case connector.KindConnectorNotFound, connector.KindOperationNotFound:
		return http.StatusNotFound
	case connector.KindPolicyDenied, connector.KindPermissionDenied, connector.KindDomainNotAllowed:
		return http.StatusForbidden
	case connector.KindRateLimited:
		return http.StatusTooManyRequests
	case connector.KindInvalidRequestSpec, connector.KindInvalidManifest, connector.KindInvalidOperation:
		return http.StatusBadRequest
	case connector.KindFeatureDisabled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
