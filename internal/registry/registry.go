// Package registry tracks registered connectors and their lifecycle, gated
// by the connectors feature flag.
package registry

import (
	"log"
	"sort"
	"sync"

	"github.com/myles1663/lancelot-sub000/internal/connector"
)

// FlagSource answers feature-flag queries. Implemented by the governance
// flag set; defined here so the registry does not depend on governance.
type FlagSource interface {
	Enabled(flag string) bool
}

// FlagConnectors gates all connector registration and execution.
const FlagConnectors = "connectors"

// Registry is the authoritative set of connectors for one plane instance.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]connector.Connector
	order      []string

	flags  FlagSource
	logger *log.Logger
}

// New builds an empty registry.
func New(flags FlagSource) *Registry {
	return &Registry{
		connectors: make(map[string]connector.Connector),
		flags:      flags,
		logger:     log.New(log.Writer(), "[REGISTRY] ", log.LstdFlags),
	}
}

// Register admits a connector. Fails when the feature flag is off or the
// id is already taken.
func (r *Registry) Register(c connector.Connector) error {
	if !r.flags.Enabled(FlagConnectors) {
		return connector.E(connector.KindFeatureDisabled, "connector registration is disabled by feature flag")
	}
	m := c.Manifest()
	if err := m.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.connectors[m.ID]; exists {
		return connector.E(connector.KindInvalidManifest, "connector %s is already registered", m.ID)
	}
	r.connectors[m.ID] = c
	r.order = append(r.order, m.ID)
	r.logger.Printf("registered %s (%d operations, domains=%v)", m.ID, len(c.Operations()), m.TargetDomains)
	return nil
}

// Unregister removes a connector. Returns false when the id was never
// registered.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.connectors[id]; !ok {
		return false
	}
	delete(r.connectors, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.logger.Printf("unregistered %s", id)
	return true
}

// Get returns a connector by id.
func (r *Registry) Get(id string) (connector.Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[id]
	if !ok {
		return nil, connector.E(connector.KindConnectorNotFound, "no connector registered as %q", id)
	}
	return c, nil
}

// List returns every registered connector in registration order.
func (r *Registry) List() []connector.Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]connector.Connector, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.connectors[id])
	}
	return out
}

// ListActive returns only connectors in StatusActive.
func (r *Registry) ListActive() []connector.Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]connector.Connector, 0, len(r.order))
	for _, id := range r.order {
		if c := r.connectors[id]; c.Status() == connector.StatusActive {
			out = append(out, c)
		}
	}
	return out
}

// Operations returns the operation catalog of one connector.
func (r *Registry) Operations(connectorID string) ([]connector.Operation, error) {
	c, err := r.Get(connectorID)
	if err != nil {
		return nil, err
	}
	return c.Operations(), nil
}

// Operation resolves a single operation.
func (r *Registry) Operation(connectorID, operationID string) (*connector.Operation, error) {
	c, err := r.Get(connectorID)
	if err != nil {
		return nil, err
	}
	op, ok := c.Operation(operationID)
	if !ok {
		return nil, connector.E(connector.KindOperationNotFound, "connector %s has no operation %q", connectorID, operationID)
	}
	return op, nil
}

// UpdateStatus moves a connector to a new lifecycle status.
func (r *Registry) UpdateStatus(connectorID string, status connector.Status) error {
	c, err := r.Get(connectorID)
	if err != nil {
		return err
	}
	c.SetStatus(status)
	r.logger.Printf("connector %s -> %s", connectorID, status)
	return nil
}

// Stats reports connector counts by status.
func (r *Registry) Stats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byStatus := map[string]int{}
	ids := make([]string, 0, len(r.order))
	for _, id := range r.order {
		byStatus[string(r.connectors[id].Status())]++
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return map[string]interface{}{
		"total":      len(r.connectors),
		"by_status":  byStatus,
		"connectors": ids,
	}
}
