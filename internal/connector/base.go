package connector

import (
	"fmt"
	"net/url"
	"strconv"
	"sync"
)

// base carries the state common to every concrete connector: the frozen
// manifest, the ordered operation catalog, and the mutable lifecycle status.
// Concrete connectors embed it and provide only Execute.
type base struct {
	manifest *Manifest
	ops      []Operation
	opIndex  map[string]int

	mu     sync.RWMutex
	status Status
}

// newBase validates the manifest and operation catalog and panics on
// violation: a bad built-in catalog is a programmer error and must fail
// loudly at startup. User-supplied catalogs (GenericREST) go through
// newBaseChecked instead.
func newBase(manifest *Manifest, ops []Operation) base {
	b, err := newBaseChecked(manifest, ops)
	if err != nil {
		panic(err)
	}
	return b
}

// newBaseChecked validates the manifest and operation catalog, returning
// an error instead of panicking.
func newBaseChecked(manifest *Manifest, ops []Operation) (base, error) {
	if err := manifest.Validate(); err != nil {
		return base{}, err
	}
	index := make(map[string]int, len(ops))
	for i := range ops {
		ops[i].ConnectorID = manifest.ID
		if err := ops[i].Validate(); err != nil {
			return base{}, err
		}
		if _, dup := index[ops[i].ID]; dup {
			return base{}, E(KindInvalidOperation, "connector %s: duplicate operation %s", manifest.ID, ops[i].ID)
		}
		index[ops[i].ID] = i
	}
	for i := range ops {
		if rb := ops[i].RollbackOperationID; rb != "" {
			if _, ok := index[rb]; !ok {
				return base{}, E(KindInvalidOperation, "connector %s: operation %s names unknown rollback %s", manifest.ID, ops[i].ID, rb)
			}
		}
	}
	return base{manifest: manifest, ops: ops, opIndex: index, status: StatusRegistered}, nil
}

func (b *base) Manifest() *Manifest { return b.manifest }

func (b *base) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

func (b *base) SetStatus(s Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = s
}

func (b *base) Operations() []Operation {
	out := make([]Operation, len(b.ops))
	copy(out, b.ops)
	return out
}

func (b *base) Operation(id string) (*Operation, bool) {
	i, ok := b.opIndex[id]
	if !ok {
		return nil, false
	}
	op := b.ops[i]
	return &op, true
}

func (b *base) ValidateCredentials(exists func(vaultKey string) bool) bool {
	for _, spec := range b.manifest.RequiredCredentials {
		if spec.Required && !exists(spec.VaultKey) {
			return false
		}
	}
	return true
}

// checkOperation resolves an operation id and verifies required parameters
// are present. Shared precondition for every Execute implementation.
func (b *base) checkOperation(operationID string, params map[string]interface{}) (*Operation, error) {
	op, ok := b.Operation(operationID)
	if !ok {
		return nil, E(KindOperationNotFound, "connector %s has no operation %q", b.manifest.ID, operationID)
	}
	for _, p := range op.Parameters {
		if !p.Required {
			continue
		}
		if _, present := params[p.Name]; !present {
			return nil, E(KindInvalidRequestSpec, "operation %s: missing required parameter %q", operationID, p.Name)
		}
	}
	return op, nil
}

// --- param coercion helpers ---

func paramString(params map[string]interface{}, name string) string {
	v, ok := params[name]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

func paramStringDefault(params map[string]interface{}, name, def string) string {
	if s := paramString(params, name); s != "" {
		return s
	}
	return def
}

func paramInt(params map[string]interface{}, name string, def int) int {
	v, ok := params[name]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	}
	return def
}

func itoa(v int) string { return strconv.Itoa(v) }

// queryURL assembles base + encoded query string, skipping empty values.
func queryURL(baseURL string, q map[string]string) string {
	values := url.Values{}
	for k, v := range q {
		if v != "" {
			values.Set(k, v)
		}
	}
	if len(values) == 0 {
		return baseURL
	}
	return baseURL + "?" + values.Encode()
}

// formEncode renders key/value pairs as application/x-www-form-urlencoded,
// skipping empty values.
func formEncode(fields map[string]string) string {
	values := url.Values{}
	for k, v := range fields {
		if v != "" {
			values.Set(k, v)
		}
	}
	return values.Encode()
}

// pathEscape percent-encodes one URL path segment.
func pathEscape(segment string) string {
	return url.PathEscape(segment)
}
