// Package vault stores connector credentials encrypted at rest and gates
// retrieval through per-connector grants. Secret values never appear in
// logs, errors, or audit lines.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/myles1663/lancelot-sub000/internal/connector"
)

const (
	blobMagic = "CPV1"
	hkdfSalt  = "connector-plane-vault"

	// adminAccessor is the empty accessor id. Calls without an accessor
	// come from the operator API, which has already authenticated.
	adminAccessor = ""
)

// Options configures storage, key sourcing, and auditing.
type Options struct {
	StoragePath string
	BackupPath  string
	KeyEnvVar   string
	AuditPath   string
	LogAccess   bool
}

type secretEntry struct {
	Value     string                   `json:"value"`
	Type      connector.CredentialType `json:"type"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`

	// AccessedBy is the deduplicated set of connector ids that have
	// retrieved this credential. Operator retrievals are not recorded.
	AccessedBy []string `json:"accessed_by,omitempty"`
}

// Description is the metadata Describe exposes. It never carries the value.
type Description struct {
	Key        string                   `json:"key"`
	Type       connector.CredentialType `json:"type"`
	CreatedAt  time.Time                `json:"created_at"`
	UpdatedAt  time.Time                `json:"updated_at"`
	AccessedBy []string                 `json:"accessed_by,omitempty"`
}

// Vault is the encrypted credential store.
type Vault struct {
	mu      sync.RWMutex
	secrets map[string]secretEntry
	grants  map[string]map[string]bool // connectorID -> vault key -> allowed

	encKey []byte
	macKey []byte

	opts   Options
	audit  *auditLog
	logger *log.Logger
}

// New opens or creates a vault at opts.StoragePath. The master secret is
// read from the environment variable named by opts.KeyEnvVar; if absent an
// ephemeral key is generated and a warning logged, since nothing stored
// under it survives a restart.
func New(opts Options) (*Vault, error) {
	logger := log.New(log.Writer(), "[VAULT] ", log.LstdFlags)

	master := ""
	if opts.KeyEnvVar != "" {
		master = os.Getenv(opts.KeyEnvVar)
	}
	if master == "" {
		ephemeral := make([]byte, 32)
		if _, err := rand.Read(ephemeral); err != nil {
			return nil, connector.Wrap(connector.KindTransport, err, "generating ephemeral vault key")
		}
		master = string(ephemeral)
		logger.Printf("WARNING: %s not set, using an ephemeral key; stored credentials will not survive restart", opts.KeyEnvVar)
	}

	encKey, macKey, err := deriveKeys(master)
	if err != nil {
		return nil, err
	}

	// An unwritable audit log degrades to a no-op; auditing must never
	// block credential operations.
	audit, err := newAuditLog(opts.AuditPath)
	if err != nil {
		logger.Printf("WARNING: audit log unavailable (%v), continuing without one", err)
		audit = &auditLog{last: "genesis"}
	}

	v := &Vault{
		secrets: make(map[string]secretEntry),
		grants:  make(map[string]map[string]bool),
		encKey:  encKey,
		macKey:  macKey,
		opts:    opts,
		audit:   audit,
		logger:  logger,
	}

	// A blob that fails its integrity check or does not decode is left on
	// disk untouched; the vault starts empty rather than refusing to open.
	if err := v.load(); err != nil {
		logger.Printf("WARNING: could not open stored credentials (%v), starting empty", err)
		v.secrets = make(map[string]secretEntry)
	}
	logger.Printf("vault opened with %d credentials", len(v.secrets))
	return v, nil
}

// deriveKeys stretches the master secret into separate encryption and MAC
// keys via HKDF-SHA256.
func deriveKeys(master string) (encKey, macKey []byte, err error) {
	r := hkdf.New(sha256.New, []byte(master), []byte(hkdfSalt), []byte("credential-store"))
	encKey = make([]byte, 32)
	macKey = make([]byte, 32)
	if _, err := io.ReadFull(r, encKey); err != nil {
		return nil, nil, connector.Wrap(connector.KindTransport, err, "deriving encryption key")
	}
	if _, err := io.ReadFull(r, macKey); err != nil {
		return nil, nil, connector.Wrap(connector.KindTransport, err, "deriving mac key")
	}
	return encKey, macKey, nil
}

// ============================================================================
// SECRET OPERATIONS
// ============================================================================

// Store saves a credential value under key, replacing any prior value.
func (v *Vault) Store(key string, value string, credType connector.CredentialType, accessor string) error {
	if key == "" {
		return connector.E(connector.KindKeyNotFound, "vault key must be non-empty")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.allowedLocked(accessor, key) {
		v.audit.record("store_denied", key, accessor)
		return connector.E(connector.KindPermissionDenied, "accessor %s may not store %s", accessor, key)
	}

	now := time.Now().UTC()
	entry, existed := v.secrets[key]
	if existed {
		entry.Value = value
		entry.Type = credType
		entry.UpdatedAt = now
	} else {
		entry = secretEntry{Value: value, Type: credType, CreatedAt: now, UpdatedAt: now}
	}
	v.secrets[key] = entry

	if err := v.persistLocked(); err != nil {
		return err
	}
	v.audit.record("store", key, accessor)
	return nil
}

// Retrieve returns the credential value for key if the accessor holds a
// grant for it. The empty accessor is the operator and bypasses grants.
// Successful connector retrievals are recorded on the entry's accessor set.
func (v *Vault) Retrieve(key string, accessor string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	entry, ok := v.secrets[key]
	if !ok {
		v.audit.record("retrieve_miss", key, accessor)
		return "", connector.E(connector.KindKeyNotFound, "vault has no key %q", key)
	}
	if !v.allowedLocked(accessor, key) {
		v.audit.record("retrieve_denied", key, accessor)
		return "", connector.E(connector.KindPermissionDenied, "accessor %s may not read %s", accessor, key)
	}

	if accessor != adminAccessor && !containsAccessor(entry.AccessedBy, accessor) {
		entry.AccessedBy = append(entry.AccessedBy, accessor)
		sort.Strings(entry.AccessedBy)
		v.secrets[key] = entry
		if err := v.persistLocked(); err != nil {
			v.logger.Printf("WARNING: could not persist accessor record for %s: %v", key, err)
		}
	}

	if v.opts.LogAccess {
		v.audit.record("retrieve", key, accessor)
	}
	return entry.Value, nil
}

func containsAccessor(set []string, accessor string) bool {
	for _, a := range set {
		if a == accessor {
			return true
		}
	}
	return false
}

// Delete removes a credential.
func (v *Vault) Delete(key string, accessor string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.secrets[key]; !ok {
		return connector.E(connector.KindKeyNotFound, "vault has no key %q", key)
	}
	if !v.allowedLocked(accessor, key) {
		v.audit.record("delete_denied", key, accessor)
		return connector.E(connector.KindPermissionDenied, "accessor %s may not delete %s", accessor, key)
	}
	delete(v.secrets, key)
	if err := v.persistLocked(); err != nil {
		return err
	}
	v.audit.record("delete", key, accessor)
	return nil
}

// Exists reports whether a key holds a credential. No grant required:
// existence is metadata, not secret material.
func (v *Vault) Exists(key string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.secrets[key]
	return ok
}

// Describe returns credential metadata without the value.
func (v *Vault) Describe(key string) (*Description, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	entry, ok := v.secrets[key]
	if !ok {
		return nil, connector.E(connector.KindKeyNotFound, "vault has no key %q", key)
	}
	return &Description{
		Key:        key,
		Type:       entry.Type,
		CreatedAt:  entry.CreatedAt,
		UpdatedAt:  entry.UpdatedAt,
		AccessedBy: append([]string(nil), entry.AccessedBy...),
	}, nil
}

// CredentialType reports the declared type of a stored credential, or ""
// when the key is absent. Used by the proxy to pick the auth header style.
func (v *Vault) CredentialType(key string) connector.CredentialType {
	v.mu.RLock()
	defer v.mu.RUnlock()
	entry, ok := v.secrets[key]
	if !ok {
		return ""
	}
	return entry.Type
}

// ListKeys returns all stored key names, sorted.
func (v *Vault) ListKeys() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]string, 0, len(v.secrets))
	for k := range v.secrets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ============================================================================
// GRANTS
// ============================================================================

// allowedLocked implements the grant check. Empty accessor is the operator.
func (v *Vault) allowedLocked(accessor, key string) bool {
	if accessor == adminAccessor {
		return true
	}
	return v.grants[accessor][key]
}

// IsAllowed reports whether accessor holds a grant for key.
func (v *Vault) IsAllowed(accessor, key string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.allowedLocked(accessor, key)
}

// Grant allows a connector to read one vault key.
func (v *Vault) Grant(connectorID, key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.grants[connectorID] == nil {
		v.grants[connectorID] = make(map[string]bool)
	}
	v.grants[connectorID][key] = true
	v.audit.record("grant", key, connectorID)
}

// Revoke removes a single grant.
func (v *Vault) Revoke(connectorID, key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.grants[connectorID], key)
	v.audit.record("revoke", key, connectorID)
}

// RevokeAll removes every grant held by a connector.
func (v *Vault) RevokeAll(connectorID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.grants, connectorID)
	v.audit.record("revoke_all", "*", connectorID)
}

// ListGrants returns the keys a connector may read, sorted.
func (v *Vault) ListGrants(connectorID string) []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]string, 0, len(v.grants[connectorID]))
	for k := range v.grants[connectorID] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GrantConnectorAccess grants a connector every vault key its manifest
// declares, required or optional.
func (v *Vault) GrantConnectorAccess(c connector.Connector) {
	m := c.Manifest()
	for _, spec := range m.RequiredCredentials {
		if spec.VaultKey != "" {
			v.Grant(m.ID, spec.VaultKey)
		}
	}
}

// CheckRequirements reports which required credentials of a manifest are
// missing from the vault.
func (v *Vault) CheckRequirements(m *connector.Manifest) (missing []string) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, spec := range m.RequiredCredentials {
		if !spec.Required {
			continue
		}
		if _, ok := v.secrets[spec.VaultKey]; !ok {
			missing = append(missing, spec.VaultKey)
		}
	}
	return missing
}

// Stats reports counts only. Never key material.
func (v *Vault) Stats() map[string]interface{} {
	v.mu.RLock()
	defer v.mu.RUnlock()
	grantCount := 0
	for _, g := range v.grants {
		grantCount += len(g)
	}
	return map[string]interface{}{
		"credentials":        len(v.secrets),
		"connectors_granted": len(v.grants),
		"grants":             grantCount,
		"storage_path":       v.opts.StoragePath,
	}
}

// ============================================================================
// PERSISTENCE
// ============================================================================

// persistLocked encrypts the secret map and writes it atomically: current
// file copied to backup, new blob written to a temp file, then renamed over
// the original.
func (v *Vault) persistLocked() error {
	if v.opts.StoragePath == "" {
		return nil // memory-only vault, used in tests
	}

	plain, err := json.Marshal(v.secrets)
	if err != nil {
		return connector.Wrap(connector.KindTransport, err, "encoding vault contents")
	}
	blob, err := seal(plain, v.encKey, v.macKey)
	if err != nil {
		return err
	}

	if v.opts.BackupPath != "" {
		if current, err := os.ReadFile(v.opts.StoragePath); err == nil {
			_ = os.WriteFile(v.opts.BackupPath, current, 0o600)
		}
	}

	dir := filepath.Dir(v.opts.StoragePath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return connector.Wrap(connector.KindTransport, err, "creating vault directory")
	}
	tmp := v.opts.StoragePath + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return connector.Wrap(connector.KindTransport, err, "writing vault blob")
	}
	if err := os.Rename(tmp, v.opts.StoragePath); err != nil {
		return connector.Wrap(connector.KindTransport, err, "replacing vault blob")
	}
	return nil
}

// load reads and decrypts the vault file. A missing file is an empty vault.
func (v *Vault) load() error {
	if v.opts.StoragePath == "" {
		return nil
	}
	blob, err := os.ReadFile(v.opts.StoragePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return connector.Wrap(connector.KindTransport, err, "reading vault blob")
	}
	plain, err := open(blob, v.encKey, v.macKey)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plain, &v.secrets); err != nil {
		return connector.Wrap(connector.KindTransport, err, "decoding vault contents")
	}
	return nil
}

// seal encrypts with AES-256-CTR and appends an HMAC-SHA256 over magic,
// IV, and ciphertext. Layout: magic | iv | ciphertext | mac.
func seal(plain, encKey, macKey []byte) ([]byte, error) {
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, connector.Wrap(connector.KindTransport, err, "initializing cipher")
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, connector.Wrap(connector.KindTransport, err, "generating iv")
	}
	ct := make([]byte, len(plain))
	cipher.NewCTR(block, iv).XORKeyStream(ct, plain)

	blob := make([]byte, 0, len(blobMagic)+len(iv)+len(ct)+sha256.Size)
	blob = append(blob, blobMagic...)
	blob = append(blob, iv...)
	blob = append(blob, ct...)

	mac := hmac.New(sha256.New, macKey)
	mac.Write(blob)
	blob = mac.Sum(blob)
	return blob, nil
}

// open verifies the HMAC and decrypts. Any mismatch is a single opaque
// error; it never says which part failed.
func open(blob, encKey, macKey []byte) ([]byte, error) {
	minLen := len(blobMagic) + aes.BlockSize + sha256.Size
	if len(blob) < minLen || string(blob[:len(blobMagic)]) != blobMagic {
		return nil, connector.E(connector.KindTransport, "vault blob is malformed or from an incompatible version")
	}
	body := blob[:len(blob)-sha256.Size]
	sum := blob[len(blob)-sha256.Size:]

	mac := hmac.New(sha256.New, macKey)
	mac.Write(body)
	if !hmac.Equal(sum, mac.Sum(nil)) {
		return nil, connector.E(connector.KindTransport, "vault blob failed integrity check")
	}

	iv := body[len(blobMagic) : len(blobMagic)+aes.BlockSize]
	ct := body[len(blobMagic)+aes.BlockSize:]
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, connector.Wrap(connector.KindTransport, err, "initializing cipher")
	}
	plain := make([]byte, len(ct))
	cipher.NewCTR(block, iv).XORKeyStream(plain, ct)
	return plain, nil
}
