package vault

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// auditLog appends one line per vault action. Each line carries a hash of
// the previous line, so truncation or edits anywhere but the tail are
// detectable. Lines never contain secret values.
type auditLog struct {
	mu   sync.Mutex
	path string
	f    *os.File
	last string // hex hash of the previous line
}

// newAuditLog opens the audit file for append, or returns a no-op log when
// path is empty.
func newAuditLog(path string) (*auditLog, error) {
	a := &auditLog{path: path, last: "genesis"}
	if path == "" {
		return a, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	a.f = f
	return a, nil
}

// record appends one audit line: timestamp | action | key | accessor | chain.
// The empty accessor is logged as "admin".
func (a *auditLog) record(action, key, accessor string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if accessor == "" {
		accessor = "admin"
	}
	line := fmt.Sprintf("%s | %s | %s | accessor=%s | chain=%s",
		time.Now().UTC().Format(time.RFC3339), action, key, accessor, a.last)

	sum := sha256.Sum256([]byte(line))
	a.last = hex.EncodeToString(sum[:8])

	if a.f != nil {
		fmt.Fprintln(a.f, line)
	}
}

// close releases the underlying file.
func (a *auditLog) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f != nil {
		_ = a.f.Close()
		a.f = nil
	}
}

// Close flushes and closes the audit log.
func (v *Vault) Close() {
	v.audit.close()
}
