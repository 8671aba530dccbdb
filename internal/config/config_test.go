package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myles1663/lancelot-sub000/internal/connector"
)

const sampleCatalog = `
settings:
  listen_addr: ":8085"
  metrics_enabled: true
  whatsapp_phone_number_id: "1555000111"
rate_limits:
  default:
    max_requests_per_minute: 60
    burst_size: 10
  per_connector:
    slack:
      max_requests_per_minute: 120
      burst_size: 20
connectors:
  - id: petstore
    name: Pet Store
    base_url: https://api.petstore.example.com
    auth_type: bearer
    vault_key: petstore.api_key
    endpoints:
      - id: list_pets
        name: List pets
        method: GET
        path: /pets
        tier: T0_INERT
tiers:
  slack:
    post_message: T1_REVERSIBLE
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog(writeTemp(t, sampleCatalog))
	require.NoError(t, err)

	assert.Equal(t, ":8085", c.Settings.ListenAddr)
	assert.True(t, c.Settings.MetricsEnabled)
	assert.Equal(t, float64(60), c.RateLimits.Default.MaxRequestsPerMinute)
	assert.Equal(t, float64(120), c.RateLimits.PerConnector["slack"].MaxRequestsPerMinute)

	require.Len(t, c.Connectors, 1)
	assert.Equal(t, "petstore", c.Connectors[0].ID)
	require.NoError(t, c.Connectors[0].Validate())
}

func TestLoadCatalogMissingFile(t *testing.T) {
	c, err := LoadCatalog(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err, "a missing catalog is not an error")
	assert.Empty(t, c.Connectors)
}

func TestLoadCatalogMalformed(t *testing.T) {
	_, err := LoadCatalog(writeTemp(t, "settings: [not: a: map"))
	assert.Error(t, err)
}

func TestTierOverrides(t *testing.T) {
	c, err := LoadCatalog(writeTemp(t, sampleCatalog))
	require.NoError(t, err)

	overrides, err := c.TierOverrides()
	require.NoError(t, err)
	assert.Equal(t, connector.TierReversible, overrides["connector.slack.post_message"])
}

func TestTierOverridesRejectUnknownTier(t *testing.T) {
	c := &Catalog{Tiers: map[string]map[string]string{"slack": {"post_message": "T5_WILD"}}}
	_, err := c.TierOverrides()
	assert.Error(t, err)
}

func TestLoadVaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  path: /var/lib/plane/vault.bin
  backup_path: /var/lib/plane/vault.bin.bak
encryption:
  key_env_var: PLANE_VAULT_KEY
audit:
  log_access: true
  log_path: /var/log/plane/vault-audit.log
`), 0o600))

	vc, err := LoadVaultConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/plane/vault.bin", vc.Storage.Path)
	assert.Equal(t, "PLANE_VAULT_KEY", vc.Encryption.KeyEnvVar)
	assert.True(t, vc.Audit.LogAccess)
}
