// Package config loads the connector catalog and vault settings from YAML.
package config

import (
	"os"

	yaml "gopkg.in/yaml.v2"

	"github.com/myles1663/lancelot-sub000/internal/connector"
	"github.com/myles1663/lancelot-sub000/internal/ratelimit"
)

// Settings holds plane-wide toggles.
type Settings struct {
	ListenAddr      string `yaml:"listen_addr"`
	MetricsEnabled  bool   `yaml:"metrics_enabled"`
	RedisAddr       string `yaml:"redis_addr"`
	WhatsAppPhoneID string `yaml:"whatsapp_phone_number_id"`
	TwilioAccountID string `yaml:"twilio_account_sid"`
}

// Catalog is the top-level connector configuration file.
type Catalog struct {
	Settings   Settings                      `yaml:"settings"`
	RateLimits RateLimits                    `yaml:"rate_limits"`
	Connectors []connector.GenericRESTConfig `yaml:"connectors"`
	Mail       MailConfig                    `yaml:"mail"`
	Tiers      map[string]map[string]string  `yaml:"tiers"` // connector -> operation -> tier name
}

// RateLimits configures the token buckets.
type RateLimits struct {
	Default      ratelimit.Config            `yaml:"default"`
	PerConnector map[string]ratelimit.Config `yaml:"per_connector"`
}

// MailConfig points the protocol adapter at its servers. Passwords come
// from the vault, never from this file.
type MailConfig struct {
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	IMAPHost string `yaml:"imap_host"`
	IMAPPort int    `yaml:"imap_port"`
	Username string `yaml:"username"`
	From     string `yaml:"from"`
}

// VaultConfig is the vault section of the settings file.
type VaultConfig struct {
	Storage struct {
		Path       string `yaml:"path"`
		BackupPath string `yaml:"backup_path"`
	} `yaml:"storage"`
	Encryption struct {
		KeyEnvVar string `yaml:"key_env_var"`
	} `yaml:"encryption"`
	Audit struct {
		LogAccess bool   `yaml:"log_access"`
		LogPath   string `yaml:"log_path"`
	} `yaml:"audit"`
}

// LoadCatalog reads the catalog file. A missing file yields an empty
// catalog and no error, so the plane can start with built-ins only.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Catalog{}, nil
	}
	if err != nil {
		return nil, err
	}
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadVaultConfig reads the vault settings file, with the same missing-file
// behavior as LoadCatalog.
func LoadVaultConfig(path string) (*VaultConfig, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &VaultConfig{}, nil
	}
	if err != nil {
		return nil, err
	}
	var c VaultConfig
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// TierOverrides converts the catalog's tier section into parsed risk
// tiers keyed by full capability id, rejecting unknown tier names.
func (c *Catalog) TierOverrides() (map[string]connector.RiskTier, error) {
	out := make(map[string]connector.RiskTier)
	for connectorID, ops := range c.Tiers {
		for opID, tierName := range ops {
			tier, err := connector.ParseRiskTier(tierName)
			if err != nil {
				return nil, err
			}
			out["connector."+connectorID+"."+opID] = tier
		}
	}
	return out, nil
}
