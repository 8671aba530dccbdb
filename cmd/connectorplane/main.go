package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/myles1663/lancelot-sub000/internal/api"
	"github.com/myles1663/lancelot-sub000/internal/config"
	"github.com/myles1663/lancelot-sub000/internal/connector"
	"github.com/myles1663/lancelot-sub000/internal/governance"
	"github.com/myles1663/lancelot-sub000/internal/mailproto"
	"github.com/myles1663/lancelot-sub000/internal/proxy"
	"github.com/myles1663/lancelot-sub000/internal/ratelimit"
	"github.com/myles1663/lancelot-sub000/internal/registry"
	"github.com/myles1663/lancelot-sub000/internal/vault"
)

const defaultVaultKeyEnvVar = "CONNECTOR_PLANE_VAULT_KEY"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	catalogPath := envOr("CONNECTOR_CATALOG", "config/connectors.yaml")
	vaultConfigPath := envOr("VAULT_CONFIG", "config/vault.yaml")

	catalog, err := config.LoadCatalog(catalogPath)
	if err != nil {
		log.Fatalf("loading connector catalog %s: %v", catalogPath, err)
	}
	vaultCfg, err := config.LoadVaultConfig(vaultConfigPath)
	if err != nil {
		log.Fatalf("loading vault config %s: %v", vaultConfigPath, err)
	}

	keyEnvVar := vaultCfg.Encryption.KeyEnvVar
	if keyEnvVar == "" {
		keyEnvVar = defaultVaultKeyEnvVar
	}
	v, err := vault.New(vault.Options{
		StoragePath: vaultCfg.Storage.Path,
		BackupPath:  vaultCfg.Storage.BackupPath,
		KeyEnvVar:   keyEnvVar,
		AuditPath:   vaultCfg.Audit.LogPath,
		LogAccess:   vaultCfg.Audit.LogAccess,
	})
	if err != nil {
		log.Fatalf("opening vault: %v", err)
	}
	defer v.Close()

	flags := governance.NewFlags(governance.FlagConnectors)
	if os.Getenv("TRUST_LEDGER_ENABLED") == "true" {
		flags.Set(governance.FlagTrustLedger, true)
	}

	limits := ratelimit.NewRegistry(catalog.RateLimits.Default, catalog.RateLimits.PerConnector)

	var adapter *mailproto.Adapter
	if catalog.Mail.SMTPHost != "" || catalog.Mail.IMAPHost != "" {
		adapter = mailproto.New(mailproto.Config{
			SMTPHost: catalog.Mail.SMTPHost,
			SMTPPort: catalog.Mail.SMTPPort,
			IMAPHost: catalog.Mail.IMAPHost,
			IMAPPort: catalog.Mail.IMAPPort,
			Username: catalog.Mail.Username,
			From:     catalog.Mail.From,
			PasswordFunc: func() (string, error) {
				return v.Retrieve("email.password", "")
			},
		})
		defer adapter.Close()
	}

	var metrics *proxy.Metrics
	if catalog.Settings.MetricsEnabled {
		metrics = proxy.NewMetrics(prometheus.DefaultRegisterer)
	}

	p := proxy.New(v, limits, adapter, metrics)

	reg := registry.New(flags)
	ledger := governance.NewTrustLedger(nil)
	classifier := governance.NewClassifier(ledger, flags)

	store, err := buildReceiptStore(catalog.Settings.RedisAddr)
	if err != nil {
		log.Fatalf("building receipt store: %v", err)
	}
	pipeline := governance.NewReceiptPipeline(store, nil)
	pipelineCtx, stopPipeline := context.WithCancel(context.Background())
	pipeline.Start(pipelineCtx)

	var policy governance.PolicyEngine
	if raw := os.Getenv("CONNECTOR_MAX_TIER"); raw != "" {
		maxTier, err := connector.ParseRiskTier(raw)
		if err != nil {
			log.Fatalf("CONNECTOR_MAX_TIER: %v", err)
		}
		policy = governance.TierCapPolicy{MaxTier: maxTier}
	}

	governed := governance.NewGovernedProxy(reg, p, classifier, policy, ledger, pipeline, nil)

	if err := registerConnectors(reg, v, p, governed, catalog); err != nil {
		log.Fatalf("registering connectors: %v", err)
	}

	overrides, err := catalog.TierOverrides()
	if err != nil {
		log.Fatalf("parsing tier overrides: %v", err)
	}
	for capability, tier := range overrides {
		classifier.SetDefault(capability, tier)
	}

	server := api.NewServer(reg, v, governed, p, store)
	router := server.Router()
	if catalog.Settings.MetricsEnabled {
		router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	addr := catalog.Settings.ListenAddr
	if addr == "" {
		addr = ":" + envOr("PORT", "8080")
	}
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("server shutdown: %v", err)
		}

		// Flush buffered receipts after in-flight requests finish.
		stopPipeline()
		pipeline.Wait()
	}()

	log.Printf("connector plane listening on %s (%d connectors)", addr, len(reg.List()))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
	log.Println("server stopped")
}

// registerConnectors admits the built-ins plus every generic connector the
// catalog declares, then opens the vault grants, egress allowlist, and
// classifier defaults each needs.
func registerConnectors(reg *registry.Registry, v *vault.Vault, p *proxy.Proxy,
	governed *governance.GovernedProxy, catalog *config.Catalog) error {

	connectors := []connector.Connector{
		connector.NewSlack(),
		connector.NewDiscord(),
		connector.NewTeams(),
		connector.NewGmail(),
		connector.NewOutlook(),
		connector.NewEmail(),
		connector.NewWhatsApp(catalog.Settings.WhatsAppPhoneID),
		connector.NewTelegram(),
		connector.NewTwilio(catalog.Settings.TwilioAccountID),
		connector.NewX(),
		connector.NewCalendar(),
		connector.NewEcho(),
	}
	for _, cfg := range catalog.Connectors {
		g, err := connector.NewGenericREST(cfg)
		if err != nil {
			return err
		}
		connectors = append(connectors, g)
	}

	for _, c := range connectors {
		if err := reg.Register(c); err != nil {
			return err
		}
		p.AllowDomains(c.Manifest().ID, c.Manifest().TargetDomains...)
		v.GrantConnectorAccess(c)
		governed.RegisterConnectorTiers(c)
	}
	return nil
}

func buildReceiptStore(redisAddr string) (governance.ReceiptStore, error) {
	if redisAddr == "" {
		return governance.NewMemoryReceiptStore(0), nil
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	log.Printf("receipts persisted to redis at %s", redisAddr)
	return governance.NewRedisReceiptStore(client, 0), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
