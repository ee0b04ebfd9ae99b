package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"swapring/config"
	"swapring/crypto"
	"swapring/delivery"
	"swapring/engine"
	"swapring/matching"
	"swapring/observability/logging"
	"swapring/policy"
	"swapring/state"
	"swapring/storage"
	"swapring/tenancy"
)

const sweepInterval = time.Minute

func main() {
	configPath := flag.String("config", "swapring.toml", "path to the daemon configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "swapringd: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup("swapringd", cfg.Ops.Environment)

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("storage open failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	store, err := state.Open(db)
	if err != nil {
		logger.Error("state open failed", "err", err)
		os.Exit(1)
	}

	keys, err := loadKeys(cfg)
	if err != nil {
		logger.Error("key material load failed", "err", err)
		os.Exit(1)
	}

	evaluator, err := policy.NewEvaluator(keys.Consent, cfg.Enforcement())
	if err != nil {
		logger.Error("policy configuration rejected", "err", err)
		os.Exit(1)
	}

	ingestor := delivery.NewIngestor(partnerRing(cfg, logger), cfg.Webhooks.RatePerSecond, cfg.Webhooks.Burst)
	rollout := &tenancy.RolloutPolicy{
		Allowlist:    cfg.Rollout.Allowlist,
		MinPlan:      cfg.Rollout.MinPlan,
		PartnerPlans: cfg.Rollout.PartnerPlans,
	}

	depositWindow, _ := time.ParseDuration(cfg.Engine.DepositWindow)
	expiryHorizon, _ := time.ParseDuration(cfg.Engine.ProposalExpiryHorizon)
	eng := engine.New(store, keys, evaluator, ingestor, rollout, logger, engine.Options{
		Bounds: matching.Bounds{
			MinCycleLength:      cfg.Engine.MinCycleLength,
			MaxCycleLength:      cfg.Engine.MaxCycleLength,
			MaxEnumeratedCycles: cfg.Engine.MaxEnumeratedCycles,
			TimeoutMs:           cfg.Engine.TimeoutMs,
		},
		DepositWindow:         depositWindow,
		ProposalExpiryHorizon: expiryHorizon,
		AuthzEnabled:          cfg.Policy.AuthzEnabled,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runSweeps(ctx, eng)

	server := &http.Server{
		Addr:    cfg.Ops.ListenAddress,
		Handler: opsRouter(eng),
	}
	go func() {
		logger.Info("ops listener starting", "addr", cfg.Ops.ListenAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops listener failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.Storage.Backend {
	case "leveldb":
		return storage.NewLevelDB(cfg.Storage.Path)
	default:
		return storage.NewMemDB(), nil
	}
}

func loadKeys(cfg *config.Config) (*crypto.Material, error) {
	if cfg.Keys.DevNamespace != "" {
		return crypto.DevMaterial(cfg.Keys.DevNamespace), nil
	}
	return crypto.LoadMaterial(cfg.Keys.EventsRing, cfg.Keys.ReceiptsRing, cfg.Keys.DelegationRing, cfg.Keys.ConsentRing)
}

// partnerRing assembles the verify-only ring for partner webhook envelopes.
func partnerRing(cfg *config.Config, logger *slog.Logger) *crypto.Ring {
	keys := make(map[string]ed25519.PublicKey, len(cfg.Webhooks.PartnerKeys))
	for keyID, encoded := range cfg.Webhooks.PartnerKeys {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			logger.Warn("skipping invalid partner webhook key", "key_id", keyID)
			continue
		}
		keys[keyID] = ed25519.PublicKey(raw)
	}
	return crypto.VerifyOnlyRing(keys)
}

// runSweeps drives the periodic deposit-window and proposal-expiry scans.
func runSweeps(ctx context.Context, eng *engine.Engine) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			eng.TickExpireDeposits(now.UTC())
			eng.TickSweepProposals(now.UTC())
		}
	}
}

func opsRouter(eng *engine.Engine) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp, err := eng.Health(engine.Request{})
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp.Result)
	})
	router.Handle("/metrics", promhttp.Handler())
	return router
}
