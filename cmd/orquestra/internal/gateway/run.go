package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gestao-presente/orquestra/pkg/bus"
	"github.com/gestao-presente/orquestra/pkg/chatwoot"
	"github.com/gestao-presente/orquestra/pkg/config"
	"github.com/gestao-presente/orquestra/pkg/directory"
	"github.com/gestao-presente/orquestra/pkg/orchestrator"
	"github.com/gestao-presente/orquestra/pkg/providers"
	anthropicprovider "github.com/gestao-presente/orquestra/pkg/providers/anthropic"
	openaiprovider "github.com/gestao-presente/orquestra/pkg/providers/openai"
	"github.com/gestao-presente/orquestra/pkg/respcache"
	"github.com/gestao-presente/orquestra/pkg/router"
	"github.com/gestao-presente/orquestra/pkg/specialist"
	"github.com/gestao-presente/orquestra/pkg/textutil"
	"github.com/gestao-presente/orquestra/pkg/webhook"
)

func newLogger(debug bool) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if debug {
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zapCfg.Build()
}

func buildCompleter(cfg *config.Config) providers.Completer {
	if cfg.LLMProvider == "anthropic" {
		return anthropicprovider.NewProviderWithBaseURL(cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMAPIBase)
	}
	return openaiprovider.NewProviderWithBaseURL(cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMAPIBase)
}

// preloadTeams fills the directory from the platform, optionally
// restricted to the configured subset. A platform failure here is not
// fatal: the gateway starts and teams can be reloaded later.
func preloadTeams(ctx context.Context, dir *directory.Directory, client *chatwoot.Client, cfg *config.Config, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	teams, err := client.ListTeams(ctx)
	if err != nil {
		log.Warn("team preload failed, directory starts empty", zap.Error(err))
		return
	}

	if wanted := cfg.TeamNames(); len(wanted) > 0 {
		keep := make(map[string]bool, len(wanted))
		for _, name := range wanted {
			keep[textutil.Fold(name)] = true
		}
		filtered := teams[:0]
		for _, team := range teams {
			if keep[textutil.Fold(team.Name)] {
				filtered = append(filtered, team)
			}
		}
		teams = filtered
	}

	dir.Load(teams)
	log.Info("team directory loaded", zap.Int("teams", dir.Len()))
}

// refreshLoop re-pulls the team directory on the configured cron
// schedule, checking once per minute.
func refreshLoop(ctx context.Context, expr string, dir *directory.Directory, lister directory.TeamLister, log *zap.Logger) {
	gron := gronx.New()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := gron.IsDue(expr)
			if err != nil || !due {
				continue
			}
			if err := dir.Refresh(ctx, lister); err != nil {
				log.Warn("scheduled team refresh failed", zap.Error(err))
				continue
			}
			log.Info("team directory refreshed", zap.Int("teams", dir.Len()))
		}
	}
}

func gatewayCmd(debug bool) error {
	log, err := newLogger(debug)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Error("configuration invalid", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := chatwoot.NewClient(cfg.ChatwootAPIURL, cfg.ChatwootAPIToken, cfg.ChatwootAccountID, log)
	dir := directory.New(cfg.DefaultHumanTeam)
	preloadTeams(ctx, dir, client, cfg, log)

	completer := buildCompleter(cfg)
	spec := specialist.NewClient(completer, cfg.SpecialistTimeout(), log)

	var classifierCompleter providers.Completer
	if cfg.UseLLMClassifier {
		classifierCompleter = completer
	}
	classifier := router.New(dir, cfg.Labels(), classifierCompleter, router.Config{
		UseLLM:              cfg.UseLLMClassifier,
		DeferBareHumanToLLM: cfg.DeferBareHumanToLLM,
		LLMTimeout:          cfg.ClassifierTimeout(),
	}, log)

	cache := respcache.New(cfg.CacheTTL(), cfg.CacheMaxItems)
	engine := orchestrator.NewEngine(dir, cache, classifier, spec, client, orchestrator.Config{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		Labels:              cfg.Labels(),
		DedupCapacity:       cfg.CacheMaxItems * 4,
		DedupTTL:            cfg.CacheTTL(),
	}, log)

	mb := bus.NewMessageBus()
	var workers sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			// Workers stop through bus close, not the signal context,
			// so accepted messages still drain during shutdown.
			engine.Run(context.Background(), mb)
		}()
	}

	if cfg.TeamRefreshCron != "" {
		go refreshLoop(ctx, cfg.TeamRefreshCron, dir, client, log)
	}

	srv := webhook.NewServer(cfg.ListenAddr, mb, dir, client, cfg.WebhookToken, cfg.ChatwootAccountID, log)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	log.Info("gateway started",
		zap.String("addr", cfg.ListenAddr),
		zap.String("llm_provider", cfg.LLMProvider),
		zap.Int("workers", cfg.Workers),
	)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			log.Error("webhook server failed", zap.Error(err))
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("webhook shutdown incomplete", zap.Error(err))
	}
	mb.Close()
	workers.Wait()
	log.Info("gateway stopped")
	return runErr
}
