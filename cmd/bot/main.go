package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"

	"helpdesk-bot/internal/config"
	"helpdesk-bot/internal/faq"
	"helpdesk-bot/internal/gateway"
	"helpdesk-bot/internal/integrations/openai"
	"helpdesk-bot/internal/integrations/paramstore"
	"helpdesk-bot/internal/ledger"
	"helpdesk-bot/internal/repository"
	"helpdesk-bot/internal/tags"
	"helpdesk-bot/internal/transport/telegram"
	"helpdesk-bot/internal/usecase"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	ctx := context.Background()

	// ---- AWS SDK config (only when a durable store or SSM prefix is set) ----
	var awsCfg aws.Config
	needAWS := os.Getenv("PARAM_PREFIX") != "" || os.Getenv("STATE_TABLE") != ""
	if needAWS {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			log.Error("failed to load AWS config", "err", err)
			os.Exit(1)
		}
	}

	// ---- Configuration (read only here; invalid config must not serve) ----
	var params config.Getter
	if os.Getenv("PARAM_PREFIX") != "" {
		ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			log.Error("failed to create SSM client", "err", err)
			os.Exit(1)
		}
		params = ps
	}
	cfg, err := config.Load(ctx, params)
	if err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// ---- Completion provider ----
	var provider gateway.Completer
	if cfg.SelfTest {
		provider = gateway.NewCannedCompleter()
		log.Info("self-test mode: completion provider stubbed, no network calls")
	} else {
		var opts []openai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		client, err := openai.NewClient(cfg.OpenAIKey, cfg.Model, opts...)
		if err != nil {
			log.Error("failed to create OpenAI client", "err", err)
			os.Exit(1)
		}
		provider = client
	}
	gw, err := gateway.New(provider, gateway.Budget{
		MaxTokens:  cfg.MaxTokens,
		Timeout:    cfg.RequestTimeout,
		MaxRetries: cfg.MaxRetries,
	}, log)
	if err != nil {
		log.Error("failed to create completion gateway", "err", err)
		os.Exit(1)
	}

	// ---- Ledger (with optional durable mirror) and export sink ----
	var (
		store    ledger.Store
		exporter telegram.Exporter
	)
	if cfg.StateTable != "" {
		repo, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
		if err != nil {
			log.Error("failed to create state repository", "err", err)
			os.Exit(1)
		}
		store = repo
		exporter = repo
		log.Info("durable ledger enabled", "table", cfg.StateTable)
	} else {
		log.Info("durable ledger disabled (STATE_TABLE not set)")
	}
	led := ledger.New(store, log)
	if err := led.Rehydrate(ctx); err != nil {
		log.Warn("ledger rehydration failed, starting empty", "err", err)
	}

	// ---- Pipeline and transport ----
	svc, err := usecase.NewService(faq.New(faq.Defaults()), tags.New(tags.Defaults()), gw, led, cfg.BotName, cfg.OrgName, log)
	if err != nil {
		log.Error("failed to create pipeline", "err", err)
		os.Exit(1)
	}
	adapter, err := telegram.New(cfg.BotToken, svc, exporter, log)
	if err != nil {
		log.Error("failed to connect to Telegram", "err", err)
		os.Exit(1)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("helpdesk bot started", "bot", cfg.BotName, "org", cfg.OrgName, "model", cfg.Model)
	if err := adapter.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("bot stopped", "err", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
