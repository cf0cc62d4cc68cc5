package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jask/ledgersync/internal/aggregator"
	"github.com/jask/ledgersync/internal/category"
	"github.com/jask/ledgersync/internal/config"
	"github.com/jask/ledgersync/internal/database"
	"github.com/jask/ledgersync/internal/database/repository"
	"github.com/jask/ledgersync/internal/events"
	"github.com/jask/ledgersync/internal/llm"
	"github.com/jask/ledgersync/internal/logger"
	"github.com/jask/ledgersync/internal/secrets"
	"github.com/jask/ledgersync/internal/service"
)

var (
	dbPath   string
	logLevel string
	offline  bool

	deps *app
)

// app holds everything a subcommand needs; built once per invocation.
type app struct {
	cfg    config.Config
	log    zerolog.Logger
	db     *sql.DB
	client aggregator.Client
	plaid  *aggregator.PlaidClient
	events events.Publisher
	sync   *service.SyncService
	txns   *service.TransactionService
	maint  *service.MaintenanceService
}

var rootCmd = &cobra.Command{
	Use:           "ledgersync",
	Short:         "Sync bank transactions and categorize them",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		deps = a
		cmd.SetContext(logger.WithContext(cmd.Context(), a.log))
		return nil
	},
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		if deps == nil {
			return nil
		}
		return deps.close()
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Use the built-in offline provider and keyword categorizer")
	registerCommands(rootCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		if deps != nil {
			_ = deps.close()
		}
		os.Exit(1)
	}
}

func bootstrap(ctx context.Context) (*app, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	ctx = logger.WithContext(ctx, log)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := database.RunMigrations(cfg.Database.Path); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	a := &app{cfg: cfg, log: log, db: db}

	switch {
	case offline:
		a.client = aggregator.NewOfflineClient(100)
	case cfg.Plaid.ClientID != "" && cfg.Plaid.Secret != "":
		pc, err := aggregator.NewPlaidClient(cfg.Plaid.ClientID, cfg.Plaid.Secret, cfg.Plaid.Environment)
		if err != nil {
			_ = a.close()
			return nil, err
		}
		a.client, a.plaid = pc, pc
	}

	provider, err := llmProvider(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("llm provider unavailable, categorization disabled")
	}

	sealer, err := secrets.NewSealer(cfg.Secrets.Passphrase)
	if err != nil {
		_ = a.close()
		return nil, fmt.Errorf("secrets: %w", err)
	}

	a.events, err = events.New(cfg.Events)
	if err != nil {
		log.Warn().Err(err).Msg("event broker unavailable, sync events disabled")
		a.events = events.Nop{}
	}

	policy := repository.Policy{
		AmountTolerance:      cfg.Policy.AmountTolerance,
		TransferTolerance:    cfg.Policy.TransferTolerance,
		TransferMaxResults:   cfg.Policy.TransferMaxResults,
		DuplicateTolerance:   cfg.Policy.TransferTolerance,
		DuplicateWindowDays:  cfg.Policy.DuplicateWindowDays,
		DuplicateMaxDistance: cfg.Policy.DuplicateMaxDistance,
	}
	txRepo := repository.NewTransactionRepo(db).WithPolicy(policy)
	tax := category.Default()

	a.txns = &service.TransactionService{
		Transactions:       txRepo,
		Taxonomy:           tax,
		TransferWindowDays: cfg.Policy.TransferWindowDays,
	}
	if provider != nil {
		a.txns.Categorizer = service.NewCategorizer(provider, tax, cfg.LLM, cfg.Policy.PromptTransferCandidates)
	}
	a.sync = &service.SyncService{
		Institutions: repository.NewInstitutionRepo(db),
		Accounts:     repository.NewAccountRepo(db),
		Transactions: txRepo,
		Client:       a.client,
		Sealer:       sealer,
		Events:       a.events,
		MaxPages:     cfg.Sync.MaxPages,
		MinInterval:  cfg.Sync.MinInterval,
	}
	if cfg.Sync.AutoCategorize && a.txns.Categorizer != nil {
		a.sync.Categorizer = a.txns
	}
	a.maint = &service.MaintenanceService{DB: db, Transactions: txRepo}
	return a, nil
}

func llmProvider(ctx context.Context, cfg config.Config) (llm.Provider, error) {
	if offline {
		return llm.NewOfflineProvider(), nil
	}
	switch strings.ToLower(strings.TrimSpace(cfg.LLM.Provider)) {
	case "", "gemini":
		p, err := llm.NewGeminiProvider(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "offline":
		return llm.NewOfflineProvider(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func (a *app) requireClient() error {
	if a.client == nil {
		return errors.New("aggregation provider not configured: set plaid.client_id and plaid.secret or pass --offline")
	}
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.events != nil {
		errs = append(errs, a.events.Close())
		a.events = nil
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
		a.db = nil
	}
	return errors.Join(errs...)
}
