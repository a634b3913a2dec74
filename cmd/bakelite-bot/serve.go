package main

import (
	"context"
	"net"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bakelite_bot/internal/bot"
	"bakelite_bot/internal/config"
	"bakelite_bot/internal/dialog"
	"bakelite_bot/internal/health"
	"bakelite_bot/internal/intake"
	"bakelite_bot/internal/notify"
	"bakelite_bot/internal/sheets"
	"bakelite_bot/internal/store"
	"bakelite_bot/internal/store/memory"
	"bakelite_bot/internal/store/mongostore"
)

func newServeCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot and the liveness endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return errors.Wrap(err, "connect to telegram")
	}
	api.Debug = cfg.Debug
	log.Info("authorized", zap.String("account", api.Self.UserName), zap.Int64("admin_id", cfg.AdminID))

	router := notify.NewRouter(api, log.Named("notify"))
	svc := intake.NewService(st, router, cfg.AdminID, log.Named("intake"))
	engine, err := dialog.NewEngine(log.Named("dialog"), svc.Wizards()...)
	if err != nil {
		return err
	}
	b := bot.NewBot(api, engine, svc, router, cfg.SessionTTL, log.Named("bot"))

	healthErr := make(chan error, 1)
	go func() {
		healthErr <- health.Serve(ctx, net.JoinHostPort("", cfg.HealthPort), log.Named("health"))
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	done := make(chan struct{})
	go func() {
		b.Run(ctx, updates)
		close(done)
	}()
	log.Info("bot started", zap.String("storage", cfg.StorageBackend))

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-healthErr:
		log.Error("health endpoint stopped", zap.Error(runErr))
	}

	log.Info("shutting down")
	api.StopReceivingUpdates()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn("in-flight updates did not finish in time")
	}
	return runErr
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, func(), error) {
	switch cfg.StorageBackend {
	case store.BackendMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		st, err := mongostore.Connect(connectCtx, mongostore.Config{
			URI:      cfg.MongoURI,
			Database: cfg.MongoDatabase,
		}, log.Named("mongo"))
		if err != nil {
			return nil, nil, err
		}
		return st, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := st.Close(closeCtx); err != nil {
				log.Warn("mongo disconnect", zap.Error(err))
			}
		}, nil

	case store.BackendSheets:
		st, err := sheets.NewService(ctx, cfg.CredentialsPath, cfg.SpreadsheetID)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil

	default:
		log.Warn("using in-memory storage, records are lost on restart")
		return memory.NewStore(), func() {}, nil
	}
}
