// Package app wires configuration, the payment gateway, the conversation
// engine and the Telegram runtime together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	corebootstrap "github.com/m3rciful/topupbot/core/bootstrap"
	corecmd "github.com/m3rciful/topupbot/core/cmd"
	"github.com/m3rciful/topupbot/core/logger"
	coretelegram "github.com/m3rciful/topupbot/core/telegram"
	"github.com/m3rciful/topupbot/internal/click"
	"github.com/m3rciful/topupbot/internal/config"
	"github.com/m3rciful/topupbot/internal/i18n"
	"github.com/m3rciful/topupbot/internal/journal"
	"github.com/m3rciful/topupbot/internal/metrics"
	"github.com/m3rciful/topupbot/internal/topup"
)

// conversation is the engine surface used by the Telegram handlers.
type conversation interface {
	HandleStart(ctx context.Context, chatID int64) error
	HandleContact(ctx context.Context, chatID int64, phone string) error
	HandleText(ctx context.Context, chatID int64, text string) error
	HandleDeliveryError(ctx context.Context, chatID int64, cause error)
}

// App is the assembled bot.
type App struct {
	cfg       *config.Config
	db        *sqlx.DB
	engine    conversation
	messenger *messenger
}

// LoadConfig adapts config.Load to the core runner.
func LoadConfig(path string) (corecmd.ConfigCarrier, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Bootstrap initializes logging, the optional journal database, the gateway
// client and the engine. The metrics listener runs until ctx is done.
func Bootstrap(ctx context.Context, carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("app: unexpected config type")
	}

	res, err := corebootstrap.Run(ctx, corebootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
		Migrate:  journal.Migrate,
	})
	if err != nil {
		return nil, err
	}

	texts, err := i18n.New(cfg.Bot.Locale)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	gateway := click.New(click.Options{
		BaseURL: cfg.Click.BaseURL,
		Timeout: cfg.Click.Timeout(),
		Signer: click.Signer{
			MerchantUserID: cfg.Click.MerchantUserID,
			SecretKey:      cfg.Click.SecretKey,
		},
	})

	var store topup.Journal
	if res.DB != nil {
		store = journal.New(res.DB)
	}

	msgr := &messenger{}
	engine, err := topup.NewEngine(topup.Options{
		ServiceID: cfg.Click.ServiceID,
		Gateway:   gateway,
		Messenger: msgr,
		Texts:     texts,
		Journal:   store,
	})
	if err != nil {
		if res.DB != nil {
			_ = res.DB.Close()
		}
		return nil, fmt.Errorf("app: %w", err)
	}

	logger.Click.Info("gateway configured",
		slog.String("event", "gateway.config"),
		slog.Int64("service_id", cfg.Click.ServiceID),
		slog.Int64("merchant_id", cfg.Click.MerchantID),
		slog.String("host", cfg.Click.BaseURL),
		slog.Duration("timeout", cfg.Click.Timeout()),
	)
	logger.Topup.Info("engine ready",
		slog.String("event", "topup.ready"),
		slog.String("lang", texts.Language()),
		slog.Bool("journal", store != nil),
	)

	if cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen); err != nil {
				logger.L.Error("metrics listener stopped",
					slog.String("component", "metrics"),
					slog.String("event", "listen"),
					slog.String("err", err.Error()),
				)
			}
		}()
	}

	return &App{cfg: cfg, db: res.DB, engine: engine, messenger: msgr}, nil
}

// TelegramRunOptions builds the routes, middlewares and lifecycle hooks of the bot.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	core := a.cfg.CoreConfig()
	reg := a.registry()

	return coretelegram.RunOptions{
		Config:            core,
		Registry:          reg,
		DispatcherOptions: a.dispatcherOptions(),
		Middlewares:       coretelegram.DefaultMiddlewares(core, a.onLimited),
		Routes:            a.routes(reg),
		OnError:           a.onError,
		OnStart: func(_ context.Context, rt coretelegram.Runtime) error {
			a.messenger.bind(rt.Bot)
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.messenger.bind(nil)
			if rt.Dispatcher != nil {
				logger.TG.LogAttrs(ctx, slog.LevelInfo, "sender stopped",
					slog.String("event", "sender.stop"),
					slog.Uint64("send_errors", rt.Dispatcher.ErrorCount()),
				)
			}
			if a.db != nil {
				return a.db.Close()
			}
			return nil
		},
	}, nil
}
