// Package app assembles the bot: storage, repositories, the publisher, the
// Telegram transport and the admin services, with hot config reload.
package app

import (
	"context"
	"fmt"

	"stagebot/internal/broadcast"
	"stagebot/internal/config"
	"stagebot/internal/digest"
	"stagebot/internal/publish"
	"stagebot/internal/runtime/supervisor"
	"stagebot/internal/state"
	"stagebot/internal/storage"
	"stagebot/internal/transport/telegram"
	"stagebot/pkg/logx"
)

type App struct {
	cfgPath string
	log     logx.Logger
	sup     *supervisor.Supervisor

	store   storage.Store
	users   *state.Users
	pending *state.Pending
	refs    *state.Referrals

	adapter *telegram.Adapter
	handler *telegram.Handler
	pub     *publish.Service
	bc      *broadcast.Service
	dig     *digest.Service
}

// New builds the full object graph. Nothing is started yet; blocking work
// (schema creation, state load, polling) happens in Start.
func New(cfgPath string, cfg *config.Config) (*App, error) {
	log := logx.New(logx.Config{Level: cfg.Log.Level, Console: cfg.Log.Console})
	sup := supervisor.New(context.Background(), log.With(logx.String("comp", "supervisor")))

	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.Telegram.PollTimeout.D,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = sup.Stop(context.Background())
		return nil, err
	}

	store, err := storage.Open(sup.Context(), storage.Config{
		Driver:      cfg.Storage.Driver,
		DSN:         cfg.Storage.DSN,
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeout.D,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = sup.Stop(context.Background())
		return nil, fmt.Errorf("open storage: %w", err)
	}

	users := state.NewUsers(store)
	pending := state.NewPending(store)
	refs := state.NewReferrals(store)

	pub := publish.New(publish.Config{
		CooldownMin: cfg.Publish.CooldownMin.D,
		CooldownMax: cfg.Publish.CooldownMax.D,
	}, users, pending, ad, sup, log.With(logx.String("comp", "publish")))

	bc := broadcast.New(broadcast.Config{RatePerSec: cfg.Broadcast.RatePerSec}, ad, log.With(logx.String("comp", "broadcast")))

	dig := digest.New(digest.Config{Enabled: cfg.Digest.Enabled, Spec: cfg.Digest.Spec},
		users, pending, refs, pub, ad, cfg.AdminIDs, log.With(logx.String("comp", "digest")))

	h := telegram.NewHandler(telegram.HandlerDeps{
		Adapter:   ad,
		Users:     users,
		Pending:   pending,
		Referrals: refs,
		Publisher: pub,
		Broadcast: bc,
		Sup:       sup,
		IsAdmin:   cfg.IsAdmin,
		Log:       log.With(logx.String("comp", "handler")),
	})

	return &App{
		cfgPath: cfgPath,
		log:     log.With(logx.String("comp", "app")),
		sup:     sup,
		store:   store,
		users:   users,
		pending: pending,
		refs:    refs,
		adapter: ad,
		handler: h,
		pub:     pub,
		bc:      bc,
		dig:     dig,
	}, nil
}

// Start loads persisted state, resumes drain loops for users with queued
// posts, and begins polling.
func (a *App) Start() error {
	ctx := a.sup.Context()

	if err := a.users.Load(ctx); err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	if err := a.pending.Load(ctx); err != nil {
		return fmt.Errorf("load pending: %w", err)
	}
	if err := a.refs.Load(ctx); err != nil {
		return fmt.Errorf("load referrals: %w", err)
	}
	a.log.Info("state loaded",
		logx.Int("users", a.users.Count()),
		logx.Int("pending", a.pending.Count()),
		logx.Int("referrals", a.refs.Total()))

	a.handler.Register()
	a.bc.Start(a.sup)
	a.pub.Resume()
	if err := a.dig.Start(ctx); err != nil {
		return err
	}
	a.adapter.Start(a.sup)

	a.sup.Go("config.watch", func(ctx context.Context) {
		if err := config.Watch(ctx, a.cfgPath, a.log, a.applyConfig); err != nil && ctx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	})

	a.log.Info("started")
	return nil
}

// applyConfig propagates a reloaded config to the tunable services. Token
// and storage settings require a restart and are left untouched.
func (a *App) applyConfig(cfg *config.Config) {
	logx.SetLevel(cfg.Log.Level)
	a.pub.Apply(publish.Config{
		CooldownMin: cfg.Publish.CooldownMin.D,
		CooldownMax: cfg.Publish.CooldownMax.D,
	})
	a.bc.Apply(broadcast.Config{RatePerSec: cfg.Broadcast.RatePerSec})
}

// Stop cancels every loop, waits for them (bounded by ctx) and closes
// storage.
func (a *App) Stop(ctx context.Context) {
	a.dig.Stop()
	if err := a.sup.Stop(ctx); err != nil {
		a.log.Warn("shutdown timed out", logx.Err(err))
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}
	a.log.Info("stopped")
}
