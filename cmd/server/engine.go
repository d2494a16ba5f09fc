package main

import (
	"context"
	"log/slog"

	"github.com/KirkDiggler/rpg-toolkit/dice"
	"github.com/KirkDiggler/rpg-toolkit/events"
	"go.uber.org/zap"

	"github.com/KirkDiggler/rpg-skill-engine/internal/catalog"
	"github.com/KirkDiggler/rpg-skill-engine/internal/config"
	"github.com/KirkDiggler/rpg-skill-engine/internal/ledger"
	"github.com/KirkDiggler/rpg-skill-engine/internal/modifiers"
	"github.com/KirkDiggler/rpg-skill-engine/internal/orchestrators/round"
	"github.com/KirkDiggler/rpg-skill-engine/internal/permission"
	"github.com/KirkDiggler/rpg-skill-engine/internal/pkg/clock"
	"github.com/KirkDiggler/rpg-skill-engine/internal/pkg/idgen"
	redisclient "github.com/KirkDiggler/rpg-skill-engine/internal/redis"
	battlestate "github.com/KirkDiggler/rpg-skill-engine/internal/repositories/battle_state"
	"github.com/KirkDiggler/rpg-skill-engine/internal/scripting"
	"github.com/KirkDiggler/rpg-skill-engine/internal/telemetry"
)

// engineOptions adjust a build for the command using it
type engineOptions struct {
	Roller dice.Roller
	Clock  clock.Clock
	// InMemory ignores the configured stores
	InMemory bool
	// LogOperations sends every operation result to slog
	LogOperations bool
}

// engine is a fully wired round controller and the resources behind it
type engine struct {
	Round    round.Service
	Catalog  catalog.Catalog
	Bus      events.EventBus
	Recorder *telemetry.Recorder

	closers []func() error
}

// Close releases resources in reverse order of acquisition
func (e *engine) Close(logger *zap.Logger) {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			logger.Warn("Failed to release engine resource", zap.Error(err))
		}
	}
}

func buildEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts engineOptions) (*engine, error) {
	e := &engine{}

	cat, err := loadCatalog(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	e.Catalog = cat

	var rules map[string][]permission.Rule
	if cfg.Permissions.Path != "" {
		rules, err = permission.LoadRules(cfg.Permissions.Path)
		if err != nil {
			return nil, err
		}
	}

	authority, err := permission.New(&permission.Config{
		Catalog: cat,
		Rules:   rules,
	})
	if err != nil {
		return nil, err
	}

	scripts, err := scripting.New(&scripting.Config{Timeout: cfg.Engine.ScriptTimeout})
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, func() error {
		scripts.Close()
		return nil
	})

	roller := opts.Roller
	if roller == nil {
		roller = dice.DefaultRoller
	}

	sessionIDs, instanceIDs, groupIDs := idGenerators(cfg.Engine.DeterministicIDs)

	ldg, err := ledger.New(&ledger.Config{
		Catalog:          cat,
		Authority:        authority,
		InstanceIDs:      instanceIDs,
		GroupIDs:         groupIDs,
		OneSkillPerOwner: cfg.Engine.OneSkillPerOwner,
	})
	if err != nil {
		return nil, err
	}

	pipeline, err := modifiers.New(&modifiers.Config{
		Catalog: cat,
		Roller:  roller,
		Scripts: scripts,
	})
	if err != nil {
		return nil, err
	}

	var repo battlestate.Repository
	if opts.InMemory {
		repo = battlestate.NewInMemory()
	} else {
		repo, err = buildRepository(ctx, cfg, e)
		if err != nil {
			e.Close(logger)
			return nil, err
		}
	}

	e.Recorder = telemetry.NewRecorder()
	sinks := []telemetry.Sink{e.Recorder}
	if opts.LogOperations {
		sinks = append(sinks, telemetry.NewLogSink(slog.Default()))
	}
	observer := telemetry.NewObserver(telemetry.ObserverConfig{
		Sink:  telemetry.Multi(sinks...),
		Clock: opts.Clock,
	})

	e.Bus = events.NewBus()
	subscribeEventLog(e.Bus, logger)

	svc, err := round.NewOrchestrator(&round.Config{
		Ledger:     ldg,
		Pipeline:   pipeline,
		SessionIDs: sessionIDs,
		GroupIDs:   groupIDs,
		Repository: repo,
		Roller:     roller,
		EventBus:   e.Bus,
		Observer:   observer,
		Clock:      opts.Clock,
	})
	if err != nil {
		e.Close(logger)
		return nil, err
	}
	e.Round = svc

	return e, nil
}

func loadCatalog(path string) (catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

func idGenerators(deterministic bool) (sessions, instances, groups idgen.Generator) {
	if deterministic {
		return idgen.NewSequential(idgen.PrefixSession),
			idgen.NewSequential(idgen.PrefixInstance),
			idgen.NewSequential(idgen.PrefixGroup)
	}
	return idgen.NewUUID(idgen.PrefixSession),
		idgen.NewUUID(idgen.PrefixInstance),
		idgen.NewUUID(idgen.PrefixGroup)
}

// buildRepository picks the session store: redis when configured, the SQLite
// backup when configured, both mirrored when both are, memory otherwise.
func buildRepository(ctx context.Context, cfg *config.Config, e *engine) (battlestate.Repository, error) {
	var primary battlestate.Repository

	if cfg.Redis.Enabled() {
		client, err := newRedisClient(cfg.Redis)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, client.Close)

		primary, err = battlestate.NewRedis(&battlestate.RedisConfig{
			Client: client,
			TTL:    cfg.Redis.TTL,
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.Backup.SQLitePath == "" {
		if primary == nil {
			return battlestate.NewInMemory(), nil
		}
		return primary, nil
	}

	backup, err := battlestate.NewSQLite(ctx, &battlestate.SQLiteConfig{Path: cfg.Backup.SQLitePath})
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, backup.Close)

	if primary == nil {
		return backup, nil
	}
	return battlestate.NewMirror(&battlestate.MirrorConfig{
		Primary: primary,
		Backup:  backup,
		Logger:  slog.Default(),
	})
}

func newRedisClient(cfg config.RedisConfig) (redisclient.Client, error) {
	opts := &redisclient.Options{
		Password: cfg.Password,
		DB:       cfg.DB,
		UseTLS:   cfg.UseTLS,
	}
	if cfg.MasterName != "" {
		return redisclient.NewFailoverClient(cfg.MasterName, cfg.Sentinels, opts)
	}
	return redisclient.NewClient(cfg.Addr, opts)
}

// subscribeEventLog writes every lifecycle event to the process log
func subscribeEventLog(bus events.EventBus, logger *zap.Logger) {
	for _, eventType := range round.Events {
		bus.SubscribeFunc(eventType, 0, func(_ context.Context, ev events.Event) error {
			fields := []zap.Field{zap.String("event", ev.Type())}
			if sessionID, ok := ev.Context().Get(round.ContextSessionID); ok {
				fields = append(fields, zap.Any("session_id", sessionID))
			}
			if source := ev.Source(); source != nil {
				fields = append(fields, zap.String("source", source.GetID()))
			}
			if target := ev.Target(); target != nil {
				fields = append(fields, zap.String("target", target.GetID()))
			}
			logger.Debug("Battle event", fields...)
			return nil
		})
	}
}
