package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	discordrouter "github.com/jose-valero/slashkit/internal/adapters/discord"
	"github.com/jose-valero/slashkit/internal/adapters/httpstatus"
	"github.com/jose-valero/slashkit/internal/app/cooldown"
	"github.com/jose-valero/slashkit/internal/app/dispatch"
	"github.com/jose-valero/slashkit/internal/app/scheduler"
	"github.com/jose-valero/slashkit/internal/app/session"
	"github.com/jose-valero/slashkit/internal/app/waiter"
	"github.com/jose-valero/slashkit/internal/app/worker"
	"github.com/jose-valero/slashkit/internal/commands"
	"github.com/jose-valero/slashkit/internal/infra/config"
	"github.com/jose-valero/slashkit/internal/infra/logging"
	"github.com/jose-valero/slashkit/internal/infra/storage"
)

var version = "dev"

// openCooldowns elige el backend; el close devuelto nunca es nil.
func openCooldowns(ctx context.Context, cfg config.Config) (cooldown.Store, func(), error) {
	switch cfg.CooldownBackend {
	case "postgres":
		db, err := storage.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, func() {}, err
		}
		if err := storage.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, func() {}, err
		}
		repo := storage.NewCooldownRepo(db)
		if n, err := repo.Prune(ctx, nil); err != nil {
			log.Warn().Err(err).Msg("cooldown prune on startup failed")
		} else if n > 0 {
			log.Info().Int64("rows", n).Msg("expired cooldowns pruned")
		}
		log.Info().Msg("✅ DB lista y migrada")
		return repo, func() { _ = db.Close() }, nil
	case "redis":
		client, err := storage.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, func() {}, err
		}
		return storage.NewRedisCooldowns(client, "slashkit:cooldown"), func() { _ = client.Close() }, nil
	default:
		return cooldown.NewMemoryStore(), func() {}, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup("info", true, os.Stderr)
		log.Fatal().Err(err).Msg("config")
	}
	logging.Setup(cfg.LogLevel, cfg.LogPretty, os.Stderr)

	flush, err := logging.InitSentry(cfg.SentryDSN, version)
	if err != nil {
		log.Error().Err(err).Msg("sentry init failed, continuing without it")
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openCooldowns(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.CooldownBackend).Msg("cooldown store")
	}
	defer closeStore()

	// Motor
	pools := worker.NewPools(worker.Sizes{
		Events:   cfg.WorkersEvents,
		Actions:  cfg.WorkersActions,
		Detached: cfg.WorkersDetached,
		Timers:   cfg.WorkersTimers,
	})
	sched := scheduler.New(pools.Timers)
	w := waiter.New(pools.Actions, sched)
	reg := session.NewRegistry(sched, w)
	reg.SetHookTimeout(cfg.HandlerTimeout)

	def := dispatch.DefaultDefaults()
	def.SessionTimeout = cfg.SessionTimeout
	def.ObserverTimeout = cfg.ObserverTimeout
	def.HandlerTimeout = cfg.HandlerTimeout
	engine := dispatch.NewRouter(reg, cooldown.NewTracker(store), pools.Detached, def)

	// Sesión de Discord
	auth := strings.TrimSpace(cfg.DiscordToken)
	if !strings.HasPrefix(strings.ToLower(auth), "bot ") {
		auth = "Bot " + auth
	}
	s, err := discordgo.New(auth)
	if err != nil {
		log.Fatal().Err(err).Msg("discord session")
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	r := discordrouter.NewRouter(s, engine, w, pools.Events, sched, discordrouter.Options{
		GuildID:      cfg.DiscordGuild,
		AdminRoleIDs: cfg.AdminRoleIDs,
		ClickRate:    cfg.ClickRate,
		ClickBurst:   cfg.ClickBurst,
		EventTimeout: cfg.HandlerTimeout + 3*time.Second,
	})
	if err := engine.Register(commands.All(commands.Deps{
		AdminGuard: r.AdminGuard(),
		Settings:   commands.NewSettings(),
	})...); err != nil {
		log.Fatal().Err(err).Msg("commands")
	}

	var ready atomic.Bool
	s.AddHandler(func(*discordgo.Session, *discordgo.Ready) { ready.Store(true) })
	s.AddHandler(func(*discordgo.Session, *discordgo.Disconnect) { ready.Store(false) })
	r.Handlers()

	if err := s.Open(); err != nil {
		log.Fatal().Err(err).Msg("discord open")
	}
	log.Info().Str("user", s.State.User.Username).Str("id", s.State.User.ID).Msg("✅ conectado")

	if err := r.Register(); err != nil {
		log.Fatal().Err(err).Msg("registrando comandos")
	}
	log.Info().Str("guild", cfg.DiscordGuild).Int("commands", len(engine.Commands())).Msg("✅ comandos registrados")

	// Status HTTP
	status := httpstatus.New(func(n int) httpstatus.Snapshot {
		return httpstatus.Snapshot{
			Sessions: reg.Stats(),
			Waiting:  w.Pending(),
			Pools:    pools.Stats(),
			Recent:   engine.Recent(n),
		}
	}, ready.Load)
	go func() {
		if err := status.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
			log.Error().Err(err).Msg("status server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("apagando…")

	// primero cortamos la entrada de eventos
	if err := s.Close(); err != nil {
		log.Warn().Err(err).Msg("discord close")
	}
	r.Stop()

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	reg.Close(closeCtx)
	sched.Close()
	pools.Close()
	log.Info().Msg("bye")
}
