package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	DiscordToken string
	DiscordGuild string // vacío = comandos globales
	AdminRoleIDs []string

	LogLevel  string
	LogPretty bool
	SentryDSN string

	SessionTimeout  time.Duration
	ObserverTimeout time.Duration
	HandlerTimeout  time.Duration

	WorkersEvents   int
	WorkersActions  int
	WorkersDetached int
	WorkersTimers   int

	CooldownBackend string // memory | postgres | redis
	DatabaseURL     string
	RedisURL        string

	HTTPAddr string // opcional, default :8080

	// límite de clicks por usuario en componentes
	ClickRate  float64
	ClickBurst int
}

var ErrMissing = errors.New("missing required config")

func defaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("SESSION_TIMEOUT", "15m")
	v.SetDefault("OBSERVER_TIMEOUT", "0s")
	v.SetDefault("HANDLER_TIMEOUT", "12s")
	v.SetDefault("WORKERS_EVENTS", 16)
	v.SetDefault("WORKERS_ACTIONS", 8)
	v.SetDefault("WORKERS_DETACHED", 4)
	v.SetDefault("WORKERS_TIMERS", 8)
	v.SetDefault("COOLDOWN_BACKEND", "memory")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("CLICK_RATE", 1.0)
	v.SetDefault("CLICK_BURST", 3)
}

// Load lee el .env (si existe) y el entorno.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}
	v := viper.New()
	v.AutomaticEnv()
	defaults(v)
	return FromViper(v)
}

// FromViper arma la config desde un viper ya poblado.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		DiscordToken:    v.GetString("DISCORD_BOT_TOKEN"),
		DiscordGuild:    v.GetString("DISCORD_GUILD_ID"),
		AdminRoleIDs:    splitList(v.GetString("ADMIN_ROLE_IDS")),
		LogLevel:        strings.ToLower(v.GetString("LOG_LEVEL")),
		LogPretty:       v.GetBool("LOG_PRETTY"),
		SentryDSN:       v.GetString("SENTRY_DSN"),
		SessionTimeout:  v.GetDuration("SESSION_TIMEOUT"),
		ObserverTimeout: v.GetDuration("OBSERVER_TIMEOUT"),
		HandlerTimeout:  v.GetDuration("HANDLER_TIMEOUT"),
		WorkersEvents:   v.GetInt("WORKERS_EVENTS"),
		WorkersActions:  v.GetInt("WORKERS_ACTIONS"),
		WorkersDetached: v.GetInt("WORKERS_DETACHED"),
		WorkersTimers:   v.GetInt("WORKERS_TIMERS"),
		CooldownBackend: strings.ToLower(v.GetString("COOLDOWN_BACKEND")),
		DatabaseURL:     v.GetString("DATABASE_URL"),
		RedisURL:        v.GetString("REDIS_URL"),
		HTTPAddr:        v.GetString("HTTP_ADDR"),
		ClickRate:       v.GetFloat64("CLICK_RATE"),
		ClickBurst:      v.GetInt("CLICK_BURST"),
	}

	if cfg.DiscordToken == "" {
		return cfg, fmt.Errorf("%w: DISCORD_BOT_TOKEN", ErrMissing)
	}
	switch cfg.CooldownBackend {
	case "memory":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return cfg, fmt.Errorf("%w: DATABASE_URL (COOLDOWN_BACKEND=postgres)", ErrMissing)
		}
	case "redis":
		if cfg.RedisURL == "" {
			return cfg, fmt.Errorf("%w: REDIS_URL (COOLDOWN_BACKEND=redis)", ErrMissing)
		}
	default:
		return cfg, fmt.Errorf("unknown COOLDOWN_BACKEND %q", cfg.CooldownBackend)
	}
	if cfg.SessionTimeout <= 0 {
		return cfg, fmt.Errorf("SESSION_TIMEOUT must be positive, got %s", cfg.SessionTimeout)
	}
	return cfg, nil
}

// acepta "1,2" o "1 2"
func splitList(raw string) []string {
	var out []string
	for _, f := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' }) {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
