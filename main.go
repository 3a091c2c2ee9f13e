package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/worameth/clinicdesk/agent/flow"
	"github.com/worameth/clinicdesk/agent/intake"
	"github.com/worameth/clinicdesk/agent/llm"
	"github.com/worameth/clinicdesk/agent/prompt"
	"github.com/worameth/clinicdesk/agent/stages"
	statex "github.com/worameth/clinicdesk/agent/state"
	"github.com/worameth/clinicdesk/booking"
	"github.com/worameth/clinicdesk/forms"
	"github.com/worameth/clinicdesk/notify"
	configx "github.com/worameth/clinicdesk/pkg/config"
	_ "github.com/worameth/clinicdesk/pkg/logger/autoload"
	"github.com/worameth/clinicdesk/records"
	"github.com/worameth/clinicdesk/server"
)

type AppConfig struct {
	HTTPAddr        string        `envconfig:"HTTP_ADDR" split_words:"true" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" split_words:"true" default:"10s"`

	// csv, memory or postgres.
	RecordsBackend string `envconfig:"RECORDS_BACKEND" split_words:"true" default:"csv"`
	DataDir        string `envconfig:"DATA_DIR" split_words:"true" default:"./data"`
	PostgresDSN    string `envconfig:"POSTGRES_DSN" split_words:"true"`

	// memory or upstash.
	SessionBackend string `envconfig:"SESSION_BACKEND" split_words:"true" default:"memory"`

	// log or sendgrid.
	EmailBackend string `envconfig:"EMAIL_BACKEND" split_words:"true" default:"log"`

	AdminEmail string `envconfig:"ADMIN_EMAIL" split_words:"true"`

	// Carriers the office can verify coverage against.
	Carriers []string `envconfig:"INSURANCE_CARRIERS" split_words:"true" default:"Aetna,BlueCross,Cigna,UnitedHealth,Humana"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("")

	repo := buildRepository(ctx, appCfg)
	store := buildSessionStore(appCfg)
	sender := buildEmailSender(appCfg)

	reminderCfg := configx.MustNew[notify.SchedulerConfig]("REMINDER")
	if reminderCfg.AdminEmail == "" {
		reminderCfg.AdminEmail = appCfg.AdminEmail
	}
	scheduler := notify.NewScheduler(repo, sender, *reminderCfg)

	llmCfg := configx.MustNew[llm.Config]("OPENROUTER")
	if err := llmCfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("llm config")
	}
	openRouterCfg := llmCfg.OpenRouterForIntake()
	chatModel, err := openRouterCfg.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("build chat model")
	}

	prompts := prompt.LoadPromptSet()
	extractor, err := intake.NewExtractor(ctx, chatModel, prompts.Intake)
	if err != nil {
		log.Fatal().Err(err).Msg("build intake extractor")
	}

	engine := booking.NewEngine(repo)
	deps := stages.Deps{
		Repo:     repo,
		Engine:   engine,
		Carriers: appCfg.Carriers,
	}
	effects := &flow.EffectExecutor{
		Repo:       repo,
		Sender:     sender,
		Renderer:   forms.NewPDFRenderer(),
		Scheduler:  scheduler,
		AdminEmail: reminderCfg.AdminEmail,
	}

	chat, err := flow.New(store, extractor, deps, effects)
	if err != nil {
		log.Fatal().Err(err).Msg("build conversation service")
	}

	router := server.NewRouter(server.RouterConfig{
		Chat:      chat,
		Repo:      repo,
		Engine:    engine,
		Scheduler: scheduler,
	})

	srv := &http.Server{
		Addr:         appCfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", appCfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}

func buildRepository(ctx context.Context, cfg *AppConfig) records.Repository {
	switch cfg.RecordsBackend {
	case "memory":
		return records.NewMemoryRepository()
	case "postgres":
		repo := records.NewBunRepository(cfg.PostgresDSN)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("ensure schema")
		}
		return repo
	case "csv":
		repo, err := records.NewCSVRepository(cfg.DataDir)
		if err != nil {
			log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("open csv repository")
		}
		return repo
	default:
		log.Fatal().Str("backend", cfg.RecordsBackend).Msg("unknown records backend")
		return nil
	}
}

func buildSessionStore(cfg *AppConfig) statex.Store {
	switch cfg.SessionBackend {
	case "upstash":
		redisCfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS")
		store, err := statex.NewUpstashRedisStore(*redisCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("open upstash session store")
		}
		return store
	case "memory":
		return statex.NewMemoryStore()
	default:
		log.Fatal().Str("backend", cfg.SessionBackend).Msg("unknown session backend")
		return nil
	}
}

func buildEmailSender(cfg *AppConfig) notify.EmailSender {
	switch cfg.EmailBackend {
	case "sendgrid":
		sgCfg := configx.MustNew[notify.SendGridConfig]("SENDGRID")
		sender, err := notify.NewSendGridSender(*sgCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("build sendgrid sender")
		}
		return sender
	case "log":
		return notify.LogSender{}
	default:
		log.Fatal().Str("backend", cfg.EmailBackend).Msg("unknown email backend")
		return nil
	}
}
