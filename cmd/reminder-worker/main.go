package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/worameth/clinicdesk/notify"
	configx "github.com/worameth/clinicdesk/pkg/config"
	_ "github.com/worameth/clinicdesk/pkg/logger/autoload"
	"github.com/worameth/clinicdesk/pkg/redisx"
	"github.com/worameth/clinicdesk/records"
)

type WorkerConfig struct {
	Interval    time.Duration `envconfig:"WORKER_INTERVAL" split_words:"true" default:"15m"`
	ScanTimeout time.Duration `envconfig:"SCAN_TIMEOUT" split_words:"true" default:"2m"`

	// csv, memory or postgres; must point at the same records the API
	// server uses.
	RecordsBackend string `envconfig:"RECORDS_BACKEND" split_words:"true" default:"csv"`
	DataDir        string `envconfig:"DATA_DIR" split_words:"true" default:"./data"`
	PostgresDSN    string `envconfig:"POSTGRES_DSN" split_words:"true"`

	// log or sendgrid.
	EmailBackend string `envconfig:"EMAIL_BACKEND" split_words:"true" default:"log"`

	// When set, a Redis lock keeps concurrent worker replicas from
	// double-sending. A single replica can leave it empty.
	RedisAddr string `envconfig:"REDIS_ADDR" split_words:"true"`
}

func main() {
	log.Info().Msg("reminder-worker starting up")

	cfg := configx.MustNew[WorkerConfig]("")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := buildRepository(ctx, cfg)
	sender := buildEmailSender(cfg)

	reminderCfg := configx.MustNew[notify.SchedulerConfig]("REMINDER")
	scheduler := notify.NewScheduler(repo, sender, *reminderCfg)

	var locker redisx.Locker
	if cfg.RedisAddr != "" {
		client, err := redisx.NewClient(redisx.Config{Addr: cfg.RedisAddr, Timeout: 5 * time.Second})
		if err != nil {
			log.Fatal().Err(err).Msg("connect redis")
		}
		defer func() {
			if err := client.Close(); err != nil {
				log.Warn().Err(err).Msg("close redis")
			}
		}()
		locker = redisx.NewLocker(client, cfg.ScanTimeout)
	}

	runOnce(ctx, cfg, scheduler, locker)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(ctx, cfg, scheduler, locker)
		}
	}
}

func runOnce(ctx context.Context, cfg *WorkerConfig, scheduler *notify.Scheduler, locker redisx.Locker) {
	runCtx, cancel := context.WithTimeout(ctx, cfg.ScanTimeout)
	defer cancel()

	scan := func(ctx context.Context) error {
		return scheduler.Scan(ctx, time.Now().UTC())
	}

	start := time.Now()
	var err error
	if locker != nil {
		err = locker.WithLock(runCtx, "reminder-scan", scan)
	} else {
		err = scan(runCtx)
	}

	switch {
	case err == nil:
		log.Info().Dur("took", time.Since(start)).Msg("reminder scan complete")
	case errors.Is(err, redisx.ErrLockNotAcquired):
		log.Info().Msg("another replica holds the scan lock, skipping")
	default:
		log.Error().Err(err).Msg("reminder scan")
	}
}

func buildRepository(ctx context.Context, cfg *WorkerConfig) records.Repository {
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

func buildEmailSender(cfg *WorkerConfig) notify.EmailSender {
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
