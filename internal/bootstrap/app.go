package bootstrap

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"papercompanion/internal/config"
	"papercompanion/internal/migrate"
	rabbitmqClient "papercompanion/internal/platform/rabbitmq"
	redisClient "papercompanion/internal/platform/redis"
	sqliteClient "papercompanion/internal/platform/sqlite"
	"papercompanion/internal/repository"
	"papercompanion/internal/worker"
	"papercompanion/internal/zotero"
)

type App struct {
	Config       *config.Config
	DB           *gorm.DB
	Redis        *redis.Client
	MQConn       *amqp.Connection
	ExportWorker *worker.NoteExportWorker

	StartedAt time.Time

	sweepCancel context.CancelFunc
	sweepWG     sync.WaitGroup
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	db, err := sqliteClient.New(ctx, cfg.SQLite.Path)
	if err != nil {
		return nil, err
	}
	if err := migrate.New(db, migrate.All()...).ApplyMigrations(0); err != nil {
		return nil, fmt.Errorf("apply migrations failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	sessionRepo := repository.NewSessionRepository(db)
	paperRepo := repository.NewPaperRepository(db)
	noteWriter := zotero.NewClient(cfg.Zotero.BaseURL, cfg.Zotero.APIKey, cfg.Zotero.UserID)
	exportWorker := worker.NewNoteExportWorker(mqConn, sessionRepo, paperRepo, noteWriter, cfg.RabbitMQ.NoteExportQueue)
	if err := exportWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start note export worker failed: %w", err)
	}

	app := &App{
		Config:       cfg,
		DB:           db,
		Redis:        redisCli,
		MQConn:       mqConn,
		ExportWorker: exportWorker,
		StartedAt:    time.Now(),
	}
	app.startCacheSweep(repository.NewCacheRepository(db))
	return app, nil
}

// startCacheSweep drops expired cache rows on an interval so the table
// does not grow unbounded between reads.
func (a *App) startCacheSweep(cacheRepo *repository.CacheRepository) {
	interval := time.Duration(a.Config.Cache.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		return
	}

	sweepCtx, cancel := context.WithCancel(context.Background())
	a.sweepCancel = cancel

	a.sweepWG.Add(1)
	go func() {
		defer a.sweepWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				removed, err := cacheRepo.InvalidateExpired()
				if err != nil {
					log.Printf("cache sweep failed: %v", err)
					continue
				}
				if removed > 0 {
					log.Printf("cache sweep removed %d expired entries", removed)
				}
			}
		}
	}()
}

func (a *App) Close() error {
	var closeErr error
	if a.sweepCancel != nil {
		a.sweepCancel()
		a.sweepWG.Wait()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.ExportWorker != nil {
		a.ExportWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
