package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sivakandan01/ai-backend/internal/ai"
	"github.com/sivakandan01/ai-backend/internal/app"
	"github.com/sivakandan01/ai-backend/internal/blob"
	"github.com/sivakandan01/ai-backend/internal/blob/fsblob"
	"github.com/sivakandan01/ai-backend/internal/blob/gcsblob"
	"github.com/sivakandan01/ai-backend/internal/cache"
	"github.com/sivakandan01/ai-backend/internal/config"
	"github.com/sivakandan01/ai-backend/internal/model"
	gcsClient "github.com/sivakandan01/ai-backend/internal/platform/gcs"
	mysqlClient "github.com/sivakandan01/ai-backend/internal/platform/mysql"
	rabbitmqClient "github.com/sivakandan01/ai-backend/internal/platform/rabbitmq"
	redisClient "github.com/sivakandan01/ai-backend/internal/platform/redis"
	"github.com/sivakandan01/ai-backend/internal/repository"
	"github.com/sivakandan01/ai-backend/internal/vectorstore"
	"github.com/sivakandan01/ai-backend/internal/vectorstore/mysqlvec"
	"github.com/sivakandan01/ai-backend/internal/vectorstore/qdrant"
	"github.com/sivakandan01/ai-backend/internal/worker"
)

type App struct {
	Config       *config.Config
	MySQL        *gorm.DB
	Redis        *redis.Client
	MQConn       *amqp.Connection
	RAGService   *app.RAGService
	IngestWorker *worker.IngestWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	migrations := []any{&model.Document{}}
	if cfg.Vector.Backend == "mysql" {
		migrations = append(migrations, &model.VectorChunk{})
	}
	if err := mysqlDB.AutoMigrate(migrations...); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	index, err := newVectorIndex(ctx, cfg, mysqlDB)
	if err != nil {
		return nil, err
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	embedder := ai.NewEmbeddingClient(ai.EmbeddingConfig{
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
	})
	generator := ai.NewGenerationClient(ai.ChatConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	})

	registry := repository.NewDocumentRepository(mysqlDB)
	statuses := cache.NewStatusCache(redisCli, time.Duration(cfg.Redis.StatusTTLSeconds)*time.Second)

	var mqConn *amqp.Connection
	var publisher app.IngestPublisher
	if cfg.Ingest.Async {
		mqConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return nil, err
		}
		publisher = rabbitmqClient.NewIngestPublisher(mqConn, cfg.RabbitMQ.IngestQueue)
	}

	ragService := app.NewRAGService(registry, index, blobs, embedder, generator, statuses, publisher, app.RAGServiceConfig{
		ChunkSize:           cfg.Ingest.ChunkSize,
		ChunkOverlap:        cfg.Ingest.ChunkOverlap,
		MaxFileBytes:        cfg.Ingest.MaxFileBytes,
		EmbedMaxConcurrency: cfg.Embedding.MaxConcurrency,
		Async:               cfg.Ingest.Async,
	})

	var ingestWorker *worker.IngestWorker
	if cfg.Ingest.Async {
		ingestWorker = worker.NewIngestWorker(mqConn, ragService, cfg.RabbitMQ.IngestQueue)
		if err := ingestWorker.Start(ctx); err != nil {
			return nil, fmt.Errorf("start ingest worker failed: %w", err)
		}
	}

	return &App{
		Config:       cfg,
		MySQL:        mysqlDB,
		Redis:        redisCli,
		MQConn:       mqConn,
		RAGService:   ragService,
		IngestWorker: ingestWorker,
		StartedAt:    time.Now(),
	}, nil
}

func newVectorIndex(ctx context.Context, cfg *config.Config, db *gorm.DB) (vectorstore.Index, error) {
	switch cfg.Vector.Backend {
	case "mysql":
		return mysqlvec.New(db), nil
	case "qdrant":
		index := qdrant.New(qdrant.Config{
			URL:        cfg.Vector.Qdrant.URL,
			APIKey:     cfg.Vector.Qdrant.APIKey,
			Collection: cfg.Vector.Qdrant.Collection,
		})
		if err := index.EnsureCollection(ctx, cfg.Embedding.Dimension); err != nil {
			return nil, fmt.Errorf("ensure qdrant collection failed: %w", err)
		}
		return index, nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Vector.Backend)
	}
}

func newBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.Blob.Backend {
	case "fs":
		return fsblob.New(cfg.Blob.Dir)
	case "gcs":
		client, err := gcsClient.New(ctx)
		if err != nil {
			return nil, err
		}
		return gcsblob.New(client, cfg.Blob.Bucket, cfg.Blob.Prefix)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Blob.Backend)
	}
}

func (a *App) Close() error {
	var closeErr error
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
