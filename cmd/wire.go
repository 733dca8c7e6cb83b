package cmd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/spf13/viper"
	weaviateClient "github.com/weaviate/weaviate-go-client/v4/weaviate"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"shelf/src/core/querycache"
	"shelf/src/core/search"
	"shelf/src/infrastructure/integrations/ollama"
	"shelf/src/infrastructure/integrations/openai"
	"shelf/src/infrastructure/job"
	"shelf/src/infrastructure/log"
	"shelf/src/storage/postgres/bookmarkctrl"
	"shelf/src/storage/postgres/querycachectrl"
	"shelf/src/storage/valkey"
	"shelf/src/storage/weaviate"
)

func openDatabase() (*gorm.DB, error) {
	host := viper.GetString("postgres.host")
	user := viper.GetString("postgres.user")
	password := viper.GetString("postgres.password")
	dbname := viper.GetString("postgres.db")
	port := viper.GetString("postgres.port")

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		host, user, password, dbname, port)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	return db, nil
}

func closeDatabase(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Error(err, "Failed to get underlying *sql.DB")
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Error(err, "Error closing database connection")
	}
}

func pingDatabase(db *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

// newEmbeddingProvider returns nil when no provider is configured, which
// keeps every search on the keyword path.
func newEmbeddingProvider() (querycache.Provider, error) {
	httpClient := &http.Client{Timeout: viper.GetDuration("embedding.timeout")}
	model := viper.GetString("embedding.model")

	var provider querycache.Provider
	switch name := viper.GetString("embedding.provider"); name {
	case "", "none":
		return nil, nil
	case "openai":
		apiKey := viper.GetString("embedding.openai_api_key")
		if apiKey == "" {
			log.Info("No OpenAI API key configured, embeddings disabled")
			return nil, nil
		}
		client, err := openai.NewClient(apiKey, model, viper.GetString("embedding.openai_base_url"), httpClient)
		if err != nil {
			return nil, err
		}
		provider = client
	case "ollama":
		client, err := ollama.NewClient(viper.GetString("embedding.ollama_url"), model, httpClient)
		if err != nil {
			return nil, err
		}
		provider = client
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", name)
	}

	return querycache.RateLimited(provider,
		viper.GetFloat64("embedding.rate_limit"),
		viper.GetInt("embedding.rate_burst"),
	), nil
}

// newCacheStore builds the configured query cache store and a func that
// releases it.
func newCacheStore(ctx context.Context, db *gorm.DB) (querycache.Store, func(), error) {
	switch backend := viper.GetString("cache.backend"); backend {
	case "postgres":
		store, err := querycachectrl.NewQueryCacheService(db, viper.GetInt64("cache.node_id"))
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case "valkey":
		store, err := valkey.NewQueryCacheStore(viper.GetString("valkey.addr"), viper.GetDuration("cache.ttl"))
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}

func newWeaviateSDK() (*weaviate.SDK, error) {
	u, err := url.Parse(viper.GetString("weaviate.url"))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid weaviate url %q", viper.GetString("weaviate.url"))
	}

	client, err := weaviateClient.NewClient(weaviateClient.Config{
		Host:   u.Host,
		Scheme: u.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}
	return weaviate.NewSDK(client), nil
}

func newBookmarkIndex(ctx context.Context) (*weaviate.BookmarkIndex, error) {
	sdk, err := newWeaviateSDK()
	if err != nil {
		return nil, err
	}

	index := weaviate.NewBookmarkIndex(sdk, viper.GetString("weaviate.class"), float32(viper.GetFloat64("ranking.alpha")))
	if err := index.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return index, nil
}

func newRanker(ctx context.Context, db *gorm.DB) (search.Ranker, error) {
	switch backend := viper.GetString("ranking.backend"); backend {
	case "postgres":
		function := viper.GetString("ranking.function")
		if function == "" {
			function = bookmarkctrl.DefaultHybridFunction
		}
		return bookmarkctrl.NewHybridRanker(db, function)
	case "weaviate":
		index, err := newBookmarkIndex(ctx)
		if err != nil {
			return nil, err
		}
		// the index lags behind archive and delete until the next sync-index
		return bookmarkctrl.NewActiveRanker(index, bookmarkctrl.NewBookmarkService(db)), nil
	default:
		return nil, fmt.Errorf("unknown ranking backend %q", backend)
	}
}

// newTouchTransport builds the transport serve publishes touches on. With
// amqp only the publisher side is opened; the worker command consumes.
func newTouchTransport(logger watermill.LoggerAdapter) (*job.Transport, error) {
	switch transport := viper.GetString("touch.transport"); transport {
	case "local":
		return job.NewLocalTransport(int64(viper.GetInt("touch.queue_size")), logger), nil
	case "amqp":
		return job.NewAMQPPublisher(viper.GetString("amqp.url"), logger)
	default:
		return nil, fmt.Errorf("unknown touch transport %q", transport)
	}
}

func cacheConfig() querycache.Config {
	cfg := querycache.DefaultConfig()
	cfg.Dimensions = embeddingDimensions()
	cfg.MemoSize = viper.GetInt("cache.memo_size")
	if d := viper.GetDuration("embedding.timeout"); d > 0 {
		cfg.ProviderTimeout = d
	}
	if d := viper.GetDuration("cache.write_timeout"); d > 0 {
		cfg.WriteTimeout = d
	}
	return cfg
}

// embeddingDimensions returns the configured vector length, or the known
// length of the default OpenAI model. Zero skips the length check.
func embeddingDimensions() int {
	if viper.IsSet("embedding.dimensions") {
		return viper.GetInt("embedding.dimensions")
	}
	model := viper.GetString("embedding.model")
	if viper.GetString("embedding.provider") == "openai" && (model == "" || model == openai.DefaultModel) {
		return openai.DefaultDimensions
	}
	return 0
}

func searchConfig() search.Config {
	return search.Config{
		DefaultLimit:   viper.GetInt("search.default_limit"),
		MaxLimit:       viper.GetInt("search.max_limit"),
		MaxQueryLength: viper.GetInt("search.max_query_length"),
	}
}

func shutdownTimeout() time.Duration {
	timeout, err := time.ParseDuration(viper.GetString("server.shutdown_timeout"))
	if err != nil {
		log.Error(err, "Invalid shutdown timeout, using default 5s")
		return 5 * time.Second
	}
	return timeout
}
