// Command server starts the ImageHub API HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"imagehub/internal/accounts"
	"imagehub/internal/api"
	"imagehub/internal/auth"
	"imagehub/internal/events"
	"imagehub/internal/gallery"
	"imagehub/internal/observability/logging"
	"imagehub/internal/observability/metrics"
	"imagehub/internal/server"
	"imagehub/internal/storage"
)

func main() {
	// A missing .env is not an error; environment wins over file values.
	_ = godotenv.Load()

	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json, memory, or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresConnectTimeout := flag.Duration("postgres-connect-timeout", 0, "timeout when establishing Postgres connections")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	tokenSecret := flag.String("token-secret", "", "HMAC secret for bearer token verification")
	verifyTimeout := flag.Duration("verify-timeout", 0, "per-request deadline for token verification")
	identityURL := flag.String("identity-url", "", "base URL of the identity service for username lookups")
	identityCacheTTL := flag.Duration("identity-cache-ttl", 0, "TTL for cached username lookups")
	eventsDriver := flag.String("events-driver", "", "event publisher driver (memory or redis)")
	redisAddr := flag.String("events-redis-addr", "", "Redis address for the event streams")
	redisAddrs := flag.String("events-redis-addrs", "", "comma-separated Redis addresses for cluster or sentinel")
	redisUsername := flag.String("events-redis-username", "", "Redis username")
	redisPassword := flag.String("events-redis-password", "", "Redis password")
	redisLikeStream := flag.String("events-redis-like-stream", "", "Redis stream receiving like events")
	redisCommentStream := flag.String("events-redis-comment-stream", "", "Redis stream receiving comment events")
	redisMasterName := flag.String("events-redis-sentinel-master", "", "Redis Sentinel master name")
	redisPoolSize := flag.Int("events-redis-pool-size", 0, "Redis connection pool size")
	redisTLSCA := flag.String("events-redis-tls-ca", "", "path to Redis TLS CA bundle")
	redisTLSCert := flag.String("events-redis-tls-cert", "", "path to Redis TLS client certificate")
	redisTLSKey := flag.String("events-redis-tls-key", "", "path to Redis TLS client key")
	redisTLSServerName := flag.String("events-redis-tls-server-name", "", "expected Redis TLS server name")
	redisTLSSkipVerify := flag.Bool("events-redis-tls-skip-verify", false, "skip Redis TLS certificate verification")
	objectEndpoint := flag.String("object-endpoint", "", "object storage endpoint")
	objectRegion := flag.String("object-region", "", "object storage region")
	objectAccessKey := flag.String("object-access-key", "", "object storage access key")
	objectSecretKey := flag.String("object-secret-key", "", "object storage secret key")
	objectBucket := flag.String("object-bucket", "", "object storage bucket")
	objectUseSSL := flag.Bool("object-use-ssl", false, "use HTTPS for object storage requests")
	objectPrefix := flag.String("object-prefix", "", "key prefix for stored objects")
	objectPublicEndpoint := flag.String("object-public-endpoint", "", "public URL base for stored objects")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log output format (json or text)")
	flag.Parse()

	logger := logging.New(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("IMAGEHUB_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("IMAGEHUB_LOG_FORMAT")),
	})

	secret := firstNonEmpty(*tokenSecret, os.Getenv("IMAGEHUB_TOKEN_SECRET"))
	if secret == "" {
		logger.Error("token secret is required")
		os.Exit(1)
	}
	verifier := auth.NewVerifier([]byte(secret))

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer bootCancel()

	driver := strings.ToLower(firstNonEmpty(*storageDriver, os.Getenv("IMAGEHUB_STORAGE_DRIVER"), "json"))
	dsn := firstNonEmpty(*postgresDSN, os.Getenv("IMAGEHUB_POSTGRES_DSN"))
	if driver == "json" && dsn != "" && firstNonEmpty(*storageDriver, os.Getenv("IMAGEHUB_STORAGE_DRIVER")) == "" {
		driver = "postgres"
	}

	var (
		store storage.Repository
		err   error
	)
	switch driver {
	case "memory":
		store = storage.NewMemoryRepository()
	case "json":
		dataFile := firstNonEmpty(*dataPath, os.Getenv("IMAGEHUB_DATA"), "data/imagehub.json")
		store, err = storage.NewJSONRepository(dataFile)
	case "postgres":
		if dsn == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		store, err = storage.NewPostgresRepository(bootCtx, storage.PostgresConfig{
			DSN:             dsn,
			MaxConnections:  int32(resolveInt(*postgresMaxConns, "IMAGEHUB_POSTGRES_MAX_CONNS")),
			MinConnections:  int32(resolveInt(*postgresMinConns, "IMAGEHUB_POSTGRES_MIN_CONNS")),
			MaxConnLifetime: resolveDuration(*postgresMaxConnLifetime, "IMAGEHUB_POSTGRES_MAX_CONN_LIFETIME", 0),
			MaxConnIdleTime: resolveDuration(*postgresMaxConnIdle, "IMAGEHUB_POSTGRES_MAX_CONN_IDLE", 0),
			ConnectTimeout:  resolveDuration(*postgresConnectTimeout, "IMAGEHUB_POSTGRES_CONNECT_TIMEOUT", 0),
			ApplicationName: firstNonEmpty(*postgresAppName, os.Getenv("IMAGEHUB_POSTGRES_APP_NAME")),
		})
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	objectStore := storage.NewObjectStore(storage.ObjectStorageConfig{
		Endpoint:       firstNonEmpty(*objectEndpoint, os.Getenv("IMAGEHUB_OBJECT_ENDPOINT")),
		Region:         firstNonEmpty(*objectRegion, os.Getenv("IMAGEHUB_OBJECT_REGION")),
		AccessKey:      firstNonEmpty(*objectAccessKey, os.Getenv("IMAGEHUB_OBJECT_ACCESS_KEY")),
		SecretKey:      firstNonEmpty(*objectSecretKey, os.Getenv("IMAGEHUB_OBJECT_SECRET_KEY")),
		Bucket:         firstNonEmpty(*objectBucket, os.Getenv("IMAGEHUB_OBJECT_BUCKET")),
		UseSSL:         resolveBool(*objectUseSSL, "IMAGEHUB_OBJECT_USE_SSL"),
		Prefix:         firstNonEmpty(*objectPrefix, os.Getenv("IMAGEHUB_OBJECT_PREFIX")),
		PublicEndpoint: firstNonEmpty(*objectPublicEndpoint, os.Getenv("IMAGEHUB_OBJECT_PUBLIC_ENDPOINT")),
	})
	if !objectStore.Enabled() {
		logger.Warn("object storage not configured, uploads will be rejected")
	}

	publisherDriver := strings.ToLower(firstNonEmpty(*eventsDriver, os.Getenv("IMAGEHUB_EVENTS_DRIVER"), "memory"))
	var (
		publisher       events.Publisher
		publisherCloser func() error
	)
	switch publisherDriver {
	case "memory":
		publisher = events.NewMemoryPublisher()
	case "redis":
		redisPublisher, err := events.NewRedisPublisher(events.RedisPublisherConfig{
			Addr:          firstNonEmpty(*redisAddr, os.Getenv("IMAGEHUB_EVENTS_REDIS_ADDR")),
			Addrs:         splitAndTrim(firstNonEmpty(*redisAddrs, os.Getenv("IMAGEHUB_EVENTS_REDIS_ADDRS"))),
			Username:      firstNonEmpty(*redisUsername, os.Getenv("IMAGEHUB_EVENTS_REDIS_USERNAME")),
			Password:      firstNonEmpty(*redisPassword, os.Getenv("IMAGEHUB_EVENTS_REDIS_PASSWORD")),
			LikeStream:    firstNonEmpty(*redisLikeStream, os.Getenv("IMAGEHUB_EVENTS_REDIS_LIKE_STREAM")),
			CommentStream: firstNonEmpty(*redisCommentStream, os.Getenv("IMAGEHUB_EVENTS_REDIS_COMMENT_STREAM")),
			MasterName:    firstNonEmpty(*redisMasterName, os.Getenv("IMAGEHUB_EVENTS_REDIS_SENTINEL_MASTER")),
			PoolSize:      resolveInt(*redisPoolSize, "IMAGEHUB_EVENTS_REDIS_POOL_SIZE"),
			TLS: events.RedisTLSConfig{
				CAFile:             firstNonEmpty(*redisTLSCA, os.Getenv("IMAGEHUB_EVENTS_REDIS_TLS_CA")),
				CertFile:           firstNonEmpty(*redisTLSCert, os.Getenv("IMAGEHUB_EVENTS_REDIS_TLS_CERT")),
				KeyFile:            firstNonEmpty(*redisTLSKey, os.Getenv("IMAGEHUB_EVENTS_REDIS_TLS_KEY")),
				ServerName:         firstNonEmpty(*redisTLSServerName, os.Getenv("IMAGEHUB_EVENTS_REDIS_TLS_SERVER_NAME")),
				InsecureSkipVerify: resolveBool(*redisTLSSkipVerify, "IMAGEHUB_EVENTS_REDIS_TLS_SKIP_VERIFY"),
			},
		})
		if err != nil {
			logger.Error("failed to configure redis event publisher", "error", err)
			os.Exit(1)
		}
		publisher = redisPublisher
		if closer, ok := redisPublisher.(interface{ Close() error }); ok {
			publisherCloser = closer.Close
		}
	default:
		logger.Error("unsupported events driver", "driver", publisherDriver)
		os.Exit(1)
	}

	var accountsClient accounts.Client
	if identityBase := firstNonEmpty(*identityURL, os.Getenv("IMAGEHUB_IDENTITY_URL")); identityBase != "" {
		accountsClient, err = accounts.NewHTTPClient(accounts.HTTPClientConfig{
			BaseURL:  identityBase,
			CacheTTL: resolveDuration(*identityCacheTTL, "IMAGEHUB_IDENTITY_CACHE_TTL", 0),
		})
		if err != nil {
			logger.Error("failed to configure identity client", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("identity service not configured, comment author names will be empty")
	}

	imageService := gallery.NewImageService(store, objectStore, logging.WithComponent(logger, "images"))
	likeService := gallery.NewLikeService(store, publisher, logging.WithComponent(logger, "likes"))
	commentService := gallery.NewCommentService(store, publisher, accountsClient, logging.WithComponent(logger, "comments"))
	handler := api.New(imageService, likeService, commentService, store, logging.WithComponent(logger, "api"))

	recorder := metrics.Default()
	listenAddr := firstNonEmpty(*addr, os.Getenv("IMAGEHUB_ADDR"), ":8080")
	tlsCfg := server.TLSConfig{
		CertFile: firstNonEmpty(*tlsCert, os.Getenv("IMAGEHUB_TLS_CERT")),
		KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("IMAGEHUB_TLS_KEY")),
	}

	srv, err := server.New(handler, verifier, server.Config{
		Addr:          listenAddr,
		TLS:           tlsCfg,
		Logger:        logger,
		Metrics:       recorder,
		VerifyTimeout: resolveDuration(*verifyTimeout, "IMAGEHUB_VERIFY_TIMEOUT", 0),
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("ImageHub API listening", "addr", listenAddr, "storage", driver, "events", publisherDriver)
		if tlsCfg.CertFile != "" && tlsCfg.KeyFile != "" {
			logger.Info("TLS enabled", "cert_file", tlsCfg.CertFile)
		}
		logger.Info("metrics endpoint available", "path", "/metrics")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errs:
		logger.Error("server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}

	if publisherCloser != nil {
		if err := publisherCloser(); err != nil {
			logger.Warn("failed to close event publisher", "error", err)
		}
	}

	if closer, ok := store.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(ctx); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	}

	logger.Info("server stopped")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}
