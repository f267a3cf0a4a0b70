package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/atelier-gallery/api/internal/di"
	"github.com/atelier-gallery/api/internal/handlers"
	"github.com/atelier-gallery/api/internal/payments"
	"github.com/atelier-gallery/api/internal/platform/auth"
	"github.com/atelier-gallery/api/internal/platform/cache"
	"github.com/atelier-gallery/api/internal/platform/config"
	pfirestore "github.com/atelier-gallery/api/internal/platform/firestore"
	"github.com/atelier-gallery/api/internal/platform/idempotency"
	"github.com/atelier-gallery/api/internal/platform/jobs"
	"github.com/atelier-gallery/api/internal/platform/markdown"
	"github.com/atelier-gallery/api/internal/platform/observability"
	"github.com/atelier-gallery/api/internal/platform/requestctx"
	"github.com/atelier-gallery/api/internal/platform/secrets"
	platformstorage "github.com/atelier-gallery/api/internal/platform/storage"
	"github.com/atelier-gallery/api/internal/repositories"
	firestoreRepo "github.com/atelier-gallery/api/internal/repositories/firestore"
	"github.com/atelier-gallery/api/internal/repositories/memory"
	"github.com/atelier-gallery/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger(os.Getenv("API_LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = requestctx.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)
	logger = logger.With(zap.String("environment", buildInfo.Environment), zap.String("store", cfg.Store.Backend))

	var (
		registry         repositories.Registry
		idempotencyStore idempotency.Store
		healthChecks     []repositories.DependencyCheck
	)
	switch cfg.Store.Backend {
	case config.StoreBackendMemory:
		store, err := openMemoryStore(ctx, cfg.Store.SeedFile)
		if err != nil {
			logger.Fatal("failed to load seed catalog", zap.String("seedFile", cfg.Store.SeedFile), zap.Error(err))
		}
		registry = store
		idempotencyStore = idempotency.NewMemoryStore()
		healthChecks = append(healthChecks, repositories.DependencyCheck{
			Name:     "catalog",
			Critical: true,
			Check: func(ctx context.Context) error {
				_, _, err := store.Artists().Count(ctx)
				return err
			},
		})
		logger.Warn("memory store in use; data is lost on restart")
	default:
		firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
		client, err := firestoreProvider.Client(ctx)
		if err != nil {
			logger.Fatal("failed to initialise firestore client", zap.Error(err))
		}
		reg, err := firestoreRepo.NewRegistry(firestoreProvider)
		if err != nil {
			logger.Fatal("failed to initialise repositories", zap.Error(err))
		}
		registry = reg
		idempotencyStore = idempotency.NewFirestoreStore(client)
		healthChecks = append(healthChecks, repositories.DependencyCheck{
			Name:     "firestore",
			Timeout:  1500 * time.Millisecond,
			Critical: true,
			Check:    firestoreProvider.Ping,
		})
	}

	var listCache services.ListCache
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		redisCache, err := cache.NewRedisCache(cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.CacheTTL,
		}, cache.WithLogger(logger.Named("cache")), cache.WithNamespace("atelier"))
		if err != nil {
			logger.Fatal("failed to initialise redis cache", zap.Error(err))
		}
		defer func() {
			if err := redisCache.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		listCache = redisCache
		healthChecks = append(healthChecks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: 500 * time.Millisecond,
			Check:   redisCache.Ping,
		})
	}

	uploadSigner, closeStorage, err := newUploadSigner(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise upload signer", zap.Error(err))
	}
	defer closeStorage()

	events, closeEvents, err := newOrderEventPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise order event publisher", zap.Error(err))
	}
	defer closeEvents()

	if cfg.Store.Backend != config.StoreBackendMemory {
		healthChecks = append(healthChecks, secretManagerCheck(fetcher))
	}

	container, err := di.NewContainer(ctx, cfg, registry, di.Infrastructure{
		Cache:        listCache,
		Signer:       uploadSigner,
		Markdown:     markdown.NewRenderer(),
		Events:       events,
		HealthChecks: healthChecks,
		Build:        buildInfo,
		Logger: func(component string) func(context.Context, string, map[string]any) {
			return observability.NewEventLogger(logger, component)
		},
	})
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()

	verifier, err := newTokenVerifier(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise token verifier", zap.Error(err))
	}
	if cfg.Auth.Mode == config.AuthModeMock {
		logger.Warn("mock authentication enabled; bearer tokens are not verified")
	}
	authenticator := auth.NewAuthenticator(verifier, auth.WithLogger(logger.Named("auth")))

	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)
	cleaner := idempotency.NewCleaner(idempotencyStore, cfg.Idempotency.CleanupBatchSize, logger.Named("idempotency"))

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		cleaner.Run(cleanupCtx, cfg.Idempotency.CleanupInterval)
	}()

	var webhookVerifier payments.WebhookVerifier
	if secret := strings.TrimSpace(cfg.PSP.StripeWebhookSecret); secret != "" {
		stripeVerifier, err := payments.NewStripeWebhookVerifier(secret)
		if err != nil {
			logger.Fatal("failed to initialise stripe webhook verifier", zap.Error(err))
		}
		webhookVerifier = stripeVerifier
	}

	svc := container.Services
	artworkHandlers := handlers.NewArtworkHandlers(authenticator, svc.Catalog, idempotencyMiddleware)
	artistHandlers := handlers.NewArtistHandlers(authenticator, svc.Catalog, idempotencyMiddleware)
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders, handlers.WithOrderIdempotency(idempotencyMiddleware))

	healthOpts := []handlers.HealthOption{handlers.WithHealthBuildInfo(buildInfo)}
	if svc.System != nil {
		healthOpts = append(healthOpts, handlers.WithHealthSystemService(svc.System))
	}
	healthHandlers := handlers.NewHealthHandlers(healthOpts...)

	projectID := traceProjectID(cfg)
	middlewares := []handlers.Middleware{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithArtworkRoutes(artworkHandlers.Routes),
		handlers.WithArtistRoutes(artistHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
	}
	if webhookVerifier != nil {
		webhookHandlers := handlers.NewPaymentWebhookHandlers(webhookVerifier, svc.Orders)
		opts = append(opts, handlers.WithWebhookRoutes(webhookHandlers.Routes))
	} else {
		logger.Warn("payment webhooks disabled; stripe webhook secret not configured")
	}
	if oidcMiddleware := buildOIDCMiddleware(logger.Named("oidc"), cfg); oidcMiddleware != nil {
		maintenanceHandlers := handlers.NewMaintenanceHandlers(cleaner)
		opts = append(opts,
			handlers.WithInternalRoutes(maintenanceHandlers.Routes),
			handlers.WithInternalMiddlewares(oidcMiddleware),
		)
	} else {
		logger.Warn("internal routes disabled; OIDC audience not configured")
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("gallery api listening", zap.String("version", buildInfo.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openMemoryStore(ctx context.Context, seedFile string) (*memory.Store, error) {
	seed, err := memory.LoadSeedFile(seedFile)
	if err != nil {
		return nil, err
	}
	store := memory.New()
	if err := store.Load(ctx, seed); err != nil {
		return nil, err
	}
	return store, nil
}

func newTokenVerifier(ctx context.Context, cfg config.Config) (auth.TokenVerifier, error) {
	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		return auth.MockVerifier{}, nil
	case config.AuthModeJWT:
		var opts []auth.JWTOption
		if issuer := strings.TrimSpace(cfg.Auth.JWTIssuer); issuer != "" {
			opts = append(opts, auth.WithJWTIssuer(issuer))
		}
		return auth.NewJWTVerifier(cfg.Auth.JWTSecret, opts...)
	default:
		return auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	}
}

// newUploadSigner returns a nil signer when no assets bucket is configured; image uploads then
// answer 503.
func newUploadSigner(ctx context.Context, cfg config.Config) (services.UploadURLSigner, func(), error) {
	noop := func() {}
	if strings.TrimSpace(cfg.Storage.AssetsBucket) == "" {
		return nil, noop, nil
	}
	opts := []platformstorage.UploadOption{platformstorage.WithUploadTTL(cfg.Storage.UploadURLTTL)}
	closeFn := noop
	if keyFile := strings.TrimSpace(cfg.Storage.SignerKeyFile); keyFile != "" {
		keySigner, err := platformstorage.NewServiceAccountSignerFromFile(keyFile)
		if err != nil {
			return nil, noop, fmt.Errorf("load signer key: %w", err)
		}
		opts = append(opts, platformstorage.WithKeySigner(keySigner))
	} else {
		client, err := cloudstorage.NewClient(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("storage client: %w", err)
		}
		closeFn = func() { _ = client.Close() }
		opts = append(opts, platformstorage.WithStorageClient(client))
	}
	signer, err := platformstorage.NewUploadSigner(opts...)
	if err != nil {
		closeFn()
		return nil, noop, err
	}
	return signer, closeFn, nil
}

func newOrderEventPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (services.OrderEventPublisher, func(), error) {
	topicID := strings.TrimSpace(cfg.PubSub.OrderEventsTopic)
	if topicID == "" {
		return jobs.NewLoggingOrderEventPublisher(logger.Named("events")), func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, func() {}, fmt.Errorf("pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
	if err != nil {
		_ = client.Close()
		return nil, func() {}, err
	}
	return publisher, func() {
		topic.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}, nil
}

func secretManagerCheck(fetcher *secrets.Fetcher) repositories.DependencyCheck {
	const secretHealthReference = "secret://system/healthz?version=latest"
	return repositories.DependencyCheck{
		Name:    "secretManager",
		Timeout: time.Second,
		Check: func(ctx context.Context) error {
			_, err := fetcher.Resolve(ctx, secretHealthReference)
			if err == nil {
				return nil
			}
			if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
				return nil
			}
			return err
		},
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		return nil
	}

	keys := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(logger))
	validator := auth.NewOIDCValidator(keys, logger)
	return validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projectMap := parseKeyValueList(lookup("API_SECRET_PROJECT_IDS"), strings.ToLower); len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if pins := secretVersionPinsFromEnv(env); len(pins) > 0 {
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists secrets that must resolve to a non-empty value. Outside local and
// test environments the payment webhook cannot run unsigned.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	switch strings.ToLower(strings.TrimSpace(env["API_SECURITY_ENVIRONMENT"])) {
	case "", "local", "test":
	default:
		required = append(required, "PSP.StripeWebhookSecret")
	}
	if strings.EqualFold(strings.TrimSpace(env["API_AUTH_MODE"]), config.AuthModeJWT) {
		required = append(required, "Auth.JWTSecret")
	}
	return required
}

// secretVersionPinsFromEnv parses API_SECRET_VERSION_PINS ("[env:]name=version,...") into
// fetcher pins keyed by normalised secret reference.
func secretVersionPinsFromEnv(env map[string]string) map[string]string {
	pins := make(map[string]string)
	for ref, version := range parseKeyValueList(env["API_SECRET_VERSION_PINS"], nil) {
		var prefix string
		if idx := strings.Index(ref, ":"); idx > 0 {
			schemeSplit := strings.Index(ref, "://")
			if schemeSplit == -1 || idx < schemeSplit {
				prefix = strings.ToLower(strings.TrimSpace(ref[:idx])) + ":"
				ref = strings.TrimSpace(ref[idx+1:])
			}
		}
		switch {
		case strings.HasPrefix(ref, "sm://"):
			ref = "secret://" + strings.TrimPrefix(ref, "sm://")
		case !strings.HasPrefix(ref, "secret://"):
			ref = "secret://" + ref
		}
		pins[prefix+ref] = version
	}
	return pins
}

func parseKeyValueList(raw string, normaliseKey func(string) string) map[string]string {
	result := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if normaliseKey != nil {
			key = normaliseKey(key)
		}
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}
