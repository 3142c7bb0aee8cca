package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"checkout-service/awsclient"
	"checkout-service/cache"
	"checkout-service/controllers"
	"checkout-service/database"
	"checkout-service/logger"
	"checkout-service/metrics"
	"checkout-service/middleware"
	"checkout-service/models"
	"checkout-service/providers"
	"checkout-service/repository"
	"checkout-service/routes"
	servicepkg "checkout-service/services"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const serviceName = "checkout-service"

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// AWS clients
	awsCfg, awsErr := awsclient.LoadAWSConfig(ctx)

	zlog, err := newLogger(ctx, cfg, awsCfg, awsErr)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck

	var snsClient awsclient.SNSPublisher
	var metricsClient *awsclient.MetricsClient
	if awsErr != nil {
		zlog.Warn("AWS config unavailable, SNS and CloudWatch disabled", zap.Error(awsErr))
	} else {
		if cfg.EventsSNSTopicARN != "" {
			snsClient = awsclient.NewSNSClient(awsCfg)
		}
		metricsClient = awsclient.NewMetricsClient(awsCfg, cfg.MetricsNamespace, cfg.CloudWatchEnabled)
	}

	db, err := database.ConnectPostgres(cfg.DSN(), zlog,
		&models.Product{}, &models.Cart{}, &models.CartItem{},
		&models.Order{}, &models.OrderItem{}, &models.Payment{},
	)
	if err != nil {
		zlog.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db) //nolint:errcheck

	responseCache := newResponseCache(ctx, cfg, zlog)

	gateway, stripeGateway := newGateway(cfg, zlog)
	zlog.Info("Payment provider configured", zap.String("provider", gateway.Name()))

	// DI chain
	businessMetrics := metrics.New(prometheus.DefaultRegisterer)
	store := repository.NewGormStore(db)
	cartService := servicepkg.NewCartService(store, zlog)
	orderService := servicepkg.NewOrderService(
		store,
		cartService,
		responseCache,
		snsClient,
		cfg.EventsSNSTopicARN,
		businessMetrics,
		cfg.Orders,
		zlog,
	)
	paymentService := servicepkg.NewPaymentService(
		store,
		orderService,
		gateway,
		responseCache,
		snsClient,
		cfg.EventsSNSTopicARN,
		businessMetrics,
		cfg.PaymentCurrency,
		zlog,
	)
	reconciler := servicepkg.NewWebhookReconciler(store, cartService, responseCache, snsClient, cfg.EventsSNSTopicARN, businessMetrics, zlog)

	var webhookParser controllers.StripeWebhookParser
	if stripeGateway != nil {
		webhookParser = stripeGateway
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestID())
	r.Use(middleware.RequestLogger(zlog))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.New(corsConfig(cfg)))
	r.Use(middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow).Middleware(cfg.RateLimitExcludePaths...))
	r.Use(middleware.MetricsMiddleware(metricsClient, serviceName))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	routes.RegisterCartRoutes(r, controllers.NewCartController(cartService))
	routes.RegisterOrderRoutes(r, controllers.NewOrderController(orderService))
	routes.RegisterPaymentRoutes(r, controllers.NewPaymentController(paymentService, reconciler, webhookParser, zlog))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zlog.Info("Checkout service started", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.NotifyQueueURL != "" && awsErr == nil {
		relay := servicepkg.NewNotifyRelay(reconciler, zlog)
		consumer := awsclient.NewSQSConsumer(awsCfg, cfg.NotifyQueueURL, zlog)
		g.Go(func() error {
			return consumer.StartPolling(gctx, relay.HandleMessage)
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		zlog.Info("Shutting down checkout service...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zlog.Error("Server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	zlog.Info("Server exited cleanly")
}

func newLogger(ctx context.Context, cfg *Config, awsCfg sdkaws.Config, awsErr error) (*zap.Logger, error) {
	if !cfg.CloudWatchEnabled || awsErr != nil {
		return logger.New(cfg.Env, nil)
	}
	cw, err := awsclient.NewCloudWatchLogsWriter(ctx, awsCfg, cfg.CloudWatchLogGroup, serviceName)
	if err != nil {
		log.Printf("CloudWatch logs unavailable: %v", err)
		return logger.New(cfg.Env, nil)
	}
	return logger.New(cfg.Env, cw)
}

// newResponseCache prefers Redis and falls back to the in-process cache.
func newResponseCache(ctx context.Context, cfg *Config, zlog *zap.Logger) cache.Cache {
	if cfg.RedisURL == "" {
		return cache.NewMemoryCache(cfg.CacheTTL)
	}
	client, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		zlog.Warn("Redis unavailable, using in-memory cache", zap.Error(err))
		return cache.NewMemoryCache(cfg.CacheTTL)
	}
	zlog.Info("Using Redis response cache")
	return cache.NewRedisCache(client, serviceName+":", cfg.CacheTTL)
}

func newGateway(cfg *Config, zlog *zap.Logger) (providers.PaymentGateway, *providers.StripeGateway) {
	if cfg.PaymentProvider == ProviderStripe {
		sg := providers.NewStripeGateway(cfg.Stripe, zlog)
		return sg, sg
	}
	return providers.NewOctoGateway(cfg.Octo, zlog), nil
}

func corsConfig(cfg *Config) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-User-ID", "X-User-Role", "X-Request-ID", "X-Idempotency-Key", "X-Merge-With-Latest"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		c.AllowCredentials = false
		c.AllowAllOrigins = true
		return c
	}
	allowed := map[string]bool{}
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = true
	}
	var re *regexp.Regexp
	if cfg.AllowedOriginRegex != "" {
		re = regexp.MustCompile(cfg.AllowedOriginRegex)
	}
	c.AllowOriginFunc = func(origin string) bool {
		if allowed[origin] {
			return true
		}
		return re != nil && re.MatchString(origin)
	}
	return c
}
