package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"report-intake-pipeline/classifier"
	"report-intake-pipeline/config"
	"report-intake-pipeline/database"
	"report-intake-pipeline/dedup"
	"report-intake-pipeline/gemini"
	"report-intake-pipeline/handlers"
	"report-intake-pipeline/imagehash"
	"report-intake-pipeline/imagematch"
	"report-intake-pipeline/metrics"
	"report-intake-pipeline/openai"
	"report-intake-pipeline/persist"
	"report-intake-pipeline/pipeline"
	"report-intake-pipeline/rabbitmq"
	"report-intake-pipeline/rules"
	"report-intake-pipeline/stubvision"
	"report-intake-pipeline/vision"

	"github.com/apex/log"
	jsonhandler "github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Info(".env file not found, using system environment variables")
	}

	cfg := config.Load()
	setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	table, err := rules.Load(cfg.RulesFile)
	if err != nil {
		log.Fatalf("Failed to load rules: %v", err)
	}
	log.Infof("Loaded rules version %s with %d categories", table.Version, len(table.Categories))

	metrics.Register()

	policy, err := imagematch.ParsePolicy(cfg.ImageFailurePolicy)
	if err != nil {
		log.Fatalf("Invalid image failure policy: %v", err)
	}
	priorityMode, err := pipeline.ParsePriorityMode(cfg.PriorityMode)
	if err != nil {
		log.Fatalf("Invalid priority mode: %v", err)
	}

	fetcher := imagehash.NewFetcher(cfg.ImageFetchTimeout, cfg.ImageMaxBytes)
	labeler := newLabeler(cfg, table, fetcher)
	detector := dedup.NewDetector(imagehash.NewHasher(fetcher))

	// Persistence sinks
	savers := persist.MultiSaver{persist.LogSaver{}}
	var counter handlers.DecisionCounter

	if cfg.DBEnabled {
		dbCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		db, err := database.NewDatabase(dbCtx, cfg)
		cancel()
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()

		if err := db.CreateDecisionsTable(context.Background()); err != nil {
			log.Fatalf("Failed to create decisions table: %v", err)
		}
		savers = append(savers, db)
		counter = db
	}

	if cfg.RabbitMQEnabled {
		amqpURL := rabbitmq.AMQPURL(cfg.AMQPUser, cfg.AMQPPassword, cfg.AMQPHost, cfg.AMQPPort)
		publisher, err := rabbitmq.NewPublisher(amqpURL, cfg.RabbitExchange, cfg.RabbitDecisionRoutingKey)
		if err != nil {
			log.Fatalf("Failed to initialize RabbitMQ publisher: %v", err)
		}
		defer publisher.Close()
		savers = append(savers, publisher)
	}

	dispatcher := persist.NewDispatcher(savers, cfg.PersistWorkers, cfg.PersistQueueSize, cfg.PersistTimeout)

	intake := pipeline.New(
		classifier.New(table),
		imagematch.NewChecker(labeler, table, policy),
		detector,
		dispatcher,
		table.Version,
		pipeline.Options{
			ImageHashThreshold:      cfg.ImageHashThreshold,
			LocationThresholdMeters: cfg.LocationThresholdMeters,
			ExactTextDedup:          cfg.DedupExactText,
			PriorityMode:            priorityMode,
		},
	)

	router := setupRouter(cfg, handlers.NewHandlers(intake, table, detector, counter))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Infof("Starting HTTP server on port %s (vision provider %s, image policy %s)", cfg.Port, labeler.SourceName(), policy)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	// Drain queued decisions after the last request has finished
	if err := dispatcher.Stop(ctx); err != nil {
		log.Errorf("Persistence queue not drained: %v", err)
	}

	log.Info("Server exited")
}

func setupLogging(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		log.SetHandler(jsonhandler.New(os.Stderr))
	} else {
		log.SetHandler(text.New(os.Stderr))
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("Unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if level == log.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
}

func newLabeler(cfg *config.Config, table *rules.Table, fetcher *imagehash.Fetcher) vision.Labeler {
	candidates := table.CandidateLabels()
	heuristic := vision.NewHeuristicLabeler(candidates)

	switch cfg.VisionProvider {
	case config.ProviderOpenAI:
		client := openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, candidates)
		return vision.NewResilient(client, heuristic, cfg.VisionTimeout, cfg.VisionRatePerSec)
	case config.ProviderGemini:
		client := gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel, candidates, fetcher)
		return vision.NewResilient(client, heuristic, cfg.VisionTimeout, cfg.VisionRatePerSec)
	case config.ProviderStub:
		return stubvision.New(candidates)
	default:
		return heuristic
	}
}

func setupRouter(cfg *config.Config, h *handlers.Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORSAllowedOrigins) == 0 || (len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	}
	router.Use(cors.New(corsConfig))

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("request")
	})

	h.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
