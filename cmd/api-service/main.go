package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/joho/godotenv"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/linklytics/linklytics/internal/analytics"
	"github.com/linklytics/linklytics/internal/auth"
	"github.com/linklytics/linklytics/internal/cache"
	"github.com/linklytics/linklytics/internal/enrich"
	"github.com/linklytics/linklytics/internal/ingest"
	applog "github.com/linklytics/linklytics/internal/logger"
	"github.com/linklytics/linklytics/internal/resolver"
	"github.com/linklytics/linklytics/internal/store"
)

type Config struct {
	AppDomain string
	Store     *store.Store
	Cache     *cache.Cache
	Resolver  *resolver.Resolver
	Analytics *analytics.Aggregator
	Ingestor  *ingest.Ingestor
	Geo       enrich.Geolocator
	Tokens    *auth.TokenManager
	Verifier  auth.IdentityVerifier
	Validate  *validator.Validate

	mongoClient *mongo.Client
	redisClient *redis.Client
	rabbitConn  *amqp091.Connection
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		slog.Warn(".env file not found, relying on env vars", "err", err)
	}

	applog.InitFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := loadConfig(ctx)

	if err := cfg.Store.EnsureIndexes(ctx); err != nil {
		slog.Error("Failed to ensure store indexes", "err", err)
		os.Exit(1)
	}

	cfg.Ingestor.Start()

	app := fiber.New()
	app.Use(requestid.New())
	app.Use(applog.FiberMiddleware())
	app.Use(cors.New())
	app.Use("/api", limiter.New(limiter.Config{
		Max:        100,
		Expiration: 15 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many requests, please try again later."})
		},
	}))

	authMW := auth.Middleware(cfg.Tokens)

	app.Post("/api/auth/login", handleLogin(cfg))
	app.Post("/api/log-click", handleLogClick(cfg))
	app.Get("/api/user", authMW, handleGetUser(cfg))
	app.Get("/api/analytics/overall", authMW, handleOverallAnalytics(cfg))
	app.Get("/api/analytics/topic/:topic", authMW, handleTopicAnalytics(cfg))
	app.Get("/api/analytics/url", authMW, handleAliasAnalytics(cfg))
	app.Post("/shorten", authMW, handleShorten(cfg))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("URL Shortener Backend is running.")
	})
	// registered last so it never shadows the fixed routes
	app.Get("/:alias", handleRedirect(cfg))

	port := os.Getenv("API_SERVICE_PORT")
	go func() {
		slog.Info("Starting API Service", "port", port)
		if err := app.Listen(port); err != nil {
			slog.Error("API Service failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down API Service")

	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		slog.Error("Error shutting down HTTP server", "err", err)
	}
	cfg.Ingestor.Close()
	if err := cfg.rabbitConn.Close(); err != nil {
		slog.Error("Error closing RabbitMQ connection", "err", err)
	}
	if err := cfg.redisClient.Close(); err != nil {
		slog.Error("Error closing Redis client", "err", err)
	}
	if err := cfg.mongoClient.Disconnect(context.Background()); err != nil {
		slog.Error("Error disconnecting MongoDB client", "err", err)
	}
}

func loadConfig(ctx context.Context) *Config {
	mongoOpts := options.Client().
		ApplyURI(os.Getenv("MONGO_URL")).
		SetMonitor(applog.NewMongoMonitor())
	mongoClient, err := mongo.Connect(ctx, mongoOpts)
	if err != nil {
		slog.Error("Unable to connect to MongoDB", "err", err)
		os.Exit(1)
	}
	if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
		slog.Error("Unable to reach MongoDB", "err", err)
		os.Exit(1)
	}
	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "url_shortener"
	}
	st := store.New(mongoClient.Database(dbName))

	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	rdb := redis.NewClient(&redis.Options{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		slog.Error("Unable to connect to Redis", "err", err)
		os.Exit(1)
	}
	kv := cache.New(rdb)

	rabbitConn, err := amqp091.Dial(os.Getenv("RABBITMQ_URL"))
	if err != nil {
		slog.Error("Unable to connect to RabbitMQ", "err", err)
		os.Exit(1)
	}
	rabbitCH, err := rabbitConn.Channel()
	if err != nil {
		slog.Error("Unable to open RabbitMQ channel", "err", err)
		os.Exit(1)
	}
	queueName := os.Getenv("CLICK_QUEUE_NAME")
	if _, err := rabbitCH.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		slog.Error("Failed to declare RabbitMQ queue", "queue", queueName, "err", err)
		os.Exit(1)
	}

	appDomain := os.Getenv("APP_DOMAIN")

	return &Config{
		AppDomain: appDomain,
		Store:     st,
		Cache:     kv,
		Resolver:  resolver.New(st, kv, appDomain),
		Analytics: analytics.New(st, kv),
		Ingestor:  ingest.NewIngestor(ingest.NewAMQPPublisher(rabbitCH, queueName), 1024),
		Geo:       enrich.NewIPAPIClient(os.Getenv("GEOIP_BASE_URL")),
		Tokens:    auth.NewTokenManager(os.Getenv("JWT_SECRET"), 1*time.Hour),
		Verifier:  auth.NewTokenInfoVerifier(os.Getenv("TOKENINFO_URL"), os.Getenv("GOOGLE_CLIENT_ID")),
		Validate:  validator.New(),

		mongoClient: mongoClient,
		redisClient: rdb,
		rabbitConn:  rabbitConn,
	}
}
