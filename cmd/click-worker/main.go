package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/linklytics/linklytics/internal/ingest"
	applog "github.com/linklytics/linklytics/internal/logger"
	"github.com/linklytics/linklytics/internal/store"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		slog.Warn(".env file not found, relying on env vars", "err", err)
	}

	applog.InitFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongoOpts := options.Client().
		ApplyURI(os.Getenv("MONGO_URL")).
		SetMonitor(applog.NewMongoMonitor())
	mongoClient, err := mongo.Connect(ctx, mongoOpts)
	if err != nil {
		slog.Error("Unable to connect to MongoDB", "err", err)
		os.Exit(1)
	}
	defer mongoClient.Disconnect(context.Background())
	if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
		slog.Error("Unable to reach MongoDB", "err", err)
		os.Exit(1)
	}
	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "url_shortener"
	}
	st := store.New(mongoClient.Database(dbName))

	rabbitConn, err := amqp091.Dial(os.Getenv("RABBITMQ_URL"))
	if err != nil {
		slog.Error("Unable to connect to RabbitMQ", "err", err)
		os.Exit(1)
	}
	defer rabbitConn.Close()

	rabbitCH, err := rabbitConn.Channel()
	if err != nil {
		slog.Error("Unable to open RabbitMQ channel", "err", err)
		os.Exit(1)
	}
	defer rabbitCH.Close()

	q, err := rabbitCH.QueueDeclare(
		os.Getenv("CLICK_QUEUE_NAME"),
		true, false, false, false, nil,
	)
	if err != nil {
		slog.Error("Failed to declare queue", "err", err)
		os.Exit(1)
	}

	// Prefetch 100: clicks are independent $push appends, so a generous
	// in-flight window keeps the worker fed without hoarding the queue.
	if err := rabbitCH.Qos(100, 0, false); err != nil {
		slog.Error("Failed to set QoS", "err", err)
		os.Exit(1)
	}

	msgs, err := rabbitCH.Consume(
		q.Name, "", false, false, false, false, nil,
	)
	if err != nil {
		slog.Error("Failed to register consumer", "err", err)
		os.Exit(1)
	}

	slog.Info("Click Worker started. Waiting for click events...")

	consumer := ingest.NewConsumer(st)
	consumer.Run(ctx, msgs)

	slog.Info("Click Worker stopped")
}
