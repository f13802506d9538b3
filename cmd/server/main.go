package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ulma/ulma/internal/config"
	"github.com/ulma/ulma/internal/handlers"
	"github.com/ulma/ulma/internal/logging"
	"github.com/ulma/ulma/internal/middleware"
	"github.com/ulma/ulma/internal/queue"
	"github.com/ulma/ulma/internal/repository"
	"github.com/ulma/ulma/internal/service"
)

func main() {
	bootLogger := logging.New("info", "json")

	cfg, err := config.Load()
	if err != nil {
		bootLogger.WithError(err).Fatal("Failed to load configuration")
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	dynamoClient, err := initDynamoDB(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize DynamoDB")
	}

	redisClient, err := initRedis(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize Redis")
	}
	defer redisClient.Close()

	publisher := initPublisher(cfg, logger)
	defer publisher.Close()

	// Initialize repositories
	userRepo := repository.NewUserRepository(dynamoClient, cfg.DynamoDB.TableName, logger)
	eventRepo := repository.NewEventRepository(dynamoClient, cfg.DynamoDB.TableName, logger)
	guestRepo := repository.NewGuestRepository(dynamoClient, cfg.DynamoDB.TableName, logger)

	// Initialize services
	jwtService, err := service.NewJWTService(&cfg.JWT, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize JWT service")
	}

	verificationService := service.NewVerificationService(redisClient, userRepo, &cfg.Verification, logger)
	accountService := service.NewAccountService(userRepo, verificationService, logger)
	ledgerService := service.NewLedgerService(eventRepo, guestRepo, publisher, cfg.Ledger.PageSize, logger)

	router := handlers.NewRouter(
		handlers.NewAuthHandlers(verificationService, accountService, jwtService, logger),
		handlers.NewLedgerHandlers(ledgerService, logger),
		middleware.NewAuthMiddleware(jwtService, logger),
		logger,
	)

	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
		return
	}

	logger.Info("Server exited")
}

func initDynamoDB(cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(), awsconfig.WithRegion(cfg.DynamoDB.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDB.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDB.Endpoint)
		}
	})
	logger.WithField("table", cfg.DynamoDB.TableName).Info("DynamoDB client initialized")
	return client, nil
}

func initRedis(cfg *config.Config, logger *logrus.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Endpoint,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Redis.Endpoint, err)
	}

	logger.WithField("endpoint", cfg.Redis.Endpoint).Info("Redis client initialized")
	return client, nil
}

// initPublisher falls back to logging events when no broker is configured or
// reachable.
func initPublisher(cfg *config.Config, logger *logrus.Logger) queue.Publisher {
	if cfg.AMQP.URL == "" {
		return queue.NewLogPublisher(logger)
	}

	publisher, err := queue.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Queue, logger)
	if err != nil {
		logger.WithError(err).Warn("AMQP unavailable, logging participation events instead")
		return queue.NewLogPublisher(logger)
	}
	return publisher
}
