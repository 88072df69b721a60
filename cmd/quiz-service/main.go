package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samancikme/fizika/internal/api/handlers"
	"github.com/samancikme/fizika/internal/config"
	"github.com/samancikme/fizika/internal/database/minio"
	"github.com/samancikme/fizika/internal/database/mongo"
	"github.com/samancikme/fizika/internal/database/redis"
	"github.com/samancikme/fizika/internal/events"
	"github.com/samancikme/fizika/internal/middleware"
	"github.com/samancikme/fizika/internal/repository"
	"github.com/samancikme/fizika/internal/service"
	"github.com/samancikme/fizika/internal/storage"
	"github.com/samancikme/fizika/pkg/discovery"
)

func setupLogging(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}

	logFileName := fmt.Sprintf("log_%s.log", time.Now().Format("2006-01-02"))
	file, err := os.OpenFile(filepath.Join(dir, logFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %v", err)
	}

	log.SetOutput(io.MultiWriter(os.Stdout, file))
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	return file, nil
}

// ServiceContainer holds all service dependencies
type ServiceContainer struct {
	ImageService    *service.ImageService
	PinService      *service.PinService
	QuestionService *service.QuestionService
	ResultService   *service.ResultService
	SessionService  *service.SessionService
	EventPublisher  events.Publisher
	Registry        *discovery.ServiceRegistry
}

func newBlobStore(cfg *config.Config) (storage.BlobStore, error) {
	switch cfg.Quiz.BlobBackend {
	case "minio":
		client, err := minio.NewClient(&cfg.MinIO)
		if err != nil {
			return nil, err
		}
		return storage.NewMinioStore(client, cfg.MinIO.BucketName), nil
	case "mongo", "":
		return storage.NewMongoStore(mongo.Database), nil
	}
	return nil, fmt.Errorf("unknown blob backend %q", cfg.Quiz.BlobBackend)
}

func newSessionBackend(cfg *config.Config) (service.SessionStore, service.Locker, func()) {
	if !cfg.Redis.Enabled() {
		log.Println("Redis is not configured, sessions are kept in memory")
		return repository.NewMemorySessionRepository(), service.NewKeyedMutex(), func() {}
	}

	client, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Printf("Warning: %v, falling back to in-memory sessions", err)
		return repository.NewMemorySessionRepository(), service.NewKeyedMutex(), func() {}
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			log.Printf("Error closing Redis client: %v", err)
		}
	}
	return repository.NewRedisSessionRepository(client, cfg.Quiz.SessionTTL), service.NewRedisLocker(client), closeFn
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := config.Load()

	// Setup logging
	logFile, err := setupLogging(cfg.Log.Dir)
	if err != nil {
		log.Printf("Warning: Failed to set up logging: %v", err)
	} else {
		defer logFile.Close()
	}

	// Initialize MongoDB
	if err := mongo.InitMongoDB(&cfg.MongoDB); err != nil {
		log.Fatalf("Failed to initialize MongoDB: %v", err)
	}
	defer mongo.CloseDB()

	// Initialize repositories
	questionRepository := repository.NewQuestionRepository(mongo.Database)
	pinRepository := repository.NewPinRepository(mongo.Database)
	resultRepository := repository.NewResultRepository(mongo.Database)

	indexCtx, indexCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := mongo.EnsureIndexes(indexCtx, map[string]mongo.IndexCreator{
		"questions": questionRepository,
		"pins":      pinRepository,
		"results":   resultRepository,
	}); err != nil {
		log.Printf("Warning: Failed to create indexes: %v", err)
	}
	indexCancel()

	blobStore, err := newBlobStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize blob storage: %v", err)
	}

	sessionStore, locker, closeSessions := newSessionBackend(cfg)
	defer closeSessions()

	// Initialize event publisher
	var publisher events.Publisher
	eventPublisher, err := events.NewEventPublisher(cfg.RabbitMQ.URI)
	if err != nil {
		log.Printf("Warning: Failed to initialize event publisher: %v", err)
	} else {
		publisher = eventPublisher
		defer eventPublisher.Close()
	}

	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))

	imageService := service.NewImageService(blobStore, cfg.Quiz.MaxImageDimension, cfg.Quiz.MaxImageSize)
	pinService := service.NewPinService(pinRepository, publisher)
	questionService := service.NewQuestionService(questionRepository, imageService, publisher, rng)
	resultService := service.NewResultService(resultRepository, questionRepository)

	container := &ServiceContainer{
		ImageService:    imageService,
		PinService:      pinService,
		QuestionService: questionService,
		ResultService:   resultService,
		SessionService: service.NewSessionService(
			sessionStore,
			pinService,
			questionService,
			resultRepository,
			locker,
			publisher,
			rng,
		),
		EventPublisher: publisher,
	}

	jwtService := middleware.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	authenticator := middleware.NewAdminAuthenticator(cfg.Auth.AdminUsername, cfg.Auth.AdminPasswordHash, jwtService)
	if cfg.Auth.AdminPasswordHash == "" {
		log.Println("Warning: ADMIN_PASSWORD_HASH is empty, admin login is disabled")
	}

	// Initialize service discovery
	if cfg.Consul.Address != "" {
		registry, err := discovery.NewServiceRegistry(cfg)
		if err != nil {
			log.Printf("Warning: Failed to initialize service discovery: %v", err)
		} else if err := registry.Register(); err != nil {
			log.Printf("Warning: Failed to register with Consul: %v", err)
		} else {
			log.Println("Successfully registered with Consul")
			container.Registry = registry
			defer registry.Deregister()
		}
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"*"},
	}))

	app.Get("/health", func(c fiber.Ctx) error {
		if err := mongo.Ping(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).SendString("Quiz Service database is unreachable")
		}
		return c.Status(fiber.StatusOK).SendString("Quiz Service is healthy")
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Register routes
	routes := handlers.NewRoutes(app, jwtService, cfg.Auth.AdminIDs)
	handlers.NewSessionHandler(container.SessionService).RegisterRoutes(routes)
	handlers.NewPinHandler(container.PinService, cfg.Quiz).RegisterRoutes(routes)
	handlers.NewQuestionHandler(container.QuestionService).RegisterRoutes(routes)
	handlers.NewResultHandler(container.ResultService).RegisterRoutes(routes)
	handlers.NewImageHandler(container.ImageService).RegisterRoutes(routes)
	handlers.NewAdminHandler(authenticator, container.ResultService, container.PinService, container.ImageService).RegisterRoutes(routes)

	// Setup graceful shutdown
	shutdownChan := make(chan os.Signal, 1)
	doneChan := make(chan bool, 1)

	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := app.Listen(fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)); err != nil {
			log.Printf("Error starting server: %v", err)
		}
		doneChan <- true
	}()

	select {
	case <-shutdownChan:
	case <-doneChan:
		log.Println("Server stopped unexpectedly")
		return
	}
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	<-doneChan
	log.Println("Server exited, goodbye!")
}
