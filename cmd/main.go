package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"orbitdrive/internal/auth"
	"orbitdrive/internal/config"
	"orbitdrive/internal/domain"
	"orbitdrive/internal/handler"
	"orbitdrive/internal/preview"
	"orbitdrive/internal/queue"
	"orbitdrive/internal/repository"
	"orbitdrive/internal/service"
	"orbitdrive/internal/service/s3"
	"orbitdrive/internal/worker"
)

func connectWithRetry(dsn string, maxAttempts int, delay time.Duration) (*sqlx.DB, error) {
	var db *sqlx.DB
	var err error

	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			return db, nil
		}

		log.Printf("Failed to connect to database (attempt %d/%d): %v", i+1, maxAttempts, err)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %v", maxAttempts, err)
}

func runMigrations(cfg *config.Config) error {
	databaseURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	var m *migrate.Migrate
	var err error

	for i := 0; i < 5; i++ {
		m, err = migrate.New("file://migrations", databaseURL)
		if err == nil {
			break
		}
		log.Printf("Failed to create migrate instance (attempt %d/5): %v", i+1, err)
		time.Sleep(time.Second * 5)
	}

	if err != nil {
		return fmt.Errorf("failed to create migrate instance after retries: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if dirty {
		log.Printf("Found dirty database state at version %d, attempting to force version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// newQueue выбирает реализацию очереди: RabbitMQ при заданном URL,
// иначе очередь в памяти для локальной разработки
func newQueue(cfg *config.Config) (queue.Queue, error) {
	if cfg.Queue.URL == "" {
		log.Println("Queue URL is not set, using in-memory queue")
		return queue.NewMemoryQueue(0), nil
	}
	return queue.NewRabbitQueue(cfg.Queue.URL)
}

func main() {
	// Загружаем конфигурации
	appConfig, err := config.NewConfig(".app.env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Подключаемся к базе данных
	db, err := connectWithRetry(appConfig.Database.GetDSN(), 5, time.Second*5)
	if err != nil {
		log.Fatalf("Failed to connect to database after retries: %v", err)
	}
	defer db.Close()

	if err := runMigrations(appConfig); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	// Подключаемся к Redis для сессионных токенов
	redisClient, err := auth.NewRedisClient(appConfig.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	tokenStore := auth.NewTokenStore(redisClient)

	// Инициализация S3 клиента
	s3Config, err := s3.NewConfig(".s3.env")
	if err != nil {
		log.Fatalf("Failed to load S3 config: %v", err)
	}

	s3Client, err := s3.NewClient(s3Config)
	if err != nil {
		log.Fatalf("Failed to create S3 client: %v", err)
	}

	// Очередь заданий
	jobQueue, err := newQueue(appConfig)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer jobQueue.Close()

	// Инициализация репозиториев
	fileRepo := repository.NewFileRepository(db)
	userRepo := repository.NewUserRepository(db)

	// Инициализация сервисов
	fileService := service.NewFileService(fileRepo, s3Client, jobQueue)
	userService := service.NewUserService(userRepo, jobQueue)
	emailService := service.NewEmailService(appConfig.Email.APIKey, appConfig.Email.From)

	// Фоновые обработчики
	thumbnailWorker := worker.NewThumbnailWorker(fileRepo, s3Client, preview.NewBimgResizer())
	welcomeWorker := worker.NewWelcomeWorker(userRepo, emailService)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	for _, w := range []*worker.Worker{
		worker.New(jobQueue, domain.LaneThumbnails, thumbnailWorker.Handle),
		worker.New(jobQueue, domain.LaneWelcomes, welcomeWorker.Handle),
	} {
		workers.Add(1)
		go func(w *worker.Worker) {
			defer workers.Done()
			if err := w.Run(workerCtx); err != nil {
				log.Printf("Worker stopped with error: %v", err)
			}
		}(w)
	}

	// Инициализация хендлеров
	fileHandler := handler.NewFileHandler(fileService, tokenStore)
	userHandler := handler.NewUserHandler(userService, tokenStore)
	authHandler := handler.NewAuthHandler(userService, tokenStore)
	appHandler := handler.NewAppHandler(db, tokenStore, userRepo, fileRepo)

	// Настройка HTTP роутера
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// HTTP маршруты
	r.Get("/status", appHandler.Status)
	r.Get("/stats", appHandler.Stats)

	r.Post("/users", userHandler.Register)
	r.Get("/users/me", userHandler.Me)

	r.Get("/connect", authHandler.Connect)
	r.Get("/disconnect", authHandler.Disconnect)

	r.Post("/files", fileHandler.Upload)
	r.Get("/files", fileHandler.Index)
	r.Route("/files/{id}", func(r chi.Router) {
		r.Get("/", fileHandler.Show)
		r.Put("/publish", fileHandler.Publish)
		r.Put("/unpublish", fileHandler.Unpublish)
		r.Get("/data", fileHandler.Download)
	})

	// Создаем HTTP сервер
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler: r,
	}

	// Канал для сигналов завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Запускаем HTTP сервер
	go func() {
		log.Printf("Starting HTTP server on port %s", appConfig.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Ожидаем сигнал завершения
	<-quit
	log.Println("Shutting down...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Останавливаем HTTP сервер
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server forced to shutdown: %v", err)
	}

	// Останавливаем обработчиков: новые задания не берутся,
	// текущие дорабатываются
	stopWorkers()
	workers.Wait()

	// Закрываем соединение с БД
	if err := db.Close(); err != nil {
		log.Printf("Error closing database connection: %v", err)
	}

	log.Println("Server exited properly")
}
