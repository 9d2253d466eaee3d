/*
Copyright © 2024 Dean
*/
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	v1 "ragmix/handler/http/v1"
	"ragmix/src/core/rag"
	"ragmix/src/infrastructure/integrations/groq"
	"ragmix/src/infrastructure/integrations/ollama"
	"ragmix/src/infrastructure/job"
	"ragmix/src/log"
	"ragmix/src/storage/minioctrl"
	"ragmix/src/storage/postgres/chunkctrl"
	"ragmix/src/storage/postgres/documentctrl"
	"ragmix/src/storage/postgres/evalctrl"
	"ragmix/src/storage/postgres/filectrl"
	"ragmix/src/storage/postgres/tablectrl"
	"ragmix/src/storage/postgres/userctrl"
	"ragmix/src/storage/redisctrl"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rag API server",
	Long:  `The serve command starts an HTTP server that provides the chat, search and evaluation APIs.`,
	Run:   RunServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	settingDefaultConfig()
}

func RunServer(cmd *cobra.Command, args []string) {
	// Initialize PostgreSQL connection
	host := viper.GetString("postgres.host")
	user := viper.GetString("postgres.user")
	password := viper.GetString("postgres.password")
	dbname := viper.GetString("postgres.db")
	port := viper.GetString("postgres.port")

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		host, user, password, dbname, port)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Error(err, "Failed to connect to database")
		return
	}

	// Get underlying *sql.DB for the health probe and cleanup
	sqlDB, err := db.DB()
	if err != nil {
		log.Error(err, "Failed to get underlying *sql.DB")
		return
	}

	// Initialize Redis backed embedding cache. The server still runs without
	// it; query embeddings are just recomputed on every request.
	var embeddingCache rag.EmbeddingCache
	redisClient, err := redisctrl.NewClient(
		context.Background(),
		viper.GetString("redis.addr"),
		viper.GetString("redis.password"),
		viper.GetInt("redis.db"),
	)
	if err != nil {
		log.Error(err, "Failed to connect to redis, continuing without embedding cache")
	} else {
		embeddingCache = redisctrl.NewEmbeddingCache(redisClient, 24*time.Hour)
	}

	// Initialize MinioService
	minioService, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		log.Error(err, "Failed to initialize minio service")
		return
	}

	datasetBucket := viper.GetString("minio.dataset_bucket")
	reportBucket := viper.GetString("minio.report_bucket")
	for _, bucket := range []string{datasetBucket, reportBucket} {
		if err := minioService.EnsureBucketExists(context.Background(), bucket); err != nil {
			log.Error(err, "Failed to ensure bucket exists", "bucket", bucket)
			return
		}
	}

	// Initialize Ollama client
	ollamaClient, err := ollama.NewClient(viper.GetString("ollama.url"), &http.Client{
		Timeout: 30 * time.Second,
	})
	if err != nil {
		log.Error(err, "Failed to create ollama client")
		return
	}

	// Initialize Groq client
	groqClient, err := groq.NewClient(
		viper.GetString("groq.api_key"),
		viper.GetString("groq.base_url"),
		viper.GetString("groq.model"),
	)
	if err != nil {
		log.Error(err, "Failed to create groq client")
		return
	}

	// Initialize storage services
	userService := userctrl.NewUserService(db)
	fileService := filectrl.NewFileService(db)
	documentService := documentctrl.NewDocumentService(db)
	chunkService := chunkctrl.NewChunkService(db)
	tableService := tablectrl.NewTableService(db)

	evalService, err := evalctrl.NewEvaluationService(db)
	if err != nil {
		log.Error(err, "Failed to initialize evaluation service")
		return
	}

	// Build the retrieval engine
	cfg := rag.Config{
		EmbeddingModel:  viper.GetString("ollama.embedding_model"),
		CompletionModel: viper.GetString("groq.model"),
		DefaultLimit:    viper.GetInt("rag.limit"),
		DefaultMinScore: viper.GetFloat64("rag.min_score"),
		MaxConcurrency:  viper.GetInt("rag.max_concurrency"),
	}
	retry := rag.DefaultRetryPolicy()

	searchService := rag.NewSearchService(ollamaClient, embeddingCache, fileService, chunkService, retry, cfg)
	structuredService := rag.NewStructuredSearchService(
		ollamaClient,
		embeddingCache,
		groqClient,
		fileService,
		documentService,
		chunkService,
		tableService,
		retry,
		cfg,
	)
	synthesizer := rag.NewAnswerSynthesizer(groqClient, retry, cfg)
	chatService := rag.NewChatService(
		searchService,
		structuredService,
		synthesizer,
		groqClient,
		fileService,
		documentService,
		retry,
		cfg,
	)

	// Health probes for the health endpoint
	probes := map[string]rag.Pinger{
		"postgres": func(ctx context.Context) error { return sqlDB.PingContext(ctx) },
		"minio":    minioService.Probe,
		"ollama":   ollamaClient.Probe(),
	}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	sysService := rag.NewSystemService(probes)

	// Initialize AMQP publisher. The API process only enqueues evaluation
	// jobs, the worker consumes them.
	publisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		log.Error(err, "Failed to create publisher")
		return
	}
	defer publisher.Close()

	jobRepo := job.NewPostgresJobRepository(db)
	jobService := job.NewJobService(publisher, jobRepo, watermill.NewStdLogger(false, false), nil)

	// Initialize HTTP handler with individual services
	handler := v1.NewHandler(
		chatService,
		searchService,
		structuredService,
		sysService,
		userService,
		fileService,
		documentService,
		evalService,
		minioService,
		jobService,
		datasetBucket,
		reportBucket,
	)

	// Setup gin router
	r := gin.Default()

	// Register routes
	handler.RegisterRoutes(r)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "Failed to start server")
			return
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Parse shutdown timeout
	timeout, err := time.ParseDuration(viper.GetString("server.shutdown_timeout"))
	if err != nil {
		log.Error(err, "Invalid shutdown timeout, using default 5s")
		timeout = 5 * time.Second
	}

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}

	// Close database connection
	if err := sqlDB.Close(); err != nil {
		log.Error(err, "Error closing database connection")
	}

	log.Info("Server exited")
}
