package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ragmix/src/core/evalflow"
	"ragmix/src/core/rag"
	"ragmix/src/infrastructure/integrations/groq"
	"ragmix/src/infrastructure/integrations/ollama"
	"ragmix/src/infrastructure/job"
	"ragmix/src/jobctrl"
	"ragmix/src/storage/minioctrl"
	"ragmix/src/storage/postgres/chunkctrl"
	"ragmix/src/storage/postgres/documentctrl"
	"ragmix/src/storage/postgres/evalctrl"
	"ragmix/src/storage/postgres/filectrl"
	"ragmix/src/storage/postgres/tablectrl"
	"ragmix/src/storage/postgres/userctrl"
	"ragmix/src/storage/redisctrl"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background job worker",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	settingDefaultConfig()
}

func runWorker(cmd *cobra.Command, args []string) error {
	// Initialize logger
	logger := watermill.NewStdLogger(false, false)

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
		return fmt.Errorf("failed to connect to database: %v", err)
	}

	// Get underlying *sql.DB for cleanup
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %v", err)
	}
	defer sqlDB.Close()

	// Initialize AMQP publisher
	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return err
	}
	defer amqpPublisher.Close()

	// Initialize AMQP subscriber
	subscriberConfig := amqp.NewDurableQueueConfig(viper.GetString("amqp.url"))
	subscriberConfig.Consume.NoRequeueOnNack = true
	amqpSubscriber, err := amqp.NewSubscriber(
		subscriberConfig,
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return err
	}
	defer amqpSubscriber.Close()

	// Initialize router
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return err
	}

	// Add middleware
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: time.Second,
			Logger:          logger,
		}.Middleware,
	)

	// Initialize MinioService
	minioService, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize minio service: %v", err)
	}

	// Initialize Ollama client
	ollamaClient, err := ollama.NewClient(viper.GetString("ollama.url"), &http.Client{
		Timeout: 30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create ollama client: %v", err)
	}

	// Initialize Groq client
	groqClient, err := groq.NewClient(
		viper.GetString("groq.api_key"),
		viper.GetString("groq.base_url"),
		viper.GetString("groq.model"),
	)
	if err != nil {
		return fmt.Errorf("failed to create groq client: %v", err)
	}

	// Initialize Redis backed embedding cache, optional for the worker too
	var embeddingCache rag.EmbeddingCache
	redisClient, err := redisctrl.NewClient(
		context.Background(),
		viper.GetString("redis.addr"),
		viper.GetString("redis.password"),
		viper.GetInt("redis.db"),
	)
	if err != nil {
		log.Printf("Failed to connect to redis, continuing without embedding cache: %v", err)
	} else {
		embeddingCache = redisctrl.NewEmbeddingCache(redisClient, 24*time.Hour)
	}

	// Initialize storage services
	userService := userctrl.NewUserService(db)
	fileService := filectrl.NewFileService(db)
	documentService := documentctrl.NewDocumentService(db)
	chunkService := chunkctrl.NewChunkService(db)
	tableService := tablectrl.NewTableService(db)

	evalService, err := evalctrl.NewEvaluationService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize evaluation service: %v", err)
	}

	// Build the retrieval engine the evaluation task answers with
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

	// Initialize EvaluationTask
	evaluationTask := jobctrl.NewEvaluationTask(
		evalService,
		userService,
		minioService,
		chatService,
		viper.GetString("minio.dataset_bucket"),
		viper.GetString("minio.report_bucket"),
		evalflow.DefaultPassThreshold,
	)

	// Initialize job repository and service
	jobRepo := job.NewPostgresJobRepository(db)
	jobService := job.NewJobService(amqpPublisher, jobRepo, logger, evaluationTask)

	// Add handler for processing jobs
	router.AddNoPublisherHandler(
		"job_processor",
		"jobs",
		amqpSubscriber,
		func(msg *message.Message) error {
			return jobService.ProcessJobMessage(msg)
		},
	)

	// Run the router
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		err := router.Run(ctx)
		if err != nil {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	<-c

	log.Println("Shutting down...")
	cancel()
	<-router.Running()
	log.Println("Router stopped")

	return nil
}
