package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ragmix/src/core/evalflow"
	"ragmix/src/infrastructure/job"
	"ragmix/src/jobctrl"
	"ragmix/src/storage/minioctrl"
	"ragmix/src/storage/postgres/evalctrl"
	"ragmix/src/storage/postgres/userctrl"
)

var enqueueEvaluationCmd = &cobra.Command{
	Use:   "enqueue-evaluation",
	Short: "Enqueue an evaluation run for a dataset already in the dataset bucket",
	RunE:  runEnqueueEvaluation,
}

func init() {
	rootCmd.AddCommand(enqueueEvaluationCmd)
	settingDefaultConfig()
	enqueueEvaluationCmd.Flags().StringP("dataset", "d", "", "Dataset object name in the dataset bucket")
	enqueueEvaluationCmd.MarkFlagRequired("dataset")
	enqueueEvaluationCmd.Flags().Int64P("user", "u", 0, "User ID the evaluation retrieval runs as")
	enqueueEvaluationCmd.MarkFlagRequired("user")
}

func runEnqueueEvaluation(cmd *cobra.Command, args []string) error {
	// Initialize logger
	logger := watermill.NewStdLogger(false, false)

	ctx := context.Background()
	objectName, _ := cmd.Flags().GetString("dataset")
	userID, _ := cmd.Flags().GetInt64("user")

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

	// Reject missing or malformed datasets before enqueueing anything
	data, err := minioService.GetObject(ctx, viper.GetString("minio.dataset_bucket"), objectName)
	if err != nil {
		return fmt.Errorf("failed to get dataset object: %v", err)
	}
	ds, err := evalflow.ParseDataset(data)
	if err != nil {
		return fmt.Errorf("failed to parse dataset: %v", err)
	}

	// The run is recorded against a real user
	userService := userctrl.NewUserService(db)
	evalUser, err := userService.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %v", err)
	}
	if evalUser == nil {
		return fmt.Errorf("user %d not found", userID)
	}

	evalService, err := evalctrl.NewEvaluationService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize evaluation service: %v", err)
	}

	run, err := evalService.Create(ctx, ds.Name, objectName, evalUser.ID)
	if err != nil {
		return fmt.Errorf("failed to create evaluation run: %v", err)
	}

	// Initialize AMQP publisher
	publisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}
	defer publisher.Close()

	// Initialize job repository and service
	jobRepo := job.NewPostgresJobRepository(db)
	jobService := job.NewJobService(publisher, jobRepo, logger, nil)

	payload, err := json.Marshal(jobctrl.EvaluationPayload{RunID: run.ID})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	// Enqueue job
	enqueued, err := jobService.EnqueueJob(ctx, jobctrl.TaskTypeEvaluation, payload)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	fmt.Printf("Successfully enqueued evaluation run %s with job ID: %d\n", run.UUID, enqueued.ID)
	return nil
}
