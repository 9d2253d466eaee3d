/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"ragmix/src/core/evalflow"
	"ragmix/src/core/rag"
	"ragmix/src/infrastructure/integrations/groq"
	"ragmix/src/infrastructure/integrations/ollama"
	"ragmix/src/storage/postgres/chunkctrl"
	"ragmix/src/storage/postgres/documentctrl"
	"ragmix/src/storage/postgres/filectrl"
	"ragmix/src/storage/postgres/tablectrl"
	"ragmix/src/storage/postgres/userctrl"
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "A brief description of your command",
	Long: `A longer description that spans multiple lines and likely contains examples
and usage of using your command. For example:

Cobra is a CLI library for Go that empowers applications.
This application is a tool to generate the needed files
to quickly create a Cobra application.`,
	Run: Evaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	settingDefaultConfig()
	evaluateCmd.Flags().StringP("input", "i", "", "Input JSON dataset path")
	evaluateCmd.MarkFlagRequired("input")
	evaluateCmd.Flags().Int64P("user", "u", 0, "Run retrieval as this user ID (0 evaluates with an admin view)")
	evaluateCmd.Flags().StringP("output", "o", "", "Write the full report JSON to this path")
}

func Evaluate(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	inputPath, _ := cmd.Flags().GetString("input")
	userID, _ := cmd.Flags().GetInt64("user")
	outputPath, _ := cmd.Flags().GetString("output")

	// load dataset file
	raw, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Printf("Failed to read input file: %v\n", err)
		return
	}

	ds, err := evalflow.ParseDataset(raw)
	if err != nil {
		fmt.Printf("Failed to parse dataset: %v\n", err)
		return
	}

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
		fmt.Printf("Failed to connect to database: %v\n", err)
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		fmt.Printf("Failed to get underlying *sql.DB: %v\n", err)
		return
	}
	defer sqlDB.Close()

	// Initialize Ollama client
	ollamaClient, err := ollama.NewClient(viper.GetString("ollama.url"), &http.Client{
		Timeout: 30 * time.Second,
	})
	if err != nil {
		fmt.Printf("Failed to create ollama client: %v\n", err)
		return
	}

	// Initialize Groq client
	groqClient, err := groq.NewClient(
		viper.GetString("groq.api_key"),
		viper.GetString("groq.base_url"),
		viper.GetString("groq.model"),
	)
	if err != nil {
		fmt.Printf("Failed to create groq client: %v\n", err)
		return
	}

	// Build the retrieval engine. A one-shot run skips the embedding cache.
	userService := userctrl.NewUserService(db)
	fileService := filectrl.NewFileService(db)
	documentService := documentctrl.NewDocumentService(db)
	chunkService := chunkctrl.NewChunkService(db)
	tableService := tablectrl.NewTableService(db)

	cfg := rag.Config{
		EmbeddingModel:  viper.GetString("ollama.embedding_model"),
		CompletionModel: viper.GetString("groq.model"),
		DefaultLimit:    viper.GetInt("rag.limit"),
		DefaultMinScore: viper.GetFloat64("rag.min_score"),
		MaxConcurrency:  viper.GetInt("rag.max_concurrency"),
	}
	retry := rag.DefaultRetryPolicy()

	searchService := rag.NewSearchService(ollamaClient, nil, fileService, chunkService, retry, cfg)
	structuredService := rag.NewStructuredSearchService(
		ollamaClient,
		nil,
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

	// Resolve the user the retrieval runs as
	evalUser := &rag.User{Role: rag.RoleAdmin}
	if userID > 0 {
		evalUser, err = userService.GetByID(ctx, userID)
		if err != nil {
			fmt.Printf("Failed to get user: %v\n", err)
			return
		}
		if evalUser == nil {
			fmt.Printf("User %d not found\n", userID)
			return
		}
	}

	bar := progressbar.Default(int64(len(ds.Cases)), "evaluating")
	flow := evalflow.NewEvaluationFlow(chatService, evalflow.WithProgress(func(done, total int) {
		bar.Set(done)
	}))

	report, err := flow.Run(ctx, evalUser, *ds)
	if err != nil {
		fmt.Printf("Failed to run evaluation: %v\n", err)
		return
	}
	bar.Finish()

	fmt.Printf("Evaluation Results:\n")
	fmt.Printf("Dataset: %s\n", report.Dataset)
	fmt.Printf("Total cases: %d\n", report.Total)
	fmt.Printf("Passed: %d\n", report.Passed)
	fmt.Printf("Failed: %d\n", report.Failed)
	fmt.Printf("Average score: %.2f%%\n", report.AverageRecall*100)

	if outputPath != "" {
		reportJSON, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Printf("Failed to marshal report: %v\n", err)
			return
		}
		if err := os.WriteFile(outputPath, reportJSON, 0644); err != nil {
			fmt.Printf("Failed to write report file: %v\n", err)
			return
		}
		fmt.Printf("Report written to %s\n", outputPath)
	}
}
