package rag

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrFileNotFound     = errors.New("file not found")
	ErrDocumentNotFound = errors.New("document not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrAccessDenied     = errors.New("access denied")
	ErrInvalidRequest   = errors.New("invalid request")
)

// Modality identifies the source type a chunk was ingested from.
type Modality string

const (
	ModalityPDF     Modality = "pdf"
	ModalityCSV     Modality = "csv"
	ModalityXLSX    Modality = "xlsx"
	ModalityWebsite Modality = "website"
)

// AllModalities lists every modality in scan order.
var AllModalities = []Modality{ModalityPDF, ModalityCSV, ModalityXLSX, ModalityWebsite}

// RetrievalType tags a file as semantic-only or SQL-capable.
type RetrievalType string

const (
	RetrievalSemantic RetrievalType = "semantic"
	RetrievalSQL      RetrievalType = "sql"
)

// Role is the access level of a user.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

// User carries the identity fields retrieval decisions depend on.
type User struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}

// File is an ingested source file. RestrictedUserIDs is a deny-list:
// a non-admin user listed here cannot read the file or its chunks.
type File struct {
	ID                int64         `json:"id"`
	UUID              string        `json:"uuid"`
	Filename          string        `json:"filename"`
	Modality          Modality      `json:"modality"`
	RetrievalType     RetrievalType `json:"retrievalType"`
	OwnerID           int64         `json:"ownerId"`
	RestrictedUserIDs []int64       `json:"restrictedUserIds"`
}

// SQLCapable reports whether the structured retrieval path applies to the file.
func (f *File) SQLCapable() bool {
	return f.RetrievalType == RetrievalSQL
}

// Document holds the per-file metadata produced at ingestion. For SQL-capable
// files it carries the insights summary and the dynamic table name.
type Document struct {
	ID                int64     `json:"id"`
	FileID            int64     `json:"fileId"`
	Title             string    `json:"title"`
	PageCount         int       `json:"pageCount"`
	RowCount          int       `json:"rowCount"`
	InsightsSummary   string    `json:"insightsSummary"`
	InsightsEmbedding []float32 `json:"-"`
	TableName         string    `json:"tableName"`
}

// Chunk is the smallest retrievable unit. Exactly one of the locator fields is
// meaningful, selected by Modality. A chunk whose Embedding is empty is inert.
type Chunk struct {
	ID         int64     `json:"id"`
	DocumentID int64     `json:"documentId"`
	FileID     int64     `json:"fileId"`
	Modality   Modality  `json:"modality"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
	PageNumber int       `json:"pageNumber,omitempty"`
	RowNumber  int       `json:"rowNumber,omitempty"`
	SheetName  string    `json:"sheetName,omitempty"`
	ChunkIndex int       `json:"chunkIndex,omitempty"`
}

// Locator renders the human-readable position of the chunk in its source.
func (c *Chunk) Locator() string {
	switch c.Modality {
	case ModalityPDF:
		return fmt.Sprintf("Page %d", c.PageNumber)
	case ModalityCSV:
		return fmt.Sprintf("Row %d", c.RowNumber)
	case ModalityXLSX:
		return fmt.Sprintf("Sheet '%s', Row %d", c.SheetName, c.RowNumber)
	case ModalityWebsite:
		return fmt.Sprintf("Section %d", c.ChunkIndex)
	default:
		return fmt.Sprintf("Chunk %d", c.ChunkIndex)
	}
}

// RetrievalResult is the common evidence shape both engines produce. It is
// transient and never persisted.
type RetrievalResult struct {
	Content  string   `json:"content"`
	Score    float64  `json:"score"`
	Locator  string   `json:"locator"`
	Modality Modality `json:"modality"`
	Filename string   `json:"filename"`
	FileID   int64    `json:"fileId"`
	ChunkID  int64    `json:"chunkId"`
}

// SearchRequest is the input to the semantic search engine.
type SearchRequest struct {
	Query    string
	Limit    int
	MinScore float64
	Modality Modality // empty means all modalities
	User     *User
}

// StructuredSearchRequest is the input to the SQL retrieval engine.
type StructuredSearchRequest struct {
	Query  string
	FileID int64
	Limit  int
	User   *User
}

// SQLResultSet holds the rows returned by an executed generated statement.
// ExecutionError is set, and RowCount is zero, when execution failed.
type SQLResultSet struct {
	Columns        []string                 `json:"columns"`
	Rows           []map[string]interface{} `json:"rows"`
	RowCount       int                      `json:"rowCount"`
	ExecutionError string                   `json:"executionError,omitempty"`
}

// StructuredResult is the combined output of one structured retrieval pass.
type StructuredResult struct {
	SQLQuery         string            `json:"sqlQuery"`
	SQLResults       SQLResultSet      `json:"sqlResults"`
	SemanticResults  []RetrievalResult `json:"semanticResults"`
	UseSQL           bool              `json:"useSql"`
	UseSemantic      bool              `json:"useSemantic"`
	CombinedApproach bool              `json:"combinedApproach"`
	File             *File             `json:"file"`
}

// Decision is the retrieval path chosen for a single file.
type Decision string

const (
	DecisionSQL      Decision = "sql"
	DecisionSemantic Decision = "semantic"
	DecisionHybrid   Decision = "hybrid"
)

// ResponseType classifies the evidence mix behind an answer.
type ResponseType string

const (
	ResponseHybrid          ResponseType = "hybrid"
	ResponseSQLPrimary      ResponseType = "sql_primary"
	ResponseSemanticPrimary ResponseType = "semantic_primary"
	ResponseNoResults       ResponseType = "no_results"
)

// TurnRequest is one user question entering the engine.
type TurnRequest struct {
	User         *User
	Query        string
	Limit        int
	MinScore     float64
	Model        string // optional completion model override
	UseRetrieval bool
}

// TurnResponse is the outcome of a full turn.
type TurnResponse struct {
	TurnID       string       `json:"turnId"`
	Response     string       `json:"response"`
	Sources      []string     `json:"sources"`
	ResponseType ResponseType `json:"responseType"`
}

// Answer is the synthesizer output. Success is false when the completion
// provider failed and Response carries the degraded error text.
type Answer struct {
	Response string   `json:"response"`
	Sources  []string `json:"sources"`
	Success  bool     `json:"success"`
}

// SearchService performs access-controlled semantic retrieval.
type SearchService interface {
	Search(ctx context.Context, req SearchRequest) ([]RetrievalResult, error)
}

// StructuredSearchService performs the dynamic-SQL retrieval path for one file.
type StructuredSearchService interface {
	SearchStructured(ctx context.Context, req StructuredSearchRequest) (*StructuredResult, error)
}

// ChatService runs a full turn: orchestrated retrieval followed by synthesis,
// with fallback to a plain completion when retrieval yields nothing.
type ChatService interface {
	Answer(ctx context.Context, req TurnRequest) (*TurnResponse, error)
}

// ComponentStatus is the health of one backing component.
type ComponentStatus string

const (
	StatusUp   ComponentStatus = "up"
	StatusDown ComponentStatus = "down"
)

// HealthStatus is the aggregate health report for the service.
type HealthStatus struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
}

// SystemService reports component health.
type SystemService interface {
	CheckHealth(ctx context.Context) (*HealthStatus, error)
}

// Config carries engine tuning. It is constructed once at startup and
// injected; engines keep no package-level state.
type Config struct {
	EmbeddingModel    string
	CompletionModel   string
	DefaultLimit      int
	DefaultMinScore   float64
	MaxConcurrency    int
	InsightsThreshold float64
	SampleChunkCount  int
	ContextMaxChars   int
	SQLRowLimit       int
	FileTimeout       time.Duration
}

// DefaultConfig returns the engine defaults used when a field is unset.
func DefaultConfig() Config {
	return Config{
		EmbeddingModel:    "nomic-embed-text",
		CompletionModel:   "llama-3.3-70b-versatile",
		DefaultLimit:      3,
		DefaultMinScore:   0.5,
		MaxConcurrency:    4,
		InsightsThreshold: 0.5,
		SampleChunkCount:  5,
		ContextMaxChars:   1500,
		SQLRowLimit:       50,
		FileTimeout:       60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = d.EmbeddingModel
	}
	if c.CompletionModel == "" {
		c.CompletionModel = d.CompletionModel
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = d.DefaultLimit
	}
	if c.DefaultMinScore == 0 {
		c.DefaultMinScore = d.DefaultMinScore
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = d.MaxConcurrency
	}
	if c.InsightsThreshold == 0 {
		c.InsightsThreshold = d.InsightsThreshold
	}
	if c.SampleChunkCount <= 0 {
		c.SampleChunkCount = d.SampleChunkCount
	}
	if c.ContextMaxChars <= 0 {
		c.ContextMaxChars = d.ContextMaxChars
	}
	if c.SQLRowLimit <= 0 {
		c.SQLRowLimit = d.SQLRowLimit
	}
	if c.FileTimeout <= 0 {
		c.FileTimeout = d.FileTimeout
	}
	return c
}
