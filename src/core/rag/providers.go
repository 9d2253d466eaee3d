package rag

import (
	"context"
)

// Message is one chat message sent to the completion provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions tunes a single completion call.
type CompletionOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// EmbeddingProvider defines operations for turning text into vectors
type EmbeddingProvider interface {
	// Embed generates an embedding for the given input text
	Embed(ctx context.Context, model string, input string) ([]float32, error)
}

// CompletionProvider defines operations for text completion
type CompletionProvider interface {
	// Complete generates a completion for the ordered message list
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)
}

// UserStore loads users for access decisions.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*User, error)
}

// FileStore loads files and their restriction lists.
type FileStore interface {
	GetByID(ctx context.Context, id int64) (*File, error)
	List(ctx context.Context) ([]File, error)
}

// DocumentStore loads the per-file document header.
type DocumentStore interface {
	GetByFileID(ctx context.Context, fileID int64) (*Document, error)
}

// ChunkStore enumerates persisted chunks. Implementations return chunks in
// ascending id order so downstream ordering stays deterministic.
type ChunkStore interface {
	ListByModality(ctx context.Context, modality Modality) ([]Chunk, error)
	ListByFileID(ctx context.Context, fileID int64, limit int) ([]Chunk, error)
}

// TableQuerier runs read-only statements against dynamically created tables.
type TableQuerier interface {
	// Columns lists the column names of a table, excluding bookkeeping columns.
	Columns(ctx context.Context, table string) ([]string, error)
	// Select executes a validated SELECT and returns columns plus row maps.
	Select(ctx context.Context, query string) ([]string, []map[string]interface{}, error)
}

// EmbeddingCache is an optional read-through cache for query embeddings.
// Implementations swallow their own errors; a miss is (nil, false).
type EmbeddingCache interface {
	Get(ctx context.Context, model, text string) ([]float32, bool)
	Set(ctx context.Context, model, text string, embedding []float32)
}
