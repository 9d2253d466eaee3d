package rag

import (
	"context"
	"fmt"
	"sort"

	"ragmix/src/log"
)

// queryEmbedder wraps the embedding provider with the retry policy and the
// optional read-through cache. Both retrieval engines embed through it.
type queryEmbedder struct {
	provider EmbeddingProvider
	cache    EmbeddingCache
	retry    RetryPolicy
	model    string
}

func (e *queryEmbedder) embed(ctx context.Context, text string) ([]float32, error) {
	if e.cache != nil {
		if vec, ok := e.cache.Get(ctx, e.model, text); ok {
			return vec, nil
		}
	}

	var vec []float32
	err := e.retry.Do(ctx, func() error {
		var embedErr error
		vec, embedErr = e.provider.Embed(ctx, e.model, text)
		return embedErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedding provider returned an empty vector")
	}

	if e.cache != nil {
		e.cache.Set(ctx, e.model, text, vec)
	}
	return vec, nil
}

type searchEngine struct {
	embedder *queryEmbedder
	files    FileStore
	chunks   ChunkStore
	cfg      Config
}

// NewSearchService builds the semantic search engine over the given stores.
func NewSearchService(provider EmbeddingProvider, cache EmbeddingCache, files FileStore, chunks ChunkStore, retry RetryPolicy, cfg Config) SearchService {
	cfg = cfg.withDefaults()
	return &searchEngine{
		embedder: &queryEmbedder{provider: provider, cache: cache, retry: retry, model: cfg.EmbeddingModel},
		files:    files,
		chunks:   chunks,
		cfg:      cfg,
	}
}

// Search embeds the query and scores every accessible chunk in the requested
// modalities. A query embedding failure returns an empty list, not an error,
// so the caller can fall back to answering without retrieval.
func (s *searchEngine) Search(ctx context.Context, req SearchRequest) ([]RetrievalResult, error) {
	if req.Limit <= 0 {
		req.Limit = s.cfg.DefaultLimit
	}

	queryVec, err := s.embedder.embed(ctx, req.Query)
	if err != nil {
		log.Error(err, "failed to embed query, returning no results", "query_length", len(req.Query))
		return []RetrievalResult{}, nil
	}

	files, err := s.files.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	accessible := accessibleFileIndex(files, req.User)

	modalities := AllModalities
	if req.Modality != "" {
		modalities = []Modality{req.Modality}
	}

	var kept []RetrievalResult
	var skipped int
	for _, modality := range modalities {
		chunks, err := s.chunks.ListByModality(ctx, modality)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s chunks: %w", modality, err)
		}

		for i := range chunks {
			chunk := &chunks[i]
			file, ok := accessible[chunk.FileID]
			if !ok {
				continue
			}
			if len(chunk.Embedding) == 0 {
				skipped++
				log.Debug("skipping chunk without usable embedding", "chunk_id", chunk.ID, "file_id", chunk.FileID)
				continue
			}
			score := CosineSimilarity(queryVec, chunk.Embedding)
			if score < req.MinScore {
				continue
			}
			kept = append(kept, RetrievalResult{
				Content:  chunk.Content,
				Score:    score,
				Locator:  chunk.Locator(),
				Modality: chunk.Modality,
				Filename: file.Filename,
				FileID:   file.ID,
				ChunkID:  chunk.ID,
			})
		}
	}

	sortResults(kept)
	if len(kept) > req.Limit {
		kept = kept[:req.Limit]
	}

	log.Debug("semantic search finished",
		"results", len(kept), "skipped_chunks", skipped, "min_score", req.MinScore)
	return kept, nil
}

// accessibleFileIndex maps file id to file for every file the user may read.
func accessibleFileIndex(files []File, user *User) map[int64]*File {
	index := make(map[int64]*File, len(files))
	for i := range files {
		if Accessible(&files[i], user) {
			index[files[i].ID] = &files[i]
		}
	}
	return index
}

// sortResults orders by score descending; equal scores order by ascending
// chunk id so repeated queries return identical orderings.
func sortResults(results []RetrievalResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
}
