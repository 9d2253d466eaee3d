package rag_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ragmix/src/core/rag"
)

var errProviderDown = errors.New("provider unavailable")

func testRetryPolicy() rag.RetryPolicy {
	return rag.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

// fakeEmbedder returns canned vectors keyed by input text.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
	failN   int
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string, input string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failN > 0 {
		f.failN--
		return nil, errProviderDown
	}
	if f.err != nil {
		return nil, f.err
	}
	vec, ok := f.vectors[input]
	if !ok {
		return nil, fmt.Errorf("no canned vector for %q", input)
	}
	return vec, nil
}

type completionCall struct {
	messages []rag.Message
	opts     rag.CompletionOptions
}

// fakeCompleter replies from a canned queue, or via the reply func when set.
type fakeCompleter struct {
	mu      sync.Mutex
	replies []string
	reply   func(messages []rag.Message, opts rag.CompletionOptions) (string, error)
	err     error
	calls   []completionCall
}

func (f *fakeCompleter) Complete(_ context.Context, messages []rag.Message, opts rag.CompletionOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, completionCall{messages: messages, opts: opts})
	if f.reply != nil {
		return f.reply(messages, opts)
	}
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", errors.New("fakeCompleter: no canned reply left")
	}
	next := f.replies[0]
	f.replies = f.replies[1:]
	return next, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeFileStore struct {
	files []rag.File
	err   error
}

func (f *fakeFileStore) GetByID(_ context.Context, id int64) (*rag.File, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.files {
		if f.files[i].ID == id {
			return &f.files[i], nil
		}
	}
	return nil, nil
}

func (f *fakeFileStore) List(_ context.Context) ([]rag.File, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]rag.File, len(f.files))
	copy(out, f.files)
	return out, nil
}

type fakeDocStore struct {
	docs map[int64]*rag.Document
	err  error
}

func (f *fakeDocStore) GetByFileID(_ context.Context, fileID int64) (*rag.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.docs[fileID], nil
}

type fakeChunkStore struct {
	chunks []rag.Chunk
	err    error
}

func (f *fakeChunkStore) ListByModality(_ context.Context, modality rag.Modality) ([]rag.Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []rag.Chunk
	for _, c := range f.chunks {
		if c.Modality == modality {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChunkStore) ListByFileID(_ context.Context, fileID int64, limit int) ([]rag.Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []rag.Chunk
	for _, c := range f.chunks {
		if c.FileID == fileID {
			out = append(out, c)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeTableQuerier struct {
	mu         sync.Mutex
	columns    []string
	columnsErr error
	selectCols []string
	selectRows []map[string]interface{}
	selectErr  error
	gotQueries []string
}

func (f *fakeTableQuerier) Columns(_ context.Context, _ string) ([]string, error) {
	if f.columnsErr != nil {
		return nil, f.columnsErr
	}
	return f.columns, nil
}

func (f *fakeTableQuerier) Select(_ context.Context, query string) ([]string, []map[string]interface{}, error) {
	f.mu.Lock()
	f.gotQueries = append(f.gotQueries, query)
	f.mu.Unlock()
	if f.selectErr != nil {
		return nil, nil, f.selectErr
	}
	return f.selectCols, f.selectRows, nil
}

func (f *fakeTableQuerier) lastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.gotQueries) == 0 {
		return ""
	}
	return f.gotQueries[len(f.gotQueries)-1]
}

type fakeEmbeddingCache struct {
	mu      sync.Mutex
	entries map[string][]float32
	hits    int
	sets    int
}

func (f *fakeEmbeddingCache) Get(_ context.Context, model, text string) ([]float32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vec, ok := f.entries[model+"\x00"+text]
	if ok {
		f.hits++
	}
	return vec, ok
}

func (f *fakeEmbeddingCache) Set(_ context.Context, model, text string, embedding []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entries == nil {
		f.entries = make(map[string][]float32)
	}
	f.entries[model+"\x00"+text] = embedding
	f.sets++
}
