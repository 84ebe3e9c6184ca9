package repository

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
)

// memoryIndex keeps entries in process memory. Nothing survives process exit.
type memoryIndex struct {
	mu      sync.RWMutex
	ids     map[string]struct{}
	entries []candidate
}

func NewMemory() Index {
	return &memoryIndex{
		ids: make(map[string]struct{}),
	}
}

func (x *memoryIndex) Put(ctx context.Context, id, document string, embedding []float32) error {
	if len(embedding) == 0 {
		return goerr.Wrap(ErrEmptyVector, "cannot index entry", goerr.V("id", id))
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.ids[id]; ok {
		return goerr.Wrap(ErrDuplicateID, "cannot index entry", goerr.V("id", id))
	}

	vec := make([]float32, len(embedding))
	copy(vec, embedding)

	x.ids[id] = struct{}{}
	x.entries = append(x.entries, candidate{id: id, document: document, embedding: vec})
	return nil
}

func (x *memoryIndex) Search(ctx context.Context, embedding []float32, limit int) ([]*Match, error) {
	if len(embedding) == 0 {
		return nil, ErrEmptyVector
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	return rankCandidates(embedding, x.entries, limit), nil
}

func (x *memoryIndex) Count(ctx context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries), nil
}

func (x *memoryIndex) Close() error {
	return nil
}
