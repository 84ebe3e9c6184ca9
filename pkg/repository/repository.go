package repository

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrDuplicateID = goerr.New("index entry already exists")
	ErrEmptyVector = goerr.New("embedding vector is empty")
)

// Match is one similarity search hit. Higher Score is more similar.
type Match struct {
	ID       string
	Document string
	Score    float64
}

// Index is a nearest-neighbor index over query embeddings, scoped to one session
type Index interface {
	// Put stores an embedding under id. Ids are never overwritten.
	Put(ctx context.Context, id, document string, embedding []float32) error

	// Search returns up to limit entries ordered by similarity, best first
	Search(ctx context.Context, embedding []float32, limit int) ([]*Match, error)

	// Count returns the number of stored entries
	Count(ctx context.Context) (int, error)

	Close() error
}
