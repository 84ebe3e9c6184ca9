package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collectionSessions = "sessions"
	collectionQueries  = "queries"

	fieldEmbedding = "embedding"
)

type firestoreEntry struct {
	Query     string             `firestore:"query"`
	Embedding firestore.Vector32 `firestore:"embedding"`
	CreatedAt time.Time          `firestore:"created_at"`
}

// firestoreIndex stores entries in sessions/<session id>/queries and uses
// Firestore vector search. It requires a vector index on the embedding field.
type firestoreIndex struct {
	client    *firestore.Client
	sessionID string
}

// NewFirestore creates an index for one session in the given Firestore database
func NewFirestore(ctx context.Context, projectID, databaseID, sessionID string) (Index, error) {
	if projectID == "" {
		return nil, goerr.New("project is required for firestore index")
	}
	if sessionID == "" {
		return nil, goerr.New("session id is required for firestore index")
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID),
			goerr.V("database", databaseID))
	}

	return &firestoreIndex{
		client:    client,
		sessionID: sessionID,
	}, nil
}

func (x *firestoreIndex) collection() *firestore.CollectionRef {
	return x.client.Collection(collectionSessions).Doc(x.sessionID).Collection(collectionQueries)
}

func (x *firestoreIndex) Put(ctx context.Context, id, document string, embedding []float32) error {
	if len(embedding) == 0 {
		return goerr.Wrap(ErrEmptyVector, "cannot index entry", goerr.V("id", id))
	}

	entry := &firestoreEntry{
		Query:     document,
		Embedding: firestore.Vector32(embedding),
		CreatedAt: time.Now(),
	}

	if _, err := x.collection().Doc(id).Create(ctx, entry); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return goerr.Wrap(ErrDuplicateID, "cannot index entry", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to create index entry",
			goerr.V("session_id", x.sessionID),
			goerr.V("id", id))
	}

	return nil
}

func (x *firestoreIndex) Search(ctx context.Context, embedding []float32, limit int) ([]*Match, error) {
	if len(embedding) == 0 {
		return nil, ErrEmptyVector
	}
	if limit <= 0 {
		return nil, nil
	}

	query := x.collection().FindNearest(fieldEmbedding,
		firestore.Vector32(embedding),
		limit,
		firestore.DistanceMeasureCosine,
		nil,
	)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var matches []*Match
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate vector search results",
				goerr.V("session_id", x.sessionID))
		}

		var entry firestoreEntry
		if err := doc.DataTo(&entry); err != nil {
			return nil, goerr.Wrap(err, "failed to decode index entry", goerr.V("id", doc.Ref.ID))
		}

		matches = append(matches, &Match{
			ID:       doc.Ref.ID,
			Document: entry.Query,
			Score:    cosineSimilarity(embedding, entry.Embedding),
		})
	}

	return matches, nil
}

func (x *firestoreIndex) Count(ctx context.Context) (int, error) {
	iter := x.collection().Select().Documents(ctx)
	defer iter.Stop()

	n := 0
	for {
		_, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, goerr.Wrap(err, "failed to count index entries", goerr.V("session_id", x.sessionID))
		}
		n++
	}
	return n, nil
}

func (x *firestoreIndex) Close() error {
	return x.client.Close()
}
